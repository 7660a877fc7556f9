package queue

import (
	"sync/atomic"
	"time"
)

// QueueStats is a point-in-time snapshot of the live aggregate counters.
type QueueStats struct {
	Pending   int64     `json:"pending"`
	Processed int64     `json:"processed"`
	Failed    int64     `json:"failed"`
	Workers   int64     `json:"workers"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats maintains the live counters. They are updated alongside each state
// transition rather than derived by rescanning the store, so reads are
// cheap and repeated reads with no intervening mutation are identical.
type Stats struct {
	pending   atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	workers   atomic.Int64
}

// Queued records a task accepted into the pending partition.
func (s *Stats) Queued() {
	s.pending.Add(1)
}

// Claimed records a pending task moving to processing.
func (s *Stats) Claimed() {
	s.pending.Add(-1)
	s.workers.Add(1)
}

// Completed records a processing task finishing successfully.
func (s *Stats) Completed() {
	s.workers.Add(-1)
	s.processed.Add(1)
}

// Retried records a processing task re-entering the pending partition.
func (s *Stats) Retried() {
	s.workers.Add(-1)
	s.pending.Add(1)
}

// Failed records a processing task reaching terminal failure.
func (s *Stats) Failed() {
	s.workers.Add(-1)
	s.failed.Add(1)
}

// Reset records a failed task manually moved back to pending.
func (s *Stats) Reset() {
	s.failed.Add(-1)
	s.pending.Add(1)
}

// Released records an execution ending without a recorded outcome, e.g.
// after a store failure. The task stays in the processing partition until
// orphan recovery, so only the in-flight count drops.
func (s *Stats) Released() {
	s.workers.Add(-1)
}

// Seed overwrites the partition-derived counters. Used at startup to
// re-align the reporter with the durable store after orphan recovery.
func (s *Stats) Seed(pending, failed int64) {
	s.pending.Store(pending)
	s.failed.Store(failed)
}

// Snapshot returns a timestamped copy of the counters.
func (s *Stats) Snapshot() QueueStats {
	return QueueStats{
		Pending:   s.pending.Load(),
		Processed: s.processed.Load(),
		Failed:    s.failed.Load(),
		Workers:   s.workers.Load(),
		Timestamp: time.Now(),
	}
}
