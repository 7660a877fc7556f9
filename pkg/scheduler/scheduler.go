package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ledgerline/taskqueue/pkg/core"
	"github.com/ledgerline/taskqueue/pkg/internal/handler"
	"github.com/ledgerline/taskqueue/pkg/queue"
	"github.com/ledgerline/taskqueue/pkg/taskctx"
)

// Scheduler pulls waves of pending tasks and drives each to a terminal or
// retry outcome. One wave holds at most ConcurrencyLimit tasks, dispatched
// concurrently; the next wave starts only when the previous one finished.
// Tasks already dispatched are never preempted — a higher-priority enqueue
// waits for the next wave.
type Scheduler struct {
	queue  *queue.Queue
	config Config
	logger *slog.Logger

	// running is the single-flight guard: at most one scheduling loop is
	// ever active, which is what prevents duplicate dispatch of a wave.
	running atomic.Bool

	// wake is signalled on enqueue and manual reset so an idle loop picks
	// up new work without waiting for the poll tick.
	wake chan struct{}

	registerOnce sync.Once
	lastRun      map[string]time.Time
}

// New creates a scheduler for the given queue.
func New(q *queue.Queue, opts ...Option) *Scheduler {
	config := Config{
		ConcurrencyLimit: 10,
		PollInterval:     100 * time.Millisecond,
		RecoverOrphans:   true,
	}
	for _, opt := range opts {
		opt.ApplyScheduler(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}

	return &Scheduler{
		queue:   q,
		config:  config,
		logger:  config.Logger,
		wake:    make(chan struct{}, 1),
		lastRun: make(map[string]time.Time),
	}
}

// Wake nudges an idle scheduler to look for pending work. Safe to call
// from any goroutine; a wake while already signalled is coalesced.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start runs the scheduling loop until ctx is cancelled. Returns
// core.ErrSchedulerRunning if a loop is already active.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return core.ErrSchedulerRunning
	}
	defer s.running.Store(false)

	s.registerOnce.Do(func() {
		s.queue.RegisterWaker(s.Wake)
	})

	if s.config.RecoverOrphans {
		n, err := s.queue.Store().RequeueOrphans(ctx)
		if err != nil {
			return core.WrapStore("requeue orphans", err)
		}
		if n > 0 {
			s.logger.Info("requeued orphaned tasks", "count", n)
		}
	}
	if err := s.queue.SyncStats(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Pick up any backlog persisted before this run.
	s.Wake()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-ticker.C:
			s.enqueueDueScheduled(ctx)
		}

		if err := s.drain(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.Error("wave aborted", "error", err)
		}
	}
}

// drain pulls waves until no due pending tasks remain. A store failure
// aborts after the in-flight wave completes; tasks that retried during a
// wave are simply picked up by the next one.
func (s *Scheduler) drain(ctx context.Context) error {
	for {
		wave, err := s.queue.Store().NextWave(ctx, s.config.ConcurrencyLimit)
		if err != nil {
			return core.WrapStore("next wave", err)
		}
		if len(wave) == 0 {
			return nil
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			waveErr error
		)
		for _, task := range wave {
			wg.Add(1)
			go func(t *core.Task) {
				defer wg.Done()
				if err := s.runTask(ctx, t); err != nil {
					mu.Lock()
					if waveErr == nil {
						waveErr = err
					}
					mu.Unlock()
				}
			}(task)
		}
		wg.Wait()

		if waveErr != nil {
			return waveErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// runTask drives one task from claim to outcome. Handler errors become
// state transitions and never escape; only store failures return an error.
func (s *Scheduler) runTask(ctx context.Context, t *core.Task) error {
	var task *core.Task
	err := s.retryWrite(ctx, func() error {
		var claimErr error
		task, claimErr = s.queue.Store().MarkProcessing(ctx, t.ID)
		return claimErr
	})
	if err != nil {
		if errors.Is(err, core.ErrTaskNotClaimed) {
			// Lost the claim; the task was taken or reset meanwhile.
			return nil
		}
		return core.WrapStore("claim", err)
	}

	counters := s.queue.Counters()
	counters.Claimed()

	start := time.Now()
	s.queue.Emit(&core.TaskStarted{Task: task, Timestamp: start})
	s.queue.CallStartHooks(ctx, task)

	h, ok := s.queue.GetHandler(task.Type)
	if !ok {
		s.logger.Error("no handler for task", "task_id", task.ID, "type", task.Type)
		return s.failTask(ctx, task, fmt.Errorf("%w: %q", core.ErrUnknownTaskType, task.Type))
	}

	result, err := s.execute(ctx, task, h)
	if err != nil {
		return s.handleError(ctx, task, err)
	}

	if err := s.retryWrite(ctx, func() error {
		return s.queue.Store().MarkCompleted(ctx, task.ID, result)
	}); err != nil {
		s.logger.Error("failed to record completion", "task_id", task.ID, "error", err)
		counters.Released()
		return core.WrapStore("complete", err)
	}
	counters.Completed()
	s.queue.CallCompleteHooks(ctx, task)
	s.queue.Emit(&core.TaskCompleted{Task: task, Duration: time.Since(start), Timestamp: time.Now()})
	return nil
}

func (s *Scheduler) execute(ctx context.Context, task *core.Task, h *handler.Handler) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	taskCtx := taskctx.NewContext(ctx, task)
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(taskCtx, h.Timeout)
		defer cancel()
	}

	return h.Execute(taskCtx, task.Payload)
}

// handleError applies the retry policy: requeue immediately while budget
// remains, otherwise fail terminally.
func (s *Scheduler) handleError(ctx context.Context, task *core.Task, taskErr error) error {
	var noRetry *core.NoRetryError
	if errors.As(taskErr, &noRetry) || task.RetryCount >= task.MaxRetries {
		return s.failTask(ctx, task, taskErr)
	}

	if err := s.retryWrite(ctx, func() error {
		return s.queue.Store().MarkRetry(ctx, task.ID, nil)
	}); err != nil {
		s.logger.Error("failed to requeue task", "task_id", task.ID, "error", err)
		s.queue.Counters().Released()
		return core.WrapStore("retry", err)
	}

	attempt := task.RetryCount + 1
	s.queue.Counters().Retried()
	s.queue.CallRetryHooks(ctx, task, attempt, taskErr)
	s.queue.Emit(&core.TaskRetrying{Task: task, Attempt: attempt, Error: taskErr, Timestamp: time.Now()})
	return nil
}

func (s *Scheduler) failTask(ctx context.Context, task *core.Task, taskErr error) error {
	if err := s.retryWrite(ctx, func() error {
		return s.queue.Store().MarkFailed(ctx, task.ID, taskErr.Error())
	}); err != nil {
		s.logger.Error("failed to record failure", "task_id", task.ID, "error", err)
		s.queue.Counters().Released()
		return core.WrapStore("fail", err)
	}

	s.queue.Counters().Failed()
	s.queue.CallFailHooks(ctx, task, taskErr)
	s.queue.Emit(&core.TaskFailed{Task: task, Error: taskErr, Timestamp: time.Now()})
	return nil
}

func (s *Scheduler) retryWrite(ctx context.Context, op func() error) error {
	return retryWithBackoff(ctx, *s.config.StorageRetry, op)
}

// enqueueDueScheduled enqueues recurring tasks whose schedule has come due.
func (s *Scheduler) enqueueDueScheduled(ctx context.Context) {
	scheduled := s.queue.ScheduledTasks()
	if scheduled == nil {
		return
	}

	now := time.Now()
	for name, st := range scheduled {
		next := st.Schedule.Next(s.lastRun[name])
		if now.After(next) || now.Equal(next) {
			_, err := s.queue.Enqueue(ctx, st.Name, st.Payload,
				queue.Priority(st.Options.Priority),
				queue.Retries(st.Options.MaxRetries),
			)
			if err != nil {
				s.logger.Error("failed to enqueue scheduled task", "name", name, "error", err)
			} else {
				s.lastRun[name] = now
			}
		}
	}
}
