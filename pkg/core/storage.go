package core

import (
	"context"
	"time"
)

// Store defines the durable persistence layer for tasks. Each task is one
// record keyed by ID with an indexed state column; every state move is a
// single atomic update guarded by the expected source state, so a task is
// never visible in two states at once.
type Store interface {
	// Migrate creates the necessary tables.
	Migrate(ctx context.Context) error

	// Enqueue persists a new task in the pending state.
	Enqueue(ctx context.Context, task *Task) error

	// NextWave returns up to limit due pending tasks ordered by priority
	// descending with creation time as tie-break.
	NextWave(ctx context.Context, limit int) ([]*Task, error)

	// MarkProcessing claims a pending task for execution and returns the
	// updated record. Returns ErrTaskNotClaimed if the task was no longer
	// pending.
	MarkProcessing(ctx context.Context, id string) (*Task, error)

	// MarkCompleted moves a processing task to completed, storing result.
	MarkCompleted(ctx context.Context, id string, result []byte) error

	// MarkRetry moves a processing task back to pending, incrementing the
	// retry count and clearing the stored error. A non-nil runAt defers
	// the next attempt.
	MarkRetry(ctx context.Context, id string, runAt *time.Time) error

	// MarkFailed moves a processing task to failed, attaching the error.
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// ResetFailed moves a failed task back to pending with the retry
	// count zeroed. Reports whether a row was actually reset; tasks in
	// any other state are left untouched.
	ResetFailed(ctx context.Context, id string) (bool, error)

	// RequeueOrphans moves every processing task back to pending. Called
	// at startup to recover tasks stranded by a crash mid-execution.
	RequeueOrphans(ctx context.Context) (int64, error)

	// GetTask retrieves a task by ID, or (nil, nil) if not found.
	GetTask(ctx context.Context, id string) (*Task, error)

	// ListByState retrieves up to limit tasks in the given state.
	ListByState(ctx context.Context, state TaskState, limit int) ([]*Task, error)

	// CountByState counts tasks in the given state.
	CountByState(ctx context.Context, state TaskState) (int64, error)

	// Delete removes a task, guarded by its expected state.
	Delete(ctx context.Context, id string, state TaskState) error
}
