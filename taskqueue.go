// Package taskqueue provides the durable, priority-aware task queue used by
// the payment module to defer charge execution, refund execution, and
// tokenization for out-of-band processing with bounded concurrency and
// automatic retry.
//
// This is the main package users should import. It re-exports the public
// types from the internal pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	// Create storage and queue
//	db, _ := gorm.Open(sqlite.Open("tasks.db"), &gorm.Config{})
//	store := taskqueue.NewGormStore(db)
//	store.Migrate(context.Background())
//	queue := taskqueue.New(store)
//
//	// Register handler
//	queue.Register("charge", func(ctx context.Context, p ChargeParams) (ChargeReceipt, error) {
//	    return processor.Charge(ctx, p)
//	})
//
//	// Enqueue task
//	queue.Enqueue(ctx, "charge", params, taskqueue.Priority(5))
//
//	// Start scheduler
//	sched := taskqueue.NewScheduler(queue, taskqueue.Concurrency(10))
//	sched.Start(ctx)
package taskqueue

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ledgerline/taskqueue/pkg/core"
	"github.com/ledgerline/taskqueue/pkg/queue"
	"github.com/ledgerline/taskqueue/pkg/schedule"
	"github.com/ledgerline/taskqueue/pkg/scheduler"
	"github.com/ledgerline/taskqueue/pkg/security"
	"github.com/ledgerline/taskqueue/pkg/storage"
	"github.com/ledgerline/taskqueue/pkg/taskctx"
)

// Type aliases for the public surface
type (
	// Task represents a unit of deferred payment work.
	Task = core.Task

	// TaskState represents the current lifecycle state of a task.
	TaskState = core.TaskState

	// Store defines the durable persistence layer for tasks.
	Store = core.Store

	// Event is the interface for all queue lifecycle events.
	Event = core.Event

	// TaskQueued is emitted when a task is accepted into the queue.
	TaskQueued = core.TaskQueued

	// TaskStarted is emitted when a task moves to processing.
	TaskStarted = core.TaskStarted

	// TaskCompleted is emitted when a task completes successfully.
	TaskCompleted = core.TaskCompleted

	// TaskRetrying is emitted when a failed execution is re-queued.
	TaskRetrying = core.TaskRetrying

	// TaskFailed is emitted when a task fails permanently.
	TaskFailed = core.TaskFailed

	// TaskReset is emitted when an operator resets a failed task.
	TaskReset = core.TaskReset

	// NoRetryError indicates a handler error that should not be retried.
	NoRetryError = core.NoRetryError

	// StoreError wraps a persistence failure during a state move.
	StoreError = core.StoreError

	// Queue manages handler registration, enqueueing, events, and stats.
	Queue = queue.Queue

	// QueueStats is a point-in-time snapshot of the live counters.
	QueueStats = queue.QueueStats

	// Option modifies enqueue/registration Options.
	Option = queue.Option

	// Options holds configuration for task enqueueing and registration.
	Options = queue.Options

	// ScheduledTask holds configuration for a recurring task.
	ScheduledTask = queue.ScheduledTask

	// Scheduler pulls waves of pending tasks and drives them to an outcome.
	Scheduler = scheduler.Scheduler

	// SchedulerOption configures a Scheduler.
	SchedulerOption = scheduler.Option

	// Schedule defines when a recurring task should run next.
	Schedule = schedule.Schedule

	// GormStore implements Store using GORM.
	GormStore = storage.GormStore
)

// State constants
const (
	StatePending    = core.StatePending
	StateProcessing = core.StateProcessing
	StateCompleted  = core.StateCompleted
	StateFailed     = core.StateFailed
)

// Limits
const (
	MaxTaskTypeNameLength = security.MaxTaskTypeNameLength
	MaxPayloadSize        = security.MaxPayloadSize
	MaxRetries            = security.MaxRetries
	MaxConcurrency        = security.MaxConcurrency
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Error variables
var (
	ErrInvalidTaskTypeName = core.ErrInvalidTaskTypeName
	ErrTaskTypeNameTooLong = core.ErrTaskTypeNameTooLong
	ErrPayloadTooLarge     = core.ErrPayloadTooLarge
	ErrUnknownTaskType     = core.ErrUnknownTaskType
	ErrTaskNotClaimed      = core.ErrTaskNotClaimed
	ErrSchedulerRunning    = core.ErrSchedulerRunning
)

// DefaultMaxRetries is the retry budget applied when none is specified.
var DefaultMaxRetries = queue.DefaultMaxRetries

// New creates a new Queue backed by the given store.
func New(s Store) *Queue {
	return queue.New(s)
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return storage.NewGormStore(db)
}

// NewScheduler creates a scheduler for the given queue.
func NewScheduler(q *Queue, opts ...SchedulerOption) *Scheduler {
	return scheduler.New(q, opts...)
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return queue.NewOptions()
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// ValidateTaskTypeName validates a task type name.
func ValidateTaskTypeName(name string) error {
	return security.ValidateTaskTypeName(name)
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}

// Task option functions

// Priority sets the task priority (higher runs sooner).
func Priority(p int) Option {
	return queue.Priority(p)
}

// Retries sets the maximum retry count.
func Retries(n int) Option {
	return queue.Retries(n)
}

// Delay schedules the task to run after a duration.
func Delay(d time.Duration) Option {
	return queue.Delay(d)
}

// At schedules the task to run at a specific time.
func At(t time.Time) Option {
	return queue.At(t)
}

// WithTimeout bounds each handler invocation for a registered task type.
func WithTimeout(d time.Duration) Option {
	return queue.WithTimeout(d)
}

// Scheduler option functions

// Concurrency sets the scheduler concurrency limit.
func Concurrency(n int) SchedulerOption {
	return scheduler.Concurrency(n)
}

// PollInterval sets the scheduler's fallback poll interval.
func PollInterval(d time.Duration) SchedulerOption {
	return scheduler.PollInterval(d)
}

// WithOrphanRecovery toggles requeueing of crash-orphaned tasks at startup.
func WithOrphanRecovery(enabled bool) SchedulerOption {
	return scheduler.WithOrphanRecovery(enabled)
}

// Schedule functions

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return schedule.Every(d)
}

// Daily creates a schedule that runs at a specific time each day.
func Daily(hour, minute int) Schedule {
	return schedule.Daily(hour, minute)
}

// Weekly creates a schedule that runs at a specific day and time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return schedule.Weekly(day, hour, minute)
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	return schedule.Cron(expr)
}

// TaskFromContext returns the current Task from context, or nil if not in
// a task handler.
func TaskFromContext(ctx context.Context) *Task {
	return taskctx.TaskFromContext(ctx)
}

// TaskIDFromContext returns the current task ID from context, or empty
// string if not in a task handler.
func TaskIDFromContext(ctx context.Context) string {
	return taskctx.TaskIDFromContext(ctx)
}
