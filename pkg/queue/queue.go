package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/taskqueue/pkg/core"
	"github.com/ledgerline/taskqueue/pkg/internal/handler"
	"github.com/ledgerline/taskqueue/pkg/schedule"
	"github.com/ledgerline/taskqueue/pkg/security"
)

// Queue manages handler registration, task enqueueing, lifecycle events,
// and the live status counters. All queue state lives on the instance, so
// multiple independent queues can coexist in one process.
type Queue struct {
	store          core.Store
	handlers       map[string]*handler.Handler
	scheduledTasks map[string]*ScheduledTask
	mu             sync.RWMutex

	// Hooks
	onStart    []func(context.Context, *core.Task)
	onComplete []func(context.Context, *core.Task)
	onFail     []func(context.Context, *core.Task, error)
	onRetry    []func(context.Context, *core.Task, int, error)

	// Event stream
	eventSubs []chan core.Event

	// Wakers are notified whenever new pending work may exist, so an idle
	// scheduler does not have to discover it by polling.
	wakers []func()

	stats Stats
}

// ScheduledTask holds configuration for a recurring task.
type ScheduledTask struct {
	Name     string
	Schedule schedule.Schedule
	Payload  any
	Options  *Options
}

// New creates a new Queue backed by the given store.
func New(s core.Store) *Queue {
	return &Queue{
		store:    s,
		handlers: make(map[string]*handler.Handler),
	}
}

// Register registers a task handler function.
// The function must have signature func(ctx context.Context, payload T) error
// or func(ctx context.Context, payload T) (R, error).
// Task type names must be alphanumeric (starting with a letter), max 255 chars.
func (q *Queue) Register(name string, fn any, opts ...Option) {
	if err := security.ValidateTaskTypeName(name); err != nil {
		panic(fmt.Sprintf("taskqueue: invalid handler name %q: %v", name, err))
	}

	h, err := handler.NewHandler(fn)
	if err != nil {
		panic(fmt.Sprintf("taskqueue: handler for %q: %v", name, err))
	}

	// Apply registration options (e.g. WithTimeout)
	if len(opts) > 0 {
		o := NewOptions()
		for _, opt := range opts {
			opt.Apply(o)
		}
		h.Timeout = o.Timeout
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

// HasHandler checks if a handler is registered.
func (q *Queue) HasHandler(name string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.handlers[name]
	return ok
}

// GetHandler returns a handler by name.
func (q *Queue) GetHandler(name string) (*handler.Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[name]
	return h, ok
}

// Enqueue validates and persists a task, returning its ID. Execution is
// asynchronous; the returned error covers only validation and store I/O.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts ...Option) (string, error) {
	if err := security.ValidateTaskTypeName(name); err != nil {
		return "", err
	}

	q.mu.RLock()
	_, ok := q.handlers[name]
	q.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownTaskType, name)
	}

	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("taskqueue: failed to marshal payload: %w", err)
	}
	if len(payloadBytes) > security.MaxPayloadSize {
		return "", core.ErrPayloadTooLarge
	}

	task := &core.Task{
		ID:         uuid.New().String(),
		Type:       name,
		Payload:    payloadBytes,
		Priority:   options.Priority,
		MaxRetries: security.ClampRetries(options.MaxRetries),
		State:      core.StatePending,
	}

	if options.Delay > 0 {
		runAt := time.Now().Add(options.Delay)
		task.RunAt = &runAt
	}
	if options.RunAt != nil {
		task.RunAt = options.RunAt
	}

	if err := q.store.Enqueue(ctx, task); err != nil {
		return "", core.WrapStore("enqueue", err)
	}

	q.stats.Queued()
	q.Emit(&core.TaskQueued{Task: task, Timestamp: time.Now()})
	q.notifyWakers()

	return task.ID, nil
}

// GetStatus returns the full task record, or (nil, nil) if no task with
// the given ID exists.
func (q *Queue) GetStatus(ctx context.Context, id string) (*core.Task, error) {
	task, err := q.store.GetTask(ctx, id)
	if err != nil {
		return nil, core.WrapStore("get", err)
	}
	return task, nil
}

// QueueStats returns a timestamped snapshot of the live counters.
func (q *Queue) QueueStats() QueueStats {
	return q.stats.Snapshot()
}

// Counters exposes the live counters for the scheduler to update alongside
// state transitions.
func (q *Queue) Counters() *Stats {
	return &q.stats
}

// SyncStats re-seeds the pending and failed counters from the store.
// Called after startup recovery so the reporter matches durable state.
func (q *Queue) SyncStats(ctx context.Context) error {
	pending, err := q.store.CountByState(ctx, core.StatePending)
	if err != nil {
		return core.WrapStore("count pending", err)
	}
	failed, err := q.store.CountByState(ctx, core.StateFailed)
	if err != nil {
		return core.WrapStore("count failed", err)
	}
	q.stats.Seed(pending, failed)
	return nil
}

// RetryFailed resets a failed task to pending with a fresh retry budget.
// Returns false with no mutation if the task does not exist or is not in
// the failed state; resetting a completed task is a no-op.
func (q *Queue) RetryFailed(ctx context.Context, id string) (bool, error) {
	ok, err := q.store.ResetFailed(ctx, id)
	if err != nil {
		return false, core.WrapStore("reset", err)
	}
	if !ok {
		return false, nil
	}

	q.stats.Reset()
	if task, getErr := q.store.GetTask(ctx, id); getErr == nil && task != nil {
		q.Emit(&core.TaskReset{Task: task, Timestamp: time.Now()})
	}
	q.notifyWakers()
	return true, nil
}

// Schedule registers a recurring task enqueued by the scheduler whenever
// its schedule comes due.
func (q *Queue) Schedule(name string, sched schedule.Schedule, payload any, opts ...Option) {
	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}

	q.mu.Lock()
	if q.scheduledTasks == nil {
		q.scheduledTasks = make(map[string]*ScheduledTask)
	}
	q.scheduledTasks[name] = &ScheduledTask{
		Name:     name,
		Schedule: sched,
		Payload:  payload,
		Options:  options,
	}
	q.mu.Unlock()
}

// ScheduledTasks returns the recurring task map (for the scheduler).
func (q *Queue) ScheduledTasks() map[string]*ScheduledTask {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.scheduledTasks
}

// Store returns the underlying store.
func (q *Queue) Store() core.Store {
	return q.store
}

// RegisterWaker adds a callback invoked whenever new pending work may
// exist (enqueue or manual reset). Callbacks must not block.
func (q *Queue) RegisterWaker(fn func()) {
	q.mu.Lock()
	q.wakers = append(q.wakers, fn)
	q.mu.Unlock()
}

func (q *Queue) notifyWakers() {
	q.mu.RLock()
	wakers := make([]func(), len(q.wakers))
	copy(wakers, q.wakers)
	q.mu.RUnlock()

	for _, fn := range wakers {
		fn()
	}
}

// OnTaskStart registers a callback for when a task starts processing.
func (q *Queue) OnTaskStart(fn func(context.Context, *core.Task)) {
	q.mu.Lock()
	q.onStart = append(q.onStart, fn)
	q.mu.Unlock()
}

// OnTaskComplete registers a callback for when a task completes successfully.
func (q *Queue) OnTaskComplete(fn func(context.Context, *core.Task)) {
	q.mu.Lock()
	q.onComplete = append(q.onComplete, fn)
	q.mu.Unlock()
}

// OnTaskFail registers a callback for when a task fails permanently.
func (q *Queue) OnTaskFail(fn func(context.Context, *core.Task, error)) {
	q.mu.Lock()
	q.onFail = append(q.onFail, fn)
	q.mu.Unlock()
}

// OnTaskRetry registers a callback for when a task is retried.
func (q *Queue) OnTaskRetry(fn func(context.Context, *core.Task, int, error)) {
	q.mu.Lock()
	q.onRetry = append(q.onRetry, fn)
	q.mu.Unlock()
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
// The channel is not closed — callers must stop reading before calling
// Unsubscribe. After Unsubscribe returns, no further events will be sent.
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit delivers an event to all subscribers. Delivery is best-effort:
// a full subscriber channel drops the event rather than blocking the
// scheduler.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// CallStartHooks calls all registered start hooks.
func (q *Queue) CallStartHooks(ctx context.Context, task *core.Task) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Task), len(q.onStart))
	copy(hooks, q.onStart)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, task)
	}
}

// CallCompleteHooks calls all registered complete hooks.
func (q *Queue) CallCompleteHooks(ctx context.Context, task *core.Task) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Task), len(q.onComplete))
	copy(hooks, q.onComplete)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, task)
	}
}

// CallFailHooks calls all registered fail hooks.
func (q *Queue) CallFailHooks(ctx context.Context, task *core.Task, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Task, error), len(q.onFail))
	copy(hooks, q.onFail)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, task, err)
	}
}

// CallRetryHooks calls all registered retry hooks.
func (q *Queue) CallRetryHooks(ctx context.Context, task *core.Task, attempt int, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Task, int, error), len(q.onRetry))
	copy(hooks, q.onRetry)
	q.mu.RUnlock()

	for _, fn := range hooks {
		fn(ctx, task, attempt, err)
	}
}
