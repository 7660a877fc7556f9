package core

import "time"

// Event is the interface for all queue lifecycle events.
type Event interface {
	eventMarker()
}

// TaskQueued is emitted when a task is accepted into the queue.
type TaskQueued struct {
	Task      *Task
	Timestamp time.Time
}

func (*TaskQueued) eventMarker() {}

// TaskStarted is emitted when a task moves to processing.
type TaskStarted struct {
	Task      *Task
	Timestamp time.Time
}

func (*TaskStarted) eventMarker() {}

// TaskCompleted is emitted when a task completes successfully.
type TaskCompleted struct {
	Task      *Task
	Duration  time.Duration
	Timestamp time.Time
}

func (*TaskCompleted) eventMarker() {}

// TaskRetrying is emitted when a failed execution is re-queued for
// another attempt. Attempt is the retry count after the increment.
type TaskRetrying struct {
	Task      *Task
	Attempt   int
	Error     error
	Timestamp time.Time
}

func (*TaskRetrying) eventMarker() {}

// TaskFailed is emitted when a task fails permanently.
type TaskFailed struct {
	Task      *Task
	Error     error
	Timestamp time.Time
}

func (*TaskFailed) eventMarker() {}

// TaskReset is emitted when an operator resets a failed task back to
// pending with a fresh retry budget.
type TaskReset struct {
	Task      *Task
	Timestamp time.Time
}

func (*TaskReset) eventMarker() {}
