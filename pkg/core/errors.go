package core

import (
	"errors"
	"fmt"
)

// Validation errors, returned synchronously from Enqueue.
var (
	ErrInvalidTaskTypeName = errors.New("taskqueue: invalid task type name (must be alphanumeric, start with letter)")
	ErrTaskTypeNameTooLong = errors.New("taskqueue: task type name too long")
	ErrPayloadTooLarge     = errors.New("taskqueue: task payload exceeds size limit")
)

// Lifecycle errors.
var (
	// ErrUnknownTaskType means no handler is registered for a task's type.
	// At enqueue time it is a synchronous rejection; at execution time it
	// fails the task terminally with no retry.
	ErrUnknownTaskType = errors.New("taskqueue: no handler registered for task type")

	// ErrTaskNotClaimed means a guarded state transition found the task in
	// a different state than expected, i.e. another execution or an
	// operator got there first.
	ErrTaskNotClaimed = errors.New("taskqueue: task state changed concurrently")

	// ErrSchedulerRunning means Start was called while a scheduling loop
	// is already active.
	ErrSchedulerRunning = errors.New("taskqueue: scheduler already running")
)

// NoRetryError indicates a handler error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// StoreError wraps a persistence failure during a state move. The failing
// wave aborts and the error surfaces to callers instead of silently
// dropping the task.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("taskqueue: store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStore wraps err as a StoreError, or returns nil if err is nil.
// Guarded-transition conflicts pass through unwrapped so callers can
// match ErrTaskNotClaimed.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTaskNotClaimed) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
