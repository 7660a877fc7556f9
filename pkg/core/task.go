package core

import (
	"time"
)

// TaskState represents the current lifecycle state of a task.
// A task is in exactly one state at a time.
type TaskState string

const (
	StatePending    TaskState = "pending"
	StateProcessing TaskState = "processing"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
)

// Terminal reports whether the state permits no further automatic
// transition. A failed task can still be reset by an operator.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Task represents a unit of deferred payment work: a charge execution,
// a refund execution, a tokenization run. The queue never inspects Payload;
// it is handed verbatim to the registered handler.
type Task struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Type       string    `gorm:"index;size:255;not null"`
	Payload    []byte    `gorm:"type:bytes"`
	Priority   int       `gorm:"index;default:0"`
	State      TaskState `gorm:"index;size:20;default:'pending'"`
	RetryCount int       `gorm:"default:0"`
	MaxRetries int       `gorm:"default:3"`
	LastError  string    `gorm:"type:text"`

	// Result holds the serialized handler return value after completion.
	Result []byte `gorm:"type:bytes"`

	// RunAt defers execution until the given time. Nil means run as soon
	// as a wave has capacity.
	RunAt       *time.Time `gorm:"index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Terminal reports whether the task has reached a terminal state.
func (t *Task) Terminal() bool {
	return t.State.Terminal()
}
