// Package storage provides the GORM-backed Store implementation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ledgerline/taskqueue/pkg/core"
	"github.com/ledgerline/taskqueue/pkg/security"
)

// GormStore implements core.Store using GORM. Every task is a single row;
// a state transition is one UPDATE guarded by the expected source state,
// so a task can never be visible in two states at once.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Task{})
}

// Enqueue persists a new task in the pending state.
func (s *GormStore) Enqueue(ctx context.Context, task *core.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.State == "" {
		task.State = core.StatePending
	}
	return s.db.WithContext(ctx).Create(task).Error
}

// NextWave returns up to limit due pending tasks, highest priority first,
// creation order as tie-break.
func (s *GormStore) NextWave(ctx context.Context, limit int) ([]*core.Task, error) {
	var tasks []*core.Task
	now := time.Now()

	err := s.db.WithContext(ctx).
		Where("state = ?", core.StatePending).
		Where("(run_at IS NULL OR run_at <= ?)", now).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&tasks).Error

	return tasks, err
}

// MarkProcessing claims a pending task. The guarded update is the advisory
// lock: once a row is processing, no other execution can claim it.
func (s *GormStore) MarkProcessing(ctx context.Context, id string) (*core.Task, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("id = ? AND state = ?", id, core.StatePending).
		Updates(map[string]any{
			"state":      core.StateProcessing,
			"started_at": now,
		})

	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, core.ErrTaskNotClaimed
	}

	var task core.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// MarkCompleted moves a processing task to completed, storing the result.
func (s *GormStore) MarkCompleted(ctx context.Context, id string, result []byte) error {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("id = ? AND state = ?", id, core.StateProcessing).
		Updates(map[string]any{
			"state":        core.StateCompleted,
			"completed_at": now,
			"result":       result,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrTaskNotClaimed
	}
	return nil
}

// MarkRetry moves a processing task back to pending for another attempt.
// The retry count is incremented and any prior error cleared.
func (s *GormStore) MarkRetry(ctx context.Context, id string, runAt *time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("id = ? AND state = ?", id, core.StateProcessing).
		Updates(map[string]any{
			"state":       core.StatePending,
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  "",
			"run_at":      runAt,
			"started_at":  nil,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrTaskNotClaimed
	}
	return nil
}

// MarkFailed moves a processing task to failed. Error messages are
// sanitized before storage.
func (s *GormStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("id = ? AND state = ?", id, core.StateProcessing).
		Updates(map[string]any{
			"state":      core.StateFailed,
			"failed_at":  now,
			"last_error": security.SanitizeErrorMessage(errMsg),
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrTaskNotClaimed
	}
	return nil
}

// ResetFailed moves a failed task back to pending with a fresh retry
// budget. Tasks in any other state are left untouched.
func (s *GormStore) ResetFailed(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("id = ? AND state = ?", id, core.StateFailed).
		Updates(map[string]any{
			"state":       core.StatePending,
			"retry_count": 0,
			"last_error":  "",
			"failed_at":   nil,
			"run_at":      nil,
		})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequeueOrphans moves every processing task back to pending. Tasks left
// processing can only come from a process that died mid-execution.
func (s *GormStore) RequeueOrphans(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("state = ?", core.StateProcessing).
		Updates(map[string]any{
			"state":      core.StatePending,
			"started_at": nil,
		})
	return res.RowsAffected, res.Error
}

// GetTask retrieves a task by ID.
func (s *GormStore) GetTask(ctx context.Context, id string) (*core.Task, error) {
	var task core.Task
	err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// ListByState retrieves up to limit tasks in the given state.
func (s *GormStore) ListByState(ctx context.Context, state core.TaskState, limit int) ([]*core.Task, error) {
	var tasks []*core.Task
	err := s.db.WithContext(ctx).
		Where("state = ?", state).
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// CountByState counts tasks in the given state.
func (s *GormStore) CountByState(ctx context.Context, state core.TaskState) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("state = ?", state).
		Count(&count).Error
	return count, err
}

// Delete removes a task, guarded by its expected state.
func (s *GormStore) Delete(ctx context.Context, id string, state core.TaskState) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND state = ?", id, state).
		Delete(&core.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrTaskNotClaimed
	}
	return nil
}
