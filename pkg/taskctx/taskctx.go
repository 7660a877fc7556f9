// Package taskctx provides access to the current task from handler contexts.
package taskctx

import (
	"context"

	"github.com/ledgerline/taskqueue/pkg/core"
)

type ctxKey struct{}

// NewContext returns a context carrying the task. The scheduler attaches
// the task before each handler invocation.
func NewContext(ctx context.Context, task *core.Task) context.Context {
	return context.WithValue(ctx, ctxKey{}, task)
}

// TaskFromContext returns the current Task from context, or nil if not in
// a task handler. Use this to get the task ID for logging or progress
// tracking.
func TaskFromContext(ctx context.Context) *core.Task {
	task, _ := ctx.Value(ctxKey{}).(*core.Task)
	return task
}

// TaskIDFromContext returns the current task ID from context, or empty
// string if not in a task handler.
func TaskIDFromContext(ctx context.Context) string {
	task := TaskFromContext(ctx)
	if task == nil {
		return ""
	}
	return task.ID
}
