package core

import (
	"context"

	"github.com/google/uuid"
)

// Task is the unit of work (Closure). It is executed exactly once by the
// worker that drains it; any result delivery is the task's own business.
type Task func(ctx context.Context)

// TaskItem is a queued Task plus an optional label used by history and metrics.
type TaskItem struct {
	Task Task
	Name string
}

// =============================================================================
// TaskID
// =============================================================================

// TaskID identifies one recorded task execution.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

// IsZero reports whether id is the zero value.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// =============================================================================
// Context Helper
// =============================================================================
type workerKeyType struct{}

var workerKey workerKeyType

// GetCurrentWorker returns the worker executing the task that received ctx,
// or nil when ctx did not come from a worker.
func GetCurrentWorker(ctx context.Context) *Worker {
	if v := ctx.Value(workerKey); v != nil {
		return v.(*Worker)
	}
	return nil
}
