package core

import (
	"context"
	"runtime/debug"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task wrapped with Recover panics.
//
// Workers and schedulers never recover panics themselves: a task's fault
// boundary belongs to whoever submits it.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (may carry the current worker)
	// - workerName: The name of the worker where the panic occurred ("" if none)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, workerName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, workerName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("worker", workerName),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// Recover wraps task so that a panic is handed to handler and recorded in
// metrics instead of unwinding into the worker loop. A nil handler uses
// DefaultPanicHandler; nil metrics are ignored.
func Recover(task Task, handler PanicHandler, metrics Metrics) Task {
	if handler == nil {
		handler = &DefaultPanicHandler{}
	}
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	return func(ctx context.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				name := ""
				if w := GetCurrentWorker(ctx); w != nil {
					name = w.Name()
				}
				metrics.RecordTaskPanic(name, rec)
				handler.HandlePanic(ctx, name, rec, debug.Stack())
			}
		}()
		task(ctx)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting worker execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from worker loops and must be non-blocking and fast.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(workerName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked (see Recover).
	RecordTaskPanic(workerName string, panicInfo any)

	// RecordQueueDepth records the scheduler's pending task count.
	RecordQueueDepth(workerName string, depth int)

	// RecordBatchSize records how many tasks one drain transferred.
	RecordBatchSize(workerName string, size int)

	// RecordTick records one fixed-cadence step and its delta in seconds.
	RecordTick(workerName string, delta float64)

	// RecordScopeDuration records how long a profiled scope took.
	RecordScopeDuration(workerName string, scope string, duration time.Duration)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(workerName string, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(workerName string, panicInfo any) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(workerName string, depth int) {
}

// RecordBatchSize is a no-op.
func (m *NilMetrics) RecordBatchSize(workerName string, size int) {
}

// RecordTick is a no-op.
func (m *NilMetrics) RecordTick(workerName string, delta float64) {
}

// RecordScopeDuration is a no-op.
func (m *NilMetrics) RecordScopeDuration(workerName string, scope string, duration time.Duration) {
}
