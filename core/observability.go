package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	WorkerName string
	WorkerType string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// WorkerStats represents runtime observability state for a worker.
type WorkerStats struct {
	Name          string
	ThreadID      uint32
	Type          string
	Priority      ThreadPriority
	OSThreadID    int
	Running       bool
	StopRequested bool
	Pending       int
	Executing     int
	TasksExecuted uint64
	Ticks         uint64
	LastTaskName  string
	LastTaskAt    time.Time
}

// =============================================================================
// Profiling scope
// =============================================================================

// Scope marks one timed region of a worker loop. Obtain it with a begin call
// and close it with End, typically as `defer w.beginScope("tick").End()`.
type Scope struct {
	metrics Metrics
	worker  string
	name    string
	start   time.Time
}

// End reports the scope's duration. Calling End on the zero Scope is a no-op.
func (s Scope) End() {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordScopeDuration(s.worker, s.name, time.Since(s.start))
}
