package core

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerConfig holds the options shared by every worker type.
// All fields are optional; zero values are replaced by defaults.
type WorkerConfig struct {
	// Logger receives lifecycle messages. Defaults to NoOpLogger.
	Logger Logger

	// Metrics records task and loop metrics. Defaults to NilMetrics.
	Metrics Metrics

	// HistorySize is the capacity of the execution history; 0 disables it.
	HistorySize int
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Logger == nil {
		c.Logger = NewNoOpLogger()
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	return c
}

// Worker is a named execution context that owns one Scheduler and runs its
// loop on a dedicated goroutine locked to one OS thread.
//
// Worker is not used on its own: TickWorker and TaskWorker embed it and
// supply the loop body. Worker owns the lifecycle around that body.
type Worker struct {
	id        ThreadID
	kind      string
	scheduler *Scheduler
	logger    Logger
	metrics   Metrics
	history   *executionHistory

	isRunning     atomic.Bool
	stopRequested atomic.Bool
	osThreadID    atomic.Int64
	tasksExecuted atomic.Uint64

	lifecycleMu sync.Mutex
	active      bool
	done        chan struct{}
}

func newWorker(id ThreadID, kind string, cfg WorkerConfig) *Worker {
	cfg = cfg.withDefaults()
	w := &Worker{
		id:        id,
		kind:      kind,
		scheduler: NewScheduler(id.Name()),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if cfg.HistorySize > 0 {
		w.history = newExecutionHistory(cfg.HistorySize)
	}
	w.osThreadID.Store(-1)
	return w
}

// ID returns the worker's thread identity.
func (w *Worker) ID() ThreadID { return w.id }

// Name returns the worker's thread name.
func (w *Worker) Name() string { return w.id.Name() }

// Scheduler returns the mailbox producers use to submit work to this worker.
func (w *Worker) Scheduler() *Scheduler { return w.scheduler }

// Stop asks the loop to exit at the top of its next iteration. It does not
// wait; use Join for that. A task already executing runs to completion.
func (w *Worker) Stop() {
	if w.stopRequested.CompareAndSwap(false, true) {
		w.logger.Debug("worker stop requested", F("worker", w.id.String()))
	}
}

// StopRequested reports whether Stop has been called in this lifecycle.
func (w *Worker) StopRequested() bool { return w.stopRequested.Load() }

// IsRunning reports whether the loop body is currently executing.
func (w *Worker) IsRunning() bool { return w.isRunning.Load() }

// start launches body on a fresh goroutine pinned to its own OS thread.
// isRunning is true for exactly the duration of body. Any earlier stop
// request is cleared, along with the scheduler's.
func (w *Worker) start(body func(ctx context.Context)) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.active {
		return ErrWorkerRunning
	}
	w.active = true
	w.stopRequested.Store(false)
	w.scheduler.reset()
	done := make(chan struct{})
	w.done = done

	ready := make(chan struct{})
	go func() {
		defer close(done)
		defer w.finish()

		// Never unlocked. The thread carries this worker's nice value, so
		// the runtime must retire it when the goroutine exits rather than
		// return it to the pool.
		runtime.LockOSThread()

		gid := bindCurrentThread(w.id)
		defer unbindThread(gid)
		w.scheduler.Bind()
		defer w.scheduler.Unbind()

		tid := osThreadID()
		w.osThreadID.Store(int64(tid))
		if err := applyThreadPriority(w.id.Priority()); err != nil {
			w.logger.Warn("could not apply thread priority",
				F("worker", w.id.String()),
				F("priority", w.id.Priority().String()),
				F("error", err))
		}

		ctx := context.WithValue(context.Background(), workerKey, w)

		w.isRunning.Store(true)
		close(ready)
		w.logger.Info("worker started",
			F("worker", w.id.String()),
			F("type", w.kind),
			F("os_thread", tid))

		func() {
			defer w.isRunning.Store(false)
			body(ctx)
		}()

		w.logger.Info("worker stopped",
			F("worker", w.id.String()),
			F("tasks_executed", w.tasksExecuted.Load()))
	}()
	<-ready

	return nil
}

func (w *Worker) finish() {
	w.osThreadID.Store(-1)
	w.lifecycleMu.Lock()
	w.active = false
	w.lifecycleMu.Unlock()
}

// Join blocks until the current lifecycle's loop has exited.
func (w *Worker) Join(ctx context.Context) error {
	w.lifecycleMu.Lock()
	done := w.done
	w.lifecycleMu.Unlock()

	if done == nil {
		return ErrWorkerNotStarted
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitIdle blocks until every task enqueued before the call has executed.
// It posts a barrier task and waits for it to run.
//
// Returns an error if ctx ends first, if the worker was never started, or if
// stop has been requested (the barrier might never run).
func (w *Worker) WaitIdle(ctx context.Context) error {
	w.lifecycleMu.Lock()
	started := w.done != nil
	w.lifecycleMu.Unlock()

	if !started {
		return ErrWorkerNotStarted
	}
	if w.StopRequested() {
		return ErrStopRequested
	}

	barrier := make(chan struct{})
	w.scheduler.EnqueueNamed("barrier", func(context.Context) {
		close(barrier)
	})

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs one task on the worker goroutine. Panics propagate after the
// execution record is written.
func (w *Worker) execute(ctx context.Context, item TaskItem) {
	startedAt := time.Now()
	if w.history == nil {
		item.Task(ctx)
		d := time.Since(startedAt)
		w.tasksExecuted.Add(1)
		w.metrics.RecordTaskDuration(w.Name(), d)
		return
	}

	panicked := true
	defer func() {
		finishedAt := time.Now()
		w.history.Add(TaskExecutionRecord{
			TaskID:     GenerateTaskID(),
			Name:       resolveTaskName(item.Task, item.Name),
			WorkerName: w.Name(),
			WorkerType: w.kind,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   finishedAt.Sub(startedAt),
			Panicked:   panicked,
		})
		if !panicked {
			w.tasksExecuted.Add(1)
			w.metrics.RecordTaskDuration(w.Name(), finishedAt.Sub(startedAt))
		}
	}()

	item.Task(ctx)
	panicked = false
}

func (w *Worker) beginScope(name string) Scope {
	return Scope{metrics: w.metrics, worker: w.Name(), name: name, start: time.Now()}
}

// RecentTasks returns up to limit execution records, newest first.
// Returns nil when history is disabled.
func (w *Worker) RecentTasks(limit int) []TaskExecutionRecord {
	if w.history == nil {
		return nil
	}
	return w.history.Recent(limit)
}

// TasksExecuted returns how many tasks this worker has completed.
func (w *Worker) TasksExecuted() uint64 { return w.tasksExecuted.Load() }

// baseStats fills the fields every worker type shares.
func (w *Worker) baseStats() WorkerStats {
	stats := WorkerStats{
		Name:          w.Name(),
		ThreadID:      w.id.Value(),
		Type:          w.kind,
		Priority:      w.id.Priority(),
		OSThreadID:    int(w.osThreadID.Load()),
		Running:       w.IsRunning(),
		StopRequested: w.StopRequested(),
		Pending:       w.scheduler.NumEnqueued(),
		TasksExecuted: w.tasksExecuted.Load(),
	}
	if w.history != nil {
		if last, ok := w.history.Last(); ok {
			stats.LastTaskName = last.Name
			stats.LastTaskAt = last.FinishedAt
		}
	}
	return stats
}
