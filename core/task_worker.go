package core

import (
	"context"
	"sync/atomic"
)

// TaskWorkerConfig configures a TaskWorker.
type TaskWorkerConfig struct {
	WorkerConfig

	// BeforeExecute runs on the worker thread before each batch.
	BeforeExecute func()

	// AfterExecute runs on the worker thread after each batch.
	AfterExecute func()

	// FlushOnStop makes the worker flush its scheduler on its own thread
	// after the loop exits, so every task enqueued before the final empty
	// check runs. Without it, tasks still queued at stop are left behind.
	FlushOnStop bool
}

// DefaultTaskWorkerConfig returns a config with default settings.
func DefaultTaskWorkerConfig() *TaskWorkerConfig {
	return &TaskWorkerConfig{}
}

// TaskWorker sleeps until work arrives, then runs everything queued in one
// batch. It has no cadence: it wakes on Enqueue or on Stop.
type TaskWorker struct {
	*Worker

	beforeExecute func()
	afterExecute  func()
	flushOnStop   bool

	// numTasks is the advisory count of tasks in the batch being executed
	numTasks atomic.Int64

	// loop-local; only touched by the worker goroutine
	tasks TaskQueue
}

// NewTaskWorker creates a stopped draining worker. A nil cfg uses
// DefaultTaskWorkerConfig.
func NewTaskWorker(id ThreadID, cfg *TaskWorkerConfig) *TaskWorker {
	if cfg == nil {
		cfg = DefaultTaskWorkerConfig()
	}
	return &TaskWorker{
		Worker:        newWorker(id, "task", cfg.WorkerConfig),
		beforeExecute: cfg.BeforeExecute,
		afterExecute:  cfg.AfterExecute,
		flushOnStop:   cfg.FlushOnStop,
	}
}

// Start launches the loop on a dedicated thread. Each Start begins a new
// lifecycle: a Stop issued before it, or left over from the previous run,
// is cleared and does not carry into the new loop.
func (w *TaskWorker) Start() error {
	return w.start(w.run)
}

// Stop asks the loop to exit and wakes it if it is waiting for work.
func (w *TaskWorker) Stop() {
	w.Worker.Stop()
	w.scheduler.RequestStop()
}

// NumTasks returns how many tasks of the current batch have not finished.
// Advisory when read from other goroutines.
func (w *TaskWorker) NumTasks() int {
	return int(w.numTasks.Load())
}

// Stats returns a snapshot of the worker's state.
func (w *TaskWorker) Stats() WorkerStats {
	stats := w.baseStats()
	stats.Executing = w.NumTasks()
	return stats
}

func (w *TaskWorker) run(ctx context.Context) {
	w.numTasks.Store(int64(w.tasks.Len()))

	for !w.stopRequested.Load() {
		if w.tasks.Empty() {
			if !w.scheduler.WaitForTasks(&w.tasks) {
				w.Stop()
				break
			}
		} else {
			// append everything that arrived since
			w.scheduler.AcceptAll(&w.tasks)
		}

		w.executeBatch(ctx)
	}

	if w.flushOnStop {
		flushed := w.scheduler.Flush(func(item TaskItem) {
			w.execute(ctx, item)
		})
		if flushed > 0 {
			w.logger.Debug("flushed tasks on stop", F("worker", w.id.String()), F("count", flushed))
		}
	}
}

func (w *TaskWorker) executeBatch(ctx context.Context) {
	defer w.beginScope("execute tasks").End()

	n := w.tasks.Len()
	w.numTasks.Store(int64(n))
	w.metrics.RecordBatchSize(w.Name(), n)
	w.metrics.RecordQueueDepth(w.Name(), w.scheduler.NumEnqueued())

	if w.beforeExecute != nil {
		w.beforeExecute()
	}

	// execute all tasks outside of lock
	for {
		item, ok := w.tasks.Pop()
		if !ok {
			break
		}
		w.execute(ctx, item)
		w.scheduler.taskDone()
		w.numTasks.Add(-1)
	}

	if w.afterExecute != nil {
		w.afterExecute()
	}
}
