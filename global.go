package threadrunner

import (
	"context"
	"fmt"
	"sync"

	"github.com/Swind/go-thread-runner/core"
)

// =============================================================================
// Global Threads Helper (Singleton)
// =============================================================================

// GlobalOptions configures the process-wide threads.
type GlobalOptions struct {
	// Simulation is stepped by the game thread. Nil runs an empty simulation.
	Simulation core.Simulation

	// TicksPerSecond is the game thread's step rate. Defaults to 60.
	TicksPerSecond float64

	// Render, if set, gets its own fixed-cadence render thread.
	Render core.Simulation

	// RenderTicksPerSecond is the render thread's step rate. Defaults to 60.
	RenderTicksPerSecond float64

	// TaskWorkers is the number of draining task threads. Defaults to 1.
	TaskWorkers int

	Logger  core.Logger
	Metrics core.Metrics
}

var (
	globalThreads *Group
	globalMu      sync.Mutex
)

// InitGlobalThreads creates and starts the process-wide threads: the game
// thread, the optional render thread, and the task threads. Calling it again
// before ShutdownGlobalThreads is a no-op.
func InitGlobalThreads(opts GlobalOptions) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreads != nil {
		return nil // Already initialized
	}

	base := core.WorkerConfig{Logger: opts.Logger, Metrics: opts.Metrics}
	g := NewGroup("global")
	if opts.Logger != nil {
		g.SetLogger(opts.Logger)
	}

	game := core.NewTickWorker(core.GetStaticThreadID(core.ThreadGame), opts.Simulation, &core.TickWorkerConfig{
		WorkerConfig:   base,
		TicksPerSecond: opts.TicksPerSecond,
	})
	if err := g.Add(game); err != nil {
		return err
	}

	if opts.Render != nil {
		render := core.NewTickWorker(core.GetStaticThreadID(core.ThreadRender), opts.Render, &core.TickWorkerConfig{
			WorkerConfig:   base,
			TicksPerSecond: opts.RenderTicksPerSecond,
		})
		if err := g.Add(render); err != nil {
			return err
		}
	}

	n := max(opts.TaskWorkers, 1)
	for i := range n {
		id := core.GetStaticThreadID(core.ThreadTask)
		if i > 0 {
			id = core.NewThreadID(fmt.Sprintf("task-%d", i), core.ThreadPriorityNormal)
		}
		if err := g.Add(core.NewTaskWorker(id, &core.TaskWorkerConfig{WorkerConfig: base, FlushOnStop: true})); err != nil {
			return err
		}
	}

	if err := g.Start(); err != nil {
		return err
	}
	globalThreads = g
	return nil
}

// GetGlobalThreads returns the global group.
// It panics if InitGlobalThreads has not been called.
func GetGlobalThreads() *Group {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreads == nil {
		panic("GlobalThreads not initialized. Call InitGlobalThreads() first.")
	}
	return globalThreads
}

// ShutdownGlobalThreads stops the global threads and waits for them to exit.
func ShutdownGlobalThreads(ctx context.Context) error {
	globalMu.Lock()
	g := globalThreads
	globalThreads = nil
	globalMu.Unlock()

	if g == nil {
		return nil
	}
	return g.Shutdown(ctx)
}

// PostTo enqueues task on the global worker called name.
func PostTo(name string, task Task) error {
	return GetGlobalThreads().PostTo(name, task)
}

// PostToThread enqueues task on a well-known global thread.
func PostToThread(t core.StaticThread, task Task) error {
	return PostTo(core.GetStaticThreadID(t).Name(), task)
}
