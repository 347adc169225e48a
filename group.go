package threadrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Swind/go-thread-runner/core"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrDuplicateWorker is returned by Add when a worker with the same name is already in the group.
	ErrDuplicateWorker = errors.New("duplicate worker name")

	// ErrUnknownWorker is returned by PostTo when no worker has the given name.
	ErrUnknownWorker = errors.New("unknown worker")
)

// Runnable is a worker a Group can manage.
// *core.TickWorker and *core.TaskWorker both implement it.
type Runnable interface {
	Name() string
	Scheduler() *core.Scheduler
	Start() error
	Stop()
	Join(ctx context.Context) error
	IsRunning() bool
	Stats() core.WorkerStats
}

var (
	_ Runnable = (*core.TickWorker)(nil)
	_ Runnable = (*core.TaskWorker)(nil)
)

// Group starts, stops and joins a set of workers as one unit.
type Group struct {
	name   string
	logger core.Logger

	mu      sync.RWMutex
	workers []Runnable
	byName  map[string]Runnable
	running bool
}

// NewGroup creates an empty group.
func NewGroup(name string) *Group {
	return &Group{
		name:   name,
		logger: core.NewNoOpLogger(),
		byName: make(map[string]Runnable),
	}
}

// SetLogger sets the logger used for group lifecycle messages.
func (g *Group) SetLogger(logger core.Logger) {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	g.mu.Lock()
	g.logger = logger
	g.mu.Unlock()
}

// ID returns the name of the group
func (g *Group) ID() string {
	return g.name
}

// Add registers w. If the group is already running, w is started immediately.
func (g *Group) Add(w Runnable) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	name := w.Name()
	if _, exists := g.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateWorker, name)
	}
	if g.running {
		if err := w.Start(); err != nil {
			return fmt.Errorf("start worker %q: %w", name, err)
		}
	}
	g.workers = append(g.workers, w)
	g.byName[name] = w
	return nil
}

// Start starts every worker in the order they were added. If one fails,
// the ones already started are stopped and the error is returned.
func (g *Group) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil // Already running
	}

	for i, w := range g.workers {
		if err := w.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				g.workers[j].Stop()
			}
			return fmt.Errorf("start worker %q: %w", w.Name(), err)
		}
	}
	g.running = true
	g.logger.Info("group started", core.F("group", g.name), core.F("workers", len(g.workers)))
	return nil
}

// Stop asks every worker to stop, in reverse order of addition. It does
// not wait; use Wait for that.
func (g *Group) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := len(g.workers) - 1; i >= 0; i-- {
		g.workers[i].Stop()
	}
	if g.running {
		g.logger.Info("group stop requested", core.F("group", g.name))
	}
	g.running = false
}

// Wait blocks until every started worker's loop has exited, or ctx ends.
func (g *Group) Wait(ctx context.Context) error {
	workers := g.Workers()

	eg, egCtx := errgroup.WithContext(ctx)
	for _, w := range workers {
		eg.Go(func() error {
			err := w.Join(egCtx)
			if errors.Is(err, core.ErrWorkerNotStarted) {
				return nil
			}
			return err
		})
	}
	return eg.Wait()
}

// Shutdown stops every worker and waits for them.
func (g *Group) Shutdown(ctx context.Context) error {
	g.Stop()
	return g.Wait(ctx)
}

// IsRunning returns whether the group has been started and not stopped
func (g *Group) IsRunning() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.running
}

// Get returns the worker called name.
func (g *Group) Get(name string) (Runnable, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.byName[name]
	return w, ok
}

// PostTo enqueues task on the worker called name.
func (g *Group) PostTo(name string, task core.Task) error {
	w, ok := g.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWorker, name)
	}
	w.Scheduler().Enqueue(task)
	return nil
}

// Workers returns the workers in the order they were added.
func (g *Group) Workers() []Runnable {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Runnable(nil), g.workers...)
}

// WorkerCount returns the number of workers
func (g *Group) WorkerCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.workers)
}

// Stats returns a snapshot of every worker, in order of addition.
func (g *Group) Stats() []core.WorkerStats {
	workers := g.Workers()
	stats := make([]core.WorkerStats, 0, len(workers))
	for _, w := range workers {
		stats = append(stats, w.Stats())
	}
	return stats
}
