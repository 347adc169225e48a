package core

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// Updater is advanced once per fixed-cadence step with the step delta in seconds.
type Updater interface {
	Update(delta float64)
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(delta float64)

func (f UpdaterFunc) Update(delta float64) { f(delta) }

// Simulation is the user side of a TickWorker: it is stepped every tick and
// torn down once when the worker stops.
type Simulation interface {
	Updater
	Teardown()
}

// SimulationFunc builds a Simulation from two functions; either may be nil.
type SimulationFunc struct {
	UpdateFunc   func(delta float64)
	TeardownFunc func()
}

func (s SimulationFunc) Update(delta float64) {
	if s.UpdateFunc != nil {
		s.UpdateFunc(delta)
	}
}

func (s SimulationFunc) Teardown() {
	if s.TeardownFunc != nil {
		s.TeardownFunc()
	}
}

// TickWorkerConfig configures a TickWorker.
type TickWorkerConfig struct {
	WorkerConfig

	// TicksPerSecond is the target step rate. Defaults to 60.
	TicksPerSecond float64

	// FreeRunning replaces the lockstep gate with a variable-delta one that
	// never waits.
	FreeRunning bool

	// Clock paces the gate. Defaults to SystemClock.
	Clock Clock

	// Streaming, if set, is updated every step before queued tasks run.
	Streaming Updater

	// IdleSleep, if positive, sleeps up to this long while the gate is
	// closed instead of spinning. Sleeping trades tick precision for CPU.
	IdleSleep time.Duration
}

// DefaultTickWorkerConfig returns a config with default settings.
func DefaultTickWorkerConfig() *TickWorkerConfig {
	return &TickWorkerConfig{TicksPerSecond: defaultTicksPerSecond}
}

// TickWorker runs a simulation at a fixed cadence and drains its scheduler
// once per step.
//
// Each step: advance the gate, update the streaming collaborator, run every
// task queued so far, then step the simulation. On stop, the scheduler is
// flushed and the simulation torn down, both on the worker's own thread.
// The loop never blocks; while the gate is closed it polls.
type TickWorker struct {
	*Worker

	sim       Simulation
	streaming Updater
	rate      float64
	free      bool
	clock     Clock
	idleSleep time.Duration

	ticks atomic.Uint64

	// loop-local; only touched by the worker goroutine
	tasks TaskQueue
}

// NewTickWorker creates a stopped fixed-cadence worker. A nil cfg uses
// DefaultTickWorkerConfig.
func NewTickWorker(id ThreadID, sim Simulation, cfg *TickWorkerConfig) *TickWorker {
	if cfg == nil {
		cfg = DefaultTickWorkerConfig()
	}
	if sim == nil {
		sim = SimulationFunc{}
	}
	rate := cfg.TicksPerSecond
	if rate <= 0 {
		rate = defaultTicksPerSecond
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &TickWorker{
		Worker:    newWorker(id, "tick", cfg.WorkerConfig),
		sim:       sim,
		streaming: cfg.Streaming,
		rate:      rate,
		free:      cfg.FreeRunning,
		clock:     clock,
		idleSleep: cfg.IdleSleep,
	}
}

// Start launches the loop on a dedicated thread. Each Start begins a new
// lifecycle: a Stop issued before it, or left over from the previous run,
// is cleared and does not carry into the new loop.
func (w *TickWorker) Start() error {
	return w.start(w.run)
}

// Ticks returns how many steps have run.
func (w *TickWorker) Ticks() uint64 { return w.ticks.Load() }

// TicksPerSecond returns the configured rate.
func (w *TickWorker) TicksPerSecond() float64 { return w.rate }

// Stats returns a snapshot of the worker's state.
func (w *TickWorker) Stats() WorkerStats {
	stats := w.baseStats()
	stats.Ticks = w.ticks.Load()
	return stats
}

func (w *TickWorker) newPacer() Pacer {
	if w.free {
		return NewFreeRunningGate(w.clock)
	}
	return NewTickGate(w.rate, w.clock)
}

func (w *TickWorker) run(ctx context.Context) {
	pacer := w.newPacer()

	for !w.stopRequested.Load() {
		if pacer.Waiting() {
			w.idle(pacer)
			continue
		}
		w.step(ctx, pacer)
	}

	flushed := w.scheduler.Flush(func(item TaskItem) {
		w.execute(ctx, item)
	})
	if flushed > 0 {
		w.logger.Debug("flushed tasks on stop", F("worker", w.id.String()), F("count", flushed))
	}

	w.sim.Teardown()
}

func (w *TickWorker) step(ctx context.Context, pacer Pacer) {
	defer w.beginScope("tick").End()

	delta := pacer.NextTick()
	w.ticks.Add(1)
	w.metrics.RecordTick(w.Name(), delta)

	if w.streaming != nil {
		w.streaming.Update(delta)
	}

	if depth := w.scheduler.NumEnqueued(); depth > 0 {
		w.metrics.RecordQueueDepth(w.Name(), depth)
		n := w.scheduler.AcceptAll(&w.tasks)
		w.metrics.RecordBatchSize(w.Name(), n)

		// execute all tasks outside of lock
		for {
			item, ok := w.tasks.Pop()
			if !ok {
				break
			}
			w.execute(ctx, item)
			w.scheduler.taskDone()
		}
	}

	w.sim.Update(delta)
}

func (w *TickWorker) idle(pacer Pacer) {
	if w.idleSleep <= 0 {
		runtime.Gosched()
		return
	}
	sleep := w.idleSleep
	if gate, ok := pacer.(*TickGate); ok {
		sleep = min(sleep, gate.Remaining())
	}
	if sleep > 0 {
		time.Sleep(sleep)
	}
}
