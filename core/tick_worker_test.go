package core

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSim struct {
	deltas    []float64
	events    []string
	teardowns atomic.Int32
}

func (s *recordingSim) Update(delta float64) {
	s.deltas = append(s.deltas, delta)
	s.events = append(s.events, "update")
}

func (s *recordingSim) Teardown() {
	s.events = append(s.events, "teardown")
	s.teardowns.Add(1)
}

func joinWithin(t *testing.T, w interface{ Join(context.Context) error }, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, w.Join(ctx))
}

// TestTickWorker_LockstepWithManualClock verifies the gate drives the loop
// Given: A tick worker paced by a manual clock
// When: The clock advances exactly one period at a time
// Then: Exactly one step runs per advance and every delta is 1/rate
func TestTickWorker_LockstepWithManualClock(t *testing.T) {
	clock := NewManualClock(0)
	sim := &recordingSim{}
	w := NewTickWorker(NewThreadID("lockstep", ThreadPriorityNormal), sim, &TickWorkerConfig{
		TicksPerSecond: 50,
		Clock:          clock,
	})
	require.NoError(t, w.Start())

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, uint64(0), w.Ticks(), "no step before the first period")

	for i := 1; i <= 3; i++ {
		clock.Advance(20 * time.Millisecond)
		require.Eventually(t, func() bool { return w.Ticks() == uint64(i) }, time.Second, time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, uint64(3), w.Ticks())

	w.Stop()
	joinWithin(t, w, time.Second)

	require.Len(t, sim.deltas, 3)
	for _, d := range sim.deltas {
		assert.Equal(t, 1.0/50.0, d)
	}
	assert.Equal(t, 50.0, w.TicksPerSecond())
}

// TestTickWorker_StepOrder verifies streaming, tasks and simulation ordering
// Given: A tick worker with a streaming collaborator and one queued task
// When: One step runs
// Then: Streaming updates first, then the task, then the simulation
func TestTickWorker_StepOrder(t *testing.T) {
	clock := NewManualClock(0)
	sim := &recordingSim{}
	cfg := DefaultTickWorkerConfig()
	cfg.Clock = clock
	cfg.Streaming = UpdaterFunc(func(float64) { sim.events = append(sim.events, "streaming") })
	w := NewTickWorker(NewThreadID("order", ThreadPriorityNormal), sim, cfg)
	require.NoError(t, w.Start())

	w.Scheduler().Enqueue(func(context.Context) { sim.events = append(sim.events, "task") })
	time.Sleep(10 * time.Millisecond) // let the loop create its gate
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return w.Ticks() == 1 }, time.Second, time.Millisecond)

	w.Stop()
	joinWithin(t, w, time.Second)

	assert.Equal(t, []string{"streaming", "task", "update", "teardown"}, sim.events)
}

// TestTickWorker_TasksRunOnWorkerThread verifies cross-thread delivery at a high rate
// Given: A 1000 Hz tick worker and a producer enqueueing 500 tasks
// When: The worker is stopped after the producer finishes
// Then: Every task ran on the worker thread before the single teardown, and no step runs after Join
func TestTickWorker_TasksRunOnWorkerThread(t *testing.T) {
	id := NewThreadID("hot", ThreadPriorityNormal)
	var executed atomic.Int64
	var executedAtTeardown int64
	sim := SimulationFunc{
		TeardownFunc: func() { executedAtTeardown = executed.Load() },
	}
	w := NewTickWorker(id, sim, &TickWorkerConfig{TicksPerSecond: 1000})
	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())

	const total = 500
	var wrongThread atomic.Int64
	for range total {
		w.Scheduler().Enqueue(func(ctx context.Context) {
			if !IsOnThread(id) || GetCurrentWorker(ctx) != w.Worker {
				wrongThread.Add(1)
			}
			executed.Add(1)
		})
	}

	w.Stop()
	joinWithin(t, w, 2*time.Second)

	assert.Equal(t, int64(total), executed.Load())
	assert.Equal(t, int64(total), executedAtTeardown, "teardown runs after the final flush")
	assert.Zero(t, wrongThread.Load())
	assert.Equal(t, 0, w.Scheduler().NumEnqueued())
	assert.False(t, w.IsRunning())

	ticks := w.Ticks()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, ticks, w.Ticks())
}

// TestTickWorker_TeardownOnce verifies teardown runs exactly once per lifecycle
func TestTickWorker_TeardownOnce(t *testing.T) {
	sim := &recordingSim{}
	w := NewTickWorker(NewThreadID("teardown", ThreadPriorityNormal), sim, &TickWorkerConfig{
		TicksPerSecond: 500,
		IdleSleep:      time.Millisecond,
	})
	require.NoError(t, w.Start())
	require.Eventually(t, func() bool { return w.Ticks() > 2 }, time.Second, time.Millisecond)

	w.Stop()
	w.Stop()
	joinWithin(t, w, time.Second)

	assert.Equal(t, int32(1), sim.teardowns.Load())
}

// TestTickWorker_StopFromTask verifies a task may stop its own worker
func TestTickWorker_StopFromTask(t *testing.T) {
	w := NewTickWorker(NewThreadID("self-stop", ThreadPriorityNormal), nil, &TickWorkerConfig{TicksPerSecond: 1000})
	require.NoError(t, w.Start())

	w.Scheduler().Enqueue(func(ctx context.Context) {
		GetCurrentWorker(ctx).Stop()
	})

	joinWithin(t, w, time.Second)
	assert.True(t, w.StopRequested())
}

// TestTickWorker_FreeRunning verifies the variable-delta mode
func TestTickWorker_FreeRunning(t *testing.T) {
	clock := NewManualClock(0)
	var deltas []float64
	sim := SimulationFunc{UpdateFunc: func(d float64) {
		deltas = append(deltas, d)
		clock.Advance(2 * time.Millisecond)
	}}
	w := NewTickWorker(NewThreadID("free", ThreadPriorityNormal), sim, &TickWorkerConfig{
		FreeRunning: true,
		Clock:       clock,
	})
	require.NoError(t, w.Start())
	require.Eventually(t, func() bool { return w.Ticks() >= 5 }, time.Second, time.Millisecond)

	w.Stop()
	joinWithin(t, w, time.Second)

	require.GreaterOrEqual(t, len(deltas), 5)
	assert.Zero(t, deltas[0])
	for _, d := range deltas[1:] {
		assert.InDelta(t, 0.002, d, 1e-9)
	}
}

// TestTickWorker_Stats verifies the snapshot
func TestTickWorker_Stats(t *testing.T) {
	w := NewTickWorker(NewThreadID("stats", ThreadPriorityLow), nil, &TickWorkerConfig{TicksPerSecond: 1000})
	require.NoError(t, w.Start())
	require.Eventually(t, func() bool { return w.Ticks() > 0 }, time.Second, time.Millisecond)

	stats := w.Stats()
	assert.Equal(t, "stats", stats.Name)
	assert.Equal(t, "tick", stats.Type)
	assert.Equal(t, ThreadPriorityLow, stats.Priority)
	assert.True(t, stats.Running)
	if runtime.GOOS == "linux" {
		assert.Positive(t, stats.OSThreadID)
	}
	assert.Positive(t, stats.Ticks)

	w.Stop()
	joinWithin(t, w, time.Second)

	stats = w.Stats()
	assert.False(t, stats.Running)
	assert.True(t, stats.StopRequested)
	assert.Equal(t, -1, stats.OSThreadID)
}
