package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestScheduler_FIFOAndCount verifies single-producer ordering and the pending count
// Given: A scheduler with three tasks enqueued
// When: The owner accepts and runs them
// Then: They run in order and NumEnqueued drops to zero only after they complete
func TestScheduler_FIFOAndCount(t *testing.T) {
	s := NewScheduler("fifo")
	var order []int
	for i := range 3 {
		s.Enqueue(func(context.Context) { order = append(order, i) })
	}
	assert.Equal(t, 3, s.NumEnqueued())

	var local TaskQueue
	assert.Equal(t, 3, s.AcceptAll(&local))
	assert.Equal(t, 3, s.NumEnqueued(), "transferred tasks are still pending until they run")

	assert.Equal(t, 3, s.RunQueue(context.Background(), &local))
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, 0, s.NumEnqueued())
}

// TestScheduler_AcceptAllEmpty verifies an empty transfer is harmless
func TestScheduler_AcceptAllEmpty(t *testing.T) {
	s := NewScheduler("empty")
	var local TaskQueue
	local.Push(namedItem("kept"))

	assert.Equal(t, 0, s.AcceptAll(&local))
	assert.Equal(t, []string{"kept"}, drainNames(&local))
}

// TestScheduler_NilTaskPanics verifies nil tasks are rejected at the call site
func TestScheduler_NilTaskPanics(t *testing.T) {
	s := NewScheduler("nil")
	assert.Panics(t, func() { s.Enqueue(nil) })
	assert.Panics(t, func() { s.EnqueueAfter(time.Hour, nil) })
	assert.Equal(t, 0, s.NumEnqueued())
}

// TestScheduler_WaitForTasksWakesOnEnqueue verifies the blocking wait
// Given: An owner blocked in WaitForTasks on an empty scheduler
// When: Another goroutine enqueues a task
// Then: The wait returns true with that task moved out
func TestScheduler_WaitForTasksWakesOnEnqueue(t *testing.T) {
	s := NewScheduler("wake")
	result := make(chan int, 1)

	go func() {
		var local TaskQueue
		if !s.WaitForTasks(&local) {
			result <- -1
			return
		}
		result <- local.Len()
	}()

	time.Sleep(20 * time.Millisecond)
	s.EnqueueNamed("wake-up", func(context.Context) {})

	select {
	case n := <-result:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("WaitForTasks did not wake on enqueue")
	}
}

// TestScheduler_WaitForTasksStop verifies stop semantics
// Given: An owner blocked in WaitForTasks
// When: RequestStop is called with nothing queued
// Then: The wait returns false and moves nothing
func TestScheduler_WaitForTasksStop(t *testing.T) {
	s := NewScheduler("stop")
	result := make(chan bool, 1)

	go func() {
		var local TaskQueue
		result <- s.WaitForTasks(&local)
	}()

	time.Sleep(20 * time.Millisecond)
	s.RequestStop()
	s.RequestStop() // idempotent

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitForTasks did not wake on stop")
	}
	assert.True(t, s.StopRequested())
}

// TestScheduler_WaitForTasksQueuedBeatsStop verifies queued tasks win over stop
// Given: A scheduler with a queued task and stop already requested
// When: WaitForTasks is called
// Then: It returns true immediately with the task
func TestScheduler_WaitForTasksQueuedBeatsStop(t *testing.T) {
	s := NewScheduler("race")
	s.Enqueue(func(context.Context) {})
	s.RequestStop()

	var local TaskQueue
	assert.True(t, s.WaitForTasks(&local))
	assert.Equal(t, 1, local.Len())

	assert.False(t, s.WaitForTasks(&local), "nothing left once drained")
	assert.Equal(t, 1, local.Len())
}

// TestScheduler_EnqueueAfterStopAccepted verifies late tasks are still queued
func TestScheduler_EnqueueAfterStopAccepted(t *testing.T) {
	s := NewScheduler("late")
	s.RequestStop()
	s.Enqueue(func(context.Context) {})
	assert.Equal(t, 1, s.NumEnqueued())
}

// TestScheduler_FlushPicksUpReentrantTasks verifies Flush drains in passes
// Given: A task that enqueues a follow-up while being flushed
// When: Flush runs
// Then: Both run in order and the scheduler ends empty
func TestScheduler_FlushPicksUpReentrantTasks(t *testing.T) {
	s := NewScheduler("flush")
	var order []string
	s.EnqueueNamed("first", func(context.Context) {
		order = append(order, "first")
		s.EnqueueNamed("second", func(context.Context) {
			order = append(order, "second")
		})
	})

	n := s.Flush(func(item TaskItem) { item.Task(context.Background()) })

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 0, s.NumEnqueued())
}

// TestScheduler_ConcurrentProducers verifies no loss, no duplication, per-producer FIFO
// Given: 8 producers each enqueueing 2000 numbered tasks
// When: One consumer drains until every producer is done and Flush finds nothing
// Then: Every task ran once, and each producer's tasks ran in submission order
func TestScheduler_ConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 2000

	s := NewScheduler("stress")
	seen := make([][]int, producers)

	var g errgroup.Group
	for p := range producers {
		g.Go(func() error {
			for i := range perProducer {
				s.Enqueue(func(context.Context) {
					// only the consumer goroutine runs this
					seen[p] = append(seen[p], i)
				})
			}
			return nil
		})
	}

	var producersDone atomic.Bool
	go func() {
		_ = g.Wait()
		producersDone.Store(true)
		s.RequestStop()
	}()

	var local TaskQueue
	ctx := context.Background()
	for s.WaitForTasks(&local) {
		s.RunQueue(ctx, &local)
	}
	require.True(t, producersDone.Load())
	s.Flush(func(item TaskItem) { item.Task(ctx) })

	assert.Equal(t, 0, s.NumEnqueued())
	for p := range producers {
		require.Len(t, seen[p], perProducer, "producer %d", p)
		for i, v := range seen[p] {
			if v != i {
				t.Fatalf("producer %d: position %d holds task %d", p, i, v)
			}
		}
	}
}

// TestScheduler_HappensBefore verifies writes before Enqueue are visible to the task
func TestScheduler_HappensBefore(t *testing.T) {
	s := NewScheduler("hb")
	payload := make([]string, 0, 1)
	got := make(chan []string, 1)

	go func() {
		payload = append(payload, "written by producer")
		s.Enqueue(func(context.Context) { got <- payload })
	}()

	var local TaskQueue
	require.True(t, s.WaitForTasks(&local))
	s.RunQueue(context.Background(), &local)

	assert.Equal(t, []string{"written by producer"}, <-got)
}

// TestScheduler_EnqueueAfter verifies delayed submission
// Given: A task enqueued with a 30 ms delay
// When: The owner checks before and after the delay
// Then: It is not pending until due, then arrives normally
func TestScheduler_EnqueueAfter(t *testing.T) {
	s := NewScheduler("delayed")
	ran := false
	s.EnqueueAfter(30*time.Millisecond, func(context.Context) { ran = true })

	assert.Equal(t, 0, s.NumEnqueued())

	var local TaskQueue
	require.True(t, s.WaitForTasks(&local))
	s.RunQueue(context.Background(), &local)
	assert.True(t, ran)

	s.EnqueueAfter(0, func(context.Context) {})
	assert.Equal(t, 1, s.NumEnqueued(), "non-positive delay enqueues immediately")
}

// TestScheduler_OwnershipChecks verifies owner-only operations are asserted
// Given: Ownership checks enabled and a scheduler bound to another goroutine
// When: The test goroutine calls AcceptAll
// Then: It panics, while Enqueue stays allowed
func TestScheduler_OwnershipChecks(t *testing.T) {
	SetOwnershipChecks(true)
	defer SetOwnershipChecks(false)

	s := NewScheduler("owned")
	bound := make(chan struct{})
	release := make(chan struct{})
	go func() {
		s.Bind()
		assert.True(t, s.IsOwner())
		close(bound)
		<-release
		s.Unbind()
	}()
	<-bound

	assert.False(t, s.IsOwner())
	assert.NotPanics(t, func() { s.Enqueue(func(context.Context) {}) })
	assert.Panics(t, func() { s.AcceptAll(&TaskQueue{}) })
	assert.Panics(t, func() { s.Flush(func(TaskItem) {}) })

	close(release)
	require.Eventually(t, func() bool { return s.owner.Load() == 0 }, time.Second, time.Millisecond)
	assert.NotPanics(t, func() { s.AcceptAll(&TaskQueue{}) }, "unbound schedulers are not checked")
}

// TestScheduler_TaskDoneUnderflowPanics verifies the pending count invariant
func TestScheduler_TaskDoneUnderflowPanics(t *testing.T) {
	s := NewScheduler("underflow")
	assert.Panics(t, s.taskDone)
}

// TestScheduler_ConcurrentStopAndEnqueue exercises stop racing producers under -race
func TestScheduler_ConcurrentStopAndEnqueue(t *testing.T) {
	s := NewScheduler("stop-race")
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.Enqueue(func(context.Context) {})
			}
		}()
	}
	s.RequestStop()

	var local TaskQueue
	for s.WaitForTasks(&local) {
		s.RunQueue(context.Background(), &local)
	}
	wg.Wait()
	s.Flush(func(item TaskItem) { item.Task(context.Background()) })

	assert.Equal(t, 0, s.NumEnqueued())
}
