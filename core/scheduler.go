package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ownershipChecks turns owner-only misuse into a panic. Off by default
// because each check parses the goroutine id out of a stack trace.
var ownershipChecks atomic.Bool

// SetOwnershipChecks enables or disables owner-goroutine assertions on
// Scheduler operations that only the consuming worker may call.
func SetOwnershipChecks(enabled bool) {
	ownershipChecks.Store(enabled)
}

// Scheduler is the cross-thread mailbox of one worker.
//
// Any goroutine may Enqueue. Exactly one goroutine, the owner, consumes:
// AcceptAll, WaitForTasks, Flush and RunQueue are owner-only. The internal
// queue is the only state shared between producers and the owner; the
// mutex around it provides the happens-before edge from a producer's
// Enqueue to the owner's execution of that task.
type Scheduler struct {
	name string

	mu    sync.Mutex
	cond  *sync.Cond
	queue TaskQueue

	// pending counts tasks enqueued but not yet completed
	pending       atomic.Int64
	stopRequested atomic.Bool

	// owner is the goroutine id of the consumer; 0 while unbound
	owner atomic.Uint64
}

// NewScheduler creates an empty scheduler. name labels log lines and errors.
func NewScheduler(name string) *Scheduler {
	s := &Scheduler{name: name}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Name returns the label given at construction.
func (s *Scheduler) Name() string { return s.name }

// =============================================================================
// Producer side
// =============================================================================

// Enqueue appends task for the owner to run. Safe from any goroutine,
// including the owner, and never blocks beyond lock contention. Tasks
// enqueued after RequestStop are still accepted.
func (s *Scheduler) Enqueue(task Task) {
	s.enqueueItem(TaskItem{Task: task})
}

// EnqueueNamed is Enqueue with a label for history and metrics.
func (s *Scheduler) EnqueueNamed(name string, task Task) {
	s.enqueueItem(TaskItem{Task: task, Name: name})
}

// EnqueueAfter enqueues task once delay has elapsed. The task does not
// count as pending until it is actually enqueued.
func (s *Scheduler) EnqueueAfter(delay time.Duration, task Task) {
	if task == nil {
		panic(fmt.Sprintf("scheduler %q: nil task", s.name))
	}
	if delay <= 0 {
		s.Enqueue(task)
		return
	}
	defaultDelayManager().Schedule(s, TaskItem{Task: task}, delay)
}

func (s *Scheduler) enqueueItem(item TaskItem) {
	if item.Task == nil {
		panic(fmt.Sprintf("scheduler %q: nil task", s.name))
	}

	s.mu.Lock()
	s.queue.Push(item)
	s.pending.Add(1)
	s.mu.Unlock()

	s.cond.Signal()
}

// NumEnqueued returns how many tasks were enqueued and have not finished.
// Exact when read by the owner between transfers; approximate elsewhere.
func (s *Scheduler) NumEnqueued() int {
	return int(s.pending.Load())
}

// RequestStop marks the scheduler as stopping and wakes a blocked
// WaitForTasks. Idempotent.
func (s *Scheduler) RequestStop() {
	s.mu.Lock()
	s.stopRequested.Store(true)
	s.mu.Unlock()

	s.cond.Broadcast()
}

// StopRequested reports whether RequestStop has been called in this lifecycle.
func (s *Scheduler) StopRequested() bool {
	return s.stopRequested.Load()
}

// =============================================================================
// Owner side
// =============================================================================

// AcceptAll moves every queued task to the tail of out, in submission
// order, and returns how many moved. Owner only.
func (s *Scheduler) AcceptAll(out *TaskQueue) int {
	s.checkOwner("AcceptAll")

	s.mu.Lock()
	n := out.takeFrom(&s.queue)
	s.mu.Unlock()

	return n
}

// WaitForTasks blocks until tasks are available or stop is requested.
//
// Queued tasks always win: if anything is queued they are moved into out and
// the result is true, even when stop has been requested, so a task racing
// with the stop signal is never stranded. The result is false only when
// stop is requested and nothing is queued; nothing is moved in that case.
// Owner only.
func (s *Scheduler) WaitForTasks(out *TaskQueue) bool {
	s.checkOwner("WaitForTasks")

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.queue.Empty() && !s.stopRequested.Load() {
		s.cond.Wait()
	}

	if s.queue.Empty() {
		return false
	}

	out.takeFrom(&s.queue)
	return true
}

// RunQueue executes every task in q in FIFO order, outside any lock, and
// marks each as completed after it returns. Owner only.
func (s *Scheduler) RunQueue(ctx context.Context, q *TaskQueue) int {
	s.checkOwner("RunQueue")

	n := 0
	for {
		item, ok := q.Pop()
		if !ok {
			return n
		}
		item.Task(ctx)
		s.taskDone()
		n++
	}
}

// Flush drains the scheduler until it is empty, calling execute for each
// task in order. Tasks enqueued while Flush runs are picked up by the next
// pass; only tasks enqueued after the final empty check may be left behind.
// Returns the number of tasks executed. Owner only.
func (s *Scheduler) Flush(execute func(item TaskItem)) int {
	s.checkOwner("Flush")

	var local TaskQueue
	total := 0
	for {
		s.mu.Lock()
		n := local.takeFrom(&s.queue)
		s.mu.Unlock()

		if n == 0 {
			return total
		}

		for {
			item, ok := local.Pop()
			if !ok {
				break
			}
			execute(item)
			s.taskDone()
			total++
		}
	}
}

// taskDone marks one transferred task as completed.
func (s *Scheduler) taskDone() {
	if s.pending.Add(-1) < 0 {
		panic(fmt.Sprintf("scheduler %q: pending count went negative", s.name))
	}
}

// =============================================================================
// Ownership
// =============================================================================

// Bind makes the calling goroutine the scheduler's only consumer.
func (s *Scheduler) Bind() {
	s.owner.Store(currentGoroutineID())
}

// Unbind releases ownership so another goroutine may Bind.
func (s *Scheduler) Unbind() {
	s.owner.Store(0)
}

// IsOwner reports whether the caller is the bound consumer.
func (s *Scheduler) IsOwner() bool {
	owner := s.owner.Load()
	return owner != 0 && owner == currentGoroutineID()
}

func (s *Scheduler) checkOwner(op string) {
	if !ownershipChecks.Load() {
		return
	}
	owner := s.owner.Load()
	if owner == 0 {
		return
	}
	if gid := currentGoroutineID(); gid != owner {
		panic(fmt.Sprintf("scheduler %q: %s called from goroutine %d, owner is %d", s.name, op, gid, owner))
	}
}

// reset clears the stop flag for a new lifecycle. The owner must not be running.
func (s *Scheduler) reset() {
	s.mu.Lock()
	s.stopRequested.Store(false)
	s.mu.Unlock()
}
