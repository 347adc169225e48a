package core

import (
	"container/heap"
	"sync"
	"time"
)

// delayedItem is one task waiting for its deadline.
type delayedItem struct {
	due    time.Time
	seq    uint64 // breaks deadline ties in submission order
	item   TaskItem
	target *Scheduler
}

// delayQueue is a min-heap on (due, seq).
type delayQueue []*delayedItem

func (q delayQueue) Len() int { return len(q) }
func (q delayQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}
func (q delayQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *delayQueue) Push(x any)   { *q = append(*q, x.(*delayedItem)) }
func (q *delayQueue) Pop() any {
	old := *q
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return d
}

// DelayManager holds delayed tasks and hands each to its target scheduler
// through Enqueue once due. One timer goroutine serves every scheduler.
//
// Tasks for the same target with the same deadline arrive in the order they
// were scheduled.
type DelayManager struct {
	mu      sync.Mutex
	queue   delayQueue
	nextSeq uint64
	stopped bool

	wakeup chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewDelayManager starts a delay manager. Stop releases its goroutine.
func NewDelayManager() *DelayManager {
	dm := &DelayManager{
		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go dm.loop()
	return dm
}

var (
	sharedDelayManager     *DelayManager
	sharedDelayManagerOnce sync.Once
)

// defaultDelayManager backs Scheduler.EnqueueAfter.
func defaultDelayManager() *DelayManager {
	sharedDelayManagerOnce.Do(func() {
		sharedDelayManager = NewDelayManager()
	})
	return sharedDelayManager
}

// Schedule enqueues item on target once delay has elapsed. After Stop it
// does nothing.
func (dm *DelayManager) Schedule(target *Scheduler, item TaskItem, delay time.Duration) {
	dm.mu.Lock()
	if dm.stopped {
		dm.mu.Unlock()
		return
	}
	d := &delayedItem{
		due:    time.Now().Add(delay),
		seq:    dm.nextSeq,
		item:   item,
		target: target,
	}
	dm.nextSeq++
	heap.Push(&dm.queue, d)
	newHead := dm.queue[0] == d
	dm.mu.Unlock()

	if newHead {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		var fire <-chan time.Time
		if wait, ok := dm.untilNext(); ok {
			timer.Reset(wait)
			fire = timer.C
		}

		select {
		case <-dm.done:
			timer.Stop()
			return
		case <-fire:
			dm.deliverDue()
		case <-dm.wakeup:
			timer.Stop()
		}
	}
}

// untilNext reports how long until the earliest deadline; ok is false
// when nothing is scheduled.
func (dm *DelayManager) untilNext() (wait time.Duration, ok bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if len(dm.queue) == 0 {
		return 0, false
	}
	return max(time.Until(dm.queue[0].due), 0), true
}

// deliverDue enqueues every due task, outside the lock.
func (dm *DelayManager) deliverDue() {
	dm.mu.Lock()
	now := time.Now()
	var due []*delayedItem
	for len(dm.queue) > 0 && !dm.queue[0].due.After(now) {
		due = append(due, heap.Pop(&dm.queue).(*delayedItem))
	}
	dm.mu.Unlock()

	for _, d := range due {
		d.target.enqueueItem(d.item)
	}
}

// Stop terminates the timer goroutine and drops every pending delayed task.
func (dm *DelayManager) Stop() {
	dm.once.Do(func() {
		dm.mu.Lock()
		dm.stopped = true
		dm.queue = nil
		dm.mu.Unlock()
		close(dm.done)
	})
}

// Pending returns the number of tasks not yet delivered.
func (dm *DelayManager) Pending() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.queue)
}
