package core

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// TaskQueue is a FIFO sequence of tasks owned by exactly one goroutine at a
// time. It has no lock: the Scheduler guards its own instance, and a worker's
// loop-local instance is only ever touched by that worker.
//
// The zero value is an empty queue ready to use.
type TaskQueue struct {
	items []TaskItem
	head  int
}

// NewTaskQueue creates an empty queue with a small preallocated buffer.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{items: make([]TaskItem, 0, defaultQueueCap)}
}

// Push appends an item to the tail.
func (q *TaskQueue) Push(item TaskItem) {
	q.items = append(q.items, item)
}

// PushTask appends an unnamed task to the tail.
func (q *TaskQueue) PushTask(t Task) {
	q.Push(TaskItem{Task: t})
}

// Pop removes and returns the head item. Ownership of the task moves to the caller.
func (q *TaskQueue) Pop() (TaskItem, bool) {
	if q.head >= len(q.items) {
		return TaskItem{}, false
	}

	item := q.items[q.head]
	// Zero out the slot so the queue does not keep the closure alive
	q.items[q.head] = TaskItem{}
	q.head++

	if q.head == len(q.items) {
		// Fully drained: reuse the buffer from the start
		q.items = q.items[:0]
		q.head = 0
		q.maybeCompact()
	}

	return item, true
}

// Peek returns the head item without removing it.
func (q *TaskQueue) Peek() (TaskItem, bool) {
	if q.head >= len(q.items) {
		return TaskItem{}, false
	}
	return q.items[q.head], true
}

// Len returns the number of queued items.
func (q *TaskQueue) Len() int {
	return len(q.items) - q.head
}

// Empty reports whether the queue holds no items.
func (q *TaskQueue) Empty() bool {
	return q.Len() == 0
}

// Any reports whether the queue holds at least one item.
func (q *TaskQueue) Any() bool {
	return q.Len() > 0
}

// Clear drops every queued item and releases the buffer.
func (q *TaskQueue) Clear() {
	q.items = make([]TaskItem, 0, defaultQueueCap)
	q.head = 0
}

// takeFrom moves every item of src to the tail of q, preserving order, and
// leaves src empty. When q is empty the two buffers are swapped instead of
// copied, so steady-state transfers between a producer-side queue and a
// loop-local queue neither allocate nor copy.
func (q *TaskQueue) takeFrom(src *TaskQueue) int {
	n := src.Len()
	if n == 0 {
		return 0
	}

	if q.Len() == 0 {
		spare := q.items[:0]
		q.items, q.head = src.items, src.head
		src.items, src.head = spare, 0
		return n
	}

	pending := src.items[src.head:]
	q.items = append(q.items, pending...)
	clear(pending)
	src.items = src.items[:0]
	src.head = 0
	return n
}

func (q *TaskQueue) maybeCompact() {
	n := q.Len()
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]TaskItem, 0, defaultQueueCap)
		q.head = 0
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]TaskItem, n, newCap)
	copy(newSlice, q.items[q.head:])
	q.items = newSlice
	q.head = 0
}
