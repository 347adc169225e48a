package core

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unique"
)

// ThreadPriority is the scheduling priority requested for a worker's OS thread.
type ThreadPriority int

const (
	ThreadPriorityLowest ThreadPriority = iota
	ThreadPriorityLow
	ThreadPriorityNormal
	ThreadPriorityHigh
	ThreadPriorityHighest
)

func (p ThreadPriority) String() string {
	switch p {
	case ThreadPriorityLowest:
		return "lowest"
	case ThreadPriorityLow:
		return "low"
	case ThreadPriorityNormal:
		return "normal"
	case ThreadPriorityHigh:
		return "high"
	case ThreadPriorityHighest:
		return "highest"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParseThreadPriority converts a priority name back to its value.
func ParseThreadPriority(s string) (ThreadPriority, error) {
	for p := ThreadPriorityLowest; p <= ThreadPriorityHighest; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return ThreadPriorityNormal, fmt.Errorf("unknown thread priority %q", s)
}

// =============================================================================
// ThreadID
// =============================================================================

var nextThreadValue atomic.Uint32

// ThreadID identifies a worker thread. It is immutable and compared by value.
// Names are interned, so equal names share storage and compare in O(1).
type ThreadID struct {
	value    uint32
	name     unique.Handle[string]
	priority ThreadPriority
}

// NewThreadID allocates a process-unique id for a thread called name.
func NewThreadID(name string, priority ThreadPriority) ThreadID {
	return ThreadID{
		value:    nextThreadValue.Add(1),
		name:     unique.Make(name),
		priority: priority,
	}
}

// Value returns the numeric id; zero means "no thread".
func (id ThreadID) Value() uint32 { return id.value }

// Name returns the thread's name.
func (id ThreadID) Name() string {
	if id.value == 0 {
		return ""
	}
	return id.name.Value()
}

// Priority returns the requested priority.
func (id ThreadID) Priority() ThreadPriority { return id.priority }

// IsValid reports whether id was allocated by NewThreadID.
func (id ThreadID) IsValid() bool { return id.value != 0 }

func (id ThreadID) String() string {
	if !id.IsValid() {
		return "thread(invalid)"
	}
	return fmt.Sprintf("%s#%d", id.Name(), id.value)
}

// =============================================================================
// Static threads
// =============================================================================

// StaticThread names the well-known threads of a process.
type StaticThread int

const (
	ThreadMain StaticThread = iota
	ThreadGame
	ThreadRender
	ThreadTask
)

var staticThreadIDs = [...]ThreadID{
	ThreadMain:   NewThreadID("main", ThreadPriorityNormal),
	ThreadGame:   NewThreadID("game", ThreadPriorityHigh),
	ThreadRender: NewThreadID("render", ThreadPriorityHighest),
	ThreadTask:   NewThreadID("task", ThreadPriorityNormal),
}

// GetStaticThreadID returns the fixed id for a well-known thread.
func GetStaticThreadID(t StaticThread) ThreadID {
	if t < 0 || int(t) >= len(staticThreadIDs) {
		panic(fmt.Sprintf("unknown static thread %d", int(t)))
	}
	return staticThreadIDs[t]
}

// =============================================================================
// Current-thread registry
// =============================================================================

// boundThreads maps goroutine id -> ThreadID for goroutines running a worker loop.
var boundThreads sync.Map

func bindCurrentThread(id ThreadID) uint64 {
	gid := currentGoroutineID()
	boundThreads.Store(gid, id)
	return gid
}

func unbindThread(gid uint64) {
	boundThreads.Delete(gid)
}

// CurrentThreadID returns the ThreadID of the worker loop running on the
// calling goroutine, or the zero ThreadID if there is none.
func CurrentThreadID() ThreadID {
	if v, ok := boundThreads.Load(currentGoroutineID()); ok {
		return v.(ThreadID)
	}
	return ThreadID{}
}

// IsOnThread reports whether the caller runs on the worker identified by id.
func IsOnThread(id ThreadID) bool {
	return CurrentThreadID() == id
}

// AssertOnThread panics unless the caller runs on the worker identified by id.
func AssertOnThread(id ThreadID) {
	if cur := CurrentThreadID(); cur != id {
		panic(fmt.Sprintf("expected to be on thread %s, but running on %s", id, cur))
	}
}

// currentGoroutineID parses the id out of "goroutine 123 [running]:".
func currentGoroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	var id uint64
	for i := len("goroutine "); i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			break
		}
		id = id*10 + uint64(b[i]-'0')
	}
	return id
}
