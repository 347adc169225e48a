package threadrunner

import "github.com/Swind/go-thread-runner/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the threadrunner package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// Scheduler is the cross-thread mailbox of one worker
type Scheduler = core.Scheduler

// ThreadID identifies a worker thread
type ThreadID = core.ThreadID

// ThreadPriority is the OS scheduling priority requested for a worker thread
type ThreadPriority = core.ThreadPriority

// TickWorker steps a Simulation at a fixed cadence
type TickWorker = core.TickWorker

// TaskWorker sleeps until work arrives and drains it in batches
type TaskWorker = core.TaskWorker

// Simulation is stepped by a TickWorker and torn down once when it stops
type Simulation = core.Simulation

// SimulationFunc builds a Simulation from plain functions
type SimulationFunc = core.SimulationFunc

// WorkerStats is a point-in-time snapshot of a worker
type WorkerStats = core.WorkerStats

// Priority constants
const (
	ThreadPriorityLowest  ThreadPriority = core.ThreadPriorityLowest
	ThreadPriorityLow     ThreadPriority = core.ThreadPriorityLow
	ThreadPriorityNormal  ThreadPriority = core.ThreadPriorityNormal
	ThreadPriorityHigh    ThreadPriority = core.ThreadPriorityHigh
	ThreadPriorityHighest ThreadPriority = core.ThreadPriorityHighest
)

// Constructors
var (
	NewThreadID      = core.NewThreadID
	NewTickWorker    = core.NewTickWorker
	NewTaskWorker    = core.NewTaskWorker
	NewScheduler     = core.NewScheduler
	PostTaskAndReply = core.PostTaskAndReply
)

// TaskWithResult and ReplyWithResult for generic PostTaskAndReply pattern
type TaskWithResult[T any] = core.TaskWithResult[T]
type ReplyWithResult[T any] = core.ReplyWithResult[T]

// GetCurrentWorker retrieves the worker running the current task from context
var GetCurrentWorker = core.GetCurrentWorker
