// Package threadrunner runs work on named, long-lived worker threads that
// other goroutines hand tasks to.
//
// Each worker owns one Scheduler: a mailbox any goroutine may Enqueue into
// and only the worker itself drains. Tasks posted by one producer run in the
// order they were posted, one at a time, on the worker's own OS thread, so
// state owned by a worker needs no locks.
//
// Two worker loops are provided:
//
//   - TickWorker steps a Simulation at a fixed rate (60 per second by
//     default). Each step drains the mailbox, then calls Update with a delta
//     that is always exactly one period. It never blocks.
//   - TaskWorker sleeps until work arrives and then runs everything queued
//     as one batch.
//
// Stopping is cooperative. Stop sets a flag the loop checks between
// iterations; a task that is already running always finishes. A TickWorker
// runs every remaining task and then Teardown before its loop exits.
//
// # Quick Start
//
//	threadrunner.InitGlobalThreads(threadrunner.GlobalOptions{
//		Simulation: world, // Update(delta) + Teardown()
//		TaskWorkers: 2,
//	})
//	defer threadrunner.ShutdownGlobalThreads(context.Background())
//
//	threadrunner.PostToThread(core.ThreadGame, func(ctx context.Context) {
//		// runs on the game thread, between two simulation steps
//	})
//
// # Groups
//
// Group starts, stops and joins a set of workers together:
//
//	g := threadrunner.NewGroup("engine")
//	g.Add(core.NewTickWorker(core.GetStaticThreadID(core.ThreadGame), world, nil))
//	g.Add(core.NewTaskWorker(core.NewThreadID("io", core.ThreadPriorityLow), nil))
//	if err := g.Start(); err != nil {
//		return err
//	}
//	...
//	g.Stop()
//	return g.Wait(ctx)
//
// For more details, see https://github.com/Swind/go-thread-runner
package threadrunner
