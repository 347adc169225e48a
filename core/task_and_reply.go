package core

import "context"

// TaskWithResult is a task that produces a value for its reply.
type TaskWithResult[T any] func(ctx context.Context) (T, error)

// ReplyWithResult consumes the value produced by a TaskWithResult.
type ReplyWithResult[T any] func(ctx context.Context, result T, err error)

// =============================================================================
// PostTaskAndReply
// =============================================================================

// PostTaskAndReply runs task on target and, once task has returned, enqueues
// reply on replyTo. If task panics, reply is never enqueued. A nil replyTo
// just enqueues task.
//
// Example: load on a background worker, then apply on the game thread.
//
//	core.PostTaskAndReply(io.Scheduler(), load, apply, game.Scheduler())
func PostTaskAndReply(target *Scheduler, task Task, reply Task, replyTo *Scheduler) {
	if replyTo == nil {
		target.Enqueue(task)
		return
	}

	target.Enqueue(func(ctx context.Context) {
		task(ctx)
		replyTo.Enqueue(reply)
	})
}

// PostTaskAndReplyWithResult runs task on target and passes its result to
// reply on replyTo.
//
// The task always completes before the reply starts, and the reply sees the
// values the task returned: they travel inside the reply closure, and the
// scheduler's lock orders the two executions.
//
// Example:
//
//	core.PostTaskAndReplyWithResult(
//	    io.Scheduler(),
//	    func(ctx context.Context) ([]byte, error) {
//	        return os.ReadFile("level.bin")
//	    },
//	    func(ctx context.Context, data []byte, err error) {
//	        world.Load(data, err)
//	    },
//	    game.Scheduler(),
//	)
func PostTaskAndReplyWithResult[T any](
	target *Scheduler,
	task TaskWithResult[T],
	reply ReplyWithResult[T],
	replyTo *Scheduler,
) {
	target.Enqueue(func(ctx context.Context) {
		result, err := task(ctx)
		if replyTo == nil {
			return
		}
		replyTo.Enqueue(func(replyCtx context.Context) {
			reply(replyCtx, result, err)
		})
	})
}
