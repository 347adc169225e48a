package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTaskWorker(t *testing.T, name string) (*TaskWorker, ThreadID) {
	t.Helper()
	id := NewThreadID(name, ThreadPriorityNormal)
	w := NewTaskWorker(id, nil)
	require.NoError(t, w.Start())
	t.Cleanup(func() {
		w.Stop()
		joinWithin(t, w, time.Second)
	})
	return w, id
}

// TestPostTaskAndReply_CrossWorker verifies task and reply run on their own threads
// Given: Two running task workers
// When: A task is posted to the first with a reply to the second
// Then: The task runs on the first, then the reply runs on the second
func TestPostTaskAndReply_CrossWorker(t *testing.T) {
	io, ioID := startTaskWorker(t, "io")
	game, gameID := startTaskWorker(t, "game")

	events := make(chan string, 2)
	PostTaskAndReply(io.Scheduler(),
		func(context.Context) {
			if IsOnThread(ioID) {
				events <- "task@io"
			}
		},
		func(context.Context) {
			if IsOnThread(gameID) {
				events <- "reply@game"
			}
		},
		game.Scheduler(),
	)

	for _, want := range []string{"task@io", "reply@game"} {
		select {
		case got := <-events:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// TestPostTaskAndReply_NilReplyTo verifies a nil reply target only runs the task
func TestPostTaskAndReply_NilReplyTo(t *testing.T) {
	w, _ := startTaskWorker(t, "solo")

	replied := false
	PostTaskAndReply(w.Scheduler(), func(context.Context) {}, func(context.Context) { replied = true }, nil)
	require.NoError(t, w.WaitIdle(context.Background()))

	assert.False(t, replied)
}

// TestPostTaskAndReply_PanicSkipsReply verifies a panicking task never replies
// Given: A task that panics, posted with a reply
// When: The target is drained by an executor that survives the panic
// Then: The reply is never enqueued
func TestPostTaskAndReply_PanicSkipsReply(t *testing.T) {
	target := NewScheduler("target")
	replyTo := NewScheduler("reply")

	PostTaskAndReply(target,
		func(context.Context) { panic("boom") },
		func(context.Context) {},
		replyTo,
	)

	var recovered any
	target.Flush(func(item TaskItem) {
		defer func() { recovered = recover() }()
		item.Task(context.Background())
	})

	assert.Equal(t, "boom", recovered)
	assert.Equal(t, 0, target.NumEnqueued())
	assert.Equal(t, 0, replyTo.NumEnqueued())
}

// TestPostTaskAndReplyWithResult verifies results travel to the reply thread
func TestPostTaskAndReplyWithResult(t *testing.T) {
	io, _ := startTaskWorker(t, "loader")
	game, gameID := startTaskWorker(t, "main-loop")

	type level struct {
		Name  string
		Tiles int
	}
	got := make(chan level, 1)
	PostTaskAndReplyWithResult(io.Scheduler(),
		func(context.Context) (level, error) {
			return level{Name: "e1m1", Tiles: 4096}, nil
		},
		func(_ context.Context, l level, err error) {
			AssertOnThread(gameID)
			if err == nil {
				got <- l
			}
		},
		game.Scheduler(),
	)

	select {
	case l := <-got:
		assert.Equal(t, level{Name: "e1m1", Tiles: 4096}, l)
	case <-time.After(time.Second):
		t.Fatal("reply did not run")
	}
}

// TestPostTaskAndReplyWithResult_Error verifies errors are delivered to the reply
func TestPostTaskAndReplyWithResult_Error(t *testing.T) {
	errMissing := errors.New("missing asset")
	target := NewScheduler("target")
	replyTo := NewScheduler("reply")

	var gotErr error
	PostTaskAndReplyWithResult(target,
		func(context.Context) (int, error) { return 0, errMissing },
		func(_ context.Context, _ int, err error) { gotErr = err },
		replyTo,
	)

	// drive both schedulers by hand from this goroutine
	ctx := context.Background()
	target.Flush(func(item TaskItem) { item.Task(ctx) })
	replyTo.Flush(func(item TaskItem) { item.Task(ctx) })

	assert.ErrorIs(t, gotErr, errMissing)
}

// TestPostTaskAndReply_SameScheduler verifies replying to the task's own worker
func TestPostTaskAndReply_SameScheduler(t *testing.T) {
	s := NewScheduler("same")
	var order []string
	PostTaskAndReply(s,
		func(context.Context) { order = append(order, "task") },
		func(context.Context) { order = append(order, "reply") },
		s,
	)

	n := s.Flush(func(item TaskItem) { item.Task(context.Background()) })

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"task", "reply"}, order)
}
