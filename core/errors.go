package core

import "errors"

var (
	// ErrWorkerRunning is returned by Start while a previous lifecycle has not exited.
	ErrWorkerRunning = errors.New("worker is already running")

	// ErrWorkerNotStarted is returned by waits on a worker that was never started.
	ErrWorkerNotStarted = errors.New("worker has not been started")

	// ErrStopRequested is returned by WaitIdle once the worker has been told to stop.
	ErrStopRequested = errors.New("worker stop requested")
)
