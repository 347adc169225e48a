//go:build linux

package core

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// niceValues maps ThreadPriority onto Linux nice values; lower is more urgent.
var niceValues = [...]int{
	ThreadPriorityLowest:  10,
	ThreadPriorityLow:     5,
	ThreadPriorityNormal:  0,
	ThreadPriorityHigh:    -5,
	ThreadPriorityHighest: -10,
}

func osThreadID() int {
	return unix.Gettid()
}

// applyThreadPriority sets the nice value of the calling OS thread,
// including 0 for normal priority, since a thread created by the runtime
// inherits the nice value of whichever thread spawned it. The caller must
// have locked its goroutine to the thread. Raising priority needs
// CAP_SYS_NICE; the error is returned for the caller to log.
func applyThreadPriority(p ThreadPriority) error {
	if p < 0 || int(p) >= len(niceValues) {
		return fmt.Errorf("thread priority %d out of range", int(p))
	}
	nice := niceValues[p]
	if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice); err != nil {
		return fmt.Errorf("setpriority(%d): %w", nice, err)
	}
	return nil
}
