package core

import (
	"sync/atomic"
	"time"
)

// Clock supplies microsecond timestamps for pacing.
//
// All values returned by Now share one epoch and one unit, so the
// difference of any two readings is an elapsed duration in microseconds.
type Clock interface {
	// Now returns microseconds elapsed since the clock's epoch.
	Now() uint64

	// TimeSince returns Now() - t, or 0 if t lies in the future.
	TimeSince(t uint64) uint64
}

// MonotonicClock reads Go's monotonic clock relative to the instant it was
// created. Wall-clock adjustments never move it backwards.
type MonotonicClock struct {
	epoch time.Time
}

// NewMonotonicClock creates a clock whose epoch is the current instant.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{epoch: time.Now()}
}

// Now returns microseconds since the clock was created.
func (c *MonotonicClock) Now() uint64 {
	return uint64(time.Since(c.epoch).Microseconds())
}

// TimeSince returns microseconds elapsed since t.
func (c *MonotonicClock) TimeSince(t uint64) uint64 {
	return saturatingSub(c.Now(), t)
}

// SystemClock is the process-wide default clock.
var SystemClock Clock = NewMonotonicClock()

// ManualClock is a Clock that only moves when told to. Safe for concurrent use.
type ManualClock struct {
	now atomic.Uint64
}

// NewManualClock creates a manual clock reading start.
func NewManualClock(start uint64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Now() uint64 { return c.now.Load() }

func (c *ManualClock) TimeSince(t uint64) uint64 {
	return saturatingSub(c.Now(), t)
}

// Set moves the clock to an absolute reading.
func (c *ManualClock) Set(us uint64) { c.now.Store(us) }

// Advance moves the clock forward by d, truncated to microseconds.
func (c *ManualClock) Advance(d time.Duration) {
	c.now.Add(uint64(d.Microseconds()))
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
