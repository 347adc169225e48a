package core

import "time"

const defaultTicksPerSecond = 60.0

// Pacer decides when a fixed-cadence loop may advance one step.
type Pacer interface {
	// Waiting reports whether the loop must keep polling before the next step.
	Waiting() bool

	// NextTick advances one step and returns its delta in seconds.
	NextTick() float64
}

// =============================================================================
// TickGate: lockstep pacing with a deterministic delta
// =============================================================================

// TickGate allows one step per period and always reports the configured
// period as the step delta, regardless of how late the step actually is.
// A late step never triggers extra steps to catch up.
//
// TickGate is not safe for concurrent use; it belongs to the loop that polls it.
type TickGate struct {
	clock         Clock
	periodMicros  uint64
	periodSeconds float64
	lastTick      uint64
	delta         float64
	ticks         uint64
}

// NewTickGate creates a gate that opens ticksPerSecond times per second.
// A non-positive rate falls back to 60. A nil clock uses SystemClock.
func NewTickGate(ticksPerSecond float64, clock Clock) *TickGate {
	if ticksPerSecond <= 0 {
		ticksPerSecond = defaultTicksPerSecond
	}
	if clock == nil {
		clock = SystemClock
	}
	periodSeconds := 1.0 / ticksPerSecond
	periodMicros := uint64(1e6 / ticksPerSecond)
	if periodMicros == 0 {
		periodMicros = 1
	}
	return &TickGate{
		clock:         clock,
		periodMicros:  periodMicros,
		periodSeconds: periodSeconds,
		lastTick:      clock.Now(),
	}
}

// Waiting reports true until a full period has elapsed since the last tick.
func (g *TickGate) Waiting() bool {
	return g.clock.TimeSince(g.lastTick) < g.periodMicros
}

// NextTick records the tick and returns the fixed period in seconds.
func (g *TickGate) NextTick() float64 {
	g.lastTick = g.clock.Now()
	g.delta = g.periodSeconds
	g.ticks++
	return g.delta
}

// Remaining returns how long until the gate opens; zero when it is open.
func (g *TickGate) Remaining() time.Duration {
	elapsed := g.clock.TimeSince(g.lastTick)
	if elapsed >= g.periodMicros {
		return 0
	}
	return time.Duration(g.periodMicros-elapsed) * time.Microsecond
}

// Delta returns the delta reported by the most recent tick.
func (g *TickGate) Delta() float64 { return g.delta }

// Period returns the configured step length.
func (g *TickGate) Period() time.Duration {
	return time.Duration(g.periodMicros) * time.Microsecond
}

// Ticks returns how many ticks have been taken.
func (g *TickGate) Ticks() uint64 { return g.ticks }

// =============================================================================
// FreeRunningGate: variable-delta pacing
// =============================================================================

// FreeRunningGate never waits; each step reports the real time elapsed since
// the previous one.
type FreeRunningGate struct {
	clock    Clock
	lastTick uint64
	delta    float64
	ticks    uint64
}

// NewFreeRunningGate creates a variable-delta gate. A nil clock uses SystemClock.
func NewFreeRunningGate(clock Clock) *FreeRunningGate {
	if clock == nil {
		clock = SystemClock
	}
	return &FreeRunningGate{clock: clock, lastTick: clock.Now()}
}

func (g *FreeRunningGate) Waiting() bool { return false }

func (g *FreeRunningGate) NextTick() float64 {
	now := g.clock.Now()
	g.delta = float64(saturatingSub(now, g.lastTick)) / 1e6
	g.lastTick = now
	g.ticks++
	return g.delta
}

func (g *FreeRunningGate) Delta() float64 { return g.delta }

func (g *FreeRunningGate) Ticks() uint64 { return g.ticks }
