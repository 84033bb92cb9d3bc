package types

import "time"

// Clock is the time source behind every wait in a run: the retry executor's
// back-off delays, the orchestrator's join timeout and the per-task timings
// the producer and consumer record. Tests substitute a mock so those waits
// advance on demand.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// After fires once d has elapsed. The retry executor selects on it
	// alongside ctx.Done, so a cancelled run never sits out a delay.
	After(d time.Duration) <-chan time.Time
	// NewTimer is used where the wait must be abandoned early, as when both
	// loops finish inside the join timeout.
	NewTimer(d time.Duration) Timer
}

// Timer is the stoppable subset of time.Timer the orchestrator needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RealClock reads the wall clock.
type RealClock struct{}

func NewRealClock() Clock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time { return time.Now() }

func (c *RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (c *RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (c *RealClock) NewTimer(d time.Duration) Timer {
	return wallTimer{t: time.NewTimer(d)}
}

type wallTimer struct {
	t *time.Timer
}

func (w wallTimer) C() <-chan time.Time { return w.t.C }

func (w wallTimer) Stop() bool { return w.t.Stop() }

// ClockOrDefault lets configs leave their Clock unset.
func ClockOrDefault(clock Clock) Clock {
	if clock == nil {
		return NewRealClock()
	}
	return clock
}
