package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/fifocopy/pkg/types"
)

// NewMockClock creates a mock clock for testing
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// ClockWrapper wraps quartz.Mock to implement types.Clock
type ClockWrapper struct {
	*quartz.Mock
}

// NewClockWrapper creates a new ClockWrapper
func NewClockWrapper(mock *quartz.Mock) *ClockWrapper {
	return &ClockWrapper{Mock: mock}
}

// After returns a channel that delivers the current time after the duration
func (c *ClockWrapper) After(d time.Duration) <-chan time.Time {
	return c.Mock.NewTimer(d).C
}

// Now returns the current time
func (c *ClockWrapper) Now() time.Time {
	return c.Mock.Now()
}

// Since returns the time elapsed since t
func (c *ClockWrapper) Since(t time.Time) time.Duration {
	return c.Mock.Since(t)
}

// NewTimer creates a new Timer
func (c *ClockWrapper) NewTimer(d time.Duration) types.Timer {
	return &TimerWrapper{timer: c.Mock.NewTimer(d)}
}

// TimerWrapper wraps quartz timer
type TimerWrapper struct {
	timer *quartz.Timer
}

func (t *TimerWrapper) C() <-chan time.Time {
	return t.timer.C
}

func (t *TimerWrapper) Stop() bool {
	return t.timer.Stop()
}

// FireNextTimer waits until code under test has armed a timer on mock, then
// advances the clock to it and returns the advanced duration.
func FireNextTimer(ctx context.Context, t testing.TB, mock *quartz.Mock) time.Duration {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := mock.Peek()
		return ok
	}, 2*time.Second, time.Millisecond, "no timer was armed")

	d, w := mock.AdvanceNext()
	w.MustWait(ctx)
	return d
}
