package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/jzx17/fifocopy/pkg/types"
)

// Roles reported in statistics and log lines.
const (
	RoleProducer = "producer"
	RoleConsumer = "consumer"
)

// WorkerState defines the state of a producer or consumer loop
type WorkerState int32

const (
	// WorkerStateIdle the loop has not started or is waiting for work
	WorkerStateIdle WorkerState = iota
	// WorkerStateWorking the loop is handling a task
	WorkerStateWorking
	// WorkerStateStopped the loop has exited
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateWorking:
		return "working"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Pusher is the producer side of a bounded queue
type Pusher[T any] interface {
	// Push blocks while the queue is full and returns false once it is shutting down
	Push(item T) bool
}

// Popper is the consumer side of a bounded queue
type Popper[T any] interface {
	// Pop blocks while the queue is empty and returns false once it is drained and shutting down
	Pop() (T, bool)
}

// loopStats holds the counters shared by both loops. All fields are accessed atomically.
type loopStats struct {
	state          int32
	totalProcessed int64
	totalFailed    int64
	totalRetries   int64
	totalTime      int64 // nanoseconds
	lastTaskTime   int64 // Unix nanosecond timestamp
}

func (s *loopStats) setState(state WorkerState) {
	atomic.StoreInt32(&s.state, int32(state))
}

func (s *loopStats) loadState() WorkerState {
	return WorkerState(atomic.LoadInt32(&s.state))
}

func (s *loopStats) record(start time.Time, elapsed time.Duration, failed bool) {
	atomic.StoreInt64(&s.lastTaskTime, start.UnixNano())
	atomic.AddInt64(&s.totalTime, int64(elapsed))
	if failed {
		atomic.AddInt64(&s.totalFailed, 1)
	} else {
		atomic.AddInt64(&s.totalProcessed, 1)
	}
}

func (s *loopStats) snapshot(role string) types.WorkerStats {
	stats := types.WorkerStats{
		Role:           role,
		State:          s.loadState().String(),
		TotalProcessed: atomic.LoadInt64(&s.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&s.totalFailed),
		TotalRetries:   atomic.LoadInt64(&s.totalRetries),
		TotalTime:      time.Duration(atomic.LoadInt64(&s.totalTime)),
	}
	if last := atomic.LoadInt64(&s.lastTaskTime); last != 0 {
		stats.LastTaskTime = time.Unix(0, last)
	}
	return stats
}

// executeSafely runs fn and converts a panic into a TaskError carrying the stack
func executeSafely[T any](role, operation string, task T, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			var cause error
			switch v := r.(type) {
			case error:
				cause = fmt.Errorf("panic: %w", v)
			default:
				cause = fmt.Errorf("panic: %v", v)
			}

			err = types.NewTaskError(operation, task, cause).
				WithContext("stack_trace", string(buf[:n])).
				WithContext("role", role)
		}
	}()

	return fn()
}

func taskName[T any](task T) string {
	return fmt.Sprint(task)
}

func contextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
