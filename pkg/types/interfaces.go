// Package types defines core interfaces and types shared by the queue, the
// producer/consumer loops and the lifecycle orchestrator.
package types

import (
	"context"
	"time"
)

// Source supplies tasks to a producer.
type Source[T any] interface {
	// Next blocks until a task is available. It returns io.EOF once the
	// source has no more input.
	Next(ctx context.Context) (T, error)
}

// Sink performs the work for one task.
type Sink[T any] interface {
	// Process handles the task. A returned error is reported by the caller
	// and never affects queue state.
	Process(ctx context.Context, task T) error
}

// SourceFunc adapts a function to the Source interface
type SourceFunc[T any] func(ctx context.Context) (T, error)

// Next calls f(ctx)
func (f SourceFunc[T]) Next(ctx context.Context) (T, error) {
	return f(ctx)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc[T any] func(ctx context.Context, task T) error

// Process calls f(ctx, task)
func (f SinkFunc[T]) Process(ctx context.Context, task T) error {
	return f(ctx, task)
}

// ErrorHandler defines an error reporting function. Its return value is
// logged by the caller; it never stops a consumer.
type ErrorHandler func(error) error

// LifecycleState defines the state of an orchestrator
type LifecycleState int32

const (
	// StateCreated the queue exists, producer and consumer are not started
	StateCreated LifecycleState = iota
	// StateRunning producer and consumer are running
	StateRunning
	// StateDraining shutdown was requested, waiting for both loops to exit
	StateDraining
	// StateTerminated both loops exited and the queue was released
	StateTerminated
)

// String returns the string representation of LifecycleState
func (s LifecycleState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Draining"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// QueueStats is a snapshot of a bounded queue
type QueueStats struct {
	// Capacity is the fixed number of slots
	Capacity int

	// Len is the number of queued items
	Len int

	// HighWater is the largest Len observed
	HighWater int

	// Accepted counts successful pushes
	Accepted int64

	// Rejected counts pushes refused because the queue was shutting down
	Rejected int64

	// Delivered counts successful pops
	Delivered int64

	// ShuttingDown reports whether Shutdown has been called
	ShuttingDown bool
}

// WorkerStats defines producer or consumer statistics
type WorkerStats struct {
	Role           string
	State          string
	TotalProcessed int64
	TotalFailed    int64
	TotalRetries   int64
	TotalTime      time.Duration
	LastTaskTime   time.Time
}

// GetSuccessRate gets the success rate
func (ws WorkerStats) GetSuccessRate() float64 {
	total := ws.TotalProcessed + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalProcessed) / float64(total)
}

// AverageTime returns the mean time spent per task
func (ws WorkerStats) AverageTime() time.Duration {
	total := ws.TotalProcessed + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return ws.TotalTime / time.Duration(total)
}

// RunStats aggregates the statistics of one orchestrated run
type RunStats struct {
	State    LifecycleState
	Queue    QueueStats
	Producer WorkerStats
	Consumer WorkerStats
}
