package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jzx17/fifocopy/internal/logging"
	"github.com/jzx17/fifocopy/pkg/retry"
	"github.com/jzx17/fifocopy/pkg/types"
)

// DefaultOperation names the consumer's work when ConsumerConfig.Operation is empty
const DefaultOperation = "process"

// ConsumerConfig configures a Consumer
type ConsumerConfig[T any] struct {
	// Operation names the work in errors and logs
	Operation string

	// Retry re-runs failed sink calls. Nil runs each task once.
	Retry *retry.RetryExecutor

	// ErrorHandler is told about every failed task. Its result is logged.
	ErrorHandler types.ErrorHandler

	// OnDone runs exactly once per popped task after the sink returns,
	// whether or not it succeeded
	OnDone func(task T)

	Clock  types.Clock
	Logger *slog.Logger
}

// Consumer pops tasks from a queue and hands each to a Sink until the queue
// reports that it is drained and shutting down.
type Consumer[T any] struct {
	queue     Popper[T]
	sink      types.Sink[T]
	operation string
	executor  *retry.RetryExecutor
	handler   types.ErrorHandler
	onDone    func(T)
	clock     types.Clock
	logger    *slog.Logger

	started int32
	stats   loopStats
}

// NewConsumer creates a consumer draining queue into sink
func NewConsumer[T any](queue Popper[T], sink types.Sink[T], cfg ConsumerConfig[T]) (*Consumer[T], error) {
	if sink == nil {
		return nil, types.ErrNilSink
	}
	if queue == nil {
		return nil, fmt.Errorf("consumer: queue cannot be nil")
	}

	clock := types.ClockOrDefault(cfg.Clock)
	operation := cfg.Operation
	if operation == "" {
		operation = DefaultOperation
	}
	executor := cfg.Retry
	if executor == nil {
		executor = retry.NewRetryExecutor(retry.NewNoRetry(), retry.WithClock(clock))
	}

	return &Consumer[T]{
		queue:     queue,
		sink:      sink,
		operation: operation,
		executor:  executor,
		handler:   cfg.ErrorHandler,
		onDone:    cfg.OnDone,
		clock:     clock,
		logger:    logging.NewComponentLogger(cfg.Logger, RoleConsumer),
	}, nil
}

// Run executes the consumer loop on the calling goroutine and returns nil
// once the queue is drained and shutting down. A failed task never stops the
// loop. Run may only be called once.
func (c *Consumer[T]) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return types.ErrAlreadyStarted
	}
	defer c.stats.setState(WorkerStateStopped)

	c.logger.Debug("consumer started", logging.String("operation", c.operation))

	for {
		task, ok := c.queue.Pop()
		if !ok {
			c.logger.Info("queue drained", logging.Event("queue_drained"))
			return nil
		}
		c.handle(ctx, task)
	}
}

func (c *Consumer[T]) handle(ctx context.Context, task T) {
	c.stats.setState(WorkerStateWorking)
	defer c.stats.setState(WorkerStateIdle)

	start := c.clock.Now()
	attempts := 0
	_, err := retry.ExecuteWithName(c.executor, ctx, taskName(task), func(ctx context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, executeSafely(RoleConsumer, c.operation, task, func() error {
			return c.sink.Process(ctx, task)
		})
	})
	elapsed := c.clock.Since(start)

	if attempts > 1 {
		atomic.AddInt64(&c.stats.totalRetries, int64(attempts-1))
	}
	c.stats.record(start, elapsed, err != nil)

	if err != nil {
		c.report(task, err, attempts)
	} else {
		c.logger.Debug("task done", logging.Task(task), logging.Duration("elapsed", elapsed))
	}

	if c.onDone != nil {
		c.onDone(task)
	}
}

func (c *Consumer[T]) report(task T, err error, attempts int) {
	var taskErr *types.TaskError[T]
	if !errors.As(err, &taskErr) {
		taskErr = types.NewTaskError(c.operation, task, err)
		err = taskErr
	}
	taskErr.WithContext("attempts", attempts)

	c.logger.Error("task failed",
		logging.Task(task),
		logging.Int("attempts", attempts),
		logging.Event("task_failed"),
		logging.Error(taskErr.Cause),
	)

	if c.handler != nil {
		if herr := c.handler(err); herr != nil {
			c.logger.Warn("error handler failed", logging.Task(task), logging.Error(herr))
		}
	}
}

// State returns the current loop state
func (c *Consumer[T]) State() WorkerState {
	return c.stats.loadState()
}

// Stats returns consumer statistics
func (c *Consumer[T]) Stats() types.WorkerStats {
	return c.stats.snapshot(RoleConsumer)
}
