package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	errhandler "github.com/jzx17/fifocopy/internal/errors"
	"github.com/jzx17/fifocopy/internal/logging"
	"github.com/jzx17/fifocopy/pkg/types"
)

// ProducerConfig configures a Producer
type ProducerConfig[T any] struct {
	// ErrorHandler decides whether a source failure ends the loop.
	// Defaults to the stop policy.
	ErrorHandler errhandler.ErrorHandler

	// OnReject receives the task a rejected push left with the producer
	OnReject func(task T)

	Clock  types.Clock
	Logger *slog.Logger
}

// Producer moves tasks from a Source into a queue until the source ends,
// fails under the stop policy, or the queue rejects a push.
type Producer[T any] struct {
	source   types.Source[T]
	queue    Pusher[T]
	handler  errhandler.ErrorHandler
	onReject func(T)
	clock    types.Clock
	logger   *slog.Logger

	started  int32
	rejected int64
	stats    loopStats
}

// NewProducer creates a producer feeding queue from source
func NewProducer[T any](source types.Source[T], queue Pusher[T], cfg ProducerConfig[T]) (*Producer[T], error) {
	if source == nil {
		return nil, types.ErrNilSource
	}
	if queue == nil {
		return nil, fmt.Errorf("producer: queue cannot be nil")
	}

	handler := cfg.ErrorHandler
	if handler == nil {
		handler = errhandler.NewFailFastHandler()
	}

	return &Producer[T]{
		source:   source,
		queue:    queue,
		handler:  handler,
		onReject: cfg.OnReject,
		clock:    types.ClockOrDefault(cfg.Clock),
		logger:   logging.NewComponentLogger(cfg.Logger, RoleProducer),
	}, nil
}

// Run executes the producer loop on the calling goroutine. It returns nil
// when the source is exhausted, the context is cancelled or the queue
// rejects a push, and the source error when the error handler ends the loop.
// Run may only be called once.
func (p *Producer[T]) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return types.ErrAlreadyStarted
	}
	defer p.stats.setState(WorkerStateStopped)

	p.logger.Debug("producer started", logging.String("error_policy", p.handler.Name()))

	failures := 0
	for {
		task, err := p.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logger.Info("source exhausted", logging.Event("source_eof"))
				return nil
			}
			if contextDone(ctx) {
				p.logger.Debug("producer cancelled", logging.Error(err))
				return nil
			}

			failures++
			atomic.AddInt64(&p.stats.totalFailed, 1)

			errCtx := errhandler.NewErrorContext(err, "next")
			errCtx.Timestamp = p.clock.Now()
			errCtx.Occurrence = failures
			if herr := p.handler.HandleError(ctx, errCtx); herr != nil {
				p.logger.Error("source failed, producer stopping",
					logging.Event("source_failed"),
					logging.Error(herr),
				)
				return fmt.Errorf("producer: %w", herr)
			}
			continue
		}

		p.stats.setState(WorkerStateWorking)
		start := p.clock.Now()
		accepted := p.queue.Push(task)
		p.stats.setState(WorkerStateIdle)

		if !accepted {
			atomic.AddInt64(&p.rejected, 1)
			p.logger.Info("queue shutting down, task not enqueued",
				logging.Task(task),
				logging.Event("push_rejected"),
			)
			if p.onReject != nil {
				p.onReject(task)
			}
			return nil
		}

		p.stats.record(start, p.clock.Since(start), false)
		p.logger.Debug("task enqueued", logging.Task(task))
	}
}

// State returns the current loop state
func (p *Producer[T]) State() WorkerState {
	return p.stats.loadState()
}

// Rejected reports how many tasks the queue refused
func (p *Producer[T]) Rejected() int64 {
	return atomic.LoadInt64(&p.rejected)
}

// Stats returns producer statistics. TotalProcessed counts enqueued tasks,
// TotalFailed counts source failures.
func (p *Producer[T]) Stats() types.WorkerStats {
	return p.stats.snapshot(RoleProducer)
}
