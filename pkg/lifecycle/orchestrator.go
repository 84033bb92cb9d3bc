package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	errhandler "github.com/jzx17/fifocopy/internal/errors"
	"github.com/jzx17/fifocopy/internal/logging"
	"github.com/jzx17/fifocopy/pkg/queue"
	"github.com/jzx17/fifocopy/pkg/retry"
	"github.com/jzx17/fifocopy/pkg/types"
	"github.com/jzx17/fifocopy/pkg/worker"
)

// DefaultCapacity is the queue capacity used when Config.Capacity is zero
const DefaultCapacity = 10

// Config configures an Orchestrator
type Config[T any] struct {
	// Capacity of the queue. Zero selects DefaultCapacity; negative values are rejected.
	Capacity int

	// JoinTimeout bounds how long Wait blocks once draining has begun.
	// Zero waits indefinitely.
	JoinTimeout time.Duration

	// DrainOnSourceEnd starts draining as soon as the producer exits,
	// instead of waiting for an external trigger
	DrainOnSourceEnd bool

	// SourceErrorHandler decides whether a source failure ends the producer
	SourceErrorHandler errhandler.ErrorHandler

	// Operation names the consumer's work in errors and logs
	Operation string

	// Retry re-runs failed sink calls
	Retry *retry.RetryExecutor

	// ErrorHandler is told about every failed task
	ErrorHandler types.ErrorHandler

	// OnReject receives the task left over by a rejected push
	OnReject func(task T)

	// OnDone runs once per consumed task
	OnDone func(task T)

	Clock  types.Clock
	Logger *slog.Logger
}

// Orchestrator owns a bounded queue and the producer and consumer around it.
// It moves through Created, Running, Draining and Terminated; Shutdown may
// be called any number of times from any goroutine.
type Orchestrator[T any] struct {
	cfg      Config[T]
	source   types.Source[T]
	queue    *queue.BoundedQueue[T]
	producer *worker.Producer[T]
	consumer *worker.Consumer[T]
	clock    types.Clock
	logger   *slog.Logger

	state int32

	startOnce    sync.Once
	shutdownOnce sync.Once
	started      chan struct{}
	draining     chan struct{}
	done         chan struct{}

	cancelProducer context.CancelFunc
	cancelConsumer context.CancelFunc

	mu          sync.Mutex
	producerErr error
	consumerErr error
}

// New creates an orchestrator in the Created state. Nothing runs until Start.
func New[T any](source types.Source[T], sink types.Sink[T], cfg Config[T]) (*Orchestrator[T], error) {
	if source == nil {
		return nil, types.ErrNilSource
	}
	if sink == nil {
		return nil, types.ErrNilSink
	}

	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	q, err := queue.New[T](capacity)
	if err != nil {
		return nil, err
	}

	clock := types.ClockOrDefault(cfg.Clock)
	logger := logging.OrNop(cfg.Logger)

	producer, err := worker.NewProducer[T](source, q, worker.ProducerConfig[T]{
		ErrorHandler: cfg.SourceErrorHandler,
		OnReject:     cfg.OnReject,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	consumer, err := worker.NewConsumer[T](q, sink, worker.ConsumerConfig[T]{
		Operation:    cfg.Operation,
		Retry:        cfg.Retry,
		ErrorHandler: cfg.ErrorHandler,
		OnDone:       cfg.OnDone,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	return &Orchestrator[T]{
		cfg:      cfg,
		source:   source,
		queue:    q,
		producer: producer,
		consumer: consumer,
		clock:    clock,
		logger:   logging.NewComponentLogger(logger, "lifecycle"),
		state:    int32(types.StateCreated),
		started:  make(chan struct{}),
		draining: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the producer and consumer and moves to Running. The
// producer sees a context derived from ctx that is also cancelled by
// Shutdown. The consumer's context ignores ctx cancellation so that queued
// tasks are drained; it is cancelled only when Wait gives up after
// JoinTimeout.
func (o *Orchestrator[T]) Start(ctx context.Context) error {
	err := types.ErrAlreadyStarted
	o.startOnce.Do(func() {
		err = nil

		producerCtx, cancelProducer := context.WithCancel(ctx)
		consumerCtx, cancelConsumer := context.WithCancel(context.WithoutCancel(ctx))
		o.cancelProducer = cancelProducer
		o.cancelConsumer = cancelConsumer

		atomic.StoreInt32(&o.state, int32(types.StateRunning))
		o.logger.Info("started",
			logging.String(logging.FieldState, types.StateRunning.String()),
			logging.Int("capacity", o.queue.Cap()),
		)
		// Shutdown is a no-op until started is closed, and the producer may
		// call it as soon as it runs.
		close(o.started)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			err := o.producer.Run(producerCtx)
			o.mu.Lock()
			o.producerErr = err
			o.mu.Unlock()

			if err != nil {
				o.logger.Error("producer failed, shutting down", logging.Error(err))
				o.Shutdown()
			} else if o.cfg.DrainOnSourceEnd {
				o.Shutdown()
			}
		}()

		go func() {
			defer wg.Done()
			err := o.consumer.Run(consumerCtx)
			o.mu.Lock()
			o.consumerErr = err
			o.mu.Unlock()
		}()

		go o.supervise(&wg)
	})
	return err
}

// supervise joins both loops, then releases the queue and moves to Terminated
func (o *Orchestrator[T]) supervise(wg *sync.WaitGroup) {
	wg.Wait()

	o.cancelProducer()
	o.cancelConsumer()
	o.queue.Release()

	atomic.StoreInt32(&o.state, int32(types.StateTerminated))

	stats := o.queue.Stats()
	o.logger.Info("terminated",
		logging.String(logging.FieldState, types.StateTerminated.String()),
		logging.Int64("accepted", stats.Accepted),
		logging.Int64("delivered", stats.Delivered),
		logging.Int64("rejected", stats.Rejected),
	)
	close(o.done)
}

// Shutdown moves a running orchestrator to Draining: the queue stops
// accepting tasks, blocked producer and consumer calls are woken, and the
// source is closed if it implements io.Closer. Queued tasks are still
// consumed. Only the first call has any effect; calling it before Start
// is a no-op.
func (o *Orchestrator[T]) Shutdown() {
	select {
	case <-o.started:
	default:
		return
	}

	o.shutdownOnce.Do(func() {
		atomic.CompareAndSwapInt32(&o.state, int32(types.StateRunning), int32(types.StateDraining))
		o.logger.Info("draining",
			logging.String(logging.FieldState, types.StateDraining.String()),
			logging.Int("queued", o.queue.Len()),
		)

		o.queue.Shutdown()
		o.cancelProducer()

		if closer, ok := o.source.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				o.logger.Warn("closing source failed", logging.Error(err))
			}
		}
		close(o.draining)
	})
}

// Wait blocks until both loops have exited and the queue was released. When
// JoinTimeout is set and the loops are still running that long after
// draining began, Wait cancels the consumer's context and returns an error
// wrapping types.ErrJoinTimeout. The returned error also carries a producer
// failure, if any.
func (o *Orchestrator[T]) Wait() error {
	select {
	case <-o.started:
	default:
		return types.ErrNotStarted
	}

	if o.cfg.JoinTimeout <= 0 {
		<-o.done
		return o.result()
	}

	select {
	case <-o.done:
		return o.result()
	case <-o.draining:
	}

	timer := o.clock.NewTimer(o.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case <-o.done:
		return o.result()
	case <-timer.C():
		o.logger.Error("loops did not exit in time, abandoning queued work",
			logging.Duration("join_timeout", o.cfg.JoinTimeout),
			logging.Int("queued", o.queue.Len()),
			logging.Event("join_timeout"),
		)
		o.cancelConsumer()
		return errors.Join(
			fmt.Errorf("%w after %s", types.ErrJoinTimeout, o.cfg.JoinTimeout),
			o.result(),
		)
	}
}

// Run starts the orchestrator, waits for trigger to fire, ctx to be
// cancelled or the orchestrator to begin draining on its own, then shuts
// down and waits. A nil trigger never fires.
func (o *Orchestrator[T]) Run(ctx context.Context, trigger <-chan struct{}) error {
	if err := o.Start(ctx); err != nil {
		return err
	}

	select {
	case <-trigger:
		o.logger.Info("shutdown requested", logging.Event("shutdown_trigger"))
	case <-ctx.Done():
		o.logger.Info("context cancelled, shutting down", logging.Error(ctx.Err()))
	case <-o.draining:
	}

	o.Shutdown()
	return o.Wait()
}

func (o *Orchestrator[T]) result() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return errors.Join(o.producerErr, o.consumerErr)
}

// State returns the current lifecycle state
func (o *Orchestrator[T]) State() types.LifecycleState {
	return types.LifecycleState(atomic.LoadInt32(&o.state))
}

// Done is closed once the orchestrator reaches Terminated
func (o *Orchestrator[T]) Done() <-chan struct{} {
	return o.done
}

// Stats returns a snapshot of the queue and both loops
func (o *Orchestrator[T]) Stats() types.RunStats {
	return types.RunStats{
		State:    o.State(),
		Queue:    o.queue.Stats(),
		Producer: o.producer.Stats(),
		Consumer: o.consumer.Stats(),
	}
}
