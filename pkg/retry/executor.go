package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jzx17/fifocopy/internal/logging"
	"github.com/jzx17/fifocopy/pkg/types"
)

// RetryExecutor runs operations under a RetryPolicy
type RetryExecutor struct {
	policy       RetryPolicy
	eventHandler EventHandler
	stats        RetryStats
	clock        types.Clock
}

// ExecuteFunc is the function type to retry
type ExecuteFunc[T any] func(ctx context.Context) (T, error)

// RetryStats contains retry statistics
type RetryStats struct {
	TotalAttempts   int64         // total attempt count
	TotalRetries    int64         // operations that needed more than one attempt
	TotalSuccesses  int64         // total success count
	TotalFailures   int64         // total failure count
	AverageAttempts float64       // average attempts per operation
	TotalRetryDelay time.Duration // total time spent waiting between attempts
	mu              sync.RWMutex
}

// EventHandler handles retry events
type EventHandler interface {
	OnRetryAttempt(ctx context.Context, name string, attempt int, err error, delay time.Duration)
	OnRetrySuccess(ctx context.Context, name string, attempt int, duration time.Duration)
	OnRetryFailure(ctx context.Context, name string, attempt int, err error)
	OnMaxAttemptsReached(ctx context.Context, name string, attempt int, err error)
}

// NewRetryExecutor creates a retry executor
func NewRetryExecutor(policy RetryPolicy, opts ...ExecutorOption) *RetryExecutor {
	if policy == nil {
		policy = NewNoRetry()
	}
	executor := &RetryExecutor{
		policy: policy,
		clock:  types.NewRealClock(),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Policy returns the policy the executor applies
func (r *RetryExecutor) Policy() RetryPolicy {
	return r.policy
}

// Execute executes a function with retry logic
func Execute[T any](r *RetryExecutor, ctx context.Context, fn ExecuteFunc[T]) (T, error) {
	return ExecuteWithName(r, ctx, "default", fn)
}

// ExecuteWithName executes a function with retry logic. The name is passed to
// the event handler.
func ExecuteWithName[T any](r *RetryExecutor, ctx context.Context, name string, fn ExecuteFunc[T]) (T, error) {
	var zero T
	attempt := 0

	r.policy.Reset()

	for {
		attempt++

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		r.updateStats(func(stats *RetryStats) {
			stats.TotalAttempts++
		})

		executeStart := r.clock.Now()
		result, err := fn(ctx)
		executeDuration := r.clock.Since(executeStart)

		if err == nil {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalSuccesses++
				if attempt > 1 {
					stats.TotalRetries++
				}
				stats.updateAverageAttempts()
			})

			if r.eventHandler != nil && attempt > 1 {
				r.eventHandler.OnRetrySuccess(ctx, name, attempt, executeDuration)
			}

			return result, nil
		}

		if !r.policy.ShouldRetry(err, attempt) {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalFailures++
				if attempt > 1 {
					stats.TotalRetries++
				}
				stats.updateAverageAttempts()
			})

			if r.eventHandler != nil {
				if attempt >= r.policy.MaxAttempts() && attempt > 1 {
					r.eventHandler.OnMaxAttemptsReached(ctx, name, attempt, err)
				} else {
					r.eventHandler.OnRetryFailure(ctx, name, attempt, err)
				}
			}

			return zero, err
		}

		delay := r.policy.NextDelay(attempt)
		if hint := types.GetRetryDelay(err); hint > delay {
			delay = hint
		}

		r.updateStats(func(stats *RetryStats) {
			stats.TotalRetryDelay += delay
		})

		if r.eventHandler != nil {
			r.eventHandler.OnRetryAttempt(ctx, name, attempt+1, err, delay)
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-r.clock.After(delay):
			}
		}
	}
}

// GetStats gets retry statistics
func (r *RetryExecutor) GetStats() RetryStats {
	r.stats.mu.RLock()
	defer r.stats.mu.RUnlock()
	return RetryStats{
		TotalAttempts:   r.stats.TotalAttempts,
		TotalRetries:    r.stats.TotalRetries,
		TotalSuccesses:  r.stats.TotalSuccesses,
		TotalFailures:   r.stats.TotalFailures,
		AverageAttempts: r.stats.AverageAttempts,
		TotalRetryDelay: r.stats.TotalRetryDelay,
	}
}

func (r *RetryExecutor) updateStats(fn func(*RetryStats)) {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	fn(&r.stats)
}

func (s *RetryStats) updateAverageAttempts() {
	totalOperations := s.TotalSuccesses + s.TotalFailures
	if totalOperations > 0 {
		s.AverageAttempts = float64(s.TotalAttempts) / float64(totalOperations)
	}
}

// ExecutorOption is a configuration option for retry executor
type ExecutorOption func(*RetryExecutor)

// WithEventHandler sets the event handler
func WithEventHandler(handler EventHandler) ExecutorOption {
	return func(r *RetryExecutor) {
		r.eventHandler = handler
	}
}

// WithClock sets the clock used for delays
func WithClock(clock types.Clock) ExecutorOption {
	return func(r *RetryExecutor) {
		r.clock = types.ClockOrDefault(clock)
	}
}

// LogEventHandler reports retry events to a structured logger
type LogEventHandler struct {
	logger *slog.Logger
}

// NewLogEventHandler creates an event handler that logs to logger
func NewLogEventHandler(logger *slog.Logger) *LogEventHandler {
	return &LogEventHandler{logger: logging.OrNop(logger)}
}

// OnRetryAttempt logs that another attempt is scheduled
func (h *LogEventHandler) OnRetryAttempt(ctx context.Context, name string, attempt int, err error, delay time.Duration) {
	h.logger.DebugContext(ctx, "retrying",
		logging.Task(name),
		logging.Int("attempt", attempt),
		logging.Duration("delay", delay),
		logging.Error(err),
	)
}

// OnRetrySuccess logs a success that needed retries
func (h *LogEventHandler) OnRetrySuccess(ctx context.Context, name string, attempt int, duration time.Duration) {
	h.logger.InfoContext(ctx, "succeeded after retry",
		logging.Task(name),
		logging.Int("attempt", attempt),
		logging.Duration("duration", duration),
	)
}

// OnRetryFailure logs a failure that is not retried
func (h *LogEventHandler) OnRetryFailure(ctx context.Context, name string, attempt int, err error) {
	h.logger.DebugContext(ctx, "not retrying",
		logging.Task(name),
		logging.Int("attempt", attempt),
		logging.Error(err),
	)
}

// OnMaxAttemptsReached logs the final failure after all attempts
func (h *LogEventHandler) OnMaxAttemptsReached(ctx context.Context, name string, attempt int, err error) {
	h.logger.WarnContext(ctx, "retry attempts exhausted",
		logging.Task(name),
		logging.Int("attempts", attempt),
		logging.Event("retry_exhausted"),
		logging.Error(err),
	)
}
