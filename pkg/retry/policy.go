package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jzx17/fifocopy/pkg/types"
)

// RetryPolicy defines the retry strategy interface
type RetryPolicy interface {
	// ShouldRetry determines whether to retry after the given attempt failed
	ShouldRetry(err error, attempt int) bool

	// NextDelay returns the delay before the next attempt
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the maximum number of attempts, the first one included
	MaxAttempts() int

	// Reset resets the policy state
	Reset()
}

// BaseRetryPolicy provides common retry functionality
type BaseRetryPolicy struct {
	maxAttempts  int
	jitter       bool
	jitterFactor float64
	mu           sync.RWMutex
}

// NewBaseRetryPolicy creates a base retry policy
func NewBaseRetryPolicy(maxAttempts int, opts ...PolicyOption) *BaseRetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	policy := &BaseRetryPolicy{
		maxAttempts:  maxAttempts,
		jitterFactor: 0.1,
	}

	for _, opt := range opts {
		opt(policy)
	}

	return policy
}

// ShouldRetry determines whether to retry
func (p *BaseRetryPolicy) ShouldRetry(err error, attempt int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if attempt >= p.maxAttempts {
		return false
	}

	return DefaultRetryCondition(err)
}

// MaxAttempts returns the maximum number of attempts
func (p *BaseRetryPolicy) MaxAttempts() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxAttempts
}

// Reset resets the policy state
func (p *BaseRetryPolicy) Reset() {
	// base policy is stateless
}

func (p *BaseRetryPolicy) applyJitter(delay time.Duration) time.Duration {
	if !p.jitter {
		return delay
	}

	jitterRange := float64(delay) * p.jitterFactor
	jitterAmount := (rand.Float64() - 0.5) * 2 * jitterRange

	result := delay + time.Duration(jitterAmount)
	if result < 0 {
		result = delay / 2
	}

	return result
}

// NoRetry runs every operation exactly once
type NoRetry struct {
	*BaseRetryPolicy
}

// NewNoRetry creates a policy that never retries
func NewNoRetry() *NoRetry {
	return &NoRetry{BaseRetryPolicy: NewBaseRetryPolicy(1)}
}

// NextDelay always returns zero
func (p *NoRetry) NextDelay(int) time.Duration {
	return 0
}

// FixedDelayRetry implements fixed delay retry strategy
type FixedDelayRetry struct {
	*BaseRetryPolicy
	delay time.Duration
}

// NewFixedDelayRetry creates a fixed delay retry policy
func NewFixedDelayRetry(maxAttempts int, delay time.Duration, opts ...PolicyOption) *FixedDelayRetry {
	return &FixedDelayRetry{
		BaseRetryPolicy: NewBaseRetryPolicy(maxAttempts, opts...),
		delay:           delay,
	}
}

// NextDelay returns the delay for the next retry
func (p *FixedDelayRetry) NextDelay(attempt int) time.Duration {
	return p.applyJitter(p.delay)
}

// ExponentialBackoffRetry doubles the delay after every failed attempt, up to maxDelay
type ExponentialBackoffRetry struct {
	*BaseRetryPolicy
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
}

// NewExponentialBackoffRetry creates an exponential backoff retry policy
func NewExponentialBackoffRetry(maxAttempts int, initialDelay, maxDelay time.Duration, opts ...PolicyOption) *ExponentialBackoffRetry {
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}
	return &ExponentialBackoffRetry{
		BaseRetryPolicy: NewBaseRetryPolicy(maxAttempts, opts...),
		initialDelay:    initialDelay,
		multiplier:      2.0,
		maxDelay:        maxDelay,
	}
}

// NextDelay returns the delay for the next retry
func (p *ExponentialBackoffRetry) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt-1)))
	if delay > p.maxDelay || delay < 0 {
		delay = p.maxDelay
	}
	return p.applyJitter(delay)
}

// FromSettings builds the policy described by configuration values. A
// maxAttempts of zero or one disables retries. A positive jitter spreads each
// delay by up to that fraction in either direction.
func FromSettings(maxAttempts int, initialDelay, maxDelay time.Duration, jitter float64) RetryPolicy {
	if maxAttempts <= 1 {
		return NewNoRetry()
	}
	opts := []PolicyOption{WithJitter(jitter > 0, jitter)}
	if maxDelay <= 0 || maxDelay == initialDelay {
		return NewFixedDelayRetry(maxAttempts, initialDelay, opts...)
	}
	return NewExponentialBackoffRetry(maxAttempts, initialDelay, maxDelay, opts...)
}

// PolicyOption is a configuration option for retry policies
type PolicyOption func(*BaseRetryPolicy)

// WithJitter enables jitter
func WithJitter(enabled bool, factor float64) PolicyOption {
	return func(p *BaseRetryPolicy) {
		p.jitter = enabled
		if factor > 0 && factor <= 1.0 {
			p.jitterFactor = factor
		}
	}
}

// DefaultRetryCondition retries errors explicitly marked retryable and never
// retries context cancellation.
func DefaultRetryCondition(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return types.IsRetryable(err)
}
