// Package retry re-runs failed operations according to a RetryPolicy.
//
// Policies:
//   - NoRetry: run once
//   - FixedDelayRetry: constant delay between attempts
//   - ExponentialBackoffRetry: doubling delay capped at a maximum
//
// Only errors the policy's condition accepts are retried. The default
// condition accepts errors wrapped with types.NewRetryableError and rejects
// context cancellation. A RetryAfter hint on the error raises the delay.
//
// Example:
//
//	executor := retry.NewRetryExecutor(
//		retry.NewExponentialBackoffRetry(3, 100*time.Millisecond, 2*time.Second),
//		retry.WithEventHandler(retry.NewLogEventHandler(logger)),
//	)
//	n, err := retry.Execute(executor, ctx, func(ctx context.Context) (int64, error) {
//		return copyOnce(ctx, path)
//	})
package retry
