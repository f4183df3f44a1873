// Package resilience guards calls to the upstream football data provider.
//
// Retry is the core piece: it classifies every failure into a fault.Kind,
// retries only the retryable kinds with capped backoff and jitter, stretches
// the wait after a RateLimited response, and enforces a per-attempt
// deadline. Any error it returns is a *fault.Error.
//
// The remaining patterns are composed around it by Executor:
//
//   - CircuitBreaker fails fast while the upstream keeps timing out.
//   - RateLimiter is a token bucket on golang.org/x/time/rate.
//   - Bulkhead caps concurrent calls on golang.org/x/sync/semaphore.
//   - Timeout bounds a whole operation.
//
// Usage:
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:    3,
//	    BaseDelay:      200 * time.Millisecond,
//	    MaxDelay:       5 * time.Second,
//	    AttemptTimeout: 10 * time.Second,
//	})
//
//	matches, state, err := resilience.Do(ctx, retry, func(ctx context.Context) ([]match.Match, error) {
//	    return client.Matches(ctx, date)
//	})
package resilience
