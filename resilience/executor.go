package resilience

import (
	"context"
	"time"
)

// guard is one layer of an Executor.
type guard interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Executor composes the guards protecting one upstream dependency. From
// the outside in: rate limiter, bulkhead, circuit breaker, retry, timeout.
// The breaker wraps the whole retry loop, so a retried call records one
// outcome, and the timeout applies to each attempt.
type Executor struct {
	limiter  *RateLimiter
	bulkhead *Bulkhead
	breaker  *CircuitBreaker
	retry    *Retry
	timeout  *Timeout

	// layers holds the configured guards, innermost first.
	layers []guard
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor. Guards that are not configured are
// skipped.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}

	if e.timeout != nil {
		e.layers = append(e.layers, e.timeout)
	}
	if e.retry != nil {
		e.layers = append(e.layers, e.retry)
	}
	if e.breaker != nil {
		e.layers = append(e.layers, e.breaker)
	}
	if e.bulkhead != nil {
		e.layers = append(e.layers, e.bulkhead)
	}
	if e.limiter != nil {
		e.layers = append(e.layers, e.limiter)
	}
	return e
}

func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.breaker = cb }
}

func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.limiter = rl }
}

func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithTimeout bounds each attempt to d.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(d) }
}

// Execute runs op through every configured guard.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	call := op
	for _, g := range e.layers {
		call = through(g, call)
	}
	return call(ctx)
}

func through(g guard, next func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error { return g.Execute(ctx, next) }
}

// ExecuteValue is Execute for operations that produce a value. On error
// the zero value is returned.
func ExecuteValue[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker { return e.breaker }

// RateLimiter returns the configured rate limiter, or nil.
func (e *Executor) RateLimiter() *RateLimiter { return e.limiter }

// Bulkhead returns the configured bulkhead, or nil.
func (e *Executor) Bulkhead() *Bulkhead { return e.bulkhead }

// Timeout returns the per-attempt bound, or nil.
func (e *Executor) Timeout() *Timeout { return e.timeout }
