package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/jonwraymond/fixturefeed/fault"
)

// BackoffStrategy defines how delays increase between retries.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the delay by Multiplier each attempt.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear increases delay linearly.
	BackoffLinear
	// BackoffConstant uses the same delay for all retries.
	BackoffConstant
)

// DefaultRateLimitFactor scales the backoff after a RateLimited failure.
const DefaultRateLimitFactor = 4.0

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the exponential backoff factor, at least 1.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffExponential
	Strategy BackoffStrategy

	// RetryableKinds lists the error kinds that are retried.
	// Default: fault.RetryableKinds()
	RetryableKinds []fault.Kind

	// RateLimitFactor scales the computed delay after a RateLimited
	// failure, still capped at MaxDelay.
	// Default: 4
	RateLimitFactor float64

	// AttemptTimeout is the deadline for each individual attempt. An attempt
	// exceeding it fails as Timeout. Zero means no per-attempt deadline.
	AttemptTimeout time.Duration

	// DisableJitter uses the computed delay as is. Jitter otherwise draws
	// the wait uniformly from [0.5, 1.0] of the computed delay.
	DisableJitter bool

	// OnRetry is called before each wait.
	OnRetry func(state RetryState, delay time.Duration)
}

// RetryState tracks one Execute call. It is owned by that call.
type RetryState struct {
	// Attempt is the number of attempts made so far.
	Attempt int

	// Elapsed is the time since the first attempt started.
	Elapsed time.Duration

	// Waited is the cumulative backoff time.
	Waited time.Duration

	// LastKind is the kind of the most recent failure.
	LastKind fault.Kind

	// LastErr is the most recent classified failure, nil on success.
	LastErr *fault.Error
}

// Retry implements classified retry with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = config.BaseDelay
	}
	if config.Multiplier < 1 {
		config.Multiplier = 2.0
	}
	if config.RetryableKinds == nil {
		config.RetryableKinds = fault.RetryableKinds()
	}
	if config.RateLimitFactor < 1 {
		config.RateLimitFactor = DefaultRateLimitFactor
	}

	return &Retry{config: config}
}

// Execute runs op until it succeeds, fails with a non-retryable kind, or
// MaxAttempts is reached. The returned error, if any, is always a
// *fault.Error.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := r.run(ctx, op)
	if err == nil {
		return nil
	}
	return err
}

// Do is the value-returning form of Execute. It also reports the final
// retry state.
func Do[T any](ctx context.Context, r *Retry, op func(context.Context) (T, error)) (T, RetryState, error) {
	var result T
	state, err := r.run(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	if err != nil {
		var zero T
		return zero, state, err
	}
	return result, state, nil
}

func (r *Retry) run(ctx context.Context, op func(context.Context) error) (RetryState, *fault.Error) {
	var state RetryState
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			state.LastErr = fault.Wrap(fault.KindCancelled, err, "retry aborted")
			state.LastKind = fault.KindCancelled
			return state, state.LastErr
		}

		state.Attempt++
		ferr := r.attempt(ctx, op)
		state.Elapsed = time.Since(start)
		if ferr == nil {
			state.LastErr = nil
			return state, nil
		}
		state.LastErr = ferr
		state.LastKind = ferr.Kind

		if !r.Retryable(ferr.Kind) || state.Attempt >= r.config.MaxAttempts {
			return state, ferr
		}

		delay := r.delay(state.Attempt, ferr)
		if r.config.OnRetry != nil {
			r.config.OnRetry(state, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			state.Elapsed = time.Since(start)
			state.LastErr = fault.Wrap(fault.KindCancelled, ctx.Err(), "retry aborted")
			state.LastKind = fault.KindCancelled
			return state, state.LastErr
		case <-timer.C:
			state.Waited += delay
		}
	}
}

// attempt runs op once under the per-attempt deadline and classifies the
// failure.
func (r *Retry) attempt(ctx context.Context, op func(context.Context) error) *fault.Error {
	actx := ctx
	if r.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.config.AttemptTimeout)
		defer cancel()
	}

	err := op(actx)
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return fault.Wrap(fault.KindCancelled, err, "attempt cancelled")
	case errors.Is(actx.Err(), context.DeadlineExceeded):
		return fault.Wrap(fault.KindTimeout, err, "attempt timed out")
	default:
		return fault.Classify(err)
	}
}

// Retryable reports whether kind is retried under this config.
func (r *Retry) Retryable(kind fault.Kind) bool {
	return slices.Contains(r.config.RetryableKinds, kind)
}

// Backoff returns the computed delay before retry number attempt, without
// jitter or rate-limit scaling.
func (r *Retry) Backoff(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.Strategy {
	case BackoffConstant:
		delay = r.config.BaseDelay

	case BackoffLinear:
		delay = r.config.BaseDelay * time.Duration(attempt)

	default:
		multiplier := math.Pow(r.config.Multiplier, float64(attempt-1))
		delay = time.Duration(float64(r.config.BaseDelay) * multiplier)
	}

	if delay > r.config.MaxDelay || delay < 0 {
		delay = r.config.MaxDelay
	}
	return delay
}

func (r *Retry) delay(attempt int, ferr *fault.Error) time.Duration {
	delay := r.Backoff(attempt)

	if ferr.Kind == fault.KindRateLimited {
		delay = time.Duration(float64(delay) * r.config.RateLimitFactor)
		if delay > r.config.MaxDelay || delay < 0 {
			delay = r.config.MaxDelay
		}
	}

	if !r.config.DisableJitter && delay > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}

	// Honor an upstream Retry-After hint as a floor.
	if ferr.RetryAfter > delay {
		delay = min(ferr.RetryAfter, r.config.MaxDelay)
	}
	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
