package resilience

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/jonwraymond/fixturefeed/fault"
)

// RateLimiterConfig configures a RateLimiter. Zero values take the
// defaults noted on each field.
type RateLimiterConfig struct {
	// Rate is the sustained calls per second. Default 100.
	Rate float64

	// Burst is the bucket size. Default 10.
	Burst int

	// WaitOnLimit makes Execute queue for a token instead of rejecting.
	WaitOnLimit bool

	// MaxWait is the longest Wait will queue. Default 1s.
	MaxWait time.Duration
}

// RateLimiter is a token bucket in front of the provider, so a burst of
// cache misses cannot exceed the provider's request quota.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter

	throttled atomic.Int64
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}
	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Allow takes a token if one is available now.
func (rl *RateLimiter) Allow() bool {
	if rl.limiter.Allow() {
		return true
	}
	rl.throttled.Inc()
	return false
}

// Wait takes a token, queueing for at most MaxWait. When the queue is
// longer than that it fails at once with ErrRateLimitExceeded instead of
// sleeping first.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fault.Wrap(fault.KindCancelled, err, "rate limit wait")
	}

	res := rl.limiter.Reserve()
	delay := res.Delay()
	switch {
	case delay == 0:
		return nil
	case delay > rl.config.MaxWait:
		res.Cancel()
		rl.throttled.Inc()
		return ErrRateLimitExceeded
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		res.Cancel()
		return fault.Wrap(fault.KindCancelled, ctx.Err(), "rate limit wait")
	}
}

// Execute runs op once a token is available.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.WaitOnLimit {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
		return op(ctx)
	}
	if !rl.Allow() {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

// Tokens is the number of tokens available now.
func (rl *RateLimiter) Tokens() float64 {
	return rl.limiter.Tokens()
}

// Throttled counts calls rejected for lack of a token.
func (rl *RateLimiter) Throttled() int64 {
	return rl.throttled.Load()
}
