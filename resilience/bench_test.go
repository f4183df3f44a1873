package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/jonwraymond/fixturefeed/fault"
)

func BenchmarkRetry_Success(b *testing.B) {
	r := NewRetry(RetryConfig{})
	ctx := context.Background()
	op := func(ctx context.Context) error { return nil }

	b.ResetTimer()
	for b.Loop() {
		_ = r.Execute(ctx, op)
	}
}

func BenchmarkRetry_Delay(b *testing.B) {
	r := NewRetry(RetryConfig{BaseDelay: 100 * time.Millisecond})
	ferr := fault.New(fault.KindRateLimited, "429")

	for b.Loop() {
		_ = r.delay(3, ferr)
	}
}

func BenchmarkCircuitBreaker_Closed(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 100, ResetTimeout: time.Minute})
	ctx := context.Background()
	op := func(ctx context.Context) error { return nil }

	for b.Loop() {
		_ = cb.Execute(ctx, op)
	}
}

func BenchmarkCircuitBreaker_Parallel(b *testing.B) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 100, ResetTimeout: time.Minute})
	ctx := context.Background()
	op := func(ctx context.Context) error { return nil }

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = cb.Execute(ctx, op)
		}
	})
}

func BenchmarkRateLimiter_Allow(b *testing.B) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1e9, Burst: 1 << 20})

	for b.Loop() {
		_ = rl.Allow()
	}
}

func BenchmarkBulkhead_Execute(b *testing.B) {
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 64, MaxWait: time.Second})
	ctx := context.Background()
	op := func(ctx context.Context) error { return nil }

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = bh.Execute(ctx, op)
		}
	})
}
