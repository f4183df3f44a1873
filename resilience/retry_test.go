package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/fixturefeed/fault"
)

func TestNewRetry_Defaults(t *testing.T) {
	r := NewRetry(RetryConfig{})
	cfg := r.Config()

	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.BaseDelay != 100*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 100ms", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", cfg.Multiplier)
	}
	if cfg.RateLimitFactor != DefaultRateLimitFactor {
		t.Errorf("RateLimitFactor = %f, want %f", cfg.RateLimitFactor, DefaultRateLimitFactor)
	}
	for _, k := range fault.RetryableKinds() {
		if !r.Retryable(k) {
			t.Errorf("Retryable(%v) = false, want true", k)
		}
	}
	if r.Retryable(fault.KindNotFound) {
		t.Error("Retryable(not_found) = true, want false")
	}
}

func TestNewRetry_MaxDelayBelowBase(t *testing.T) {
	r := NewRetry(RetryConfig{BaseDelay: time.Second, MaxDelay: time.Millisecond})
	if got := r.Config().MaxDelay; got != time.Second {
		t.Errorf("MaxDelay = %v, want raised to BaseDelay", got)
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_RetriesRetryableKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transient", fault.New(fault.KindTransient, "upstream 503")},
		{"timeout", fault.New(fault.KindTimeout, "read timeout")},
		{"rate limited", fault.New(fault.KindRateLimited, "429")},
		{"classified from message", errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(RetryConfig{
				MaxAttempts:   3,
				BaseDelay:     time.Millisecond,
				MaxDelay:      time.Millisecond,
				DisableJitter: true,
			})

			attempts := 0
			err := r.Execute(context.Background(), func(ctx context.Context) error {
				attempts++
				if attempts < 3 {
					return tt.err
				}
				return nil
			})

			if err != nil {
				t.Errorf("Execute() error = %v", err)
			}
			if attempts != 3 {
				t.Errorf("attempts = %d, want 3", attempts)
			}
		})
	}
}

func TestRetry_ExhaustedAttempts(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		DisableJitter: true,
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return fault.New(fault.KindTransient, "upstream 503")
	})

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if !errors.Is(err, fault.ErrTransient) {
		t.Errorf("Execute() error = %v, want transient", err)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want fault.Kind
	}{
		{"not found", fault.New(fault.KindNotFound, "no such team"), fault.KindNotFound},
		{"validation", fault.New(fault.KindValidation, "bad date"), fault.KindValidation},
		{"unknown", errors.New("boom"), fault.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond})

			attempts := 0
			err := r.Execute(context.Background(), func(ctx context.Context) error {
				attempts++
				return tt.err
			})

			if attempts != 1 {
				t.Errorf("attempts = %d, want 1", attempts)
			}
			if got := fault.KindOf(err); got != tt.want {
				t.Errorf("KindOf(err) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetry_CustomRetryableKinds(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		RetryableKinds: []fault.Kind{fault.KindTimeout},
	})

	attempts := 0
	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return fault.New(fault.KindTransient, "503")
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_CancelledBeforeStart(t *testing.T) {
	r := NewRetry(RetryConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := r.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
	if !errors.Is(err, fault.ErrCancelled) {
		t.Errorf("Execute() error = %v, want cancelled", err)
	}
}

func TestRetry_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRetry(RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		MaxDelay:    time.Hour,
		OnRetry: func(RetryState, time.Duration) {
			cancel()
		},
	})

	attempts := 0
	start := time.Now()
	err := r.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return fault.New(fault.KindTransient, "503")
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if got := fault.KindOf(err); got != fault.KindCancelled {
		t.Errorf("KindOf(err) = %v, want cancelled", got)
	}
	if time.Since(start) > time.Second {
		t.Error("cancel did not interrupt the backoff wait")
	}
}

func TestRetry_AttemptTimeout(t *testing.T) {
	r := NewRetry(RetryConfig{
		MaxAttempts:    2,
		BaseDelay:      time.Millisecond,
		AttemptTimeout: 20 * time.Millisecond,
	})

	attempts := 0
	_, state, err := Do(context.Background(), r, func(ctx context.Context) (int, error) {
		attempts++
		<-ctx.Done()
		return 0, ctx.Err()
	})

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if got := fault.KindOf(err); got != fault.KindTimeout {
		t.Errorf("KindOf(err) = %v, want timeout", got)
	}
	if state.LastKind != fault.KindTimeout {
		t.Errorf("state.LastKind = %v, want timeout", state.LastKind)
	}
}

func TestDo_ReturnsValueAndState(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, DisableJitter: true})

	calls := 0
	got, state, err := Do(context.Background(), r, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "partial", fault.New(fault.KindTimeout, "slow")
		}
		return "fixtures", nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "fixtures" {
		t.Errorf("Do() = %q, want fixtures", got)
	}
	if state.Attempt != 2 {
		t.Errorf("state.Attempt = %d, want 2", state.Attempt)
	}
	if state.LastErr != nil {
		t.Errorf("state.LastErr = %v, want nil", state.LastErr)
	}
	if state.Waited != time.Millisecond {
		t.Errorf("state.Waited = %v, want 1ms", state.Waited)
	}
}

func TestDo_ZeroValueOnFailure(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 1})

	got, state, err := Do(context.Background(), r, func(ctx context.Context) ([]int, error) {
		return []int{1}, fault.New(fault.KindNotFound, "gone")
	})

	if err == nil {
		t.Fatal("Do() error = nil, want not_found")
	}
	if got != nil {
		t.Errorf("Do() = %v, want nil", got)
	}
	if state.LastErr == nil || state.LastErr.Kind != fault.KindNotFound {
		t.Errorf("state.LastErr = %v, want not_found", state.LastErr)
	}
}

func TestRetry_OnRetry(t *testing.T) {
	var states []RetryState
	r := NewRetry(RetryConfig{
		MaxAttempts:   4,
		BaseDelay:     time.Millisecond,
		DisableJitter: true,
		OnRetry: func(s RetryState, d time.Duration) {
			states = append(states, s)
		},
	})

	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		return fault.New(fault.KindTransient, "503")
	})

	if len(states) != 3 {
		t.Fatalf("OnRetry calls = %d, want 3", len(states))
	}
	for i, s := range states {
		if s.Attempt != i+1 {
			t.Errorf("states[%d].Attempt = %d, want %d", i, s.Attempt, i+1)
		}
	}
}

func TestRetry_Backoff(t *testing.T) {
	tests := []struct {
		name     string
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{"exponential 1", BackoffExponential, 1, 100 * time.Millisecond},
		{"exponential 2", BackoffExponential, 2, 200 * time.Millisecond},
		{"exponential capped", BackoffExponential, 3, 250 * time.Millisecond},
		{"linear 2", BackoffLinear, 2, 200 * time.Millisecond},
		{"linear capped", BackoffLinear, 5, 250 * time.Millisecond},
		{"constant", BackoffConstant, 4, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(RetryConfig{
				BaseDelay: 100 * time.Millisecond,
				MaxDelay:  250 * time.Millisecond,
				Strategy:  tt.strategy,
			})
			if got := r.Backoff(tt.attempt); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetry_JitterBounds(t *testing.T) {
	r := NewRetry(RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	ferr := fault.New(fault.KindTransient, "503")

	base := r.Backoff(2)
	for range 200 {
		d := r.delay(2, ferr)
		if d < base/2 || d > base {
			t.Fatalf("delay = %v, want within [%v, %v]", d, base/2, base)
		}
	}
}

func TestRetry_RateLimitedDelay(t *testing.T) {
	r := NewRetry(RetryConfig{
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      time.Second,
		DisableJitter: true,
	})
	limited := fault.New(fault.KindRateLimited, "429")

	if got := r.delay(1, limited); got != 400*time.Millisecond {
		t.Errorf("delay(1, rate_limited) = %v, want 400ms", got)
	}
	if got := r.delay(3, limited); got != time.Second {
		t.Errorf("delay(3, rate_limited) = %v, want capped at 1s", got)
	}
	if got := r.delay(1, fault.New(fault.KindTransient, "503")); got != 100*time.Millisecond {
		t.Errorf("delay(1, transient) = %v, want 100ms", got)
	}
}

func TestRetry_RetryAfterFloor(t *testing.T) {
	r := NewRetry(RetryConfig{
		BaseDelay:     10 * time.Millisecond,
		MaxDelay:      time.Second,
		DisableJitter: true,
	})

	hinted := &fault.Error{Kind: fault.KindRateLimited, RetryAfter: 700 * time.Millisecond}
	if got := r.delay(1, hinted); got != 700*time.Millisecond {
		t.Errorf("delay() = %v, want Retry-After 700ms", got)
	}

	tooLong := &fault.Error{Kind: fault.KindRateLimited, RetryAfter: time.Minute}
	if got := r.delay(1, tooLong); got != time.Second {
		t.Errorf("delay() = %v, want capped at MaxDelay", got)
	}
}
