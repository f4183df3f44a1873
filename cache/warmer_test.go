package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWarmer_Parallel(t *testing.T) {
	w := NewWarmer(nil, WarmupConfig{Timeout: time.Second, Parallel: true, MaxParallel: 2})

	var calls atomic.Int32
	for _, name := range []string{"fixtures", "form", "broken"} {
		w.Register(WarmupFunc{ProviderName: name, Fn: func(ctx context.Context) error {
			calls.Add(1)
			if name == "broken" {
				return errors.New("upstream down")
			}
			return nil
		}})
	}

	res := w.Warmup(context.Background())
	if calls.Load() != 3 {
		t.Errorf("providers called %d times, want 3", calls.Load())
	}
	if len(res.Results) != 3 || res.Errors != 1 || !res.HasErrors() {
		t.Errorf("Warmup() = %+v, want 3 results with 1 error", res)
	}
	if res.Results[2].Provider != "broken" || res.Results[2].Err == nil {
		t.Errorf("Results[2] = %+v, want broken with error", res.Results[2])
	}
}

func TestWarmer_SequentialStopsOnError(t *testing.T) {
	w := NewWarmer(nil, WarmupConfig{Timeout: time.Second})

	w.Register(WarmupFunc{ProviderName: "first", Fn: func(context.Context) error { return errors.New("fail") }})
	w.Register(WarmupFunc{ProviderName: "second", Fn: func(context.Context) error { return nil }})

	res := w.Warmup(context.Background())
	if len(res.Results) != 1 {
		t.Errorf("len(Results) = %d, want 1", len(res.Results))
	}
}

func TestWarmer_Timeout(t *testing.T) {
	w := NewWarmer(nil, WarmupConfig{Timeout: 10 * time.Millisecond, Parallel: true})
	w.Register(WarmupFunc{ProviderName: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	res := w.Warmup(context.Background())
	if !errors.Is(res.Results[0].Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want deadline exceeded", res.Results[0].Err)
	}
}

func TestWarmer_Empty(t *testing.T) {
	res := NewWarmer(nil, DefaultWarmupConfig()).Warmup(context.Background())
	if res.HasErrors() || len(res.Results) != 0 {
		t.Errorf("Warmup() = %+v, want empty", res)
	}
}
