package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/fixturefeed/observe"
)

// WarmupProvider pre-populates the cache with data it knows will be asked
// for. Warmup must be idempotent.
type WarmupProvider interface {
	Name() string
	Warmup(ctx context.Context) error
}

// WarmupFunc adapts a function to WarmupProvider.
type WarmupFunc struct {
	ProviderName string
	Fn           func(ctx context.Context) error
}

// Name implements WarmupProvider.
func (f WarmupFunc) Name() string { return f.ProviderName }

// Warmup implements WarmupProvider.
func (f WarmupFunc) Warmup(ctx context.Context) error { return f.Fn(ctx) }

// WarmupConfig configures a Warmer.
type WarmupConfig struct {
	// Timeout bounds the whole warmup run.
	Timeout time.Duration

	// ContinueOnError keeps a sequential run going after a failure.
	ContinueOnError bool

	// Parallel runs providers concurrently, at most MaxParallel at a time
	// (zero means unbounded).
	Parallel    bool
	MaxParallel int
}

// DefaultWarmupConfig returns the defaults used at service startup.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
		Parallel:        true,
	}
}

// WarmupResult is the outcome for one provider.
type WarmupResult struct {
	Provider string
	Duration time.Duration
	Err      error
}

// WarmupResults aggregates a warmup run.
type WarmupResults struct {
	Results   []WarmupResult
	TotalTime time.Duration
	Errors    int
}

// HasErrors returns true if any provider failed.
func (wr *WarmupResults) HasErrors() bool {
	return wr.Errors > 0
}

// Warmer runs registered providers once, typically at startup.
type Warmer struct {
	mu        sync.Mutex
	providers []WarmupProvider
	logger    observe.Logger
	config    WarmupConfig
}

// NewWarmer creates a Warmer.
func NewWarmer(logger observe.Logger, config WarmupConfig) *Warmer {
	if logger == nil {
		logger = observe.NopLogger()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultWarmupConfig().Timeout
	}
	return &Warmer{logger: logger, config: config}
}

// Register adds a provider.
func (w *Warmer) Register(p WarmupProvider) {
	w.mu.Lock()
	w.providers = append(w.providers, p)
	w.mu.Unlock()
}

// Warmup runs every provider and reports per-provider results. Provider
// failures never abort a parallel run.
func (w *Warmer) Warmup(ctx context.Context) *WarmupResults {
	start := time.Now()

	w.mu.Lock()
	providers := append([]WarmupProvider(nil), w.providers...)
	w.mu.Unlock()

	results := &WarmupResults{}
	if len(providers) == 0 {
		results.TotalTime = time.Since(start)
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if w.config.Parallel {
		results.Results = w.parallel(ctx, providers)
	} else {
		results.Results = w.sequential(ctx, providers)
	}

	for _, r := range results.Results {
		if r.Err != nil {
			results.Errors++
		}
	}
	results.TotalTime = time.Since(start)

	fields := []observe.Field{
		{Key: "providers", Value: len(providers)},
		{Key: "errors", Value: results.Errors},
		{Key: "duration_ms", Value: results.TotalTime.Milliseconds()},
	}
	if results.HasErrors() {
		w.logger.Warn(ctx, "cache warmup completed with errors", fields...)
	} else {
		w.logger.Info(ctx, "cache warmup completed", fields...)
	}
	return results
}

func (w *Warmer) parallel(ctx context.Context, providers []WarmupProvider) []WarmupResult {
	out := make([]WarmupResult, len(providers))

	var g errgroup.Group
	if w.config.MaxParallel > 0 {
		g.SetLimit(w.config.MaxParallel)
	}
	for i, p := range providers {
		g.Go(func() error {
			out[i] = w.run(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (w *Warmer) sequential(ctx context.Context, providers []WarmupProvider) []WarmupResult {
	out := make([]WarmupResult, 0, len(providers))
	for _, p := range providers {
		r := w.run(ctx, p)
		out = append(out, r)
		if r.Err != nil && !w.config.ContinueOnError {
			break
		}
	}
	return out
}

func (w *Warmer) run(ctx context.Context, p WarmupProvider) WarmupResult {
	start := time.Now()
	err := p.Warmup(ctx)
	r := WarmupResult{Provider: p.Name(), Duration: time.Since(start), Err: err}

	if err != nil {
		w.logger.Warn(ctx, "cache warmup failed",
			observe.Field{Key: "provider", Value: r.Provider},
			observe.Field{Key: "error", Value: err},
		)
	} else {
		w.logger.Debug(ctx, "cache warmed", observe.Field{Key: "provider", Value: r.Provider})
	}
	return r
}
