package main

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/fixturefeed/cache"
	"github.com/jonwraymond/fixturefeed/config"
	"github.com/jonwraymond/fixturefeed/fault"
	"github.com/jonwraymond/fixturefeed/health"
	"github.com/jonwraymond/fixturefeed/observe"
	"github.com/jonwraymond/fixturefeed/resilience"
	"github.com/jonwraymond/fixturefeed/service"
	"github.com/jonwraymond/fixturefeed/upstream"
)

const shutdownTimeout = 5 * time.Second

// app is the wired process: telemetry, provider client, service and
// health checks.
type app struct {
	cfg      *config.Config
	observer observe.Observer
	logger   observe.Logger
	registry *prometheus.Registry
	client   *upstream.Client
	svc      *service.Service
	health   *health.Aggregator
}

func newApp(ctx context.Context, cfg *config.Config, logs io.Writer) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obsCfg := cfg.ObserveConfig(version, logs)
	obsCfg.Metrics.Registerer = a.registry
	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return nil, err
	}
	a.observer = obs
	a.logger = obs.Logger()

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}

	a.client, err = upstream.New(cfg.UpstreamConfig(a.logger))
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}

	retryCfg := cfg.RetryConfig()
	retryCfg.OnRetry = func(state resilience.RetryState, delay time.Duration) {
		a.logger.Debug(ctx, "retrying fetch",
			observe.Field{Key: "attempt", Value: state.Attempt},
			observe.Field{Key: "kind", Value: state.LastKind.String()},
			observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
		)
	}

	a.svc, err = service.New(service.Options{
		Upstream:      a.client,
		Shared:        a.sharedTier(ctx),
		Policy:        cfg.CachePolicy(),
		Capacity:      cfg.Cache.MaxEntries,
		SweepInterval: cfg.Cache.SweepInterval,
		FormTTL:       cfg.FormTTL(),
		Retry:         resilience.NewRetry(retryCfg),
		Bulkhead:      resilience.NewBulkhead(cfg.BulkheadConfig()),
		Middleware:    mw,
		Tracker:       fault.NewTracker(fault.DefaultHistorySize),
		Location:      cfg.Location(),
		WarmupDays:    cfg.Service.WarmupDays,
	})
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}

	a.health = a.buildHealth()
	return a, nil
}

// sharedTier dials Redis when enabled. An unreachable Redis is logged and
// the service runs on the memory tier alone.
func (a *app) sharedTier(ctx context.Context) cache.SharedTier {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	tier, err := cache.NewRedisTier(ctx, a.cfg.RedisOptions())
	if err != nil {
		a.logger.Warn(ctx, "shared cache unavailable, using memory only",
			observe.Field{Key: "address", Value: a.cfg.Redis.Address},
			observe.Field{Key: "error", Value: err},
		)
		return nil
	}
	return tier
}

func (a *app) buildHealth() *health.Aggregator {
	agg := health.NewAggregator(health.DefaultTimeout)
	agg.Register(health.BreakerChecker(a.client.Breaker()))
	agg.Register(health.PressureChecker("fixture_cache", 0, func() (int, int) {
		st := a.svc.Stats().Fixtures
		return st.Size, st.Capacity
	}))
	agg.Register(health.PressureChecker("form_cache", 0, func() (int, int) {
		st := a.svc.Stats().TeamForm
		return st.Size, st.Capacity
	}))
	agg.Register(health.MemoryChecker(memoryLimit()))
	if a.svc.HasSharedTier() {
		agg.Register(health.SharedTierChecker(a.svc))
	}
	return agg
}

// memoryLimit is the runtime soft limit (GOMEMLIMIT), or 0 when unset.
func memoryLimit() uint64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return 0
	}
	return uint64(limit)
}

func (a *app) metricsHandler() http.Handler {
	if a.cfg.Observability.MetricsExporter != "prometheus" {
		return nil
	}
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
}

func (a *app) warmup(ctx context.Context) {
	res := a.svc.Warmup(ctx)
	fields := []observe.Field{
		{Key: "providers", Value: len(res.Results)},
		{Key: "duration_ms", Value: res.TotalTime.Milliseconds()},
	}
	if res.HasErrors() {
		for _, r := range res.Results {
			if r.Err != nil {
				fields = append(fields, observe.Field{Key: r.Provider, Value: r.Err.Error()})
			}
		}
		a.logger.Warn(ctx, "cache warmup incomplete", fields...)
		return
	}
	a.logger.Info(ctx, "cache warmed", fields...)
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(a.svc.Close(), a.observer.Shutdown(ctx))
}
