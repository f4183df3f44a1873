package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/fixturefeed/fault"
)

// Cache lookup outcomes recorded by RecordLookup.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeStale = "stale"
)

// Metrics records cache and fetch metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup counts one cache lookup with its outcome.
	RecordLookup(ctx context.Context, outcome string)

	// RecordFetch records one upstream fetch with duration and error kind.
	RecordFetch(ctx context.Context, op string, duration time.Duration, err error)

	// RecordStaleServed counts a stale value returned after a failed fetch.
	RecordStaleServed(ctx context.Context, op string)
}

type metricsImpl struct {
	lookups      metric.Int64Counter
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	staleServed  metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates the pipeline instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	lookups, err := meter.Int64Counter(
		"fixturefeed.cache.lookups",
		metric.WithDescription("Cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	totalCount, err := meter.Int64Counter(
		"fixturefeed.fetch.total",
		metric.WithDescription("Total number of upstream fetches"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"fixturefeed.fetch.errors",
		metric.WithDescription("Upstream fetch errors by kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	staleServed, err := meter.Int64Counter(
		"fixturefeed.fetch.stale_served",
		metric.WithDescription("Stale values served after a failed fetch"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"fixturefeed.fetch.duration_ms",
		metric.WithDescription("Upstream fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		lookups:      lookups,
		totalCount:   totalCount,
		errorCount:   errorCount,
		staleServed:  staleServed,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordLookup(ctx context.Context, outcome string) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metricsImpl) RecordFetch(ctx context.Context, op string, duration time.Duration, err error) {
	opAttr := attribute.String("op", op)

	m.totalCount.Add(ctx, 1, metric.WithAttributes(opAttr))
	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(
			opAttr,
			attribute.String("kind", fault.KindOf(err).String()),
		))
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(opAttr))
}

func (m *metricsImpl) RecordStaleServed(ctx context.Context, op string) {
	m.staleServed.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

type noopMetrics struct{}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordLookup(context.Context, string)                      {}
func (noopMetrics) RecordFetch(context.Context, string, time.Duration, error) {}
func (noopMetrics) RecordStaleServed(context.Context, string)                 {}
