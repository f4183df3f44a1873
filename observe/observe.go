package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/fixturefeed/observe/exporters"
)

// Config selects what the Observer emits and where.
type Config struct {
	ServiceName string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

type TracingConfig struct {
	Enabled   bool
	Exporter  string  // see exporters.TracingNames
	SamplePct float64 // root spans only; children follow their parent
}

type MetricsConfig struct {
	Enabled  bool
	Exporter string // see exporters.MetricsNames

	// Registerer receives the prometheus collector. Nil means the global
	// default registry.
	Registerer promclient.Registerer
}

type LoggingConfig struct {
	Enabled bool
	Level   string
	Format  string

	// Writer receives log records. Nil means stderr.
	Writer io.Writer
}

// Validate reports the first invalid setting. Settings of a disabled
// subsystem are ignored.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrMissingServiceName
	}
	checks := []struct {
		active bool
		value  string
		valid  []string
		err    error
	}{
		{c.Tracing.Enabled, c.Tracing.Exporter, ValidTracingExporters, ErrInvalidTracingExporter},
		{c.Metrics.Enabled, c.Metrics.Exporter, ValidMetricsExporters, ErrInvalidMetricsExporter},
		{c.Logging.Enabled, c.Logging.Level, ValidLogLevels, ErrInvalidLogLevel},
		{c.Logging.Enabled, c.Logging.Format, ValidLogFormats, ErrInvalidLogFormat},
	}
	for _, chk := range checks {
		if chk.active && !slices.Contains(chk.valid, chk.value) {
			return fmt.Errorf("%w: %q", chk.err, chk.value)
		}
	}
	if c.Tracing.Enabled && (c.Tracing.SamplePct < MinSamplePct || c.Tracing.SamplePct > MaxSamplePct) {
		return fmt.Errorf("%w: %g", ErrInvalidSamplePct, c.Tracing.SamplePct)
	}
	return nil
}

// Observer hands out the process-wide telemetry primitives. It is safe for
// concurrent use and Shutdown may be called more than once.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// Shutdown flushes pending spans and metrics.
	Shutdown(ctx context.Context) error
}

type observer struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger Logger

	// shutdowns run in order on Shutdown; each provider appends its own.
	shutdowns []func(context.Context) error
}

// NewObserver validates cfg and builds the enabled providers. The SDK
// providers also become the otel globals.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	o := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
		meter:  noop.NewMeterProvider().Meter(cfg.ServiceName),
		logger: NopLogger(),
	}

	if cfg.Tracing.Enabled {
		if err := o.startTracing(ctx, cfg, res); err != nil {
			return nil, err
		}
	}
	if cfg.Metrics.Enabled {
		if err := o.startMetrics(ctx, cfg, res); err != nil {
			_ = o.Shutdown(ctx)
			return nil, err
		}
	}
	if cfg.Logging.Enabled {
		w := cfg.Logging.Writer
		if w == nil {
			w = os.Stderr
		}
		o.logger = NewLogger(w, cfg.Logging.Level, cfg.Logging.Format).
			With(Field{Key: "service", Value: cfg.ServiceName})
	}
	return o, nil
}

func sampler(pct float64) sdktrace.Sampler {
	switch {
	case pct >= MaxSamplePct:
		return sdktrace.AlwaysSample()
	case pct <= MinSamplePct:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(pct)
	}
}

func (o *observer) startTracing(ctx context.Context, cfg Config, res *resource.Resource) error {
	exp, err := exporters.NewTracingExporter(ctx, cfg.Tracing.Exporter)
	if err != nil {
		return fmt.Errorf("observe: tracing: %w", err)
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.Tracing.SamplePct))),
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	o.tracer = tp.Tracer(cfg.ServiceName)
	o.shutdowns = append(o.shutdowns, tp.Shutdown)
	return nil
}

func (o *observer) startMetrics(ctx context.Context, cfg Config, res *resource.Resource) error {
	var eopts []exporters.Option
	if cfg.Metrics.Registerer != nil {
		eopts = append(eopts, exporters.WithRegisterer(cfg.Metrics.Registerer))
	}
	reader, err := exporters.NewMetricsReader(ctx, cfg.Metrics.Exporter, eopts...)
	if err != nil {
		return fmt.Errorf("observe: metrics: %w", err)
	}
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	o.meter = mp.Meter(cfg.ServiceName)
	o.shutdowns = append(o.shutdowns, mp.Shutdown)
	return nil
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }
func (o *observer) Meter() metric.Meter  { return o.meter }
func (o *observer) Logger() Logger       { return o.logger }

func (o *observer) Shutdown(ctx context.Context) error {
	fns := o.shutdowns
	o.shutdowns = nil

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
