package config

import (
	"io"
	"time"

	"github.com/jonwraymond/fixturefeed/cache"
	"github.com/jonwraymond/fixturefeed/observe"
	"github.com/jonwraymond/fixturefeed/resilience"
	"github.com/jonwraymond/fixturefeed/upstream"
)

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Location returns the provider calendar zone. Validate has already
// checked the name, so a failure here falls back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Upstream.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CachePolicy returns the fixture cache TTL policy.
func (c *Config) CachePolicy() cache.Policy {
	return cache.Policy{
		DefaultTTL: seconds(c.Cache.TTLSeconds),
		MaxTTL:     seconds(c.Cache.MaxTTLSeconds),
		StaleTTL:   c.Cache.StaleTTL,
	}
}

// FormTTL is how long team form is cached.
func (c *Config) FormTTL() time.Duration {
	return seconds(c.Cache.FormTTLSeconds)
}

// RetryConfig maps the fetch section. max_retries counts every attempt,
// the first included.
func (c *Config) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    c.Fetch.MaxRetries,
		BaseDelay:      millis(c.Fetch.RetryBaseDelayMs),
		MaxDelay:       millis(c.Fetch.RetryMaxDelayMs),
		AttemptTimeout: seconds(c.Fetch.TimeoutSeconds),
	}
}

// BulkheadConfig bounds concurrent upstream fetches across all keys.
func (c *Config) BulkheadConfig() resilience.BulkheadConfig {
	return resilience.BulkheadConfig{
		MaxConcurrent: c.Fetch.MaxConcurrent,
		MaxWait:       seconds(c.Fetch.TimeoutSeconds),
	}
}

// RedisOptions returns the shared tier options.
func (c *Config) RedisOptions() cache.RedisOptions {
	return cache.RedisOptions{
		Address:  c.Redis.Address,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Prefix:   c.Cache.KeyPrefix,
	}
}

// UpstreamConfig returns the provider client config.
func (c *Config) UpstreamConfig(logger observe.Logger) upstream.Config {
	u := c.Upstream
	return upstream.Config{
		BaseURL:           u.BaseURL,
		APIKey:            u.APIKey,
		Timeout:           seconds(c.Fetch.TimeoutSeconds),
		MaxMatches:        u.MaxMatches,
		FormLength:        u.FormLength,
		Location:          c.Location(),
		RequestsPerSecond: u.RequestsPerSecond,
		Burst:             u.Burst,
		Breaker: resilience.CircuitBreakerConfig{
			Name:         "upstream",
			MaxFailures:  u.BreakerFailures,
			ResetTimeout: seconds(u.BreakerResetSeconds),
		},
		Logger: logger,
	}
}

// ObserveConfig returns the telemetry config. Logs go to w.
func (c *Config) ObserveConfig(version string, w io.Writer) observe.Config {
	o := c.Observability
	return observe.Config{
		ServiceName: c.Service.Name,
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   o.TracingExporter != "" && o.TracingExporter != "none",
			Exporter:  o.TracingExporter,
			SamplePct: o.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  o.MetricsExporter != "" && o.MetricsExporter != "none",
			Exporter: o.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   o.LogLevel,
			Format:  o.LogFormat,
			Writer:  w,
		},
	}
}
