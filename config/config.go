package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonwraymond/fixturefeed/observe"
	"github.com/jonwraymond/fixturefeed/secret"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FIXTUREFEED"

// Config is the complete service configuration.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Fetch         FetchConfig         `mapstructure:"fetch"`
	Upstream      UpstreamConfig      `mapstructure:"upstream"`
	API           APIConfig           `mapstructure:"api"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Name          string `mapstructure:"name"`
	WarmupOnStart bool   `mapstructure:"warmup_on_start"`
	WarmupDays    int    `mapstructure:"warmup_days"`
}

// CacheConfig holds the in-process cache tier settings.
type CacheConfig struct {
	TTLSeconds     int           `mapstructure:"ttl_seconds"`
	MaxTTLSeconds  int           `mapstructure:"max_ttl_seconds"`
	FormTTLSeconds int           `mapstructure:"form_ttl_seconds"`
	MaxEntries     int           `mapstructure:"max_entries"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	StaleTTL       time.Duration `mapstructure:"stale_ttl"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
}

// RedisConfig holds the shared cache tier settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// FetchConfig holds the retry and concurrency settings of the pipelines.
type FetchConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms"`
	MaxConcurrent    int `mapstructure:"max_concurrent"`
}

// UpstreamConfig holds the fixtures provider settings.
type UpstreamConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	APIKey              string  `mapstructure:"api_key"`
	RequestsPerSecond   float64 `mapstructure:"requests_per_second"`
	Burst               int     `mapstructure:"burst"`
	MaxMatches          int     `mapstructure:"max_matches"`
	FormLength          int     `mapstructure:"form_length"`
	Timezone            string  `mapstructure:"timezone"`
	BreakerFailures     int     `mapstructure:"breaker_failures"`
	BreakerResetSeconds int     `mapstructure:"breaker_reset_seconds"`
}

// APIConfig holds the HTTP server and admin credentials.
type APIConfig struct {
	Address   string   `mapstructure:"address"`
	JWTSecret string   `mapstructure:"jwt_secret"`
	JWTIssuer string   `mapstructure:"jwt_issuer"`
	AdminKeys []string `mapstructure:"admin_keys"`
}

// ObservabilityConfig selects logging and telemetry exporters.
type ObservabilityConfig struct {
	LogLevel        string  `mapstructure:"log_level"`
	LogFormat       string  `mapstructure:"log_format"`
	TracingExporter string  `mapstructure:"tracing_exporter"`
	SamplePct       float64 `mapstructure:"sample_pct"`
	MetricsExporter string  `mapstructure:"metrics_exporter"`
}

// Load reads path (or fixturefeed.yaml from the working directory or
// /etc/fixturefeed when path is empty), applies environment overrides,
// resolves secrets, and validates the result. A missing default file is
// not an error; a missing explicit file is.
func Load(ctx context.Context, path string) (*Config, error) {
	return LoadWith(ctx, path, secret.NewResolver())
}

// LoadWith is Load with a caller-supplied secret resolver.
func LoadWith(ctx context.Context, path string, resolver *secret.Resolver) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fixturefeed")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fixturefeed")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.resolveSecrets(ctx, resolver); err != nil {
		return nil, fmt.Errorf("config: secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "fixturefeed")
	v.SetDefault("service.warmup_on_start", true)
	v.SetDefault("service.warmup_days", 2)

	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.max_ttl_seconds", 3600)
	v.SetDefault("cache.form_ttl_seconds", 1800)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.sweep_interval", time.Minute)
	v.SetDefault("cache.stale_ttl", time.Hour)
	v.SetDefault("cache.key_prefix", "fixturefeed:")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.retry_base_delay_ms", 1000)
	v.SetDefault("fetch.retry_max_delay_ms", 30000)
	v.SetDefault("fetch.max_concurrent", 10)

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.requests_per_second", 5.0)
	v.SetDefault("upstream.burst", 5)
	v.SetDefault("upstream.max_matches", 50)
	v.SetDefault("upstream.form_length", 10)
	v.SetDefault("upstream.timezone", "UTC")
	v.SetDefault("upstream.breaker_failures", 5)
	v.SetDefault("upstream.breaker_reset_seconds", 30)

	v.SetDefault("api.address", ":8080")
	v.SetDefault("api.jwt_secret", "")
	v.SetDefault("api.jwt_issuer", "fixturefeed")
	v.SetDefault("api.admin_keys", []string{})

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.tracing_exporter", "none")
	v.SetDefault("observability.sample_pct", 1.0)
	v.SetDefault("observability.metrics_exporter", "prometheus")
}

func (c *Config) resolveSecrets(ctx context.Context, r *secret.Resolver) error {
	if err := r.ResolveInto(ctx, map[string]*string{
		"redis.password":    &c.Redis.Password,
		"upstream.api_key":  &c.Upstream.APIKey,
		"upstream.base_url": &c.Upstream.BaseURL,
		"api.jwt_secret":    &c.API.JWTSecret,
	}); err != nil {
		return err
	}
	keys, err := r.ResolveAll(ctx, c.API.AdminKeys)
	if err != nil {
		return fmt.Errorf("api.admin_keys: %w", err)
	}
	c.API.AdminKeys = keys
	return nil
}

// minJWTSecret is the shortest accepted HS256 secret, in bytes.
const minJWTSecret = 32

// Validate checks ranges and required values. It reports every problem
// found, joined.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.Service.Name) != "", "service.name is required")
	check(c.Service.WarmupDays >= 1, "service.warmup_days must be at least 1")

	check(c.Cache.TTLSeconds > 0, "cache.ttl_seconds must be positive")
	check(c.Cache.MaxTTLSeconds >= c.Cache.TTLSeconds, "cache.max_ttl_seconds must be at least cache.ttl_seconds")
	check(c.Cache.FormTTLSeconds > 0, "cache.form_ttl_seconds must be positive")
	check(c.Cache.MaxEntries > 0, "cache.max_entries must be positive")
	check(c.Cache.SweepInterval >= 0, "cache.sweep_interval must not be negative")
	check(c.Cache.StaleTTL >= 0, "cache.stale_ttl must not be negative")

	if c.Redis.Enabled {
		check(strings.TrimSpace(c.Redis.Address) != "", "redis.address is required when redis is enabled")
		check(c.Redis.DB >= 0, "redis.db must not be negative")
	}

	check(c.Fetch.TimeoutSeconds > 0, "fetch.timeout_seconds must be positive")
	check(c.Fetch.MaxRetries >= 1, "fetch.max_retries must be at least 1")
	check(c.Fetch.RetryBaseDelayMs > 0, "fetch.retry_base_delay_ms must be positive")
	check(c.Fetch.RetryMaxDelayMs >= c.Fetch.RetryBaseDelayMs, "fetch.retry_max_delay_ms must be at least fetch.retry_base_delay_ms")
	check(c.Fetch.MaxConcurrent > 0, "fetch.max_concurrent must be positive")

	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	} else if u, err := url.Parse(c.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url %q is not an absolute URL", c.Upstream.BaseURL))
	}
	check(c.Upstream.RequestsPerSecond > 0, "upstream.requests_per_second must be positive")
	check(c.Upstream.Burst > 0, "upstream.burst must be positive")
	check(c.Upstream.MaxMatches > 0, "upstream.max_matches must be positive")
	check(c.Upstream.FormLength > 0, "upstream.form_length must be positive")
	check(c.Upstream.BreakerFailures > 0, "upstream.breaker_failures must be positive")
	check(c.Upstream.BreakerResetSeconds > 0, "upstream.breaker_reset_seconds must be positive")
	if _, err := time.LoadLocation(c.Upstream.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("upstream.timezone %q: %w", c.Upstream.Timezone, err))
	}

	check(strings.TrimSpace(c.API.Address) != "", "api.address is required")
	if c.API.JWTSecret != "" {
		check(len(c.API.JWTSecret) >= minJWTSecret, "api.jwt_secret must be at least %d bytes", minJWTSecret)
	}

	o := c.Observability
	check(slices.Contains(observe.ValidLogLevels, o.LogLevel), "observability.log_level %q is not one of %v", o.LogLevel, observe.ValidLogLevels)
	check(slices.Contains(observe.ValidLogFormats, o.LogFormat), "observability.log_format %q is not one of %v", o.LogFormat, observe.ValidLogFormats)
	check(slices.Contains(observe.ValidTracingExporters, o.TracingExporter), "observability.tracing_exporter %q is not supported", o.TracingExporter)
	check(slices.Contains(observe.ValidMetricsExporters, o.MetricsExporter), "observability.metrics_exporter %q is not supported", o.MetricsExporter)
	check(o.SamplePct >= observe.MinSamplePct && o.SamplePct <= observe.MaxSamplePct, "observability.sample_pct must be within [0, 1]")

	return errors.Join(errs...)
}
