package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/fixturefeed/secret"
)

const testYAML = `
upstream:
  base_url: https://api.example.com/v1
  api_key: ${FF_CFG_TEST_KEY}
  timezone: Europe/London
cache:
  ttl_seconds: 120
  stale_ttl: 2h
fetch:
  max_retries: 5
  retry_base_delay_ms: 200
api:
  jwt_secret: secretref:file:jwt
  admin_keys:
    - key-one
    - secretref:env:FF_CFG_TEST_ADMIN
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixturefeed.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_File(t *testing.T) {
	secrets := t.TempDir()
	if err := os.WriteFile(filepath.Join(secrets, "jwt"), []byte(strings.Repeat("s", 40)+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FF_CFG_TEST_KEY", "provider-key")
	t.Setenv("FF_CFG_TEST_ADMIN", "key-two")

	resolver := secret.NewResolver(secret.NewEnvProvider(), secret.NewFileProvider(secrets))
	cfg, err := LoadWith(context.Background(), writeConfig(t, testYAML), resolver)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Upstream.APIKey != "provider-key" {
		t.Errorf("Upstream.APIKey = %q, want provider-key", cfg.Upstream.APIKey)
	}
	if cfg.API.JWTSecret != strings.Repeat("s", 40) {
		t.Errorf("API.JWTSecret not resolved from file: %q", cfg.API.JWTSecret)
	}
	if got := strings.Join(cfg.API.AdminKeys, ","); got != "key-one,key-two" {
		t.Errorf("API.AdminKeys = %q, want key-one,key-two", got)
	}
	if cfg.Cache.TTLSeconds != 120 || cfg.Cache.StaleTTL != 2*time.Hour {
		t.Errorf("Cache = %+v, want ttl 120 and stale 2h", cfg.Cache)
	}
	if cfg.Cache.MaxEntries != 1000 {
		t.Errorf("Cache.MaxEntries = %d, want default 1000", cfg.Cache.MaxEntries)
	}
	if got := cfg.Location().String(); got != "Europe/London" {
		t.Errorf("Location() = %q, want Europe/London", got)
	}

	rc := cfg.RetryConfig()
	if rc.MaxAttempts != 5 || rc.BaseDelay != 200*time.Millisecond || rc.MaxDelay != 30*time.Second {
		t.Errorf("RetryConfig() = %+v", rc)
	}
	if p := cfg.CachePolicy(); p.DefaultTTL != 2*time.Minute || p.MaxTTL != time.Hour {
		t.Errorf("CachePolicy() = %+v", p)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FF_CFG_TEST_KEY", "k")
	t.Setenv("FIXTUREFEED_CACHE_TTL_SECONDS", "60")
	t.Setenv("FIXTUREFEED_REDIS_ENABLED", "true")
	t.Setenv("FIXTUREFEED_REDIS_ADDRESS", "redis:6380")
	t.Setenv("FIXTUREFEED_OBSERVABILITY_LOG_LEVEL", "debug")

	body := strings.Replace(testYAML, "secretref:file:jwt", strings.Repeat("x", 32), 1)
	body = strings.Replace(body, "secretref:env:FF_CFG_TEST_ADMIN", "key-two", 1)
	cfg, err := Load(context.Background(), writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.TTLSeconds != 60 {
		t.Errorf("Cache.TTLSeconds = %d, want 60 from env", cfg.Cache.TTLSeconds)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Address != "redis:6380" {
		t.Errorf("Redis = %+v, want enabled at redis:6380", cfg.Redis)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
	if got := cfg.RedisOptions().Prefix; got != "fixturefeed:" {
		t.Errorf("RedisOptions().Prefix = %q, want fixturefeed:", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		want string
	}{
		{
			name: "missing explicit file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.yaml") },
			want: "config: read",
		},
		{
			name: "missing env var",
			path: func(t *testing.T) string {
				return writeConfig(t, "upstream:\n  base_url: https://x.test\n  api_key: ${FF_CFG_TEST_UNSET}\n")
			},
			want: "FF_CFG_TEST_UNSET",
		},
		{
			name: "missing base url",
			path: func(t *testing.T) string { return writeConfig(t, "cache:\n  ttl_seconds: 10\n") },
			want: "upstream.base_url is required",
		},
		{
			name: "short jwt secret",
			path: func(t *testing.T) string {
				return writeConfig(t, "upstream:\n  base_url: https://x.test\napi:\n  jwt_secret: short\n")
			},
			want: "api.jwt_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.path(t))
			if err == nil {
				t.Fatal("Load() error = nil, want failure")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func validConfig() Config {
	return Config{
		Service: ServiceConfig{Name: "fixturefeed", WarmupDays: 1},
		Cache:   CacheConfig{TTLSeconds: 300, MaxTTLSeconds: 3600, FormTTLSeconds: 1800, MaxEntries: 100},
		Fetch:   FetchConfig{TimeoutSeconds: 30, MaxRetries: 3, RetryBaseDelayMs: 100, RetryMaxDelayMs: 1000, MaxConcurrent: 4},
		Upstream: UpstreamConfig{
			BaseURL: "https://api.example.com", RequestsPerSecond: 5, Burst: 5, MaxMatches: 50,
			FormLength: 10, Timezone: "UTC", BreakerFailures: 5, BreakerResetSeconds: 30,
		},
		API:           APIConfig{Address: ":8080"},
		Observability: ObservabilityConfig{LogLevel: "info", LogFormat: "json", TracingExporter: "none", SamplePct: 1, MetricsExporter: "prometheus"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero ttl", func(c *Config) { c.Cache.TTLSeconds = 0 }, "cache.ttl_seconds"},
		{"max ttl below ttl", func(c *Config) { c.Cache.MaxTTLSeconds = 10 }, "cache.max_ttl_seconds"},
		{"no attempts", func(c *Config) { c.Fetch.MaxRetries = 0 }, "fetch.max_retries"},
		{"max delay below base", func(c *Config) { c.Fetch.RetryMaxDelayMs = 10 }, "fetch.retry_max_delay_ms"},
		{"relative base url", func(c *Config) { c.Upstream.BaseURL = "/v1" }, "not an absolute URL"},
		{"bad timezone", func(c *Config) { c.Upstream.Timezone = "Mars/Olympus" }, "upstream.timezone"},
		{"redis without address", func(c *Config) { c.Redis = RedisConfig{Enabled: true} }, "redis.address"},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "log_level"},
		{"bad exporter", func(c *Config) { c.Observability.MetricsExporter = "statsd" }, "metrics_exporter"},
		{"sample out of range", func(c *Config) { c.Observability.SamplePct = 1.5 }, "sample_pct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.MaxEntries = 0
	cfg.Upstream.Burst = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"cache.max_entries", "upstream.burst"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, missing %q", err, want)
		}
	}
}

func TestObserveConfig(t *testing.T) {
	cfg := validConfig()
	oc := cfg.ObserveConfig("1.0.0", os.Stderr)

	if oc.Tracing.Enabled {
		t.Error("Tracing.Enabled = true with exporter none")
	}
	if !oc.Metrics.Enabled || oc.Metrics.Exporter != "prometheus" {
		t.Errorf("Metrics = %+v, want prometheus enabled", oc.Metrics)
	}
	if err := oc.Validate(); err != nil {
		t.Errorf("ObserveConfig().Validate() error = %v", err)
	}
}
