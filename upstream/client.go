package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/jonwraymond/fixturefeed/fault"
	"github.com/jonwraymond/fixturefeed/match"
	"github.com/jonwraymond/fixturefeed/observe"
	"github.com/jonwraymond/fixturefeed/resilience"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Defaults for Config.
const (
	DefaultTimeout    = 20 * time.Second
	DefaultMaxMatches = 50
	DefaultFormLength = 10
	DefaultRate       = 5.0
	DefaultBurst      = 5

	maxBodyBytes  = 6 << 20
	apiKeyHeader  = "X-Api-Key"
	userAgent     = "fixturefeed"
	bodyPreviewSz = 200
)

// ErrMissingBaseURL is returned by New when Config.BaseURL is empty.
var ErrMissingBaseURL = errors.New("upstream: base url is required")

// Config configures the provider client.
type Config struct {
	// BaseURL is the provider API root, e.g. https://api.example.com/v1.
	BaseURL string

	// APIKey is sent in the X-Api-Key header when set.
	APIKey string

	// HTTPClient overrides the default client.
	HTTPClient *http.Client

	// Timeout bounds each request. The rate limiter waits at most as long
	// for a slot.
	Timeout time.Duration

	// MaxMatches caps the fixtures returned for one day.
	MaxMatches int

	// FormLength caps the results in a team's form.
	FormLength int

	// Location is the provider's calendar time zone for date queries.
	// Kickoffs are always normalized to UTC.
	Location *time.Location

	// RequestsPerSecond and Burst throttle outgoing requests.
	RequestsPerSecond float64
	Burst             int

	// Breaker configures the circuit breaker around the provider.
	Breaker resilience.CircuitBreakerConfig

	Logger observe.Logger
}

// Client fetches fixtures and team form from the provider. Every request
// waits on the rate limiter and passes through the circuit breaker; all
// failures are returned as *fault.Error.
type Client struct {
	http       *http.Client
	baseURL    *url.URL
	apiKey     string
	maxMatches int
	formLength int
	loc        *time.Location
	executor   *resilience.Executor
	logger     observe.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, ErrMissingBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream: invalid base url %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = DefaultMaxMatches
	}
	if cfg.FormLength <= 0 {
		cfg.FormLength = DefaultFormLength
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "upstream"
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	logger := cfg.Logger.With(observe.Field{Key: "component", Value: "upstream"})

	if cfg.Breaker.OnStateChange == nil {
		cfg.Breaker.OnStateChange = func(name string, from, to resilience.State) {
			logger.Warn(context.Background(), "circuit state changed",
				observe.Field{Key: "breaker", Value: name},
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()},
			)
		}
	}

	return &Client{
		http:       httpClient,
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		maxMatches: cfg.MaxMatches,
		formLength: cfg.FormLength,
		loc:        cfg.Location,
		executor: resilience.NewExecutor(
			resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
				Rate:        cfg.RequestsPerSecond,
				Burst:       cfg.Burst,
				WaitOnLimit: true,
				MaxWait:     cfg.Timeout,
			})),
			resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(cfg.Breaker)),
			resilience.WithTimeout(cfg.Timeout),
		),
		logger: logger,
	}, nil
}

// Breaker exposes the circuit breaker, for health reporting.
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.executor.CircuitBreaker()
}

// Location is the calendar zone used for date queries.
func (c *Client) Location() *time.Location {
	return c.loc
}

// FetchFixtures returns the fixtures for one calendar day, sorted by kickoff.
func (c *Client) FetchFixtures(ctx context.Context, date time.Time) ([]match.Match, error) {
	const op = "upstream.fixtures"

	query := url.Values{}
	query.Set("date", date.In(c.loc).Format(match.DateLayout))
	query.Set("tz", c.loc.String())

	var payload fixturesPayload
	if err := c.getJSON(ctx, op, "fixtures", query, &payload); err != nil {
		return nil, err
	}
	return normalizeFixtures(ctx, payload.Fixtures, c.maxMatches, c.logger.With(observe.Field{Key: "op", Value: op})), nil
}

// FetchTeamForm returns a team's most recent results, newest first.
func (c *Client) FetchTeamForm(ctx context.Context, team string) (match.TeamForm, error) {
	const op = "upstream.team_form"

	team = strings.TrimSpace(team)
	if team == "" {
		return match.TeamForm{}, &fault.Error{Kind: fault.KindValidation, Op: op, Detail: "team name is empty"}
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.formLength))

	var payload teamFormPayload
	if err := c.getJSON(ctx, op, "teams/"+url.PathEscape(team)+"/results", query, &payload); err != nil {
		return match.TeamForm{}, err
	}
	return normalizeForm(team, payload, c.formLength), nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, target any) error {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	return c.executor.Execute(ctx, func(ctx context.Context) error {
		body, err := c.do(ctx, op, u.String())
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, target); err != nil {
			return &fault.Error{Kind: fault.KindUnknown, Op: op, Detail: "decode payload", Err: err}
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, op, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &fault.Error{Kind: fault.KindValidation, Op: op, Detail: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.Classify(err).WithOp(op)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &fault.Error{Kind: fault.KindTransient, Op: op, Detail: "read body", Err: err}
	}

	c.logger.Debug(ctx, "provider responded",
		observe.Field{Key: "op", Value: op},
		observe.Field{Key: "status", Value: resp.StatusCode},
		observe.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, statusError(op, resp, body)
}

// statusError classifies a non-2xx response.
func statusError(op string, resp *http.Response, body []byte) *fault.Error {
	kind := fault.FromStatus(resp.StatusCode)
	if kind == fault.KindUnknown && resp.StatusCode >= 400 {
		kind = fault.KindValidation
	}

	ferr := &fault.Error{
		Kind:   kind,
		Op:     op,
		Detail: fmt.Sprintf("provider status %d: %s", resp.StatusCode, preview(body)),
	}
	if kind == fault.KindRateLimited {
		ferr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return ferr
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable or
// past values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func preview(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > bodyPreviewSz {
		return s[:bodyPreviewSz] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
