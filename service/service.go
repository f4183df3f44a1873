package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/fixturefeed/cache"
	"github.com/jonwraymond/fixturefeed/fault"
	"github.com/jonwraymond/fixturefeed/fetch"
	"github.com/jonwraymond/fixturefeed/match"
	"github.com/jonwraymond/fixturefeed/observe"
	"github.com/jonwraymond/fixturefeed/resilience"
)

// Pipeline names, used in errors, logs and metrics.
const (
	OpFixtures = "fixtures"
	OpTeamForm = "team_form"
)

// DefaultFormTTL is how long a team's form is cached. Results change at
// most once per match, so form outlives the fixture list.
const DefaultFormTTL = 30 * time.Minute

// Upstream is the provider the service fetches from. *upstream.Client
// satisfies it.
type Upstream interface {
	FetchFixtures(ctx context.Context, date time.Time) ([]match.Match, error)
	FetchTeamForm(ctx context.Context, team string) (match.TeamForm, error)
}

// Options configures a Service. Only Upstream is required.
type Options struct {
	Upstream Upstream

	// Shared is the optional shared cache tier, used by both pipelines.
	// The Service takes ownership and closes it.
	Shared cache.SharedTier

	Policy        cache.Policy
	Capacity      int
	SweepInterval time.Duration

	// FormTTL overrides Policy.DefaultTTL for team form.
	FormTTL time.Duration

	Retry      *resilience.Retry
	Bulkhead   *resilience.Bulkhead
	Middleware *observe.Middleware
	Tracker    *fault.Tracker

	// Location is the calendar zone "today" is computed in.
	Location *time.Location

	// WarmupDays is how many days of fixtures, starting today, Warmup
	// loads. Zero means today only.
	WarmupDays int
	Warmup     cache.WarmupConfig

	Now func() time.Time
}

// Service answers fixture, comparison and suggestion queries through two
// fetch pipelines: one for daily fixture lists, one for team form.
type Service struct {
	upstream Upstream
	fixtures *fetch.Pipeline[[]match.Match]
	forms    *fetch.Pipeline[match.TeamForm]
	shared   cache.SharedTier
	bulkhead *resilience.Bulkhead
	tracker  *fault.Tracker
	logger   observe.Logger
	warmer   *cache.Warmer

	formTTL    time.Duration
	loc        *time.Location
	warmupDays int
	now        func() time.Time
}

// New builds a Service and its cache stores.
func New(opts Options) (*Service, error) {
	if opts.Upstream == nil {
		return nil, errors.New("service: upstream is required")
	}
	if opts.Policy == (cache.Policy{}) {
		opts.Policy = cache.DefaultPolicy()
	}
	if opts.FormTTL <= 0 {
		opts.FormTTL = DefaultFormTTL
	}
	if opts.Middleware == nil {
		opts.Middleware = observe.NopMiddleware()
	}
	if opts.Tracker == nil {
		opts.Tracker = fault.NewTracker(fault.DefaultHistorySize)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.WarmupDays <= 0 {
		opts.WarmupDays = 1
	}
	if opts.Warmup == (cache.WarmupConfig{}) {
		opts.Warmup = cache.DefaultWarmupConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Middleware.Logger()

	var shared cache.SharedTier
	if opts.Shared != nil {
		shared = borrowedTier{opts.Shared}
	}

	fixtureStore := cache.NewStore(cache.StoreOptions[[]match.Match]{
		Policy:        opts.Policy,
		Capacity:      opts.Capacity,
		SweepInterval: opts.SweepInterval,
		Shared:        shared,
		Logger:        logger,
		Now:           opts.Now,
	})
	formStore := cache.NewStore(cache.StoreOptions[match.TeamForm]{
		Policy:        opts.Policy,
		Capacity:      opts.Capacity,
		SweepInterval: opts.SweepInterval,
		Shared:        shared,
		Logger:        logger,
		Now:           opts.Now,
	})

	pipelineOpts := fetch.Options{
		Retry:      opts.Retry,
		Bulkhead:   opts.Bulkhead,
		Middleware: opts.Middleware,
		Tracker:    opts.Tracker,
	}

	pipelineOpts.Op = OpFixtures
	fixtures, err := fetch.New(fixtureStore, pipelineOpts)
	if err != nil {
		return nil, fmt.Errorf("service: fixtures pipeline: %w", err)
	}
	pipelineOpts.Op = OpTeamForm
	forms, err := fetch.New(formStore, pipelineOpts)
	if err != nil {
		return nil, fmt.Errorf("service: team form pipeline: %w", err)
	}

	s := &Service{
		upstream:   opts.Upstream,
		fixtures:   fixtures,
		forms:      forms,
		bulkhead:   opts.Bulkhead,
		shared:     opts.Shared,
		tracker:    opts.Tracker,
		logger:     logger.With(observe.Field{Key: "component", Value: "service"}),
		warmer:     cache.NewWarmer(logger, opts.Warmup),
		formTTL:    opts.FormTTL,
		loc:        opts.Location,
		warmupDays: opts.WarmupDays,
		now:        opts.Now,
	}
	s.registerWarmups()
	return s, nil
}

// MatchList is one day of fixtures.
type MatchList struct {
	Date      string        `json:"date"`
	Matches   []match.Match `json:"matches"`
	Stale     bool          `json:"stale"`
	Source    cache.Source  `json:"source"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// TodayMatches returns today's fixtures in the service's time zone.
func (s *Service) TodayMatches(ctx context.Context, allowStale bool) (MatchList, error) {
	return s.MatchesOn(ctx, s.Today(), allowStale)
}

// MatchesOn returns the fixtures for the calendar day of date.
func (s *Service) MatchesOn(ctx context.Context, date time.Time, allowStale bool) (MatchList, error) {
	day := date.In(s.loc)
	key := match.MatchesKey(day)

	res, err := s.fixtures.GetOrFetch(ctx, key, fetch.FetcherFunc[[]match.Match](func(ctx context.Context, _ string) ([]match.Match, error) {
		return s.upstream.FetchFixtures(ctx, day)
	}), 0, allowStale)
	if err != nil {
		return MatchList{}, err
	}

	return MatchList{
		Date:      day.Format(match.DateLayout),
		Matches:   res.Value,
		Stale:     res.Stale,
		Source:    res.Source,
		FetchedAt: res.StoredAt,
	}, nil
}

// TeamForm returns a team's recent results.
func (s *Service) TeamForm(ctx context.Context, team string, allowStale bool) (match.TeamForm, bool, error) {
	key, err := match.TeamKey(team)
	if err != nil {
		return match.TeamForm{}, false, fault.Classify(err).WithOp(OpTeamForm)
	}
	team = strings.TrimSpace(team)

	res, err := s.forms.GetOrFetch(ctx, key, fetch.FetcherFunc[match.TeamForm](func(ctx context.Context, _ string) (match.TeamForm, error) {
		return s.upstream.FetchTeamForm(ctx, team)
	}), s.formTTL, allowStale)
	if err != nil {
		return match.TeamForm{}, false, err
	}
	return res.Value, res.Stale, nil
}

// ComparisonReport is a team comparison plus whether either side was stale.
type ComparisonReport struct {
	match.Comparison
	Stale bool `json:"stale"`
}

// CompareTeams fetches both teams' form concurrently and compares them.
// Stale form is accepted when a refresh fails.
func (s *Service) CompareTeams(ctx context.Context, a, b string) (ComparisonReport, error) {
	if _, err := match.CompareKey(a, b); err != nil {
		return ComparisonReport{}, fault.Classify(err).WithOp("compare")
	}

	var (
		formA, formB   match.TeamForm
		staleA, staleB bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		formA, staleA, err = s.TeamForm(gctx, a, true)
		return err
	})
	g.Go(func() error {
		var err error
		formB, staleB, err = s.TeamForm(gctx, b, true)
		return err
	})
	if err := g.Wait(); err != nil {
		return ComparisonReport{}, err
	}

	cmp, err := match.Compare(formA, formB)
	if err != nil {
		return ComparisonReport{}, fault.Classify(err).WithOp("compare")
	}
	return ComparisonReport{Comparison: cmp, Stale: staleA || staleB}, nil
}

// SuggestionReport is the suggestion for one day of fixtures.
type SuggestionReport struct {
	Date            string                 `json:"date"`
	Recommendations []match.Recommendation `json:"recommendations"`
	Odds            match.OddsSummary      `json:"odds"`
	Unpriced        int                    `json:"unpriced"`
	Stale           bool                   `json:"stale"`
}

// Suggest recommends bets for the fixtures of date. Fixtures without odds
// are skipped and counted; a day with no priced fixture is a validation
// failure.
func (s *Service) Suggest(ctx context.Context, date time.Time) (SuggestionReport, error) {
	list, err := s.MatchesOn(ctx, date, true)
	if err != nil {
		return SuggestionReport{}, err
	}

	priced := match.Priced(list.Matches)
	recs, err := match.Suggest(priced)
	if err != nil {
		return SuggestionReport{}, fault.Classify(err).WithOp("suggest").WithKey(match.MatchesKey(date.In(s.loc)))
	}

	return SuggestionReport{
		Date:            list.Date,
		Recommendations: recs,
		Odds:            match.AnalyzeOdds(priced),
		Unpriced:        len(list.Matches) - len(priced),
		Stale:           list.Stale,
	}, nil
}

// Invalidate drops a cached key. Fixture ("matches:") and team ("team:")
// keys are dropped directly; a "compare:a|b" key drops both teams.
func (s *Service) Invalidate(ctx context.Context, key string) error {
	key = cache.NormalizeKey(key)
	ns, rest, _ := strings.Cut(key, ":")

	switch ns {
	case match.NamespaceMatches:
		return s.fixtures.Invalidate(ctx, key)
	case match.NamespaceTeam:
		return s.forms.Invalidate(ctx, key)
	case match.NamespaceCompare:
		a, b, ok := strings.Cut(rest, "|")
		if !ok {
			return fault.New(fault.KindValidation, fmt.Sprintf("compare key %q must name two teams", key)).WithOp("invalidate")
		}
		for _, team := range []string{a, b} {
			tk, err := match.TeamKey(team)
			if err != nil {
				return fault.Classify(err).WithOp("invalidate")
			}
			if err := s.forms.Invalidate(ctx, tk); err != nil {
				return err
			}
		}
		return nil
	default:
		return fault.New(fault.KindValidation, fmt.Sprintf("key %q is not cached", key)).WithOp("invalidate")
	}
}

// Clear empties both caches and returns the number of memory entries
// dropped.
func (s *Service) Clear(ctx context.Context) int {
	return s.fixtures.Store().Clear(ctx) + s.forms.Store().Clear(ctx)
}

// Keys lists cached keys matching the glob pattern.
func (s *Service) Keys(ctx context.Context, pattern string) []string {
	keys := append(s.fixtures.Store().Keys(ctx, pattern), s.forms.Store().Keys(ctx, pattern)...)
	slices.Sort(keys)
	return slices.Compact(keys)
}

// Stats is a snapshot of both pipelines and the error history.
type Stats struct {
	Fixtures fetch.Stats        `json:"fixtures"`
	TeamForm fetch.Stats        `json:"team_form"`
	Errors   fault.TrackerStats `json:"errors"`

	// Fetches is set when upstream concurrency is bounded.
	Fetches *resilience.BulkheadMetrics `json:"fetches,omitempty"`
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	st := Stats{
		Fixtures: s.fixtures.Stats(),
		TeamForm: s.forms.Stats(),
		Errors:   s.tracker.Stats(),
	}
	if s.bulkhead != nil {
		m := s.bulkhead.Metrics()
		st.Fetches = &m
	}
	return st
}

// RecentErrors returns up to n of the most recent tracked failures.
func (s *Service) RecentErrors(n int) []fault.Record {
	return s.tracker.Recent(n)
}

// Ping checks the shared cache tier, if any.
func (s *Service) Ping(ctx context.Context) error {
	return s.fixtures.Store().Ping(ctx)
}

// HasSharedTier reports whether a shared cache tier is configured.
func (s *Service) HasSharedTier() bool {
	return s.shared != nil
}

// Today is midnight today in the service's time zone.
func (s *Service) Today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// Location is the calendar zone used for dates.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Warmup loads the configured days of fixtures into the cache.
func (s *Service) Warmup(ctx context.Context) *cache.WarmupResults {
	return s.warmer.Warmup(ctx)
}

func (s *Service) registerWarmups() {
	for i := range s.warmupDays {
		s.warmer.Register(cache.WarmupFunc{
			ProviderName: fmt.Sprintf("fixtures+%dd", i),
			Fn: func(ctx context.Context) error {
				_, err := s.MatchesOn(ctx, s.Today().AddDate(0, 0, i), false)
				return err
			},
		})
	}
}

// Close stops both stores and closes the shared tier.
func (s *Service) Close() error {
	errs := []error{
		s.fixtures.Store().Close(),
		s.forms.Store().Close(),
	}
	if s.shared != nil {
		errs = append(errs, s.shared.Close())
	}
	return errors.Join(errs...)
}

// borrowedTier shares one SharedTier between stores. Close is left to the
// Service.
type borrowedTier struct {
	cache.SharedTier
}

func (borrowedTier) Close() error { return nil }
