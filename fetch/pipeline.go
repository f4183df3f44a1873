package fetch

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"github.com/jonwraymond/fixturefeed/cache"
	"github.com/jonwraymond/fixturefeed/fault"
	"github.com/jonwraymond/fixturefeed/observe"
	"github.com/jonwraymond/fixturefeed/resilience"
)

// DefaultFetchTimeout is the per-attempt deadline when no Retry is given.
const DefaultFetchTimeout = 10 * time.Second

// Options configures a Pipeline. Only Op is required.
type Options struct {
	// Op names the pipeline in errors, logs, spans and metrics,
	// e.g. "fixtures".
	Op string

	// Retry runs each fetch. Nil means the default policy with
	// DefaultFetchTimeout per attempt.
	Retry *resilience.Retry

	// Bulkhead bounds concurrent upstream fetches across keys. Optional.
	Bulkhead *resilience.Bulkhead

	// Middleware instruments every fetch attempt. Nil means no-op.
	Middleware *observe.Middleware

	// Tracker records failures that reach callers. Optional.
	Tracker *fault.Tracker
}

// Pipeline serves values for keys from a cache.Store, fetching misses from
// upstream with retry and at most one in-flight fetch per key.
//
// Contract:
//   - Concurrency: safe for concurrent use. Distinct keys fetch in parallel.
//   - Errors: every returned error is a *fault.Error.
//   - Ownership: the Store is borrowed; closing it is the caller's job.
type Pipeline[V any] struct {
	op       string
	store    *cache.Store[V]
	retry    *resilience.Retry
	bulkhead *resilience.Bulkhead
	mw       *observe.Middleware
	tracker  *fault.Tracker
	logger   observe.Logger
	registry *registry[cache.Entry[V]]

	hits        atomic.Int64
	misses      atomic.Int64
	staleServed atomic.Int64
	fetches     atomic.Int64
	failures    atomic.Int64
}

// New creates a Pipeline over store.
func New[V any](store *cache.Store[V], opts Options) (*Pipeline[V], error) {
	if store == nil {
		return nil, cache.ErrNilCache
	}
	if opts.Op == "" {
		return nil, observe.ErrMissingOp
	}
	if opts.Retry == nil {
		opts.Retry = resilience.NewRetry(resilience.RetryConfig{AttemptTimeout: DefaultFetchTimeout})
	}
	if opts.Middleware == nil {
		opts.Middleware = observe.NopMiddleware()
	}

	return &Pipeline[V]{
		op:       opts.Op,
		store:    store,
		retry:    opts.Retry,
		bulkhead: opts.Bulkhead,
		mw:       opts.Middleware,
		tracker:  opts.Tracker,
		logger:   opts.Middleware.Logger().With(observe.Field{Key: "pipeline", Value: opts.Op}),
		registry: newRegistry[cache.Entry[V]](),
	}, nil
}

// Op returns the pipeline name.
func (p *Pipeline[V]) Op() string { return p.op }

// Store returns the underlying cache.
func (p *Pipeline[V]) Store() *cache.Store[V] { return p.store }

// GetOrFetch returns the cached value for key or fetches it.
//
// A fresh cache hit never touches the network. On a miss the caller joins
// the in-flight fetch for key or starts one; the fetch runs under the retry
// policy and its result is stored with ttl (zero means the store's default
// TTL). When the fetch fails with anything but NotFound, Validation or
// Cancelled and allowStale is set, the last cached value is returned with
// Stale set instead of the error.
func (p *Pipeline[V]) GetOrFetch(ctx context.Context, key string, fetcher Fetcher[V], ttl time.Duration, allowStale bool) (Result[V], error) {
	key, err := cache.PrepareKey(key)
	if err != nil {
		return Result[V]{}, fault.Wrap(fault.KindValidation, err, "invalid key").WithOp(p.op)
	}
	if err := ctx.Err(); err != nil {
		return Result[V]{}, fault.Wrap(fault.KindCancelled, err, "fetch aborted").WithOp(p.op).WithKey(key)
	}

	if e, ok := p.store.Get(ctx, key); ok {
		p.hits.Inc()
		p.mw.Metrics().RecordLookup(ctx, observe.OutcomeHit)
		return Result[V]{Value: e.Value, Source: e.Source, StoredAt: e.StoredAt}, nil
	}
	p.misses.Inc()
	p.mw.Metrics().RecordLookup(ctx, observe.OutcomeMiss)

	e, shared, err := p.registry.do(ctx, key, func(fctx context.Context) (cache.Entry[V], error) {
		return p.load(fctx, key, fetcher, ttl)
	})
	if err == nil {
		return Result[V]{Value: e.Value, Source: e.Source, StoredAt: e.StoredAt, Shared: shared}, nil
	}

	ferr := p.classify(err, key)
	if ferr.Kind == fault.KindCancelled || ctx.Err() != nil {
		return Result[V]{}, ferr
	}

	if allowStale && staleEligible(ferr.Kind) {
		if prior, ok := p.store.GetStale(ctx, key); ok {
			p.staleServed.Inc()
			p.mw.Metrics().RecordLookup(ctx, observe.OutcomeStale)
			p.mw.Metrics().RecordStaleServed(ctx, p.op)
			p.logger.Info(ctx, "serving stale value",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "stored_at", Value: prior.StoredAt},
				observe.Field{Key: "error_kind", Value: ferr.Kind.String()},
			)
			return Result[V]{Value: prior.Value, Stale: true, Source: prior.Source, StoredAt: prior.StoredAt, Shared: shared}, nil
		}
	}
	return Result[V]{}, ferr
}

// load runs in the registry's detached context, once per settled call.
func (p *Pipeline[V]) load(ctx context.Context, key string, fetcher Fetcher[V], ttl time.Duration) (cache.Entry[V], error) {
	// A call that settled between our miss and registering may already
	// have stored the value.
	if e, ok := p.store.Lookup(ctx, key); ok {
		return e, nil
	}

	p.fetches.Inc()
	attempt := observe.Instrument(p.mw, observe.FetchMeta{Op: p.op, Key: key}, func(ctx context.Context) (V, error) {
		return fetcher.Fetch(ctx, key)
	})

	var (
		value V
		state resilience.RetryState
	)
	run := func(ctx context.Context) error {
		var err error
		value, state, err = resilience.Do(ctx, p.retry, attempt)
		return err
	}

	var err error
	if p.bulkhead != nil {
		err = p.bulkhead.Execute(ctx, run)
	} else {
		err = run(ctx)
	}

	if err != nil {
		ferr := p.classify(err, key)
		p.failures.Inc()
		if p.tracker != nil {
			p.tracker.Track(ferr)
		}
		p.logFailure(ctx, ferr,
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "attempts", Value: state.Attempt},
			observe.Field{Key: "error_kind", Value: ferr.Kind.String()},
			observe.Field{Key: "severity", Value: ferr.Kind.Severity().String()},
			observe.Field{Key: "error", Value: ferr.Error()},
		)
		return cache.Entry[V]{}, ferr
	}

	if err := p.store.Put(context.WithoutCancel(ctx), key, value, ttl); err != nil {
		p.logger.Error(ctx, "store fetched value failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err},
		)
	}
	if e, ok := p.store.Lookup(ctx, key); ok {
		e.Source = SourceUpstream
		return e, nil
	}
	// Nothing cached, e.g. under a no-cache policy.
	return cache.Entry[V]{Value: value, StoredAt: time.Now(), Source: SourceUpstream}, nil
}

// Invalidate drops key from the cache. The next GetOrFetch refetches it.
func (p *Pipeline[V]) Invalidate(ctx context.Context, key string) error {
	key, err := cache.PrepareKey(key)
	if err != nil {
		return fault.Wrap(fault.KindValidation, err, "invalid key").WithOp(p.op)
	}
	if p.store.Invalidate(ctx, key) {
		p.logger.Debug(ctx, "key invalidated", observe.Field{Key: "key", Value: key})
	}
	return nil
}

// Prime stores value for key without fetching, e.g. from a warmup source.
func (p *Pipeline[V]) Prime(ctx context.Context, key string, value V, ttl time.Duration) error {
	key, err := cache.PrepareKey(key)
	if err != nil {
		return fault.Wrap(fault.KindValidation, err, "invalid key").WithOp(p.op)
	}
	return p.store.Put(ctx, key, value, ttl)
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline[V]) Stats() Stats {
	hits := p.hits.Load()
	misses := p.misses.Load()
	return Stats{
		Op:          p.op,
		HitRate:     cache.HitRatio(hits, misses),
		Size:        p.store.Size(),
		Capacity:    p.store.Capacity(),
		InFlight:    p.registry.InFlight(),
		Hits:        hits,
		Misses:      misses,
		StaleServed: p.staleServed.Load(),
		Fetches:     p.fetches.Load(),
		Failures:    p.failures.Load(),
		Joined:      p.registry.joined.Load(),
		Cache:       p.store.Stats(),
	}
}

func (p *Pipeline[V]) classify(err error, key string) *fault.Error {
	ferr := fault.Classify(err)
	if ferr.Op == "" {
		ferr = ferr.WithOp(p.op)
	}
	if ferr.Key == "" {
		ferr = ferr.WithKey(key)
	}
	return ferr
}

// staleEligible reports whether a failure of kind may be answered with a
// stale value. NotFound and Validation are answers in their own right.
func staleEligible(kind fault.Kind) bool {
	switch kind {
	case fault.KindNotFound, fault.KindValidation, fault.KindCancelled:
		return false
	default:
		return true
	}
}

// logFailure picks the level from the failure's severity: caller-side
// kinds are informational, upstream trouble is a warning, the rest errors.
func (p *Pipeline[V]) logFailure(ctx context.Context, ferr *fault.Error, fields ...observe.Field) {
	switch ferr.Kind.Severity() {
	case fault.SeverityLow:
		p.logger.Info(ctx, "fetch failed", fields...)
	case fault.SeverityMedium:
		p.logger.Warn(ctx, "fetch failed", fields...)
	default:
		p.logger.Error(ctx, "fetch failed", fields...)
	}
}
