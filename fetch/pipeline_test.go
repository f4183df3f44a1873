package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"

	"github.com/jonwraymond/fixturefeed/cache"
	"github.com/jonwraymond/fixturefeed/fault"
	"github.com/jonwraymond/fixturefeed/observe"
	"github.com/jonwraymond/fixturefeed/resilience"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fastRetry(attempts int) *resilience.Retry {
	return resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:   attempts,
		BaseDelay:     time.Millisecond,
		MaxDelay:      time.Millisecond,
		DisableJitter: true,
	})
}

func newTestPipeline(t *testing.T, clock *testClock) *Pipeline[string] {
	t.Helper()
	opts := cache.StoreOptions[string]{
		Policy: cache.Policy{DefaultTTL: time.Minute, MaxTTL: time.Hour, StaleTTL: time.Hour},
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	store := cache.NewStore(opts)
	t.Cleanup(func() { _ = store.Close() })

	p, err := New(store, Options{Op: "fixtures", Retry: fastRetry(3), Tracker: fault.NewTracker(10)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

// countingFetcher returns "value-for-<key>" and counts calls.
type countingFetcher struct {
	calls atomic.Int64
	err   error
}

func (f *countingFetcher) Fetch(ctx context.Context, key string) (string, error) {
	f.calls.Inc()
	if f.err != nil {
		return "", f.err
	}
	return "value-for-" + key, nil
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New[string](nil, Options{Op: "x"}); !errors.Is(err, cache.ErrNilCache) {
		t.Errorf("New(nil store) error = %v, want ErrNilCache", err)
	}

	store := cache.NewStore(cache.StoreOptions[string]{Policy: cache.DefaultPolicy()})
	defer store.Close()
	if _, err := New(store, Options{}); err == nil {
		t.Error("New() without Op should fail")
	}
}

func TestGetOrFetch_MissThenHit(t *testing.T) {
	p := newTestPipeline(t, nil)
	f := &countingFetcher{}
	ctx := context.Background()

	r, err := p.GetOrFetch(ctx, "matches:2024-05-01", f, 0, false)
	if err != nil {
		t.Fatalf("GetOrFetch() error = %v", err)
	}
	if r.Value != "value-for-matches:2024-05-01" || r.Source != SourceUpstream || r.Stale {
		t.Errorf("GetOrFetch() = %+v, want fresh upstream value", r)
	}

	r, err = p.GetOrFetch(ctx, "  MATCHES:2024-05-01 ", f, 0, false)
	if err != nil {
		t.Fatalf("second GetOrFetch() error = %v", err)
	}
	if r.Source != cache.SourceMemory {
		t.Errorf("Source = %q, want memory", r.Source)
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}

	s := p.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Fetches != 1 || s.HitRate != 0.5 {
		t.Errorf("Stats() = %+v, want 1 hit 1 miss 1 fetch", s)
	}
}

func TestGetOrFetch_SingleFlight(t *testing.T) {
	p := newTestPipeline(t, nil)
	const callers = 50

	release := make(chan struct{})
	var calls atomic.Int64
	fetcher := FetcherFunc[string](func(ctx context.Context, key string) (string, error) {
		calls.Inc()
		<-release
		return "fixtures", nil
	})

	var wg sync.WaitGroup
	results := make([]Result[string], callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.GetOrFetch(context.Background(), "matches:2024-05-01", fetcher, 0, false)
		}()
	}

	waitFor(t, "all callers to attach", func() bool {
		return p.registry.waiters("matches:2024-05-01") == callers
	})
	if got := p.Stats().InFlight; got != 1 {
		t.Errorf("InFlight = %d, want 1", got)
	}
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
	shared := 0
	for i := range callers {
		if errs[i] != nil || results[i].Value != "fixtures" {
			t.Errorf("caller %d = %+v, %v, want fixtures", i, results[i], errs[i])
		}
		if results[i].Shared {
			shared++
		}
	}
	if shared != callers-1 {
		t.Errorf("shared results = %d, want %d", shared, callers-1)
	}
	if got := p.Stats().InFlight; got != 0 {
		t.Errorf("InFlight after settle = %d, want 0", got)
	}
}

func TestGetOrFetch_DistinctKeysRunInParallel(t *testing.T) {
	p := newTestPipeline(t, nil)

	started := map[string]chan struct{}{
		"team:arsenal": make(chan struct{}),
		"team:chelsea": make(chan struct{}),
	}
	fetcher := FetcherFunc[string](func(ctx context.Context, key string) (string, error) {
		close(started[key])
		other := "team:chelsea"
		if key == other {
			other = "team:arsenal"
		}
		select {
		case <-started[other]:
			return key, nil
		case <-time.After(time.Second):
			return "", fault.New(fault.KindNotFound, "fetches were serialized")
		}
	})

	var wg sync.WaitGroup
	for key := range started {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.GetOrFetch(context.Background(), key, fetcher, 0, false); err != nil {
				t.Errorf("GetOrFetch(%s) error = %v", key, err)
			}
		}()
	}
	wg.Wait()
}

func TestGetOrFetch_RetriesThenSucceeds(t *testing.T) {
	p := newTestPipeline(t, nil)

	var calls atomic.Int64
	fetcher := FetcherFunc[string](func(ctx context.Context, key string) (string, error) {
		if calls.Inc() < 3 {
			return "", fault.New(fault.KindTransient, "upstream 503")
		}
		return "ok", nil
	})

	r, err := p.GetOrFetch(context.Background(), "team:arsenal", fetcher, 0, false)
	if err != nil || r.Value != "ok" {
		t.Fatalf("GetOrFetch() = %+v, %v, want ok", r, err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("fetch calls = %d, want 3", got)
	}
}

func TestGetOrFetch_ClassifiedFailure(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  fault.Kind
		wantCalls int64
	}{
		{"not found", fault.New(fault.KindNotFound, "no such team"), fault.KindNotFound, 1},
		{"validation", fault.New(fault.KindValidation, "bad date"), fault.KindValidation, 1},
		{"transient exhausted", fault.New(fault.KindTransient, "502"), fault.KindTransient, 3},
		{"plain error", errors.New("decode failed"), fault.KindUnknown, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, nil)
			f := &countingFetcher{err: tt.err}

			_, err := p.GetOrFetch(context.Background(), "team:arsenal", f, 0, false)

			var ferr *fault.Error
			if !errors.As(err, &ferr) {
				t.Fatalf("GetOrFetch() error = %T, want *fault.Error", err)
			}
			if ferr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", ferr.Kind, tt.wantKind)
			}
			if ferr.Key != "team:arsenal" || ferr.Op == "" {
				t.Errorf("error = %+v, want key and op set", ferr)
			}
			if got := f.calls.Load(); got != tt.wantCalls {
				t.Errorf("fetch calls = %d, want %d", got, tt.wantCalls)
			}
			if got := p.Stats().Failures; got != 1 {
				t.Errorf("Failures = %d, want 1", got)
			}
			if got := p.tracker.Stats().Total; got != 1 {
				t.Errorf("tracked errors = %d, want 1", got)
			}
		})
	}
}

func TestGetOrFetch_StaleFallback(t *testing.T) {
	clock := newTestClock()
	p := newTestPipeline(t, clock)
	ctx := context.Background()

	if _, err := p.GetOrFetch(ctx, "matches:2024-05-01", &countingFetcher{}, time.Minute, false); err != nil {
		t.Fatalf("seed GetOrFetch() error = %v", err)
	}
	clock.Advance(2 * time.Minute)

	failing := &countingFetcher{err: fault.New(fault.KindTimeout, "upstream slow")}

	r, err := p.GetOrFetch(ctx, "matches:2024-05-01", failing, time.Minute, true)
	if err != nil {
		t.Fatalf("GetOrFetch(allowStale) error = %v", err)
	}
	if !r.Stale || r.Value != "value-for-matches:2024-05-01" {
		t.Errorf("GetOrFetch(allowStale) = %+v, want stale seed value", r)
	}
	if got := failing.calls.Load(); got != 3 {
		t.Errorf("fetch calls = %d, want retries exhausted first", got)
	}

	_, err = p.GetOrFetch(ctx, "matches:2024-05-01", failing, time.Minute, false)
	if fault.KindOf(err) != fault.KindTimeout {
		t.Errorf("GetOrFetch(no stale) error = %v, want timeout", err)
	}

	if got := p.Stats().StaleServed; got != 1 {
		t.Errorf("StaleServed = %d, want 1", got)
	}
}

func TestGetOrFetch_StaleNotServedForNotFound(t *testing.T) {
	clock := newTestClock()
	p := newTestPipeline(t, clock)
	ctx := context.Background()

	_, _ = p.GetOrFetch(ctx, "team:arsenal", &countingFetcher{}, time.Minute, false)
	clock.Advance(2 * time.Minute)

	_, err := p.GetOrFetch(ctx, "team:arsenal", &countingFetcher{err: fault.New(fault.KindNotFound, "gone")}, 0, true)
	if fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("GetOrFetch() error = %v, want not_found", err)
	}
}

func TestGetOrFetch_StaleWithoutPriorEntry(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.GetOrFetch(context.Background(), "team:arsenal", &countingFetcher{err: fault.New(fault.KindTransient, "503")}, 0, true)
	if fault.KindOf(err) != fault.KindTransient {
		t.Errorf("GetOrFetch() error = %v, want transient", err)
	}
}

func TestGetOrFetch_TTLExpiry(t *testing.T) {
	clock := newTestClock()
	p := newTestPipeline(t, clock)
	f := &countingFetcher{}
	ctx := context.Background()

	_, _ = p.GetOrFetch(ctx, "team:arsenal", f, 30*time.Second, false)

	clock.Advance(29 * time.Second)
	if r, _ := p.GetOrFetch(ctx, "team:arsenal", f, 30*time.Second, false); r.Source != cache.SourceMemory {
		t.Errorf("Source before expiry = %q, want memory", r.Source)
	}

	clock.Advance(2 * time.Second)
	if r, _ := p.GetOrFetch(ctx, "team:arsenal", f, 30*time.Second, false); r.Source != SourceUpstream {
		t.Errorf("Source after expiry = %q, want upstream", r.Source)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestGetOrFetch_InvalidKey(t *testing.T) {
	p := newTestPipeline(t, nil)
	f := &countingFetcher{}

	_, err := p.GetOrFetch(context.Background(), "   ", f, 0, false)
	if fault.KindOf(err) != fault.KindValidation {
		t.Errorf("GetOrFetch(blank) error = %v, want validation", err)
	}
	if f.calls.Load() != 0 {
		t.Error("fetcher called for an invalid key")
	}
}

func TestGetOrFetch_CancelledCaller(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetOrFetch(ctx, "team:arsenal", &countingFetcher{}, 0, true)
	if fault.KindOf(err) != fault.KindCancelled {
		t.Errorf("GetOrFetch() error = %v, want cancelled", err)
	}
}

func TestGetOrFetch_OneWaiterCancelling(t *testing.T) {
	p := newTestPipeline(t, nil)
	key := "team:arsenal"

	release := make(chan struct{})
	fetchCancelled := make(chan struct{}, 1)
	fetcher := FetcherFunc[string](func(ctx context.Context, key string) (string, error) {
		select {
		case <-release:
			return "arsenal", nil
		case <-ctx.Done():
			fetchCancelled <- struct{}{}
			return "", ctx.Err()
		}
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := p.GetOrFetch(ctxA, key, fetcher, 0, false)
		errA <- err
	}()
	waitFor(t, "first caller", func() bool { return p.registry.waiters(key) == 1 })

	resB := make(chan Result[string], 1)
	go func() {
		r, _ := p.GetOrFetch(context.Background(), key, fetcher, 0, false)
		resB <- r
	}()
	waitFor(t, "second caller", func() bool { return p.registry.waiters(key) == 2 })

	cancelA()
	if err := <-errA; fault.KindOf(err) != fault.KindCancelled {
		t.Errorf("cancelled caller error = %v, want cancelled", err)
	}

	select {
	case <-fetchCancelled:
		t.Fatal("fetch cancelled while a waiter remained")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if r := <-resB; r.Value != "arsenal" {
		t.Errorf("remaining caller = %+v, want arsenal", r)
	}
}

func TestGetOrFetch_AllWaitersCancelling(t *testing.T) {
	p := newTestPipeline(t, nil)
	key := "team:arsenal"

	fetchCancelled := make(chan struct{})
	fetcher := FetcherFunc[string](func(ctx context.Context, key string) (string, error) {
		<-ctx.Done()
		close(fetchCancelled)
		return "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.GetOrFetch(ctx, key, fetcher, 0, false)
	}()
	waitFor(t, "caller", func() bool { return p.registry.waiters(key) == 1 })

	cancel()
	<-done

	select {
	case <-fetchCancelled:
	case <-time.After(time.Second):
		t.Fatal("fetch not cancelled after its last waiter left")
	}
	waitFor(t, "registry cleanup", func() bool { return p.registry.waiters(key) == -1 })
	if got := p.Stats().InFlight; got != 0 {
		t.Errorf("InFlight = %d, want 0", got)
	}
}

func TestGetOrFetch_WaitsOutAbandonedFetch(t *testing.T) {
	p := newTestPipeline(t, nil)
	key := "team:arsenal"

	release := make(chan struct{})
	var running, peak, calls atomic.Int64
	fetcher := FetcherFunc[string](func(ctx context.Context, key string) (string, error) {
		calls.Inc()
		n := running.Inc()
		defer running.Dec()
		if n > peak.Load() {
			peak.Store(n)
		}
		// Ignores cancellation until released.
		<-release
		return "late", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan struct{})
	go func() {
		defer close(first)
		_, _ = p.GetOrFetch(ctx, key, fetcher, 0, false)
	}()
	waitFor(t, "first caller", func() bool { return p.registry.waiters(key) == 1 })
	cancel()
	<-first

	second := make(chan Result[string], 1)
	go func() {
		r, _ := p.GetOrFetch(context.Background(), key, fetcher, 0, false)
		second <- r
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)

	r := <-second
	if r.Value != "late" {
		t.Errorf("second caller = %+v, want value from the abandoned fetch", r)
	}
	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrent fetches = %d, want 1", got)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestGetOrFetch_PanicSettlesWaiters(t *testing.T) {
	p := newTestPipeline(t, nil)
	key := "team:arsenal"

	boom := FetcherFunc[string](func(ctx context.Context, key string) (string, error) {
		panic("upstream decoder")
	})

	_, err := p.GetOrFetch(context.Background(), key, boom, 0, false)
	if fault.KindOf(err) != fault.KindUnknown {
		t.Errorf("GetOrFetch() error = %v, want unknown", err)
	}
	if got := p.registry.waiters(key); got != -1 {
		t.Errorf("registry still holds key after panic")
	}

	r, err := p.GetOrFetch(context.Background(), key, &countingFetcher{}, 0, false)
	if err != nil || r.Value != "value-for-team:arsenal" {
		t.Errorf("GetOrFetch() after panic = %+v, %v", r, err)
	}
}

func TestGetOrFetch_AttemptTimeout(t *testing.T) {
	store := cache.NewStore(cache.StoreOptions[string]{Policy: cache.DefaultPolicy()})
	defer store.Close()

	p, _ := New(store, Options{
		Op: "fixtures",
		Retry: resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:    2,
			BaseDelay:      time.Millisecond,
			AttemptTimeout: 10 * time.Millisecond,
		}),
	})

	var calls atomic.Int64
	slow := FetcherFunc[string](func(ctx context.Context, key string) (string, error) {
		calls.Inc()
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := p.GetOrFetch(context.Background(), "team:arsenal", slow, 0, false)
	if fault.KindOf(err) != fault.KindTimeout {
		t.Errorf("GetOrFetch() error = %v, want timeout", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestGetOrFetch_Bulkhead(t *testing.T) {
	store := cache.NewStore(cache.StoreOptions[string]{Policy: cache.DefaultPolicy()})
	defer store.Close()

	p, _ := New(store, Options{
		Op:       "team_form",
		Retry:    fastRetry(1),
		Bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 2, MaxWait: 5 * time.Second}),
	})

	var running, peak atomic.Int64
	var mu sync.Mutex
	fetcher := FetcherFunc[string](func(ctx context.Context, key string) (string, error) {
		n := running.Inc()
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		running.Dec()
		return key, nil
	})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.GetOrFetch(context.Background(), fmt.Sprintf("team:%d", i), fetcher, 0, false)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrent fetches = %d, want <= 2", got)
	}
}

func TestPipeline_InvalidateAndPrime(t *testing.T) {
	p := newTestPipeline(t, nil)
	f := &countingFetcher{}
	ctx := context.Background()

	if err := p.Prime(ctx, "team:arsenal", "primed", 0); err != nil {
		t.Fatalf("Prime() error = %v", err)
	}
	r, _ := p.GetOrFetch(ctx, "team:arsenal", f, 0, false)
	if r.Value != "primed" || f.calls.Load() != 0 {
		t.Errorf("GetOrFetch() after Prime = %+v, calls %d", r, f.calls.Load())
	}

	if err := p.Invalidate(ctx, "TEAM:Arsenal"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	r, _ = p.GetOrFetch(ctx, "team:arsenal", f, 0, false)
	if r.Source != SourceUpstream || f.calls.Load() != 1 {
		t.Errorf("GetOrFetch() after Invalidate = %+v, calls %d", r, f.calls.Load())
	}

	if err := p.Invalidate(ctx, "team:never-cached"); err != nil {
		t.Errorf("Invalidate(absent) error = %v, want nil", err)
	}
	if err := p.Invalidate(ctx, ""); fault.KindOf(err) != fault.KindValidation {
		t.Errorf("Invalidate(\"\") error = %v, want validation", err)
	}
}

func TestPipeline_FailureLogLevelFollowsSeverity(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
	}{
		{"not found", fault.New(fault.KindNotFound, "no such team"), `"level":"INFO"`},
		{"transient", fault.New(fault.KindTransient, "upstream 503"), `"level":"WARN"`},
		{"unknown", errors.New("boom"), `"level":"ERROR"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := observe.NewLogger(&buf, "debug", "json")
			store := cache.NewStore(cache.StoreOptions[string]{
				Policy: cache.Policy{DefaultTTL: time.Minute, MaxTTL: time.Hour, StaleTTL: time.Hour},
			})
			t.Cleanup(func() { _ = store.Close() })
			p, err := New(store, Options{
				Op:         "fixtures",
				Retry:      fastRetry(1),
				Middleware: observe.NewMiddleware(nil, nil, logger),
			})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			if _, err := p.GetOrFetch(context.Background(), "team:x", &countingFetcher{err: tt.err}, 0, false); err == nil {
				t.Fatal("GetOrFetch() error = nil, want failure")
			}

			var line string
			for _, l := range strings.Split(buf.String(), "\n") {
				if strings.Contains(l, `"msg":"fetch failed"`) {
					line = l
				}
			}
			if line == "" {
				t.Fatalf("no fetch failure logged in %q", buf.String())
			}
			if !strings.Contains(line, tt.wantLevel) {
				t.Errorf("fetch failure log = %s, want %s", line, tt.wantLevel)
			}
		})
	}
}
