package cache

import (
	"context"
	"errors"
	"path"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/fixturefeed/observe"
)

// DefaultSharedTimeout bounds each shared-tier round trip.
const DefaultSharedTimeout = 2 * time.Second

// StoreOptions configures a Store.
type StoreOptions[V any] struct {
	Policy        Policy
	Capacity      int
	SweepInterval time.Duration

	// Shared is the optional shared tier. Nil runs memory-only.
	Shared SharedTier

	// Codec encodes entries for the shared tier. Nil means JSONCodec.
	Codec Codec[V]

	// SharedTimeout bounds each shared-tier call. Zero means
	// DefaultSharedTimeout.
	SharedTimeout time.Duration

	Logger observe.Logger
	Now    func() time.Time
}

// Store is a two-tier cache: a bounded in-process LRU in front of an
// optional shared tier.
//
// Writes go to both tiers. A read that misses memory but hits the shared
// tier promotes a fresh entry into memory. Shared-tier failures are logged and
// counted, never returned: the Store degrades to memory-only.
type Store[V any] struct {
	memory        *MemoryTier[V]
	shared        SharedTier
	codec         Codec[V]
	policy        Policy
	sharedTimeout time.Duration
	logger        observe.Logger
	now           func() time.Time

	reads singleflight.Group
	stats counters
}

// NewStore creates a Store. Close releases the sweeper and shared tier.
func NewStore[V any](opts StoreOptions[V]) *Store[V] {
	if opts.Codec == nil {
		opts.Codec = JSONCodec[V]{}
	}
	if opts.SharedTimeout <= 0 {
		opts.SharedTimeout = DefaultSharedTimeout
	}
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store[V]{
		memory: NewMemoryTier[V](MemoryOptions{
			Capacity:      opts.Capacity,
			StaleTTL:      opts.Policy.StaleTTL,
			SweepInterval: opts.SweepInterval,
			Now:           opts.Now,
		}),
		shared:        opts.Shared,
		codec:         opts.Codec,
		policy:        opts.Policy,
		sharedTimeout: opts.SharedTimeout,
		logger:        opts.Logger.With(observe.Field{Key: "component", Value: "cache"}),
		now:           opts.Now,
	}
}

// Policy returns the TTL policy in effect.
func (s *Store[V]) Policy() Policy { return s.policy }

// Get returns the fresh entry for key, checking memory then the shared tier.
func (s *Store[V]) Get(ctx context.Context, key string) (Entry[V], bool) {
	if ValidateKey(key) != nil {
		s.stats.misses.Inc()
		return Entry[V]{}, false
	}

	if e, ok := s.memory.Get(key); ok {
		s.stats.hits.Inc()
		return e, true
	}

	if e, ok := s.loadShared(ctx, key); ok && !e.Expired(s.now()) {
		s.stats.hits.Inc()
		s.stats.sharedHits.Inc()
		return e, true
	}

	s.stats.misses.Inc()
	return Entry[V]{}, false
}

// Lookup is Get without counting a hit or miss.
func (s *Store[V]) Lookup(ctx context.Context, key string) (Entry[V], bool) {
	if ValidateKey(key) != nil {
		return Entry[V]{}, false
	}
	if e, ok := s.memory.Get(key); ok {
		return e, true
	}
	if e, ok := s.loadShared(ctx, key); ok && !e.Expired(s.now()) {
		return e, true
	}
	return Entry[V]{}, false
}

// GetStale returns the entry for key even if expired, as long as it is
// within the stale retention window.
func (s *Store[V]) GetStale(ctx context.Context, key string) (Entry[V], bool) {
	if ValidateKey(key) != nil {
		return Entry[V]{}, false
	}

	e, ok := s.memory.Peek(key)
	if !ok {
		e, ok = s.loadShared(ctx, key)
	}
	if ok && e.Expired(s.now()) {
		s.stats.staleHits.Inc()
	}
	return e, ok
}

// Exists reports whether a fresh entry exists for key without touching the
// hit counters.
func (s *Store[V]) Exists(ctx context.Context, key string) bool {
	if ValidateKey(key) != nil {
		return false
	}
	if e, ok := s.memory.Peek(key); ok && !e.Expired(s.now()) {
		return true
	}
	e, ok := s.loadShared(ctx, key)
	return ok && !e.Expired(s.now())
}

// Put stores value in both tiers. ttl is resolved through the policy; a
// resulting non-positive ttl stores nothing.
func (s *Store[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	ttl = s.policy.EffectiveTTL(ttl)
	if ttl <= 0 {
		return nil
	}

	now := s.now()
	entry := Entry[V]{Value: value, StoredAt: now, ExpiresAt: now.Add(ttl)}
	s.memory.SetEntry(key, entry)

	if s.shared == nil {
		return nil
	}

	data, err := s.codec.Encode(entry)
	if err != nil {
		s.logger.Error(ctx, "encode for shared tier failed", observe.Field{Key: "key", Value: key}, observe.Field{Key: "error", Value: err})
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.sharedTimeout)
	defer cancel()
	if err := s.shared.Set(sctx, key, data, s.policy.RetentionTTL(ttl)); err != nil {
		s.sharedFailed(ctx, "set", key, err)
	}
	return nil
}

// Invalidate removes key from both tiers. Reports whether the memory tier
// held it.
func (s *Store[V]) Invalidate(ctx context.Context, key string) bool {
	removed := s.memory.Delete(key)

	if s.shared != nil {
		sctx, cancel := context.WithTimeout(ctx, s.sharedTimeout)
		defer cancel()
		if err := s.shared.Delete(sctx, key); err != nil {
			s.sharedFailed(ctx, "delete", key, err)
		}
	}
	return removed
}

// Keys returns the keys held by either tier that match the glob pattern,
// sorted. An empty pattern matches everything.
func (s *Store[V]) Keys(ctx context.Context, pattern string) []string {
	if pattern == "" {
		pattern = "*"
	}

	var keys []string
	for _, k := range s.memory.Keys() {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}

	if s.shared != nil {
		sctx, cancel := context.WithTimeout(ctx, s.sharedTimeout)
		defer cancel()
		shared, err := s.shared.Keys(sctx, pattern)
		if err != nil {
			s.sharedFailed(ctx, "keys", pattern, err)
		}
		keys = append(keys, shared...)
	}

	slices.Sort(keys)
	return slices.Compact(keys)
}

// Clear empties both tiers and resets the counters. Returns the number of
// memory entries dropped.
func (s *Store[V]) Clear(ctx context.Context) int {
	n := s.memory.Clear()
	s.stats.reset()

	if s.shared != nil {
		sctx, cancel := context.WithTimeout(ctx, s.sharedTimeout)
		defer cancel()
		if err := s.shared.Clear(sctx); err != nil {
			s.sharedFailed(ctx, "clear", "*", err)
		}
	}

	s.logger.Info(ctx, "cache cleared", observe.Field{Key: "entries", Value: n})
	return n
}

// Size is the number of entries in the memory tier.
func (s *Store[V]) Size() int { return s.memory.Len() }

// Capacity is the memory tier bound.
func (s *Store[V]) Capacity() int { return s.memory.capacity }

// Ping checks the shared tier. A memory-only store is always reachable.
func (s *Store[V]) Ping(ctx context.Context) error {
	if s.shared == nil {
		return nil
	}
	return s.shared.Ping(ctx)
}

// HasShared reports whether a shared tier is configured.
func (s *Store[V]) HasShared() bool { return s.shared != nil }

// Stats returns a snapshot of the counters.
func (s *Store[V]) Stats() Stats {
	hits := s.stats.hits.Load()
	misses := s.stats.misses.Load()
	return Stats{
		Hits:         hits,
		Misses:       misses,
		StaleHits:    s.stats.staleHits.Load(),
		SharedHits:   s.stats.sharedHits.Load(),
		SharedErrors: s.stats.sharedErrors.Load(),
		Evictions:    s.memory.Evictions(),
		Expirations:  s.memory.Expirations(),
		Size:         s.memory.Len(),
		Capacity:     s.memory.capacity,
		HitRate:      HitRatio(hits, misses),
		SharedTier:   s.shared != nil,
	}
}

// Close stops the sweeper and closes the shared tier.
func (s *Store[V]) Close() error {
	s.memory.Close()
	if s.shared == nil {
		return nil
	}
	if err := s.shared.Close(); err != nil {
		return errors.Join(ErrClosed, err)
	}
	return nil
}

type sharedResult[V any] struct {
	entry Entry[V]
	ok    bool
}

// loadShared reads key from the shared tier, collapsing concurrent reads of
// the same key. An entry within retention is returned; only a fresh one is
// promoted into memory, so stale reads never displace live entries.
func (s *Store[V]) loadShared(ctx context.Context, key string) (Entry[V], bool) {
	if s.shared == nil {
		return Entry[V]{}, false
	}

	v, _, _ := s.reads.Do(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(ctx, s.sharedTimeout)
		defer cancel()

		data, found, err := s.shared.Get(sctx, key)
		if err != nil {
			s.sharedFailed(ctx, "get", key, err)
			return sharedResult[V]{}, nil
		}
		if !found {
			return sharedResult[V]{}, nil
		}

		e, err := s.codec.Decode(data)
		if err != nil {
			s.sharedFailed(ctx, "decode", key, err)
			return sharedResult[V]{}, nil
		}
		if s.now().After(e.ExpiresAt.Add(s.policy.StaleTTL)) {
			return sharedResult[V]{}, nil
		}

		if !e.Expired(s.now()) {
			s.memory.SetEntry(key, e)
		}
		return sharedResult[V]{entry: e, ok: true}, nil
	})

	r := v.(sharedResult[V])
	return r.entry, r.ok
}

func (s *Store[V]) sharedFailed(ctx context.Context, op, key string, err error) {
	s.stats.sharedErrors.Inc()
	s.logger.Warn(ctx, "shared tier unavailable, using memory only",
		observe.Field{Key: "op", Value: op},
		observe.Field{Key: "key", Value: key},
		observe.Field{Key: "error", Value: err},
	)
}
