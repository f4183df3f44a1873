package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNilCache   = errors.New("cache: store is nil")
	ErrInvalidKey = errors.New("cache: key is blank or contains a line break")
	ErrKeyTooLong = errors.New("cache: key too long")
	ErrInvalidTTL = errors.New("cache: ttl must be positive")
	ErrClosed     = errors.New("cache: store is closed")
)

// Source identifies the tier an entry was served from.
type Source string

const (
	SourceMemory Source = "memory"
	SourceShared Source = "shared"
)

// Entry is a cached value with its freshness bounds.
//
// Invariant: ExpiresAt is after StoredAt. An entry is replaced, never
// mutated, when the key is stored again.
type Entry[V any] struct {
	Value     V
	StoredAt  time.Time
	ExpiresAt time.Time
	Source    Source
}

// Expired reports whether now is past the entry's expiry.
func (e Entry[V]) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Age is how long ago the entry was stored.
func (e Entry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// SharedTier is the optional second tier behind the in-process map,
// typically Redis. It moves opaque bytes; the Store owns encoding. A miss is
// (nil, false, nil). Any error means the tier is unreachable and the Store
// carries on with memory alone.
type SharedTier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete succeeds on a missing key.
	Delete(ctx context.Context, key string) error

	// Keys lists keys matching a glob pattern, without any tier prefix.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Clear removes every key this tier owns and nothing else.
	Clear(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}
