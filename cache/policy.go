package cache

import "time"

// Policy sets how long entries live. An entry is fresh for its TTL, then
// stale for StaleTTL more, then gone.
type Policy struct {
	// DefaultTTL applies when Put is given no TTL.
	DefaultTTL time.Duration

	// MaxTTL caps every TTL. Zero means uncapped.
	MaxTTL time.Duration

	// StaleTTL keeps expired entries around as a fallback for failed
	// refreshes. Zero drops them at expiry.
	StaleTTL time.Duration
}

// DefaultPolicy is five minutes fresh, capped at an hour, with an hour of
// stale fallback.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     time.Hour,
		StaleTTL:   time.Hour,
	}
}

// EffectiveTTL resolves a requested TTL: non-positive means DefaultTTL,
// and the result never exceeds MaxTTL. Zero means "do not cache".
func (p Policy) EffectiveTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		requested = p.DefaultTTL
	}
	if p.MaxTTL > 0 {
		requested = min(requested, p.MaxTTL)
	}
	return requested
}

// RetentionTTL is how long a tier must hold an entry written with ttl for
// its stale window to survive.
func (p Policy) RetentionTTL(ttl time.Duration) time.Duration {
	return ttl + p.StaleTTL
}
