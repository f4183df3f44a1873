package cache

import "go.uber.org/atomic"

// Stats is a point-in-time snapshot of a Store's counters.
type Stats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	StaleHits    int64   `json:"stale_hits"`
	SharedHits   int64   `json:"shared_hits"`
	SharedErrors int64   `json:"shared_errors"`
	Evictions    uint64  `json:"evictions"`
	Expirations  uint64  `json:"expirations"`
	Size         int     `json:"size"`
	Capacity     int     `json:"capacity"`
	HitRate      float64 `json:"hit_rate"`
	SharedTier   bool    `json:"shared_tier"`
}

// HitRatio is hits / (hits + misses), or 0 before any lookup.
func HitRatio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

type counters struct {
	hits         atomic.Int64
	misses       atomic.Int64
	staleHits    atomic.Int64
	sharedHits   atomic.Int64
	sharedErrors atomic.Int64
}

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.staleHits.Store(0)
	c.sharedHits.Store(0)
	c.sharedErrors.Store(0)
}
