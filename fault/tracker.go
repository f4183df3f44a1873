package fault

import (
	"sync"
	"time"
)

// DefaultHistorySize is the number of records a Tracker keeps by default.
const DefaultHistorySize = 1000

// Record is one tracked failure.
type Record struct {
	Kind     Kind
	Severity Severity
	Op       string
	Key      string
	Message  string
	At       time.Time
}

// TrackerStats summarizes the tracked history.
type TrackerStats struct {
	Total      int64            `json:"total"`
	ByKind     map[string]int64 `json:"by_kind"`
	BySeverity map[string]int64 `json:"by_severity"`
	Last24h    int              `json:"last_24h"`
	MostCommon string           `json:"most_common,omitempty"`
}

// Tracker keeps a bounded ring of classified failures plus lifetime counts
// per kind and per severity. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	ring   []Record
	next   int
	full   bool
	total  int64
	counts map[Kind]int64
	levels map[Severity]int64
	now    func() time.Time
}

// NewTracker creates a tracker holding at most size records.
// A non-positive size uses DefaultHistorySize.
func NewTracker(size int) *Tracker {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Tracker{
		ring:   make([]Record, size),
		counts: make(map[Kind]int64),
		levels: make(map[Severity]int64),
		now:    time.Now,
	}
}

// Track classifies err, records it, and returns the classification.
// A nil err is ignored and yields nil.
func (t *Tracker) Track(err error) *Error {
	fe := Classify(err)
	if fe == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sev := fe.Kind.Severity()
	t.ring[t.next] = Record{
		Kind:     fe.Kind,
		Severity: sev,
		Op:       fe.Op,
		Key:      fe.Key,
		Message:  fe.Error(),
		At:       t.now(),
	}
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.full = true
	}
	t.total++
	t.counts[fe.Kind]++
	t.levels[sev]++

	return fe
}

// Recent returns up to n records, newest first.
func (t *Tracker) Recent(n int) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := t.lenLocked()
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		idx := (t.next - i + len(t.ring)) % len(t.ring)
		out = append(out, t.ring[idx])
	}
	return out
}

// Stats summarizes lifetime counts and the last 24 hours of history.
func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := TrackerStats{
		Total:      t.total,
		ByKind:     make(map[string]int64, len(t.counts)),
		BySeverity: make(map[string]int64, len(t.levels)),
	}
	for sev, count := range t.levels {
		stats.BySeverity[sev.String()] = count
	}

	var (
		best      Kind
		bestCount int64
	)
	for kind, count := range t.counts {
		stats.ByKind[kind.String()] = count
		if count > bestCount || (count == bestCount && kind < best) {
			best, bestCount = kind, count
		}
	}
	if bestCount > 0 {
		stats.MostCommon = best.String()
	}

	cutoff := t.now().Add(-24 * time.Hour)
	size := t.lenLocked()
	for i := 0; i < size; i++ {
		if t.ring[i].At.After(cutoff) {
			stats.Last24h++
		}
	}

	return stats
}

// Reset drops all history and counts.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	clear(t.ring)
	t.next = 0
	t.full = false
	t.total = 0
	t.counts = make(map[Kind]int64)
	t.levels = make(map[Severity]int64)
}

func (t *Tracker) lenLocked() int {
	if t.full {
		return len(t.ring)
	}
	return t.next
}
