package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultCapacity is the memory tier capacity used when none is configured.
const DefaultCapacity = 1000

// MemoryOptions configures a MemoryTier.
type MemoryOptions struct {
	// Capacity bounds the number of entries. Zero means DefaultCapacity.
	Capacity int

	// StaleTTL keeps expired entries around for Peek. Zero drops them on
	// first expired read.
	StaleTTL time.Duration

	// SweepInterval enables a background goroutine that purges entries past
	// their retention. Zero disables it; expiry is then lazy only.
	SweepInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// MemoryTier is a bounded, in-process LRU cache with per-entry TTL.
//
// Get refreshes recency; eviction removes the least recently used entry,
// which for untouched entries is the oldest inserted. All methods are safe
// for concurrent use.
type MemoryTier[V any] struct {
	mu       sync.Mutex
	ll       *list.List
	items    map[string]*list.Element
	capacity int
	staleTTL time.Duration
	now      func() time.Time

	evictions   uint64
	expirations uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type memoryItem[V any] struct {
	key   string
	entry Entry[V]
}

// NewMemoryTier creates a memory tier. If opts.SweepInterval is set, Close
// must be called to stop the sweeper.
func NewMemoryTier[V any](opts MemoryOptions) *MemoryTier[V] {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &MemoryTier[V]{
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		capacity: opts.Capacity,
		staleTTL: opts.StaleTTL,
		now:      opts.Now,
	}

	if opts.SweepInterval > 0 {
		m.stop = make(chan struct{})
		m.done = make(chan struct{})
		go m.sweepLoop(opts.SweepInterval)
	}
	return m
}

// Get returns the fresh entry for key. Expired entries are a miss; those
// past the stale window are removed.
func (m *MemoryTier[V]) Get(key string) (Entry[V], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return Entry[V]{}, false
	}

	item := el.Value.(*memoryItem[V])
	now := m.now()
	if item.entry.Expired(now) {
		if m.pastRetention(item.entry, now) {
			m.removeElement(el)
			m.expirations++
		}
		return Entry[V]{}, false
	}

	m.ll.MoveToFront(el)
	return item.entry, true
}

// Peek returns the entry for key whether fresh or stale, as long as it is
// still within the stale window. It does not change recency.
func (m *MemoryTier[V]) Peek(key string) (Entry[V], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return Entry[V]{}, false
	}

	item := el.Value.(*memoryItem[V])
	if m.pastRetention(item.entry, m.now()) {
		m.removeElement(el)
		m.expirations++
		return Entry[V]{}, false
	}
	return item.entry, true
}

// Set stores value under key for ttl. A non-positive ttl stores nothing.
func (m *MemoryTier[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := m.now()
	m.SetEntry(key, Entry[V]{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
		Source:    SourceMemory,
	})
}

// SetEntry stores a prebuilt entry, keeping its timestamps. Used when
// promoting an entry read from the shared tier.
func (m *MemoryTier[V]) SetEntry(key string, entry Entry[V]) {
	entry.Source = SourceMemory

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		el.Value.(*memoryItem[V]).entry = entry
		m.ll.MoveToFront(el)
		return
	}

	m.items[key] = m.ll.PushFront(&memoryItem[V]{key: key, entry: entry})
	for m.ll.Len() > m.capacity {
		m.removeElement(m.ll.Back())
		m.evictions++
	}
}

// Delete removes key. Reports whether it was present.
func (m *MemoryTier[V]) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return false
	}
	m.removeElement(el)
	return true
}

// Len returns the number of entries held, stale ones included.
func (m *MemoryTier[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

// Keys returns held keys, most recently used first.
func (m *MemoryTier[V]) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, m.ll.Len())
	for el := m.ll.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*memoryItem[V]).key)
	}
	return keys
}

// Clear removes every entry and returns how many were dropped.
func (m *MemoryTier[V]) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.ll.Len()
	m.ll.Init()
	clear(m.items)
	return n
}

// Sweep removes entries past their retention and returns the count.
func (m *MemoryTier[V]) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for el := m.ll.Back(); el != nil; {
		prev := el.Prev()
		if m.pastRetention(el.Value.(*memoryItem[V]).entry, now) {
			m.removeElement(el)
			removed++
		}
		el = prev
	}
	m.expirations += uint64(removed)
	return removed
}

// Evictions returns the number of capacity evictions so far.
func (m *MemoryTier[V]) Evictions() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictions
}

// Expirations returns the number of entries dropped for age so far.
func (m *MemoryTier[V]) Expirations() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expirations
}

// Close stops the sweeper, if any. Safe to call more than once.
func (m *MemoryTier[V]) Close() {
	m.closeOnce.Do(func() {
		if m.stop != nil {
			close(m.stop)
			<-m.done
		}
	})
}

func (m *MemoryTier[V]) sweepLoop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// pastRetention reports whether entry is beyond expiry plus the stale window.
func (m *MemoryTier[V]) pastRetention(entry Entry[V], now time.Time) bool {
	return now.After(entry.ExpiresAt.Add(m.staleTTL))
}

func (m *MemoryTier[V]) removeElement(el *list.Element) {
	m.ll.Remove(el)
	delete(m.items, el.Value.(*memoryItem[V]).key)
}
