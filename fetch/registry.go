package fetch

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"go.uber.org/atomic"

	"github.com/jonwraymond/fixturefeed/fault"
)

const shardCount = 32

// call is one pending upstream fetch shared by every caller of its key.
type call[T any] struct {
	done chan struct{}
	val  T
	err  error

	// waiters and abandoned are guarded by the owning shard's mutex.
	waiters   int
	abandoned bool
	cancel    context.CancelFunc
}

type shard[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

// registry de-duplicates concurrent fetches per key. It is sharded by an
// FNV-1a hash of the key so unrelated keys do not contend on one lock.
//
// The fetch runs on a context detached from any caller. Each caller holds
// a reference while it waits; a caller that gives up drops its reference,
// and the fetch context is cancelled once no references remain. A call
// abandoned that way stays registered until it settles, so a new caller
// for the key waits it out instead of starting a second fetch.
type registry[T any] struct {
	shards   [shardCount]shard[T]
	inFlight atomic.Int64
	joined   atomic.Int64
}

func newRegistry[T any]() *registry[T] {
	r := &registry[T]{}
	for i := range r.shards {
		r.shards[i].calls = make(map[string]*call[T])
	}
	return r
}

func (r *registry[T]) shardFor(key string) *shard[T] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &r.shards[h.Sum32()%shardCount]
}

// do returns the result of fn for key, running fn at most once at a time
// per key. shared reports whether the caller attached to a fetch started
// by someone else.
func (r *registry[T]) do(ctx context.Context, key string, fn func(context.Context) (T, error)) (val T, shared bool, err error) {
	s := r.shardFor(key)

	for {
		s.mu.Lock()
		c, ok := s.calls[key]
		if ok && c.abandoned {
			s.mu.Unlock()
			select {
			case <-c.done:
				continue
			case <-ctx.Done():
				var zero T
				return zero, false, fault.Wrap(fault.KindCancelled, ctx.Err(), "fetch wait")
			}
		}

		if ok {
			c.waiters++
			s.mu.Unlock()
			r.joined.Inc()
			val, err = r.wait(ctx, s, c)
			return val, true, err
		}

		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call[T]{done: make(chan struct{}), waiters: 1, cancel: cancel}
		s.calls[key] = c
		s.mu.Unlock()

		r.inFlight.Inc()
		go r.run(fctx, s, key, c, fn)

		val, err = r.wait(ctx, s, c)
		return val, false, err
	}
}

func (r *registry[T]) run(ctx context.Context, s *shard[T], key string, c *call[T], fn func(context.Context) (T, error)) {
	defer func() {
		if p := recover(); p != nil {
			c.err = fault.New(fault.KindUnknown, fmt.Sprintf("fetch panicked: %v", p))
		}

		s.mu.Lock()
		if s.calls[key] == c {
			delete(s.calls, key)
		}
		s.mu.Unlock()

		r.inFlight.Dec()
		c.cancel()
		close(c.done)
	}()

	c.val, c.err = fn(ctx)
}

func (r *registry[T]) wait(ctx context.Context, s *shard[T], c *call[T]) (T, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
	}

	s.mu.Lock()
	c.waiters--
	if c.waiters == 0 {
		c.abandoned = true
		c.cancel()
	}
	s.mu.Unlock()

	var zero T
	return zero, fault.Wrap(fault.KindCancelled, ctx.Err(), "fetch wait")
}

// InFlight is the number of fetches currently running.
func (r *registry[T]) InFlight() int {
	return int(r.inFlight.Load())
}

// waiters reports the reference count for key, or -1 when nothing is in
// flight.
func (r *registry[T]) waiters(key string) int {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calls[key]; ok {
		return c.waiters
	}
	return -1
}
