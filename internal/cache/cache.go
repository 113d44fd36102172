package cache

import (
	"sync"
	"time"
)

// Expiry describes how long an entry stays visible.
type Expiry struct {
	TTL     time.Duration
	Sliding bool
}

// Absolute expires an entry ttl after it was written.
func Absolute(ttl time.Duration) Expiry {
	return Expiry{TTL: ttl}
}

// Sliding expires an entry ttl after it was last written or read.
func Sliding(ttl time.Duration) Expiry {
	return Expiry{TTL: ttl, Sliding: true}
}

type entry[V any] struct {
	value    V
	expiry   Expiry
	expireAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return !now.Before(e.expireAt)
}

// Option configures a [Store].
type Option func(*options)

type options struct {
	now     func() time.Time
	janitor time.Duration
}

// WithClock replaces [time.Now] as the store's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithJanitor starts a goroutine that sweeps expired entries every interval.
// A non-positive interval leaves sweeping to lookups and explicit [Store.Sweep] calls.
func WithJanitor(interval time.Duration) Option {
	return func(o *options) { o.janitor = interval }
}

// Store is a concurrency-safe expiring map.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates an empty [Store].
func New[V any](opts ...Option) *Store[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store[V]{
		entries: make(map[string]*entry[V]),
		now:     o.now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if o.janitor > 0 {
		go s.janitor(o.janitor)
	} else {
		close(s.done)
	}

	return s
}

// Put inserts or replaces the entry for key.
func (s *Store[V]) Put(key string, value V, exp Expiry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &entry[V]{
		value:    value,
		expiry:   exp,
		expireAt: s.now().Add(exp.TTL),
	}
}

// Get returns the live value for key. Sliding entries are refreshed as a side effect.
func (s *Store[V]) Get(key string) (V, bool) {
	return s.get(key, true)
}

// Peek returns the live value for key without refreshing a sliding expiry.
func (s *Store[V]) Peek(key string) (V, bool) {
	return s.get(key, false)
}

func (s *Store[V]) get(key string, touch bool) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	ent, ok := s.entries[key]
	if !ok {
		return zero, false
	}

	now := s.now()
	if ent.expired(now) {
		delete(s.entries, key)
		return zero, false
	}

	if touch && ent.expiry.Sliding {
		ent.expireAt = now.Add(ent.expiry.TTL)
	}
	return ent.value, true
}

// TTL returns the time left before key expires, or false when it is absent.
func (s *Store[V]) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	now := s.now()
	if ent.expired(now) {
		return 0, false
	}
	return ent.expireAt.Sub(now), true
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len counts live entries.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, ent := range s.entries {
		if !ent.expired(now) {
			n++
		}
	}
	return n
}

// Sweep drops every expired entry and reports how many were removed.
func (s *Store[V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, ent := range s.entries {
		if ent.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Close stops the janitor goroutine, if any. It is safe to call more than once.
func (s *Store[V]) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Store[V]) janitor(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}
