// Package cache provides named in-memory TTL stores with lazy eviction on
// read and a periodic sweep.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjannette/trahn-signals/internal/clock"
	"github.com/kjannette/trahn-signals/internal/observability"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// Store is a TTL cache. Every entry shares the store's TTL.
type Store[V any] struct {
	name    string
	ttl     time.Duration
	clock   clock.Clock
	metrics *observability.Metrics

	mu      sync.Mutex
	entries map[string]entry[V]
	group   singleflight.Group
}

type Option func(*config)

type config struct {
	clock   clock.Clock
	metrics *observability.Metrics
}

func WithClock(c clock.Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(cfg *config) { cfg.metrics = m }
}

func New[V any](name string, ttl time.Duration, opts ...Option) *Store[V] {
	cfg := config{clock: clock.Real{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store[V]{
		name:    name,
		ttl:     ttl,
		clock:   cfg.clock,
		metrics: cfg.metrics,
		entries: make(map[string]entry[V]),
	}
}

func (s *Store[V]) Name() string       { return s.name }
func (s *Store[V]) TTL() time.Duration { return s.ttl }

// Get returns the value when it is younger than the TTL. Expired entries
// are deleted on the way out.
func (s *Store[V]) Get(key string) (V, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && now.Sub(e.insertedAt) >= s.ttl {
		delete(s.entries, key)
		ok = false
		s.metrics.RecordCacheEvictions(s.name, 1)
	}
	s.mu.Unlock()

	s.metrics.RecordCacheLookup(s.name, ok)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (s *Store[V]) Set(key string, value V) {
	now := s.clock.Now()
	s.mu.Lock()
	s.entries[key] = entry[V]{value: value, insertedAt: now}
	s.mu.Unlock()
}

func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len counts stored entries, expired or not.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup removes every expired entry and returns how many were removed.
func (s *Store[V]) Cleanup() int {
	now := s.clock.Now()

	s.mu.Lock()
	removed := 0
	for k, e := range s.entries {
		if now.Sub(e.insertedAt) >= s.ttl {
			delete(s.entries, k)
			removed++
		}
	}
	s.mu.Unlock()

	s.metrics.RecordCacheEvictions(s.name, removed)
	return removed
}

// GetOrLoad returns a cached value or calls load once per key, sharing the
// result with concurrent callers for the same key. Errors are not cached.
func (s *Store[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, bool, error) {
	if v, ok := s.Get(key); ok {
		return v, true, nil
	}

	res, err, _ := s.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		s.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}
