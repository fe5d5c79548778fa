package cache

import (
	"context"
	"opshop/internal/clock"
	"sync"
	"time"
)

type memoEntry[V any] struct {
	value     V
	createdAt time.Time
}

// Memoizer caches the results of a loader per key for a fixed TTL. Loader
// errors are returned to the caller and never cached.
type Memoizer[K comparable, V any] struct {
	load  func(ctx context.Context, key K) (V, error)
	ttl   time.Duration
	clock clock.Clock

	mu      sync.Mutex
	entries map[K]memoEntry[V]
}

func NewMemoizer[K comparable, V any](ttl time.Duration, c clock.Clock, load func(ctx context.Context, key K) (V, error)) *Memoizer[K, V] {
	if c == nil {
		c = clock.Real()
	}
	return &Memoizer[K, V]{
		load:    load,
		ttl:     ttl,
		clock:   c,
		entries: make(map[K]memoEntry[V]),
	}
}

// Get returns the cached value for key, loading it if absent or stale.
func (m *Memoizer[K, V]) Get(ctx context.Context, key K) (V, error) {
	now := m.clock.Now()

	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if ok && now.Sub(e.createdAt) < m.ttl {
		return e.value, nil
	}

	v, err := m.load(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}

	m.mu.Lock()
	m.entries[key] = memoEntry[V]{value: v, createdAt: now}
	m.mu.Unlock()
	return v, nil
}

// Invalidate drops one key.
func (m *Memoizer[K, V]) Invalidate(key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Purge drops every key.
func (m *Memoizer[K, V]) Purge() {
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
}

// Sweep drops stale keys and returns how many were removed.
func (m *Memoizer[K, V]) Sweep() int {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if now.Sub(e.createdAt) >= m.ttl {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached keys.
func (m *Memoizer[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
