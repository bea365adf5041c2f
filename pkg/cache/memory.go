package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is a mutex-guarded in-process cache. Insert-if-absent via
// GetOrSet is atomic, so concurrent workers sharing one Memory can
// never observe a torn write; at worst a value is computed twice.
type Memory[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
}

// NewMemory creates an empty in-process cache.
func NewMemory[K comparable, V any]() *Memory[K, V] {
	return &Memory[K, V]{entries: make(map[K]entry[V])}
}

func (m *Memory[K, V]) Get(_ context.Context, key K) (V, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. A zero ttl means no expiry.
func (m *Memory[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

func (m *Memory[K, V]) GetOrSet(_ context.Context, key K, value V, ttl time.Duration) (V, bool) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[key]; ok && !existing.expired(now) {
		return existing.value, true
	}

	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	m.entries[key] = e
	return value, false
}

func (m *Memory[K, V]) Delete(_ context.Context, key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Memory[K, V]) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory[K, V]) Clear(_ context.Context) {
	m.mu.Lock()
	m.entries = make(map[K]entry[V])
	m.mu.Unlock()
}
