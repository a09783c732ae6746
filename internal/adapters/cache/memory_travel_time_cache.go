package cache

import (
	"context"
	"sync"
	"time"

	"meeting-point-service/internal/domain"
)

const DefaultMaxEntries = 50_000

type memoryEntry struct {
	result    domain.TravelTimeResult
	expiresAt time.Time
}

// MemoryTravelTimeCache is an in-process TTL cache for travel-time results.
// Expired entries are dropped lazily on read and swept when the cache is full.
type MemoryTravelTimeCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryTravelTimeCache(ttl time.Duration, maxEntries int) *MemoryTravelTimeCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryTravelTimeCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]memoryEntry),
	}
}

// SetClock replaces the time source (tests).
func (m *MemoryTravelTimeCache) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryTravelTimeCache) Get(_ context.Context, key string) (domain.TravelTimeResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return domain.TravelTimeResult{}, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return domain.TravelTimeResult{}, false, nil
	}
	return e.result, true, nil
}

func (m *MemoryTravelTimeCache) Put(_ context.Context, key string, result domain.TravelTimeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictLocked(now)
	}
	m.entries[key] = memoryEntry{result: result, expiresAt: now.Add(m.ttl)}
	return nil
}

func (m *MemoryTravelTimeCache) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

func (m *MemoryTravelTimeCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictLocked drops expired entries, then the soonest-expiring one if the
// cache is still full. Caller holds m.mu.
func (m *MemoryTravelTimeCache) evictLocked(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time
	for k, e := range m.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	delete(m.entries, oldestKey)
}
