package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockCacheService is an in-memory CacheService that records its traffic.
type MockCacheService struct {
	mu      sync.Mutex
	entries map[string]mockEntry
	now     func() time.Time

	// GetCalls and Invalidations let tests assert how a cache was used.
	GetCalls      int
	Invalidations []string
}

type mockEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{entries: make(map[string]mockEntry), now: time.Now}
}

func (m *MockCacheService) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls++
	e, ok := m.entries[key]
	if !ok || (!e.expiresAt.IsZero() && m.now().After(e.expiresAt)) {
		return nil, false
	}
	return e.value, true
}

// Set stores value; a non-positive ttl never expires.
func (m *MockCacheService) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := mockEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MockCacheService) Invalidate(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Invalidations = append(m.Invalidations, pattern)
	prefix, wildcard := strings.CutSuffix(pattern, "*")
	if !wildcard {
		delete(m.entries, pattern)
		return nil
	}
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

// Size counts stored entries, expired ones included.
func (m *MockCacheService) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ CacheService = (*MockCacheService)(nil)
