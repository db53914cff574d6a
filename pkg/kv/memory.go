package kv

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore keeps values in process. A non-zero TTL makes it behave like
// browser session storage: entries vanish after the TTL.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(0)
}

func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{data: map[string]memoryEntry{}, ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.data, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: value}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.data[key] = entry
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len reports how many live keys are stored.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
