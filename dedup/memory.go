package dedup

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process memory. Suitable for tests and
// single-node development; production uses the sqlite store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	return entry, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, entry *Entry) error {
	m.mu.Lock()
	if _, exists := m.entries[key]; !exists {
		m.entries[key] = entry
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Len(ctx context.Context) (int64, error) {
	m.mu.RLock()
	n := len(m.entries)
	m.mu.RUnlock()
	return int64(n), nil
}
