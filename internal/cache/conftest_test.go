package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/martsearch/internal/db"
)

// mockKVStore implements the kvStore consumer interface for tests.
type mockKVStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	scanErr error
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKVStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mockKVStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockKVStore) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	var keys []string
	for k := range m.data {
		if db.MatchGlob(pattern, k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
