// Package objectstore abstracts blob retrieval for the vision branch of
// the request normalizer. The production implementation lives with the
// embedder; Memory is sufficient for tests and single-node deployments.
package objectstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no object exists under the given key.
var ErrNotFound = errors.New("object not found")

// ObjectStore fetches stored blobs by key.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Memory is an in-memory ObjectStore.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ ObjectStore = (*Memory)(nil)

// NewMemory creates an empty in-memory object store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores a blob under the given key, replacing any previous value.
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// Get implements ObjectStore.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
