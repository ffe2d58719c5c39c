package store

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. It does not survive restarts; it is
// intended for tests and for ephemeral sessions that should vanish with the
// process.
type MemoryStore struct {
	values map[string]string
	lock   sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (ms *MemoryStore) Get(_ context.Context, key string) (string, error) {
	ms.lock.RLock()
	defer ms.lock.RUnlock()

	v, ok := ms.values[key]
	if !ok {
		return "", ErrAbsent
	}
	return v, nil
}

func (ms *MemoryStore) Set(_ context.Context, key, value string) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.values[key] = value
	return nil
}

func (ms *MemoryStore) Clear(_ context.Context, keys ...string) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	for _, k := range keys {
		delete(ms.values, k)
	}
	return nil
}
