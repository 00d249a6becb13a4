package docstore

import (
	"context"
	"sync"
)

type memoryDoc struct {
	data    []byte
	version int64
}

// Memory is an in-process document store with the same semantics as SQLite.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]memoryDoc

	watchers watchers
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memoryDoc)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, version, err := m.GetVersion(ctx, key)
	return data, version > 0, err
}

func (m *Memory) GetVersion(_ context.Context, key string) ([]byte, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[key]
	if !ok {
		return nil, 0, nil
	}
	return append([]byte(nil), d.data...), d.version, nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	d := m.docs[key]
	m.docs[key] = memoryDoc{data: append([]byte(nil), data...), version: d.version + 1}
	m.mu.Unlock()

	m.watchers.notify(key, data, true)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.docs, key)
	m.mu.Unlock()

	m.watchers.notify(key, nil, false)
	return nil
}

func (m *Memory) Watch(key string, fn func(data []byte, exists bool)) func() {
	return m.watchers.add(key, fn)
}
