package kv

import (
	"encoding/json"
	"sync"
)

// MemoryBucket is an in-memory bucket (not persisted). Values are kept as
// JSON so Get behaves exactly like the SQLite bucket.
type MemoryBucket struct {
	name    string
	entries map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryBucket creates a new in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string][]byte),
	}
}

// Name returns the bucket name.
func (b *MemoryBucket) Name() string {
	return b.name
}

// Put saves a value with the given key.
func (b *MemoryBucket) Put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.entries[key] = data
	b.mu.Unlock()
	return nil
}

// Get retrieves a value by key.
func (b *MemoryBucket) Get(key string, out any) error {
	b.mu.RLock()
	data, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, out)
}

// Delete removes a key from the bucket.
func (b *MemoryBucket) Delete(key string) error {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}
