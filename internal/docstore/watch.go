// Package docstore stores whole JSON documents by key and notifies in-process
// watchers when a document changes.
package docstore

import (
	"sync"

	"github.com/google/uuid"
)

// WatchFunc receives the new document, or exists=false after a delete.
type WatchFunc func(data []byte, exists bool)

type watchers struct {
	mu    sync.Mutex
	byKey map[string]map[uuid.UUID]WatchFunc
}

func (w *watchers) add(key string, fn WatchFunc) func() {
	id := uuid.New()

	w.mu.Lock()
	if w.byKey == nil {
		w.byKey = make(map[string]map[uuid.UUID]WatchFunc)
	}
	if w.byKey[key] == nil {
		w.byKey[key] = make(map[uuid.UUID]WatchFunc)
	}
	w.byKey[key][id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.byKey[key], id)
			if len(w.byKey[key]) == 0 {
				delete(w.byKey, key)
			}
		})
	}
}

// notify calls every watcher of key without holding the lock, so a watcher
// may write back to the store.
func (w *watchers) notify(key string, data []byte, exists bool) {
	w.mu.Lock()
	fns := make([]WatchFunc, 0, len(w.byKey[key]))
	for _, fn := range w.byKey[key] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(append([]byte(nil), data...), exists)
	}
}

func (w *watchers) count(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byKey[key])
}
