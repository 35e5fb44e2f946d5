package services

import (
	"context"
	"sync"

	"confsync/internal/core/ports"
)

// keyedMutex serializes critical sections per string key so unrelated keys
// proceed in parallel. Entries are reference counted and removed when the
// last holder releases, keeping the map bounded by concurrent use.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyedMutexEntry)}
}

// Lock blocks until the key's mutex is held and returns the release func.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, exists := k.entries[key]
	if !exists {
		entry = &keyedMutexEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// memoryLocker adapts keyedMutex to the ConferenceLocker port for
// single-instance deployments.
type memoryLocker struct {
	inner *keyedMutex
}

func NewMemoryLocker() ports.ConferenceLocker {
	return &memoryLocker{inner: newKeyedMutex()}
}

func (l *memoryLocker) Lock(_ context.Context, key string) (func(), error) {
	return l.inner.Lock(key), nil
}
