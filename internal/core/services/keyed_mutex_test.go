package services

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	const workers = 8
	const iterations = 50

	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				unlock := km.Lock("conf-1/scenes")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Fatalf("counter = %d, want %d", counter, workers*iterations)
	}
}

func TestKeyedMutexDistinctKeysDoNotBlock(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("conf-a/scenes")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("conf-b/scenes")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a distinct key blocked behind an unrelated holder")
	}
}

func TestKeyedMutexDropsIdleEntries(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("conf-1/rooms")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.entries) != 0 {
		t.Fatalf("expected no retained entries, got %d", len(km.entries))
	}
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker()

	unlock, err := locker.Lock(context.Background(), "conf-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	unlock()
}
