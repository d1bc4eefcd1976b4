package application

import (
	"context"
	"sync"
)

// keyedMutex is an arena of per-key locks. Entries are created lazily on
// first acquire and removed once no holder or waiter references them, so the
// arena does not grow with the total number of accounts ever seen.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*mutexEntry
}

type mutexEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*mutexEntry)}
}

// Acquire locks the key, waiting until the current holder releases it or ctx
// is done. On success it returns a release func that must be called exactly
// once.
func (m *keyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &mutexEntry{ch: make(chan struct{}, 1)}
		m.entries[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			m.release(key, entry)
		}, nil
	case <-ctx.Done():
		m.release(key, entry)
		return nil, ctx.Err()
	}
}

func (m *keyedMutex) release(key string, entry *mutexEntry) {
	m.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// size reports the number of live entries, for tests.
func (m *keyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
