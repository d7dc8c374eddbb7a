package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLock is an in-process Lock backed by a map of per-object
// mutexes. It is the right choice for a single-process repository (a
// CLI invocation, an embedded library use, a single API server
// instance without shared storage).
type MemoryLock struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	mu       sync.Mutex
	refCount int
}

// NewMemoryLock returns a ready-to-use MemoryLock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{entries: make(map[string]*memoryEntry)}
}

// DoInWriteLock implements Lock.
func (m *MemoryLock) DoInWriteLock(ctx context.Context, objectID string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lockCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m.mu.Lock()
	e, ok := m.entries[objectID]
	if !ok {
		e = &memoryEntry{}
		m.entries[objectID] = e
	}
	e.refCount++
	m.mu.Unlock()

	locked := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
	case <-lockCtx.Done():
		go func() {
			<-locked
			e.mu.Unlock()
			m.release(objectID, e)
		}()
		return failedToAcquire(objectID, lockCtx.Err())
	}

	defer func() {
		e.mu.Unlock()
		m.release(objectID, e)
	}()

	return fn(ctx)
}

func (m *MemoryLock) release(objectID string, e *memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refCount--
	if e.refCount == 0 {
		delete(m.entries, objectID)
	}
}
