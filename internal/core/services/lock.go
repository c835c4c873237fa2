package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// WriteLock serialises index mutations: ingestion, the indexing API,
// deletes and reconciliation. Searches never take it.
type WriteLock struct {
	sem *semaphore.Weighted
}

// NewWriteLock creates an unlocked WriteLock.
func NewWriteLock() *WriteLock {
	return &WriteLock{sem: semaphore.NewWeighted(1)}
}

// Lock blocks until the lock is held or ctx is done.
func (l *WriteLock) Lock(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring write lock: %w", err)
	}
	return nil
}

// TryLock acquires the lock without blocking.
func (l *WriteLock) TryLock() bool {
	return l.sem.TryAcquire(1)
}

// Unlock releases the lock.
func (l *WriteLock) Unlock() {
	l.sem.Release(1)
}
