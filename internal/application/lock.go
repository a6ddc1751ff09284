package application

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// appLocks serializes work per application id. Entries are dropped once no
// caller holds or waits for them.
type appLocks struct {
	mu    sync.Mutex
	locks map[string]*appLock
}

type appLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newAppLocks() *appLocks {
	return &appLocks{locks: make(map[string]*appLock)}
}

// acquire blocks until the lock for appID is held or ctx ends. The returned
// func releases the lock and must be called exactly once.
func (l *appLocks) acquire(ctx context.Context, appID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[appID]
	if !ok {
		entry = &appLock{sem: semaphore.NewWeighted(1)}
		l.locks[appID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.drop(appID, entry)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.drop(appID, entry)
		})
	}, nil
}

func (l *appLocks) drop(appID string, entry *appLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, appID)
	}
}

func (l *appLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
