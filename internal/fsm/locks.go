package fsm

import (
	"context"
	"sync"
)

// userLocks serialises work per user. Entries are reference counted and
// removed once the last holder or waiter leaves.
type userLocks struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{entries: make(map[int64]*lockEntry)}
}

// acquire blocks until the user's lock is held or ctx is done. The returned
// func releases the lock and must be called exactly once.
func (l *userLocks) acquire(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[userID]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			l.leave(userID, e)
		}, nil
	case <-ctx.Done():
		l.leave(userID, e)
		return nil, ctx.Err()
	}
}

func (l *userLocks) leave(userID int64, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, userID)
	}
	l.mu.Unlock()
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
