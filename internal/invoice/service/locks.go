package service

import "sync"

// lockArena hands out one mutex per live invoice so concurrent payment
// events serialize even on storage without row locks. Entries are dropped
// once the invoice reaches a terminal status.
type lockArena struct {
	mu    sync.Mutex
	locks map[int64]*arenaLock
}

type arenaLock struct {
	sync.Mutex
	refs int
}

func newLockArena() *lockArena {
	return &lockArena{locks: make(map[int64]*arenaLock)}
}

// acquire blocks until the caller holds the invoice's mutex and returns the
// release func.
func (a *lockArena) acquire(invoiceID int64) func() {
	a.mu.Lock()
	entry := a.locks[invoiceID]
	if entry == nil {
		entry = &arenaLock{}
		a.locks[invoiceID] = entry
	}
	entry.refs++
	a.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		a.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(a.locks, invoiceID)
		}
		a.mu.Unlock()
	}
}

func (a *lockArena) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
