// Package userlock provides per-user mutual exclusion. Work for different
// users runs in parallel; work for one user is serialized.
package userlock

import "sync"

// Locker is a keyed mutex. Entries are reference counted and removed when
// the last holder or waiter releases them. The zero value is ready to use.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{}
}

// Lock blocks until userID is free and returns the matching unlock func.
// Calling the unlock func more than once is a no-op.
func (l *Locker) Lock(userID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*entry)
	}
	e, ok := l.locks[userID]
	if !ok {
		e = &entry{}
		l.locks[userID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.locks, userID)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many users currently hold or wait on a lock.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
