package poll

import "sync"

// pollLocks hands out one mutex per poll id. Every mutating sequence on a
// poll (vote application, closure) runs under its lock from fetch through
// save and publish; different polls proceed in parallel.
type pollLocks struct {
	mtx   sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newPollLocks() *pollLocks {
	return &pollLocks{locks: map[string]*lockEntry{}}
}

// Lock blocks until the poll's turn is granted and returns the unlock
// function. Entries are dropped once the last holder releases.
func (l *pollLocks) Lock(id string) func() {
	l.mtx.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mtx.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mtx.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mtx.Unlock()
	}
}
