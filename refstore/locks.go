package refstore

import "sync"

// Locks is a set of named mutexes. Entries are reference counted and
// dropped once nobody holds or waits for them. The zero value is ready to
// use.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until the named lock is held and returns its release func.
func (l *Locks) Lock(name string) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*lockEntry)
	}
	e, ok := l.entries[name]
	if !ok {
		e = &lockEntry{}
		l.entries[name] = e
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
				delete(l.entries, name)
			}
			l.mu.Unlock()
		})
	}
}

// LockTable lets Locks be embedded to satisfy TableLocker.
func (l *Locks) LockTable(name string) (unlock func()) {
	return l.Lock(name)
}

func (l *Locks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
