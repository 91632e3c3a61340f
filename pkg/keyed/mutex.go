// Package keyed provides mutual exclusion per key, for work that
// must be serialised for any one key but may run in parallel across
// keys.
package keyed

import (
	"sync"
)

type Mutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	sync.Mutex
	refs int
}

// Lock blocks until the key is free, then holds it until the
// returned func is called.
func (m *Mutex) Lock(key string) (unlock func()) {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = map[string]*entry{}
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// len is the number of keys held or waited on.
func (m *Mutex) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
