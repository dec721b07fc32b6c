// Package keylock provides one exclusive section per string key.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map hands out a mutex per key. Entries are freed once no goroutine holds
// or waits on them. The zero value is ready to use.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Map {
	return &Map{}
}

// Lock blocks until the section for key is free and returns its release func.
// The release func is safe to call more than once.
func (m *Map) Lock(key string) func() {
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[string]*entry)
	}
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		})
	}
}

// With runs fn inside the section for key. The section is released on every
// exit path, panics included.
func (m *Map) With(key string, fn func() error) error {
	unlock := m.Lock(key)
	defer unlock()
	return fn()
}

// Len reports how many keys are currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
