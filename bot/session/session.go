// Package session keeps per-user conversation state for the bot's flows.
package session

import (
	"sync"

	"github.com/kabili207/modgate/core"
)

// Store holds one state value per user. Each flow owns its own Store.
type Store[S any] struct {
	mu      sync.RWMutex
	entries map[core.UserID]S
}

// NewStore creates an empty Store.
func NewStore[S any]() *Store[S] {
	return &Store[S]{entries: make(map[core.UserID]S)}
}

// Get returns the user's state.
func (s *Store[S]) Get(id core.UserID) (S, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[id]
	return v, ok
}

// Has reports whether the user has state.
func (s *Store[S]) Has(id core.UserID) bool {
	_, ok := s.Get(id)
	return ok
}

// Put replaces the user's state.
func (s *Store[S]) Put(id core.UserID, v S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = v
}

// Take removes and returns the user's state.
func (s *Store[S]) Take(id core.UserID) (S, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[id]
	delete(s.entries, id)
	return v, ok
}

// Delete removes the user's state.
func (s *Store[S]) Delete(id core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len returns the number of users with state.
func (s *Store[S]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Locker serializes work per user while letting different users proceed
// in parallel.
type Locker struct {
	mu    sync.Mutex
	locks map[core.UserID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates a Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[core.UserID]*userLock)}
}

// Lock acquires the user's lock and returns the matching unlock function.
func (l *Locker) Lock(id core.UserID) (unlock func()) {
	l.mu.Lock()
	ul := l.locks[id]
	if ul == nil {
		ul = &userLock{}
		l.locks[id] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
