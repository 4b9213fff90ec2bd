// Package role tracks the owner and the mutable admin set.
package role

import (
	"errors"
	"slices"
	"sync"

	"github.com/kabili207/modgate/core"
)

var (
	ErrForbidden      = errors.New("permission denied")
	ErrAlreadyAdmin   = errors.New("user is already an admin")
	ErrNotAdmin       = errors.New("user is not an admin")
	ErrOwnerImmutable = errors.New("the owner cannot be removed")
)

// SetConfig configures a role Set.
type SetConfig struct {
	Owner  core.UserID
	Admins []core.UserID

	// OnChange is called after the admin set changes, outside the lock.
	OnChange func()
}

// Set holds the owner and admin roles. The owner passes every admin check.
type Set struct {
	mu       sync.RWMutex
	owner    core.UserID
	admins   map[core.UserID]struct{}
	onChange func()
}

// NewSet creates a role set seeded from cfg.
func NewSet(cfg SetConfig) *Set {
	s := &Set{
		owner:    cfg.Owner,
		admins:   make(map[core.UserID]struct{}),
		onChange: cfg.OnChange,
	}
	for _, id := range cfg.Admins {
		if id != cfg.Owner {
			s.admins[id] = struct{}{}
		}
	}
	return s
}

// Owner returns the owner's user ID.
func (s *Set) Owner() core.UserID {
	return s.owner
}

// IsOwner reports whether id is the owner.
func (s *Set) IsOwner(id core.UserID) bool {
	return id == s.owner
}

// IsAdmin reports whether id holds admin capabilities.
func (s *Set) IsAdmin(id core.UserID) bool {
	if id == s.owner {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[id]
	return ok
}

// Admins returns the owner followed by the other admins in ascending order.
func (s *Set) Admins() []core.UserID {
	s.mu.RLock()
	out := make([]core.UserID, 0, len(s.admins))
	for id := range s.admins {
		out = append(out, id)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return append([]core.UserID{s.owner}, out...)
}

// Add grants admin capabilities to id.
func (s *Set) Add(id core.UserID) error {
	if id == s.owner {
		return ErrAlreadyAdmin
	}
	s.mu.Lock()
	if _, ok := s.admins[id]; ok {
		s.mu.Unlock()
		return ErrAlreadyAdmin
	}
	s.admins[id] = struct{}{}
	s.mu.Unlock()
	s.changed()
	return nil
}

// Remove revokes admin capabilities from id.
func (s *Set) Remove(id core.UserID) error {
	if id == s.owner {
		return ErrOwnerImmutable
	}
	s.mu.Lock()
	if _, ok := s.admins[id]; !ok {
		s.mu.Unlock()
		return ErrNotAdmin
	}
	delete(s.admins, id)
	s.mu.Unlock()
	s.changed()
	return nil
}

func (s *Set) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
