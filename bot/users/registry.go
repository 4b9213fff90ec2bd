// Package users tracks every user the bot has seen along with bans and
// the suggestion cooldown state that drives them.
package users

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/clock"
)

const (
	// DefaultCooldown is the minimum time between accepted suggestions.
	DefaultCooldown = 60 * time.Second
	// DefaultThreshold is the violation count that triggers a ban.
	DefaultThreshold = 10
)

// Config configures a Registry.
type Config struct {
	Cooldown  time.Duration
	Threshold int
	Clock     *clock.Clock

	// OnChange is called after the known or banned set changes, outside
	// the lock.
	OnChange func()

	// Logger for registry events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Verdict is the outcome of a cooldown check.
type Verdict struct {
	// Allowed is true when the cooldown has elapsed.
	Allowed bool
	// Remaining is the time left before the next submission is allowed.
	Remaining time.Duration
	// Violations is the user's violation count after the check.
	Violations int
	// Banned is true if the user is banned, including by this check.
	Banned bool
	// NewlyBanned is true if this check triggered the ban.
	NewlyBanned bool
}

// Registry holds the known users, the banned set, the last accepted
// submission time and the violation count per user.
type Registry struct {
	mu         sync.Mutex
	known      map[core.UserID]struct{}
	banned     map[core.UserID]struct{}
	lastSubmit map[core.UserID]time.Time
	violations map[core.UserID]int

	cooldown  time.Duration
	threshold int
	clock     *clock.Clock
	onChange  func()
	log       *slog.Logger
}

// New creates an empty Registry.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Registry{
		known:      make(map[core.UserID]struct{}),
		banned:     make(map[core.UserID]struct{}),
		lastSubmit: make(map[core.UserID]time.Time),
		violations: make(map[core.UserID]int),
		cooldown:   cfg.Cooldown,
		threshold:  cfg.Threshold,
		clock:      cfg.Clock,
		onChange:   cfg.OnChange,
		log:        logger.WithGroup("users"),
	}
}

// Restore loads persisted known and banned users.
func (r *Registry) Restore(known, banned []core.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range known {
		r.known[id] = struct{}{}
	}
	for _, id := range banned {
		r.banned[id] = struct{}{}
	}
}

// Register records id as known. Returns true if it was new.
func (r *Registry) Register(id core.UserID) bool {
	r.mu.Lock()
	if _, ok := r.known[id]; ok {
		r.mu.Unlock()
		return false
	}
	r.known[id] = struct{}{}
	r.mu.Unlock()
	r.log.Debug("new user", "user", id)
	r.changed()
	return true
}

// Known returns a snapshot of every known user, ascending.
func (r *Registry) Known() []core.UserID {
	r.mu.Lock()
	out := make([]core.UserID, 0, len(r.known))
	for id := range r.known {
		out = append(out, id)
	}
	r.mu.Unlock()
	slices.Sort(out)
	return out
}

// Banned returns a snapshot of the banned users, ascending.
func (r *Registry) Banned() []core.UserID {
	r.mu.Lock()
	out := make([]core.UserID, 0, len(r.banned))
	for id := range r.banned {
		out = append(out, id)
	}
	r.mu.Unlock()
	slices.Sort(out)
	return out
}

// IsBanned reports whether id is banned.
func (r *Registry) IsBanned(id core.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.banned[id]
	return ok
}

// Count returns the number of known users.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.known)
}

// BannedCount returns the number of banned users.
func (r *Registry) BannedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.banned)
}

// Violations returns the violation count for id.
func (r *Registry) Violations(id core.UserID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.violations[id]
}

// Cooldown returns the configured cooldown.
func (r *Registry) Cooldown() time.Duration {
	return r.cooldown
}

// Check evaluates the cooldown for id without stamping a submission. A
// too-fast attempt records a violation and may ban the user.
func (r *Registry) Check(id core.UserID) Verdict {
	return r.evaluate(id, false)
}

// Accept is Check followed, when allowed, by stamping the current time as
// the user's last accepted submission. Both happen under one lock.
func (r *Registry) Accept(id core.UserID) Verdict {
	return r.evaluate(id, true)
}

func (r *Registry) evaluate(id core.UserID, stamp bool) Verdict {
	r.mu.Lock()
	if _, ok := r.banned[id]; ok {
		v := Verdict{Banned: true, Violations: r.violations[id]}
		r.mu.Unlock()
		return v
	}

	now := r.clock.Now()
	last, seen := r.lastSubmit[id]
	if elapsed := now.Sub(last); seen && elapsed < r.cooldown {
		r.violations[id]++
		v := Verdict{Remaining: r.cooldown - elapsed, Violations: r.violations[id]}
		// Only too-fast attempts count. The accepted submission before them
		// does not, so the ban lands on the threshold-th rejected attempt.
		if v.Violations >= r.threshold {
			r.banned[id] = struct{}{}
			v.Banned = true
			v.NewlyBanned = true
		}
		r.mu.Unlock()
		if v.NewlyBanned {
			r.log.Warn("user banned for repeated violations", "user", id, "violations", v.Violations)
			r.changed()
		} else {
			r.log.Debug("cooldown violation", "user", id, "violations", v.Violations)
		}
		return v
	}

	if stamp {
		r.lastSubmit[id] = now
	}
	v := Verdict{Allowed: true, Violations: r.violations[id]}
	r.mu.Unlock()
	return v
}

func (r *Registry) changed() {
	if r.onChange != nil {
		r.onChange()
	}
}
