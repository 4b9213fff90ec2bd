package clock

import (
	"sync"
	"time"
)

// Clock is the time source for cooldowns and submission timestamps.
// The source can be replaced so tests can step time without sleeping.
type Clock struct {
	mu    sync.Mutex
	nowFn func() time.Time // overridable for testing
}

// New creates a Clock that uses the system clock.
func New() *Clock {
	return &Clock{nowFn: time.Now}
}

// NewFunc creates a Clock backed by fn.
func NewFunc(fn func() time.Time) *Clock {
	return &Clock{nowFn: fn}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowFn()
}

// Since returns the time elapsed since t.
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// SetCurrentTime overrides the clock source with t as a base that
// advances with real time from the moment of the call.
func (c *Clock) SetCurrentTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := time.Now()
	c.nowFn = func() time.Time {
		return t.Add(time.Since(base))
	}
}

// Manual is a hand-stepped time source for tests in other packages.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a Manual source starting at start and a Clock reading it.
func NewManual(start time.Time) (*Clock, *Manual) {
	m := &Manual{now: start}
	return NewFunc(m.Now), m
}

// Now returns the manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the manual time forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
