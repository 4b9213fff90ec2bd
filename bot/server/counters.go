package server

import "sync/atomic"

// Counters tracks dispatch statistics using atomic counters.
// All fields are safe for concurrent access.
type Counters struct {
	Updates    atomic.Uint64 // Updates dispatched
	Downloads  atomic.Uint64 // Files or links delivered
	Refusals   atomic.Uint64 // Downloads refused for missing subscriptions
	Rejected   atomic.Uint64 // Callbacks with bad or expired data
	Duplicates atomic.Uint64 // Redelivered updates dropped
}

// CountersSnapshot is a plain-value copy of Counters for reading.
type CountersSnapshot struct {
	Updates    uint64 `json:"updates"`
	Downloads  uint64 `json:"downloads"`
	Refusals   uint64 `json:"refusals"`
	Rejected   uint64 `json:"rejected"`
	Duplicates uint64 `json:"duplicates"`
}

// Snapshot returns a point-in-time copy of all counters.
func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Updates:    c.Updates.Load(),
		Downloads:  c.Downloads.Load(),
		Refusals:   c.Refusals.Load(),
		Rejected:   c.Rejected.Load(),
		Duplicates: c.Duplicates.Load(),
	}
}
