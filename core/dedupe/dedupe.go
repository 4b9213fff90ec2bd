// Package dedupe drops inbound updates that were already handled.
//
// Telegram can deliver the same update twice around a reconnect. Recently
// seen updates are tracked in a circular buffer of truncated SHA256 hashes
// of their identity, so memory stays bounded no matter how long the bot
// runs.
package dedupe

import (
	"crypto/sha256"
	"strconv"
	"sync"

	"github.com/kabili207/modgate/transport"
)

const (
	// DefaultCapacity is the default number of remembered updates.
	DefaultCapacity = 1024
	// HashSize is the truncated SHA256 hash size.
	HashSize = 8
)

// Deduplicator remembers the most recent updates. Safe for concurrent use.
type Deduplicator struct {
	mu     sync.Mutex
	hashes []byte // circular buffer of HashSize-byte hashes
	index  map[[HashSize]byte]int
	max    int
	next   int
	filled int
}

// New creates a Deduplicator with the default capacity.
func New() *Deduplicator {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a Deduplicator remembering up to n updates.
func NewWithCapacity(n int) *Deduplicator {
	if n <= 0 {
		n = DefaultCapacity
	}
	return &Deduplicator{
		hashes: make([]byte, n*HashSize),
		index:  make(map[[HashSize]byte]int, n),
		max:    n,
	}
}

// HasSeen reports whether u was seen before. If not, it is recorded.
// Updates without an identity are never considered seen.
func (d *Deduplicator) HasSeen(u transport.Update) bool {
	key, ok := Key(u)
	if !ok {
		return false
	}
	hash := hashKey(key)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.index[hash]; ok {
		return true
	}

	offset := d.next * HashSize
	if d.filled == d.max {
		var old [HashSize]byte
		copy(old[:], d.hashes[offset:offset+HashSize])
		delete(d.index, old)
	} else {
		d.filled++
	}
	copy(d.hashes[offset:offset+HashSize], hash[:])
	d.index[hash] = d.next
	d.next = (d.next + 1) % d.max
	return false
}

// Clear forgets every update.
func (d *Deduplicator) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.hashes)
	clear(d.index)
	d.next = 0
	d.filled = 0
}

// Key returns the identity of an update: the chat and message ID for
// messages, the query ID for button presses.
func Key(u transport.Update) (string, bool) {
	switch {
	case u.Message != nil && u.Message.ID != 0:
		return "m:" + string(u.Message.Chat) + ":" + strconv.Itoa(u.Message.ID), true
	case u.Callback != nil && u.Callback.QueryID != "":
		return "c:" + u.Callback.QueryID, true
	}
	return "", false
}

func hashKey(key string) [HashSize]byte {
	sum := sha256.Sum256([]byte(key))
	var out [HashSize]byte
	copy(out[:], sum[:HashSize])
	return out
}
