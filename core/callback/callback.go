// Package callback encodes inline button payloads. Each payload carries a
// truncated BLAKE2b MAC so forged button presses are rejected before they
// reach a workflow.
package callback

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// MaxDataLen is the platform limit on callback payload size in bytes.
const MaxDataLen = 64

const (
	macSize   = 6
	separator = "|"
)

var (
	ErrTooLong     = errors.New("callback data exceeds 64 bytes")
	ErrMalformed   = errors.New("malformed callback data")
	ErrBadMAC      = errors.New("callback data failed authentication")
	ErrInvalidPart = errors.New("callback part contains separator")
)

// Data is a decoded button payload.
type Data struct {
	Action string
	Args   []string
}

// Arg returns the i-th argument, or "" if absent.
func (d Data) Arg(i int) string {
	if i < 0 || i >= len(d.Args) {
		return ""
	}
	return d.Args[i]
}

// Codec signs and verifies callback payloads with a shared key.
type Codec struct {
	key []byte
}

// New creates a Codec. The key may be at most 64 bytes; longer keys are
// truncated.
func New(key []byte) *Codec {
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	return &Codec{key: append([]byte(nil), key...)}
}

// Encode builds a signed payload for action and args.
func (c *Codec) Encode(action string, args ...string) ([]byte, error) {
	parts := append([]string{action}, args...)
	for _, p := range parts {
		if strings.Contains(p, separator) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPart, p)
		}
	}
	body := strings.Join(parts, separator)
	out := body + separator + c.mac(body)
	if len(out) > MaxDataLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(out))
	}
	return []byte(out), nil
}

// MustEncode is like Encode but panics on error. Use only with fixed
// actions and bounded arguments.
func (c *Codec) MustEncode(action string, args ...string) []byte {
	b, err := c.Encode(action, args...)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode verifies and splits a payload.
func (c *Codec) Decode(data []byte) (Data, error) {
	s := string(data)
	i := strings.LastIndex(s, separator)
	if i <= 0 {
		return Data{}, ErrMalformed
	}
	body, tag := s[:i], s[i+1:]
	if subtle.ConstantTimeCompare([]byte(tag), []byte(c.mac(body))) != 1 {
		return Data{}, ErrBadMAC
	}
	parts := strings.Split(body, separator)
	return Data{Action: parts[0], Args: parts[1:]}, nil
}

func (c *Codec) mac(body string) string {
	h, err := blake2b.New(macSize, c.key)
	if err != nil {
		// Only reachable with an oversized key, which New prevents.
		panic(err)
	}
	h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
