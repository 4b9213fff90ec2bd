package core

import (
	"fmt"
	"strconv"
	"strings"
)

// UserID is a chat platform user identifier.
type UserID int64

// String returns the decimal representation of the user ID.
func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// ParseUserID parses a decimal user ID.
func ParseUserID(s string) (UserID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid user id %q: must be positive", s)
	}
	return UserID(v), nil
}

// ChatID addresses a message destination. Private chats use the decimal
// user ID, public channels use their "@name" form.
type ChatID string

// UserChat returns the private chat with the given user.
func UserChat(id UserID) ChatID {
	return ChatID(id.String())
}

// IsChannel reports whether the chat is addressed by a public "@name".
func (c ChatID) IsChannel() bool {
	return strings.HasPrefix(string(c), "@")
}

// User returns the user ID of a private chat. ok is false for channels and
// group chats.
func (c ChatID) User() (id UserID, ok bool) {
	if c.IsChannel() {
		return 0, false
	}
	v, err := strconv.ParseInt(string(c), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return UserID(v), true
}

// Handle identifies a sent message so it can later be replaced or deleted.
type Handle struct {
	Chat      ChatID `json:"chat"`
	MessageID int    `json:"message_id"`
}

// IsZero returns true if the handle does not reference a message.
func (h Handle) IsZero() bool {
	return h.MessageID == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%s/%d", h.Chat, h.MessageID)
}

// MemberStatus is a user's membership state in a channel.
type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

// Subscribed reports whether the status grants channel-gated access.
func (s MemberStatus) Subscribed() bool {
	switch s {
	case MemberCreator, MemberAdministrator, MemberMember:
		return true
	}
	return false
}
