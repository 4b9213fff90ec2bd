// Package transport provides the chat platform interfaces the bot core
// talks through, and implementations of them.
package transport

import (
	"context"
	"errors"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
)

// ErrNotFound is returned when a referenced message no longer exists.
var ErrNotFound = errors.New("message not found")

// Transport is the core's view of the chat platform. All calls are fallible
// and callers decide how to degrade.
type Transport interface {
	// SendText sends a text message with optional inline buttons.
	SendText(ctx context.Context, chat core.ChatID, text string, kb Keyboard) (core.Handle, error)
	// SendMedia sends a photo, video or animation with a caption.
	SendMedia(ctx context.Context, chat core.ChatID, media post.Media, caption string, kb Keyboard) (core.Handle, error)
	// ReplaceMedia rewrites the media, caption and buttons of a sent
	// message. Returns ErrNotFound if the message is gone.
	ReplaceMedia(ctx context.Context, h core.Handle, media post.Media, caption string, kb Keyboard) error
	// SendFile delivers an uploaded document.
	SendFile(ctx context.Context, chat core.ChatID, file post.File, caption string) (core.Handle, error)
	// ClearAffordances removes the inline buttons from a sent message.
	ClearAffordances(ctx context.Context, h core.Handle) error
	// DeleteMessage deletes a sent message.
	DeleteMessage(ctx context.Context, h core.Handle) error
	// GetMembership returns the user's status in a channel.
	GetMembership(ctx context.Context, channel core.ChatID, user core.UserID) (core.MemberStatus, error)
	// GetSelfIdentity returns the bot's username.
	GetSelfIdentity(ctx context.Context) (string, error)
	// AnswerCallback acknowledges an inline button press.
	AnswerCallback(ctx context.Context, queryID string, text string, alert bool) error
}

// Client is a Transport with a connection lifecycle and an inbound update
// feed.
type Client interface {
	Transport
	// Start connects and blocks delivering updates until ctx is cancelled
	// or the connection fails.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the client.
	Stop() error
	// IsConnected returns true if the client is currently connected.
	IsConnected() bool
	// SetUpdateHandler sets the callback for inbound updates.
	SetUpdateHandler(fn UpdateHandler)
	// SetStateHandler sets the callback for connection state changes.
	SetStateHandler(fn StateHandler)
}

// UpdateHandler is called for each inbound update.
type UpdateHandler func(ctx context.Context, u Update)

// StateHandler is called when the client state changes.
type StateHandler func(client Client, event Event)

// Event represents client state change events.
type Event int

const (
	// EventConnected is fired when the client connects.
	EventConnected Event = iota
	// EventDisconnected is fired when the client disconnects.
	EventDisconnected
	// EventReconnecting is fired when the client is attempting to reconnect.
	EventReconnecting
	// EventError is fired when an error occurs.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
