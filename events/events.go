// Package events defines the lifecycle events the bot emits for external
// consumers.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/kabili207/modgate/core"
)

// Type identifies an event.
type Type string

const (
	PostPublished       Type = "post.published"
	PostEdited          Type = "post.edited"
	PostDeleted         Type = "post.deleted"
	PostDownloaded      Type = "post.downloaded"
	UserBanned          Type = "user.banned"
	SuggestionSubmitted Type = "suggestion.submitted"
	SuggestionResolved  Type = "suggestion.resolved"
)

// Event is one lifecycle event.
type Event struct {
	Type   Type        `json:"type"`
	At     time.Time   `json:"at"`
	PostID string      `json:"post_id,omitempty"`
	Title  string      `json:"title,omitempty"`
	UserID core.UserID `json:"user_id,omitempty"`
	Detail string      `json:"detail,omitempty"`
	Count  int         `json:"count,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Emitter stamps and publishes events, logging failures. A nil Emitter or
// one without a Publisher drops events.
type Emitter struct {
	pub Publisher
	now func() time.Time
	log *slog.Logger
}

// NewEmitter creates an Emitter over pub. pub may be nil.
func NewEmitter(pub Publisher, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{pub: pub, now: time.Now, log: logger.WithGroup("events")}
}

// Emit publishes e, filling At if unset.
func (m *Emitter) Emit(ctx context.Context, e Event) {
	if m == nil || m.pub == nil {
		return
	}
	if e.At.IsZero() {
		e.At = m.now()
	}
	if err := m.pub.Publish(ctx, e); err != nil {
		m.log.Warn("failed to publish event", "type", e.Type, "error", err)
	}
}
