package transport

import (
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
)

// Update is one inbound event. Exactly one of Message and Callback is set.
type Update struct {
	Message  *Message
	Callback *Callback
}

// Sender returns the user who caused the update.
func (u Update) Sender() core.UserID {
	switch {
	case u.Message != nil:
		return u.Message.From
	case u.Callback != nil:
		return u.Callback.From
	}
	return 0
}

// Message is an inbound chat message.
type Message struct {
	ID       int
	Chat     core.ChatID
	From     core.UserID
	Username string
	Private  bool
	Text     string

	// Media is set for photo, video and animation messages.
	Media *post.Media
	// Document is set for file uploads.
	Document *post.File
}

// Handle returns the handle of the message.
func (m *Message) Handle() core.Handle {
	return core.Handle{Chat: m.Chat, MessageID: m.ID}
}

// Callback is an inline button press.
type Callback struct {
	QueryID string
	From    core.UserID
	Message core.Handle
	Data    []byte
}

// Button is an inline keyboard button. Exactly one of Data and URL is set.
type Button struct {
	Text string
	Data []byte
	URL  string
}

// Keyboard is a grid of inline buttons, one slice per row.
type Keyboard [][]Button

// Row is a convenience constructor for a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}
