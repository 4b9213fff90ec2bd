// Package transporttest provides a recording in-memory Transport for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/transport"
)

// ErrInjected is returned by sends the test configured to fail.
var ErrInjected = errors.New("injected failure")

// Kind is the kind of a recorded send.
type Kind string

const (
	KindText  Kind = "text"
	KindMedia Kind = "media"
	KindFile  Kind = "file"
)

// Sent is a recorded outbound message.
type Sent struct {
	Kind     Kind
	Handle   core.Handle
	Text     string
	Media    post.Media
	File     post.File
	Keyboard transport.Keyboard
}

// Answer is a recorded callback acknowledgement.
type Answer struct {
	QueryID string
	Text    string
	Alert   bool
}

// Fake is a Transport that records every call. Live messages are tracked
// so replace and delete behave like the real platform.
type Fake struct {
	mu sync.Mutex

	BotName string

	sent     []Sent
	replaced []Sent
	deleted  []core.Handle
	cleared  []core.Handle
	answers  []Answer
	live     map[core.Handle]Sent
	nextID   map[core.ChatID]int
	members  map[core.ChatID]map[core.UserID]core.MemberStatus
	failTo   map[core.ChatID]bool
	failMemb map[core.ChatID]bool
}

var _ transport.Transport = (*Fake)(nil)

// New creates an empty Fake with bot name "modgate_bot".
func New() *Fake {
	return &Fake{
		BotName:  "modgate_bot",
		live:     make(map[core.Handle]Sent),
		nextID:   make(map[core.ChatID]int),
		members:  make(map[core.ChatID]map[core.UserID]core.MemberStatus),
		failTo:   make(map[core.ChatID]bool),
		failMemb: make(map[core.ChatID]bool),
	}
}

// SetMember sets a user's status in a channel.
func (f *Fake) SetMember(ch core.ChatID, user core.UserID, s core.MemberStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.members[ch]
	if m == nil {
		m = make(map[core.UserID]core.MemberStatus)
		f.members[ch] = m
	}
	m[user] = s
}

// FailSendsTo makes every send and replace targeting chat fail.
func (f *Fake) FailSendsTo(chat core.ChatID, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTo[chat] = fail
}

// FailMembership makes membership lookups in ch fail.
func (f *Fake) FailMembership(ch core.ChatID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failMemb[ch] = true
}

// Forget drops a live message as if it had been deleted out of band.
func (f *Fake) Forget(h core.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, h)
}

func (f *Fake) record(kind Kind, chat core.ChatID, s Sent) (core.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[chat] {
		return core.Handle{}, ErrInjected
	}
	f.nextID[chat]++
	s.Kind = kind
	s.Handle = core.Handle{Chat: chat, MessageID: f.nextID[chat]}
	f.sent = append(f.sent, s)
	f.live[s.Handle] = s
	return s.Handle, nil
}

func (f *Fake) SendText(_ context.Context, chat core.ChatID, text string, kb transport.Keyboard) (core.Handle, error) {
	return f.record(KindText, chat, Sent{Text: text, Keyboard: kb})
}

func (f *Fake) SendMedia(_ context.Context, chat core.ChatID, media post.Media, caption string, kb transport.Keyboard) (core.Handle, error) {
	return f.record(KindMedia, chat, Sent{Text: caption, Media: media, Keyboard: kb})
}

func (f *Fake) SendFile(_ context.Context, chat core.ChatID, file post.File, caption string) (core.Handle, error) {
	return f.record(KindFile, chat, Sent{Text: caption, File: file})
}

func (f *Fake) ReplaceMedia(_ context.Context, h core.Handle, media post.Media, caption string, kb transport.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[h.Chat] {
		return ErrInjected
	}
	if _, ok := f.live[h]; !ok {
		return transport.ErrNotFound
	}
	s := Sent{Kind: KindMedia, Handle: h, Text: caption, Media: media, Keyboard: kb}
	f.live[h] = s
	f.replaced = append(f.replaced, s)
	return nil
}

func (f *Fake) ClearAffordances(_ context.Context, h core.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.live[h]
	if !ok {
		return transport.ErrNotFound
	}
	s.Keyboard = nil
	f.live[h] = s
	f.cleared = append(f.cleared, h)
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, h core.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[h]; !ok {
		return transport.ErrNotFound
	}
	delete(f.live, h)
	f.deleted = append(f.deleted, h)
	return nil
}

func (f *Fake) GetMembership(_ context.Context, ch core.ChatID, user core.UserID) (core.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMemb[ch] {
		return "", ErrInjected
	}
	if s, ok := f.members[ch][user]; ok {
		return s, nil
	}
	return core.MemberLeft, nil
}

func (f *Fake) GetSelfIdentity(context.Context) (string, error) {
	return f.BotName, nil
}

func (f *Fake) AnswerCallback(_ context.Context, queryID, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, Answer{QueryID: queryID, Text: text, Alert: alert})
	return nil
}

// Sent returns every recorded send.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// SentTo returns the recorded sends to chat.
func (f *Fake) SentTo(chat core.ChatID) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range f.sent {
		if s.Handle.Chat == chat {
			out = append(out, s)
		}
	}
	return out
}

// Last returns the most recent send to chat.
func (f *Fake) Last(chat core.ChatID) (Sent, bool) {
	msgs := f.SentTo(chat)
	if len(msgs) == 0 {
		return Sent{}, false
	}
	return msgs[len(msgs)-1], true
}

// Live returns the current state of a message, if it still exists.
func (f *Fake) Live(h core.Handle) (Sent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.live[h]
	return s, ok
}

// Replaced returns every recorded replace.
func (f *Fake) Replaced() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.replaced...)
}

// Deleted returns every deleted handle.
func (f *Fake) Deleted() []core.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Handle(nil), f.deleted...)
}

// Cleared returns every handle whose buttons were removed.
func (f *Fake) Cleared() []core.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Handle(nil), f.cleared...)
}

// Answers returns every callback acknowledgement.
func (f *Fake) Answers() []Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Answer(nil), f.answers...)
}

// Buttons flattens a keyboard into its buttons.
func Buttons(kb transport.Keyboard) []transport.Button {
	var out []transport.Button
	for _, row := range kb {
		out = append(out, row...)
	}
	return out
}
