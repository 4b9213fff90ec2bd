package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/kabili207/modgate/bot/session"
	"github.com/kabili207/modgate/bot/users"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/callback"
	"github.com/kabili207/modgate/core/clock"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/events"
	"github.com/kabili207/modgate/transport"
)

// Callback actions handled by the workflow.
const (
	ActionOpen         = "sg"
	ActionCancel       = "sx"
	ActionApprovePress = "sa"
	ActionRejectPress  = "sr"
)

var (
	ErrNotFound         = errors.New("suggestion not found")
	ErrAlreadyResolved  = errors.New("suggestion already resolved")
	ErrNoSession        = errors.New("no suggestion session")
	ErrBanned           = errors.New("user is banned")
	ErrCooldown         = errors.New("suggestion cooldown active")
	ErrEmpty            = errors.New("empty suggestion")
	ErrReviewInProgress = errors.New("reviewer has an unfinished review")
)

// CooldownError reports how long the user must wait.
type CooldownError struct {
	Remaining  int // seconds, rounded up
	Violations int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("suggestion cooldown active: %ds remaining", e.Remaining)
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldown
}

// Config configures a Workflow.
type Config struct {
	Transport transport.Transport
	Users     *users.Registry
	Roles     *role.Set
	Clock     *clock.Clock
	Callbacks *callback.Codec
	Events    *events.Emitter

	// NewID generates suggestion IDs. If nil, random UUIDs are used.
	NewID func() string

	// Logger for workflow events. If nil, uses slog.Default().
	Logger *slog.Logger
}

type review struct {
	ID     string
	Action Action
	Inbox  core.Handle
}

// Workflow owns the suggestion table and the submitter and reviewer
// sessions. Callers must serialize calls per user.
type Workflow struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	byID    map[string]*Suggestion
	byInbox map[core.Handle]string

	submitting *session.Store[struct{}]
	reviewing  *session.Store[review]
}

// New creates a Workflow.
func New(cfg Config) *Workflow {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Workflow{
		cfg:        cfg,
		log:        logger.WithGroup("suggest"),
		byID:       make(map[string]*Suggestion),
		byInbox:    make(map[core.Handle]string),
		submitting: session.NewStore[struct{}](),
		reviewing:  session.NewStore[review](),
	}
}

// Submitting reports whether user is writing a suggestion.
func (w *Workflow) Submitting(user core.UserID) bool {
	return w.submitting.Has(user)
}

// Reviewing reports whether reviewer owes a comment.
func (w *Workflow) Reviewing(reviewer core.UserID) bool {
	return w.reviewing.Has(reviewer)
}

// Begin opens the suggestion prompt after checking ban and cooldown.
func (w *Workflow) Begin(ctx context.Context, user core.UserID) error {
	if err := w.gate(ctx, user, w.cfg.Users.Check(user)); err != nil {
		return err
	}
	w.submitting.Put(user, struct{}{})
	kb := transport.Keyboard{transport.Row(transport.Button{
		Text: "❌ Cancel",
		Data: w.cfg.Callbacks.MustEncode(ActionCancel),
	})}
	_, err := w.cfg.Transport.SendText(ctx, core.UserChat(user),
		"💡 Send your suggestion as text, or a photo with a caption.", kb)
	return err
}

// CancelSubmission closes the suggestion prompt.
func (w *Workflow) CancelSubmission(ctx context.Context, user core.UserID) error {
	if _, ok := w.submitting.Take(user); !ok {
		return ErrNoSession
	}
	w.reply(ctx, core.UserChat(user), "❌ Suggestion cancelled.")
	return nil
}

// Submit delivers the user's message to the owner's inbox. The cooldown is
// checked again and stamped atomically.
func (w *Workflow) Submit(ctx context.Context, user core.UserID, msg *transport.Message) (*Suggestion, error) {
	if !w.submitting.Has(user) {
		return nil, ErrNoSession
	}
	chat := core.UserChat(user)
	if msg.Text == "" && msg.Media == nil {
		w.reply(ctx, chat, "⚠️ Send text or a photo with a caption.")
		return nil, ErrEmpty
	}
	w.submitting.Delete(user)
	if err := w.gate(ctx, user, w.cfg.Users.Accept(user)); err != nil {
		return nil, err
	}

	s := &Suggestion{
		ID:          w.cfg.NewID(),
		SubmitterID: user,
		Username:    msg.Username,
		Text:        msg.Text,
		SubmittedAt: w.cfg.Clock.Now(),
	}
	if msg.Media != nil && msg.Media.Kind == post.MediaPhoto {
		m := *msg.Media
		s.Photo = &m
	}

	h, err := w.deliver(ctx, core.UserChat(w.cfg.Roles.Owner()), s)
	if err != nil {
		w.log.Error("failed to deliver suggestion", "user", user, "error", err)
		w.reply(ctx, chat, "❌ Your suggestion could not be delivered. Please try again later.")
		return nil, fmt.Errorf("deliver suggestion: %w", err)
	}
	s.Inbox = h

	w.mu.Lock()
	w.byID[s.ID] = s
	w.byInbox[h] = s.ID
	out := s.clone()
	w.mu.Unlock()

	w.log.Info("suggestion submitted", "id", s.ID, "user", user)
	w.cfg.Events.Emit(ctx, events.Event{Type: events.SuggestionSubmitted, UserID: user, Detail: s.ID})
	w.reply(ctx, chat, "✅ Thanks! Your suggestion was sent to the admins.")
	return out, nil
}

func (w *Workflow) inboxKeyboard(s *Suggestion) transport.Keyboard {
	return transport.Keyboard{transport.Row(
		transport.Button{Text: "✅ Approve", Data: w.cfg.Callbacks.MustEncode(ActionApprovePress, s.ID)},
		transport.Button{Text: "❌ Reject", Data: w.cfg.Callbacks.MustEncode(ActionRejectPress, s.ID)},
	)}
}

// deliver sends the suggestion with its decision buttons to inbox.
func (w *Workflow) deliver(ctx context.Context, inbox core.ChatID, s *Suggestion) (core.Handle, error) {
	if s.Photo != nil {
		return w.cfg.Transport.SendMedia(ctx, inbox, *s.Photo, inboxText(s), w.inboxKeyboard(s))
	}
	return w.cfg.Transport.SendText(ctx, inbox, inboxText(s), w.inboxKeyboard(s))
}

// gate answers a failed cooldown verdict and converts it to an error.
func (w *Workflow) gate(ctx context.Context, user core.UserID, v users.Verdict) error {
	chat := core.UserChat(user)
	switch {
	case v.Banned:
		w.submitting.Delete(user)
		if v.NewlyBanned {
			w.cfg.Events.Emit(ctx, events.Event{Type: events.UserBanned, UserID: user, Count: v.Violations})
			w.reply(ctx, chat, "🚫 You have been banned for sending suggestions too often.")
		} else {
			w.reply(ctx, chat, "🚫 You are banned and cannot send suggestions.")
		}
		return ErrBanned
	case !v.Allowed:
		secs := int(math.Ceil(v.Remaining.Seconds()))
		w.reply(ctx, chat, fmt.Sprintf("⏳ Please wait %d seconds before sending another suggestion.", secs))
		return &CooldownError{Remaining: secs, Violations: v.Violations}
	}
	return nil
}

// StartReview records the reviewer's decision, removes the inbox buttons
// and asks for a comment.
func (w *Workflow) StartReview(ctx context.Context, reviewer core.UserID, id string, action Action) error {
	if !w.cfg.Roles.IsAdmin(reviewer) {
		return role.ErrForbidden
	}
	if _, ok := action.resolution(); !ok {
		return fmt.Errorf("unknown action %q", action)
	}
	if w.reviewing.Has(reviewer) {
		w.reply(ctx, core.UserChat(reviewer), "⚠️ Finish your current review first, or send /cancel.")
		return ErrReviewInProgress
	}

	w.mu.Lock()
	s, ok := w.byID[id]
	if !ok {
		w.mu.Unlock()
		return ErrNotFound
	}
	if s.Resolution != Pending || s.inReview {
		w.mu.Unlock()
		return ErrAlreadyResolved
	}
	s.inReview = true
	inbox := s.Inbox
	w.mu.Unlock()

	if err := w.cfg.Transport.ClearAffordances(ctx, inbox); err != nil {
		w.log.Warn("failed to clear inbox buttons", "id", id, "error", err)
	}
	w.reviewing.Put(reviewer, review{ID: id, Action: action, Inbox: inbox})

	verb := "approval"
	if action == ActionReject {
		verb = "rejection"
	}
	_, err := w.cfg.Transport.SendText(ctx, core.UserChat(reviewer),
		fmt.Sprintf("💬 Write a comment for the user about the %s of suggestion #%s.\nSend /cancel to put it back.", verb, s.ShortID()), nil)
	return err
}

// Comment resolves the reviewer's pending suggestion and delivers the
// verdict to the submitter.
func (w *Workflow) Comment(ctx context.Context, reviewer core.UserID, text string) (*Suggestion, error) {
	r, ok := w.reviewing.Get(reviewer)
	if !ok {
		return nil, ErrNoSession
	}
	chat := core.UserChat(reviewer)
	if text == "" {
		w.reply(ctx, chat, "⚠️ Send the comment as text.")
		return nil, ErrEmpty
	}
	w.reviewing.Delete(reviewer)
	if !w.cfg.Roles.IsAdmin(reviewer) {
		w.reopen(ctx, r)
		return nil, role.ErrForbidden
	}

	s, err := w.Resolve(r.Inbox, r.Action, reviewer, text)
	if err != nil {
		w.reply(ctx, chat, "⚠️ This suggestion was already handled.")
		return nil, err
	}

	if _, err := w.cfg.Transport.SendText(ctx, core.UserChat(s.SubmitterID), verdictText(s), nil); err != nil {
		w.log.Warn("failed to deliver verdict", "id", s.ID, "user", s.SubmitterID, "error", err)
		w.reply(ctx, chat, "⚠️ Verdict recorded, but the user could not be notified.")
	} else {
		w.reply(ctx, chat, fmt.Sprintf("✅ Verdict sent for suggestion #%s.", s.ShortID()))
	}
	w.cfg.Events.Emit(ctx, events.Event{
		Type: events.SuggestionResolved, UserID: s.SubmitterID, Detail: s.ID + ":" + s.Resolution.String(),
	})
	return s, nil
}

// CancelReview abandons the reviewer's open review. The suggestion goes
// back to pending with its decision buttons restored.
func (w *Workflow) CancelReview(ctx context.Context, reviewer core.UserID) error {
	r, ok := w.reviewing.Take(reviewer)
	if !ok {
		return ErrNoSession
	}
	w.reopen(ctx, r)
	w.reply(ctx, core.UserChat(reviewer), "❌ Review cancelled. The suggestion is back in the inbox.")
	return nil
}

// reopen releases an abandoned review and puts the decision buttons back
// on the inbox message. A photo is edited in place; anything else is sent
// again and the mapping moves to the new message.
func (w *Workflow) reopen(ctx context.Context, r review) {
	w.mu.Lock()
	s, ok := w.byID[r.ID]
	if !ok || s.Resolution != Pending {
		w.mu.Unlock()
		return
	}
	s.inReview = false
	snap := s.clone()
	w.mu.Unlock()

	if snap.Photo != nil {
		err := w.cfg.Transport.ReplaceMedia(ctx, snap.Inbox, *snap.Photo, inboxText(snap), w.inboxKeyboard(snap))
		if err == nil {
			return
		}
		w.log.Debug("inbox edit failed, sending again", "id", snap.ID, "error", err)
	}
	h, err := w.deliver(ctx, snap.Inbox.Chat, snap)
	if err != nil {
		w.log.Warn("failed to restore inbox buttons", "id", snap.ID, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if s.Resolution != Pending {
		return
	}
	delete(w.byInbox, s.Inbox)
	s.Inbox = h
	w.byInbox[h] = s.ID
}

// Resolve sets the outcome of the suggestion delivered at inbox. Only the
// first resolution succeeds.
func (w *Workflow) Resolve(inbox core.Handle, action Action, reviewer core.UserID, comment string) (*Suggestion, error) {
	res, ok := action.resolution()
	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.byInbox[inbox]
	if !ok {
		return nil, ErrNotFound
	}
	s := w.byID[id]
	if s.Resolution != Pending {
		return nil, ErrAlreadyResolved
	}
	s.Resolution = res
	s.ReviewerID = reviewer
	s.Comment = comment
	s.inReview = false
	w.log.Info("suggestion resolved", "id", id, "resolution", res, "reviewer", reviewer)
	return s.clone(), nil
}

// Get returns a copy of the suggestion.
func (w *Workflow) Get(id string) (*Suggestion, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// PendingCount returns the number of unresolved suggestions.
func (w *Workflow) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, s := range w.byID {
		if s.Resolution == Pending {
			n++
		}
	}
	return n
}

func (w *Workflow) reply(ctx context.Context, chat core.ChatID, text string) {
	if _, err := w.cfg.Transport.SendText(ctx, chat, text, nil); err != nil {
		w.log.Warn("failed to reply", "chat", chat, "error", err)
	}
}

func inboxText(s *Suggestion) string {
	from := s.SubmitterID.String()
	if s.Username != "" {
		from = "@" + s.Username + " (" + from + ")"
	}
	body := s.Text
	if body == "" {
		body = "(no text)"
	}
	return fmt.Sprintf("💡 New suggestion #%s\n\nFrom: %s\nDate: %s\n\n%s",
		s.ShortID(), from, s.SubmittedAt.Format("2006-01-02 15:04"), body)
}

func verdictText(s *Suggestion) string {
	head := "✅ Your suggestion was approved!"
	if s.Resolution == Rejected {
		head = "❌ Your suggestion was rejected."
	}
	return fmt.Sprintf("%s\n\nYour suggestion: %s\n\n💬 Comment: %s", head, s.Text, s.Comment)
}
