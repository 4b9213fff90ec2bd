package authoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kabili207/modgate/bot/broadcast"
	"github.com/kabili207/modgate/bot/publish"
	"github.com/kabili207/modgate/bot/render"
	"github.com/kabili207/modgate/bot/repo"
	"github.com/kabili207/modgate/bot/session"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/access"
	"github.com/kabili207/modgate/core/callback"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/events"
	"github.com/kabili207/modgate/transport"
)

// Callback actions handled by the controller.
const (
	ActionCategory = "ac"
	ActionNotify   = "an"
	ActionConfirm  = "ok"
	ActionCancel   = "ax"
)

var (
	ErrNoSession  = errors.New("no authoring session")
	ErrWrongState = errors.New("session is not awaiting this input")
)

// Config configures a Controller.
type Config struct {
	Transport  transport.Transport
	Posts      *repo.Repository
	Roles      *role.Set
	Publisher  *publish.Synchronizer
	Fanout     *broadcast.Fanout
	Renderer   *render.Renderer
	Callbacks  *callback.Codec
	Categories post.Categories
	Channels   *access.Directory
	Events     *events.Emitter

	// Logger for authoring events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Result summarizes a confirmed post.
type Result struct {
	PostID   string
	Channels int
	Failed   int
	Notified int
}

// Controller drives authoring sessions for admins. Callers must serialize
// calls per user.
type Controller struct {
	cfg      Config
	log      *slog.Logger
	sessions *session.Store[Session]
}

// NewController creates a Controller.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:      cfg,
		log:      logger.WithGroup("authoring"),
		sessions: session.NewStore[Session](),
	}
}

// Active reports whether user has an authoring session.
func (c *Controller) Active(user core.UserID) bool {
	return c.sessions.Has(user)
}

// Session returns a copy of the user's session.
func (c *Controller) Session(user core.UserID) (Session, bool) {
	return c.sessions.Get(user)
}

// StartCreate opens a create session, discarding any previous one.
func (c *Controller) StartCreate(ctx context.Context, user core.UserID) error {
	if !c.cfg.Roles.IsAdmin(user) {
		return role.ErrForbidden
	}
	if old, ok := c.sessions.Take(user); ok {
		c.discard(ctx, old)
	}
	s := Session{Mode: ModeCreate, State: StateAwaitingMedia}
	c.sessions.Put(user, s)
	c.log.Debug("create session started", "user", user)
	return c.prompt(ctx, user, s, "")
}

// StartEdit opens an edit session for one field of a published post.
func (c *Controller) StartEdit(ctx context.Context, user core.UserID, postID string, field Field) error {
	if !c.cfg.Roles.IsAdmin(user) {
		return role.ErrForbidden
	}
	if _, err := c.cfg.Posts.GetPublished(postID); err != nil {
		return err
	}
	var st State
	switch field {
	case FieldTitle:
		st = StateAwaitingTitle
	case FieldPayload:
		st = StateAwaitingFile
	case FieldMedia:
		st = StateAwaitingMedia
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	if old, ok := c.sessions.Take(user); ok {
		c.discard(ctx, old)
	}
	s := Session{Mode: ModeEdit, State: st, PostID: postID}
	c.sessions.Put(user, s)
	c.log.Debug("edit session started", "user", user, "post", postID, "field", field)
	return c.prompt(ctx, user, s, "")
}

// Handle applies one input to the user's session. A validation error is
// answered with a re-prompt and returned; the session stays in place.
func (c *Controller) Handle(ctx context.Context, user core.UserID, in Input) error {
	s, ok := c.sessions.Get(user)
	if !ok {
		return ErrNoSession
	}
	if !c.cfg.Roles.IsAdmin(user) {
		c.sessions.Delete(user)
		c.discard(ctx, s)
		return role.ErrForbidden
	}
	if s.Mode == ModeEdit {
		return c.handleEdit(ctx, user, s, in)
	}
	if s.State == StatePreviewing {
		return ErrWrongState
	}

	next, err := Step(s, in, Rules{
		Categories:  c.cfg.Categories,
		AllChannels: c.cfg.Channels.Identifiers(),
	})
	if err != nil {
		c.prompt(ctx, user, s, describe(err))
		return err
	}
	if next.State == StatePreviewing {
		next = c.enterPreview(ctx, user, next)
	}
	c.sessions.Put(user, next)
	if next.State != StatePreviewing {
		return c.prompt(ctx, user, next, "")
	}
	return nil
}

// enterPreview stores the collected post as a draft and shows the preview.
func (c *Controller) enterPreview(ctx context.Context, user core.UserID, s Session) Session {
	s.PostID = c.cfg.Posts.CreateDraft(&s.Draft)
	p, err := c.cfg.Posts.GetDraft(s.PostID)
	if err != nil {
		// Just created under our own lock.
		p = &s.Draft
	}
	chat := core.UserChat(user)

	h, err := c.cfg.Transport.SendMedia(ctx, chat, p.Media, render.Caption(p), c.cfg.Renderer.PostKeyboard(ctx, p.ID))
	if err != nil {
		c.log.Warn("failed to send media preview", "user", user, "post", p.ID, "error", err)
	} else {
		s.Previews = append(s.Previews, h)
	}

	kb := transport.Keyboard{transport.Row(
		transport.Button{Text: "✅ Publish", Data: c.cfg.Callbacks.MustEncode(ActionConfirm)},
		transport.Button{Text: "❌ Cancel", Data: c.cfg.Callbacks.MustEncode(ActionCancel)},
	)}
	h, err = c.cfg.Transport.SendText(ctx, chat, render.Summary(p, c.cfg.Categories), kb)
	if err != nil {
		c.log.Warn("failed to send preview summary", "user", user, "post", p.ID, "error", err)
	} else {
		s.Previews = append(s.Previews, h)
	}
	c.log.Debug("preview shown", "user", user, "post", p.ID)
	return s
}

func (c *Controller) handleEdit(ctx context.Context, user core.UserID, s Session, in Input) error {
	var u repo.Update
	switch s.State {
	case StateAwaitingTitle:
		u = repo.SetTitle(in.Text)
	case StateAwaitingFile:
		f, link, err := payloadInput(in)
		if err != nil {
			c.prompt(ctx, user, s, describe(err))
			return err
		}
		if f != nil {
			u = repo.SetFile(*f)
		} else {
			u = repo.SetLink(link)
		}
	case StateAwaitingMedia:
		m, err := mediaInput(in)
		if err != nil {
			c.prompt(ctx, user, s, describe(err))
			return err
		}
		u = repo.SetMedia(m)
	default:
		return ErrWrongState
	}

	chat := core.UserChat(user)
	err := c.cfg.Posts.UpdateField(s.PostID, u)
	var ve *post.ValidationError
	switch {
	case errors.As(err, &ve):
		c.prompt(ctx, user, s, describe(err))
		return err
	case err != nil:
		c.sessions.Delete(user)
		c.reply(ctx, chat, "❌ The post no longer exists.")
		return err
	}
	c.sessions.Delete(user)

	rep, err := c.cfg.Publisher.Sync(ctx, s.PostID, publish.ModeEdit)
	if err != nil {
		c.log.Warn("edit sync failed", "post", s.PostID, "error", err)
	}
	p, _ := c.cfg.Posts.GetPublished(s.PostID)
	title := ""
	if p != nil {
		title = p.Title
	}
	c.cfg.Events.Emit(ctx, events.Event{Type: events.PostEdited, PostID: s.PostID, Title: title, UserID: user, Count: rep.OK()})
	c.log.Info("post edited", "user", user, "post", s.PostID, "channels", rep.OK(), "failed", len(rep.Failed))
	c.reply(ctx, chat, fmt.Sprintf("✅ Post updated in %d channel(s).", rep.OK()))
	return nil
}

// Confirm publishes the previewed draft.
func (c *Controller) Confirm(ctx context.Context, user core.UserID) (Result, error) {
	s, ok := c.sessions.Get(user)
	if !ok {
		return Result{}, ErrNoSession
	}
	if s.Mode != ModeCreate || s.State != StatePreviewing {
		return Result{}, ErrWrongState
	}
	c.sessions.Delete(user)
	if !c.cfg.Roles.IsAdmin(user) {
		c.discard(ctx, s)
		return Result{}, role.ErrForbidden
	}

	chat := core.UserChat(user)
	draft, err := c.cfg.Posts.GetDraft(s.PostID)
	if err != nil {
		c.deletePreviews(ctx, s)
		c.reply(ctx, chat, "❌ The draft no longer exists.")
		return Result{}, err
	}

	rep, err := c.cfg.Publisher.Sync(ctx, draft.ID, publish.ModeCreate)
	if err != nil {
		c.discard(ctx, s)
		return Result{}, err
	}
	if err := c.cfg.Posts.Promote(draft.ID); err != nil {
		c.deletePreviews(ctx, s)
		return Result{}, err
	}

	res := Result{PostID: draft.ID, Channels: rep.OK(), Failed: len(rep.Failed)}
	if draft.NotifyOnPublish {
		n, err := c.cfg.Fanout.Announce(ctx, draft.ID)
		if err != nil {
			c.log.Warn("announcement incomplete", "post", draft.ID, "error", err)
		}
		res.Notified = n
	}
	c.deletePreviews(ctx, s)

	c.cfg.Events.Emit(ctx, events.Event{Type: events.PostPublished, PostID: draft.ID, Title: draft.Title, UserID: user, Count: res.Channels})
	c.log.Info("post confirmed", "user", user, "post", draft.ID,
		"channels", res.Channels, "failed", res.Failed, "notified", res.Notified)

	msg := fmt.Sprintf("✅ Post published!\n\nChannels: %d", res.Channels)
	if res.Failed > 0 {
		msg += fmt.Sprintf(" (%d failed)", res.Failed)
	}
	if draft.NotifyOnPublish {
		msg += fmt.Sprintf("\nUsers notified: %d", res.Notified)
	}
	msg += "\nID: " + draft.ID
	c.reply(ctx, chat, msg)
	return res, nil
}

// Cancel ends the user's session, removing any preview and draft.
func (c *Controller) Cancel(ctx context.Context, user core.UserID) error {
	s, ok := c.sessions.Take(user)
	if !ok {
		return ErrNoSession
	}
	c.discard(ctx, s)
	c.log.Debug("session cancelled", "user", user, "mode", s.Mode)
	c.reply(ctx, core.UserChat(user), "❌ Cancelled.")
	return nil
}

// discard releases everything a session holds.
func (c *Controller) discard(ctx context.Context, s Session) {
	c.deletePreviews(ctx, s)
	if s.Mode == ModeCreate && s.PostID != "" {
		if err := c.cfg.Posts.CancelDraft(s.PostID); err != nil && !errors.Is(err, repo.ErrNotFound) {
			c.log.Warn("failed to cancel draft", "post", s.PostID, "error", err)
		}
	}
}

func (c *Controller) deletePreviews(ctx context.Context, s Session) {
	for _, h := range s.Previews {
		if err := c.cfg.Transport.DeleteMessage(ctx, h); err != nil {
			c.log.Debug("failed to delete preview", "handle", h, "error", err)
		}
	}
}

func (c *Controller) reply(ctx context.Context, chat core.ChatID, text string) {
	if _, err := c.cfg.Transport.SendText(ctx, chat, text, nil); err != nil {
		c.log.Warn("failed to reply", "chat", chat, "error", err)
	}
}
