// Package publish pushes post content to channels, replacing earlier
// messages in place where they still exist.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kabili207/modgate/bot/render"
	"github.com/kabili207/modgate/bot/repo"
	"github.com/kabili207/modgate/core/access"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/transport"
)

// Mode selects which channels a sync targets.
type Mode int

const (
	// ModeCreate targets the post's selected channels.
	ModeCreate Mode = iota
	// ModeEdit targets the channels the post was already published to.
	ModeEdit
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeEdit:
		return "edit"
	}
	return "unknown"
}

// Config configures a Synchronizer.
type Config struct {
	Transport transport.Transport
	Posts     *repo.Repository
	Channels  *access.Directory
	Renderer  *render.Renderer

	// Logger for sync events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Report summarizes one sync.
type Report struct {
	// Sent counts channels that received a new message.
	Sent int
	// Replaced counts channels whose existing message was rewritten.
	Replaced int
	// Failed maps channel keys to the error that stopped them.
	Failed map[string]error
}

// OK returns the number of channels that now show current content.
func (r Report) OK() int {
	return r.Sent + r.Replaced
}

// Synchronizer runs replace-or-send for every target channel of a post.
type Synchronizer struct {
	cfg Config
	log *slog.Logger
}

// New creates a Synchronizer.
func New(cfg Config) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{cfg: cfg, log: logger.WithGroup("publish")}
}

// Sync renders the post once and pushes it to each target channel. Channel
// failures are logged and reported; they never remove a stored handle or
// stop the remaining channels. Only an unknown post is an error.
func (s *Synchronizer) Sync(ctx context.Context, postID string, mode Mode) (Report, error) {
	p, err := s.cfg.Posts.Get(postID)
	if err != nil {
		return Report{}, fmt.Errorf("sync %s: %w", postID, err)
	}

	var keys []string
	switch mode {
	case ModeCreate:
		keys = p.SelectedChannels
	case ModeEdit:
		keys = p.PublishedKeys()
	}

	caption := render.Caption(p)
	kb := s.cfg.Renderer.PostKeyboard(ctx, p.ID)

	report := Report{Failed: make(map[string]error)}
	for _, key := range keys {
		replaced, err := s.syncChannel(ctx, p, key, caption, kb)
		if err != nil {
			s.log.Warn("channel sync failed",
				"post", p.ID, "channel", key, "mode", mode, "error", err)
			report.Failed[key] = err
			continue
		}
		if replaced {
			report.Replaced++
		} else {
			report.Sent++
		}
	}
	s.log.Info("post synced", "post", p.ID, "mode", mode,
		"sent", report.Sent, "replaced", report.Replaced, "failed", len(report.Failed))
	return report, nil
}

// syncChannel replaces the message at the stored handle, falling back to a
// fresh send when there is no handle or the message is gone. Returns true
// if an existing message was replaced.
func (s *Synchronizer) syncChannel(ctx context.Context, p *post.Post, key, caption string, kb transport.Keyboard) (bool, error) {
	if h, ok := p.Published[key]; ok && !h.IsZero() {
		err := s.cfg.Transport.ReplaceMedia(ctx, h, p.Media, caption, kb)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, transport.ErrNotFound) {
			return false, fmt.Errorf("replace %s: %w", h, err)
		}
		s.log.Debug("published message gone, sending new", "post", p.ID, "channel", key)
	}

	h, err := s.cfg.Transport.SendMedia(ctx, s.cfg.Channels.Resolve(key), p.Media, caption, kb)
	if err != nil {
		return false, fmt.Errorf("send: %w", err)
	}
	if err := s.cfg.Posts.RecordPublishHandle(p.ID, key, h); err != nil {
		// The post was deleted while we were sending.
		return false, fmt.Errorf("record handle %s: %w", h, err)
	}
	return false, nil
}
