// Package server routes chat updates to the bot's workflows and renders
// the menus, browse listings and download flow around them.
package server

import (
	"context"
	"log/slog"

	"github.com/kabili207/modgate/bot/authoring"
	"github.com/kabili207/modgate/bot/render"
	"github.com/kabili207/modgate/bot/repo"
	"github.com/kabili207/modgate/bot/session"
	"github.com/kabili207/modgate/bot/suggest"
	"github.com/kabili207/modgate/bot/users"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/access"
	"github.com/kabili207/modgate/core/callback"
	"github.com/kabili207/modgate/core/dedupe"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/events"
	"github.com/kabili207/modgate/transport"
)

const (
	// CategoryPageSize is the number of posts listed per category.
	CategoryPageSize = 10
	// AllPostsPageSize is the page size of the all-posts listing.
	AllPostsPageSize = 5
	// ManagePageSize is the number of posts listed in the admin manager.
	ManagePageSize = 10
	// TopPostsCount is the number of posts in the statistics top list.
	TopPostsCount = 5
)

// ServerConfig configures a bot Server.
type ServerConfig struct {
	Transport transport.Transport

	// Shared state
	Posts *repo.Repository
	Users *users.Registry
	Roles *role.Set

	// Workflows
	Authoring   *authoring.Controller
	Suggestions *suggest.Workflow

	Gate       *access.Gate
	Channels   *access.Directory
	Renderer   *render.Renderer
	Callbacks  *callback.Codec
	Categories post.Categories
	Events     *events.Emitter

	// BannerMedia is shown with the welcome message. Optional.
	BannerMedia post.Media

	// Logger for server events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Server dispatches updates. Updates from one user are applied in order;
// different users are handled in parallel.
type Server struct {
	cfg      ServerConfig
	log      *slog.Logger
	locks    *session.Locker
	seen     *dedupe.Deduplicator
	counters Counters

	// addingAdmin holds owners who were asked for a new admin's ID.
	addingAdmin *session.Store[struct{}]
}

// NewServer creates a bot server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		log:         logger.WithGroup("server"),
		locks:       session.NewLocker(),
		seen:        dedupe.New(),
		addingAdmin: session.NewStore[struct{}](),
	}
}

// HandleUpdate is the main dispatch entry point. It should be registered
// with the transport client via SetUpdateHandler.
func (s *Server) HandleUpdate(ctx context.Context, u transport.Update) {
	from := u.Sender()
	if from == 0 {
		return
	}
	if s.seen.HasSeen(u) {
		s.counters.Duplicates.Add(1)
		s.log.Debug("dropping duplicate update", "user", from)
		return
	}
	unlock := s.locks.Lock(from)
	defer unlock()
	s.counters.Updates.Add(1)

	switch {
	case u.Message != nil:
		s.handleMessage(ctx, u.Message)
	case u.Callback != nil:
		s.handleCallback(ctx, u.Callback)
	}
}

func (s *Server) send(ctx context.Context, chat core.ChatID, text string, kb transport.Keyboard) {
	if _, err := s.cfg.Transport.SendText(ctx, chat, text, kb); err != nil {
		s.log.Warn("failed to send message", "chat", chat, "error", err)
	}
}

func (s *Server) button(text, action string, args ...string) transport.Button {
	return transport.Button{Text: text, Data: s.cfg.Callbacks.MustEncode(action, args...)}
}
