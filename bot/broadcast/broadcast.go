// Package broadcast announces newly published posts to every known user.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kabili207/modgate/bot/render"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/transport"
)

const (
	// DefaultDelay is the minimum time between two deliveries.
	DefaultDelay = 50 * time.Millisecond
	// DefaultConcurrency is the number of deliveries in flight.
	DefaultConcurrency = 1
)

// PostSource looks up the post to announce.
type PostSource interface {
	Get(id string) (*post.Post, error)
}

// Audience provides the recipient snapshot and its exclusions.
type Audience interface {
	Known() []core.UserID
	IsBanned(id core.UserID) bool
}

// Staff reports which users hold admin capabilities.
type Staff interface {
	IsAdmin(id core.UserID) bool
}

// Config configures a Fanout.
type Config struct {
	Transport transport.Transport
	Posts     PostSource
	Audience  Audience
	Staff     Staff
	Renderer  *render.Renderer

	// Delay is the minimum time between deliveries. Zero uses DefaultDelay,
	// a negative value disables the limit.
	Delay time.Duration
	// Concurrency bounds deliveries in flight. Zero uses DefaultConcurrency.
	Concurrency int

	// Logger for fanout events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Fanout delivers one announcement per recipient, best effort.
type Fanout struct {
	cfg Config
	log *slog.Logger
}

// New creates a Fanout.
func New(cfg Config) *Fanout {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Delay == 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Fanout{cfg: cfg, log: logger.WithGroup("broadcast")}
}

// Recipients returns the known users minus staff and banned users.
func (f *Fanout) Recipients() []core.UserID {
	known := f.cfg.Audience.Known()
	out := make([]core.UserID, 0, len(known))
	for _, id := range known {
		if f.cfg.Staff.IsAdmin(id) || f.cfg.Audience.IsBanned(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Announce sends the post to every recipient and returns how many
// deliveries succeeded. The post and recipients are snapshotted before the
// first send. Failed deliveries are logged and skipped. Cancelling ctx
// stops the remaining deliveries.
func (f *Fanout) Announce(ctx context.Context, postID string) (int, error) {
	p, err := f.cfg.Posts.Get(postID)
	if err != nil {
		return 0, fmt.Errorf("announce %s: %w", postID, err)
	}
	recipients := f.Recipients()
	caption := render.AnnounceCaption(p)
	kb := f.cfg.Renderer.PostKeyboard(ctx, p.ID)

	limit := rate.Inf
	if f.cfg.Delay > 0 {
		limit = rate.Every(f.cfg.Delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var delivered atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for _, id := range recipients {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			if _, err := f.cfg.Transport.SendMedia(gctx, core.UserChat(id), p.Media, caption, kb); err != nil {
				f.log.Debug("announcement not delivered", "post", p.ID, "user", id, "error", err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	n := int(delivered.Load())
	f.log.Info("announcement finished", "post", p.ID,
		"recipients", len(recipients), "delivered", n)
	if err != nil {
		return n, fmt.Errorf("announce %s: %w", postID, err)
	}
	return n, nil
}
