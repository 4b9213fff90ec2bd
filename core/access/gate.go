// Package access decides whether a user may download a post by checking
// membership in the post's required channels.
package access

import (
	"context"
	"log/slog"

	"github.com/kabili207/modgate/core"
)

// MembershipLookup queries a user's status in a channel.
type MembershipLookup interface {
	GetMembership(ctx context.Context, channel core.ChatID, user core.UserID) (core.MemberStatus, error)
}

// GateConfig configures a Gate.
type GateConfig struct {
	Directory *Directory
	Lookup    MembershipLookup

	// Logger for gate events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Gate evaluates channel-gated access. It holds no mutable state.
type Gate struct {
	dir    *Directory
	lookup MembershipLookup
	log    *slog.Logger
}

// NewGate creates a Gate.
func NewGate(cfg GateConfig) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		dir:    cfg.Directory,
		lookup: cfg.Lookup,
		log:    logger.WithGroup("access"),
	}
}

// CheckAccess returns the required keys the user is not subscribed to, in
// the order given. A lookup failure counts as not subscribed and does not
// stop evaluation of the remaining keys. An empty required list falls back
// to the primary channel.
func (g *Gate) CheckAccess(ctx context.Context, user core.UserID, required []string) []string {
	if len(required) == 0 && g.dir.Primary() != "" {
		required = []string{g.dir.Primary()}
	}
	var missing []string
	for _, key := range required {
		ch := g.dir.Resolve(key)
		status, err := g.lookup.GetMembership(ctx, ch, user)
		if err != nil {
			g.log.Warn("membership lookup failed",
				"channel", ch, "user", user, "error", err)
			missing = append(missing, key)
			continue
		}
		if !status.Subscribed() {
			g.log.Debug("not subscribed", "channel", ch, "user", user, "status", status)
			missing = append(missing, key)
		}
	}
	return missing
}
