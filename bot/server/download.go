package server

import (
	"context"
	"fmt"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/events"
	"github.com/kabili207/modgate/transport"
)

// download delivers a post's payload to user once the access gate passes.
// Otherwise the missing channels are listed with a re-check button.
func (s *Server) download(ctx context.Context, user core.UserID, id string) {
	chat := core.UserChat(user)
	if s.cfg.Users.IsBanned(user) {
		s.send(ctx, chat, "🚫 You are banned.", nil)
		return
	}
	p, err := s.cfg.Posts.GetPublished(id)
	if err != nil {
		s.send(ctx, chat, "❌ Post not found. It may have been deleted.", nil)
		return
	}

	missing := s.cfg.Gate.CheckAccess(ctx, user, p.RequiredChannels)
	if len(missing) > 0 {
		s.counters.Refusals.Add(1)
		var kb transport.Keyboard
		for _, key := range missing {
			kb = append(kb, transport.Row(transport.Button{
				Text: "📢 " + string(s.cfg.Channels.Resolve(key)),
				URL:  s.cfg.Channels.URL(key),
			}))
		}
		kb = append(kb, transport.Row(s.button("✅ I subscribed", actionRecheck, p.ID)))
		s.send(ctx, chat, fmt.Sprintf("🔒 To download \"%s\", subscribe to:", p.Title), kb)
		return
	}

	n, err := s.cfg.Posts.IncrementDownloads(p.ID)
	if err != nil {
		// Deleted between the lookup and now.
		s.send(ctx, chat, "❌ Post not found. It may have been deleted.", nil)
		return
	}

	caption := fmt.Sprintf("🔥 %s\n📥 Downloads: %d", p.Title, n)
	if p.HasFile() {
		_, err = s.cfg.Transport.SendFile(ctx, chat, *p.File, caption)
	} else {
		_, err = s.cfg.Transport.SendText(ctx, chat, fmt.Sprintf("%s\n\n🔗 %s", caption, p.Link), nil)
	}
	if err != nil {
		s.log.Warn("failed to deliver download", "post", p.ID, "user", user, "error", err)
		return
	}
	s.counters.Downloads.Add(1)
	s.cfg.Events.Emit(ctx, events.Event{Type: events.PostDownloaded, PostID: p.ID, Title: p.Title, UserID: user, Count: n})
	s.log.Debug("download delivered", "post", p.ID, "user", user, "count", n)
}
