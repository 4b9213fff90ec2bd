package server

import (
	"context"
	"fmt"

	"github.com/kabili207/modgate/bot/authoring"
	"github.com/kabili207/modgate/bot/render"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/events"
	"github.com/kabili207/modgate/transport"
)

// showManage lists published posts for editing.
func (s *Server) showManage(ctx context.Context, user core.UserID) error {
	if !s.cfg.Roles.IsAdmin(user) {
		return role.ErrForbidden
	}
	posts := s.cfg.Posts.ListPublished()
	text := fmt.Sprintf("📝 Manage posts (%d)", len(posts))
	if len(posts) > ManagePageSize {
		text += fmt.Sprintf("\nShowing the first %d.", ManagePageSize)
	}
	kb := s.postButtons(posts, ManagePageSize, actionEdit)
	kb = append(kb, transport.Row(s.button("⬅️ Back", actionAdmin)))
	s.send(ctx, core.UserChat(user), text, kb)
	return nil
}

// showEdit shows one post with its edit actions.
func (s *Server) showEdit(ctx context.Context, user core.UserID, id string) error {
	if !s.cfg.Roles.IsAdmin(user) {
		return role.ErrForbidden
	}
	p, err := s.cfg.Posts.GetPublished(id)
	if err != nil {
		s.send(ctx, core.UserChat(user), "❌ Post not found.", s.backTo(actionManage))
		return nil
	}
	text := render.Summary(p, s.cfg.Categories) + fmt.Sprintf("\n📥 Downloads: %d", p.Downloads)
	kb := transport.Keyboard{
		transport.Row(
			s.button("✏️ Title", actionEditField, p.ID, string(authoring.FieldTitle)),
			s.button("📎 File", actionEditField, p.ID, string(authoring.FieldPayload)),
			s.button("🖼 Media", actionEditField, p.ID, string(authoring.FieldMedia)),
		),
		transport.Row(s.button("🗑 Delete", actionDelete, p.ID)),
		transport.Row(s.button("⬅️ Back", actionManage)),
	}
	s.send(ctx, core.UserChat(user), text, kb)
	return nil
}

// deletePost removes a published post. Channel messages are left alone.
func (s *Server) deletePost(ctx context.Context, user core.UserID, id string) error {
	if !s.cfg.Roles.IsAdmin(user) {
		return role.ErrForbidden
	}
	chat := core.UserChat(user)
	p, err := s.cfg.Posts.DeletePublished(id)
	if err != nil {
		s.send(ctx, chat, "❌ Post not found.", s.backTo(actionManage))
		return nil
	}
	s.log.Info("post deleted", "post", p.ID, "user", user)
	s.cfg.Events.Emit(ctx, events.Event{Type: events.PostDeleted, PostID: p.ID, Title: p.Title, UserID: user})
	s.send(ctx, chat, fmt.Sprintf("🗑 Deleted \"%s\".\nPosts left: %d", p.Title, s.cfg.Posts.Count()), s.backTo(actionManage))
	return nil
}
