package server

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kabili207/modgate/bot/suggest"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/transport"
)

const welcomeText = "👋 Welcome!\n\nHere you can find mods, maps and effects. Pick a section below."

// showStart sends the welcome banner with the main menu.
func (s *Server) showStart(ctx context.Context, user core.UserID) {
	chat := core.UserChat(user)
	kb := s.mainMenu(user)
	if s.cfg.BannerMedia.Ref != "" {
		_, err := s.cfg.Transport.SendMedia(ctx, chat, s.cfg.BannerMedia, welcomeText, kb)
		if err == nil {
			return
		}
		s.log.Warn("failed to send banner", "error", err)
	}
	s.send(ctx, chat, welcomeText, kb)
}

func (s *Server) showMenu(ctx context.Context, user core.UserID) {
	s.send(ctx, core.UserChat(user), "🏠 Main menu", s.mainMenu(user))
}

func (s *Server) mainMenu(user core.UserID) transport.Keyboard {
	kb := transport.Keyboard{
		transport.Row(s.button("📂 Browse posts", actionBrowse)),
		transport.Row(s.button("💡 Suggest an idea", suggest.ActionOpen)),
	}
	if s.cfg.Roles.IsAdmin(user) {
		kb = append(kb, transport.Row(s.button("⚙️ Admin panel", actionAdmin)))
	}
	return kb
}

func (s *Server) backTo(action string, args ...string) transport.Keyboard {
	return transport.Keyboard{transport.Row(s.button("⬅️ Back", action, args...))}
}

// showCategories lists categories with their post counts.
func (s *Server) showCategories(ctx context.Context, user core.UserID) {
	counts := s.cfg.Posts.CountByCategory()
	var kb transport.Keyboard
	for _, c := range s.cfg.Categories {
		kb = append(kb, transport.Row(s.button(fmt.Sprintf("%s (%d)", c.Label, counts[c.Key]), actionCategory, c.Key)))
	}
	kb = append(kb,
		transport.Row(s.button(fmt.Sprintf("📚 All posts (%d)", s.cfg.Posts.Count()), actionAll, "0")),
		transport.Row(s.button("⬅️ Back", actionMenu)),
	)
	s.send(ctx, core.UserChat(user), "📂 Choose a category:", kb)
}

// showCategory lists the first posts of one category.
func (s *Server) showCategory(ctx context.Context, user core.UserID, key string) error {
	if !s.cfg.Categories.Has(key) {
		return post.ErrUnknownCategory
	}
	posts := s.cfg.Posts.ListByCategory(key)
	label := s.cfg.Categories.Label(key)
	text := fmt.Sprintf("%s\n\nPosts: %d", label, len(posts))
	if len(posts) == 0 {
		text = label + "\n\nNo posts yet."
	}
	kb := s.postButtons(posts, CategoryPageSize, actionGet)
	kb = append(kb, transport.Row(s.button("⬅️ Back", actionBrowse)))
	s.send(ctx, core.UserChat(user), text, kb)
	return nil
}

// showAll lists every published post, AllPostsPageSize per page.
func (s *Server) showAll(ctx context.Context, user core.UserID, page int) {
	posts := s.cfg.Posts.ListPublished()
	pages := (len(posts) + AllPostsPageSize - 1) / AllPostsPageSize
	if pages == 0 {
		pages = 1
	}
	page = max(0, min(page, pages-1))

	start := page * AllPostsPageSize
	end := min(start+AllPostsPageSize, len(posts))
	kb := s.postButtons(posts[start:end], AllPostsPageSize, actionGet)

	var nav []transport.Button
	if page > 0 {
		nav = append(nav, s.button("◀️", actionAll, strconv.Itoa(page-1)))
	}
	if page < pages-1 {
		nav = append(nav, s.button("▶️", actionAll, strconv.Itoa(page+1)))
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}
	kb = append(kb, transport.Row(s.button("⬅️ Back", actionBrowse)))
	s.send(ctx, core.UserChat(user),
		fmt.Sprintf("📚 All posts (%d)\nPage %d of %d", len(posts), page+1, pages), kb)
}

func (s *Server) postButtons(posts []*post.Post, limit int, action string) transport.Keyboard {
	var kb transport.Keyboard
	for i, p := range posts {
		if i == limit {
			break
		}
		kb = append(kb, transport.Row(s.button(p.Title, action, p.ID)))
	}
	return kb
}

// showAdmin sends the admin panel.
func (s *Server) showAdmin(ctx context.Context, user core.UserID) error {
	if !s.cfg.Roles.IsAdmin(user) {
		return role.ErrForbidden
	}
	kb := transport.Keyboard{
		transport.Row(s.button("➕ New post", actionNewPost)),
		transport.Row(s.button("📝 Manage posts", actionManage)),
		transport.Row(s.button("📊 Statistics", actionStats)),
	}
	if s.cfg.Roles.IsOwner(user) {
		kb = append(kb, transport.Row(s.button("👥 Admins", actionAdmins)))
	}
	kb = append(kb, transport.Row(s.button("⬅️ Back", actionMenu)))
	s.send(ctx, core.UserChat(user), "⚙️ Admin panel", kb)
	return nil
}
