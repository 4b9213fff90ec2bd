package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/transport"
)

func (s *Server) showAdmins(ctx context.Context, user core.UserID) error {
	if !s.cfg.Roles.IsOwner(user) {
		return role.ErrForbidden
	}
	kb := transport.Keyboard{
		transport.Row(s.button("➕ Add admin", actionAdminAdd)),
		transport.Row(s.button("📋 List admins", actionAdminList)),
		transport.Row(s.button("⬅️ Back", actionAdmin)),
	}
	s.send(ctx, core.UserChat(user), "👥 Admin management", kb)
	return nil
}

func (s *Server) beginAddAdmin(ctx context.Context, user core.UserID) error {
	if !s.cfg.Roles.IsOwner(user) {
		return role.ErrForbidden
	}
	s.cancelFlows(ctx, user)
	s.addingAdmin.Put(user, struct{}{})
	kb := transport.Keyboard{transport.Row(s.button("❌ Cancel", actionAdminCancel))}
	s.send(ctx, core.UserChat(user), "Send the numeric user ID of the new admin.", kb)
	return nil
}

// addAdmin handles the owner's reply with a user ID. A malformed ID keeps
// the prompt open.
func (s *Server) addAdmin(ctx context.Context, user core.UserID, text string) {
	chat := core.UserChat(user)
	if !s.cfg.Roles.IsOwner(user) {
		s.addingAdmin.Delete(user)
		return
	}
	id, err := core.ParseUserID(text)
	if err != nil {
		s.send(ctx, chat, "⚠️ That is not a valid user ID. Send digits only.", nil)
		return
	}
	s.addingAdmin.Delete(user)

	switch err := s.cfg.Roles.Add(id); {
	case errors.Is(err, role.ErrAlreadyAdmin):
		s.send(ctx, chat, fmt.Sprintf("ℹ️ %s is already an admin.", id), s.backTo(actionAdmins))
	case err != nil:
		s.send(ctx, chat, "Error: "+err.Error(), s.backTo(actionAdmins))
	default:
		s.log.Info("admin added", "admin", id, "by", user)
		s.send(ctx, chat, fmt.Sprintf("✅ %s is now an admin.", id), s.backTo(actionAdmins))
		s.send(ctx, core.UserChat(id), "🎉 You were made an admin. Use /start to open the admin panel.", nil)
	}
}

func (s *Server) listAdmins(ctx context.Context, user core.UserID) error {
	if !s.cfg.Roles.IsOwner(user) {
		return role.ErrForbidden
	}
	var b strings.Builder
	b.WriteString("👥 Admins:\n")
	var kb transport.Keyboard
	for _, id := range s.cfg.Roles.Admins() {
		if s.cfg.Roles.IsOwner(id) {
			fmt.Fprintf(&b, "\n👑 %s (owner)", id)
			continue
		}
		fmt.Fprintf(&b, "\n• %s", id)
		kb = append(kb, transport.Row(s.button("➖ Remove "+id.String(), actionAdminRemove, id.String())))
	}
	kb = append(kb, transport.Row(s.button("⬅️ Back", actionAdmins)))
	s.send(ctx, core.UserChat(user), b.String(), kb)
	return nil
}

func (s *Server) removeAdmin(ctx context.Context, user core.UserID, arg string) error {
	if !s.cfg.Roles.IsOwner(user) {
		return role.ErrForbidden
	}
	id, err := core.ParseUserID(arg)
	if err != nil {
		return err
	}
	chat := core.UserChat(user)
	switch err := s.cfg.Roles.Remove(id); {
	case errors.Is(err, role.ErrOwnerImmutable):
		s.send(ctx, chat, "⚠️ The owner cannot be removed.", nil)
	case errors.Is(err, role.ErrNotAdmin):
		s.send(ctx, chat, fmt.Sprintf("ℹ️ %s is not an admin.", id), nil)
	case err != nil:
		return err
	default:
		s.log.Info("admin removed", "admin", id, "by", user)
		s.send(ctx, chat, fmt.Sprintf("✅ %s is no longer an admin.", id), s.backTo(actionAdminList))
	}
	return nil
}
