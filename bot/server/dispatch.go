package server

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/kabili207/modgate/bot/authoring"
	"github.com/kabili207/modgate/bot/render"
	"github.com/kabili207/modgate/bot/suggest"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/callback"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/transport"
)

// Callback actions handled by the server.
const (
	actionMenu        = "m"
	actionBrowse      = "b"
	actionCategory    = "c"
	actionAll         = "al"
	actionGet         = "g"
	actionRecheck     = "ck"
	actionAdmin       = "ad"
	actionNewPost     = "np"
	actionManage      = "mg"
	actionEdit        = "e"
	actionEditField   = "ef"
	actionDelete      = "d"
	actionStats       = "st"
	actionAdmins      = "am"
	actionAdminAdd    = "aa"
	actionAdminCancel = "aax"
	actionAdminList   = "als"
	actionAdminRemove = "ar"
)

// handleMessage routes a private message. Active flows take the message
// first, then commands.
func (s *Server) handleMessage(ctx context.Context, msg *transport.Message) {
	if !msg.Private {
		return
	}
	user := msg.From
	s.cfg.Users.Register(user)

	cmd, arg := parseCommand(msg.Text)
	switch cmd {
	case "/start":
		s.cancelFlows(ctx, user)
		if id, ok := strings.CutPrefix(arg, render.DownloadPrefix); ok && id != "" {
			s.download(ctx, user, id)
			return
		}
		s.showStart(ctx, user)
		return
	case "/cancel":
		if !s.cancelFlows(ctx, user) {
			s.send(ctx, core.UserChat(user), "Nothing to cancel.", nil)
		}
		return
	}

	switch {
	case s.cfg.Authoring.Active(user):
		err := s.cfg.Authoring.Handle(ctx, user, authoring.Input{
			Text:  msg.Text,
			Media: msg.Media,
			File:  msg.Document,
		})
		s.logFlowError("authoring input rejected", user, err)
	case s.cfg.Suggestions.Reviewing(user):
		_, err := s.cfg.Suggestions.Comment(ctx, user, msg.Text)
		s.logFlowError("review comment rejected", user, err)
	case s.cfg.Suggestions.Submitting(user):
		_, err := s.cfg.Suggestions.Submit(ctx, user, msg)
		s.logFlowError("suggestion rejected", user, err)
	case s.addingAdmin.Has(user):
		s.addAdmin(ctx, user, msg.Text)
	default:
		s.send(ctx, core.UserChat(user), "Use /start to open the menu.", nil)
	}
}

// cancelFlows ends every open flow of user, including an unfinished
// review. Reports whether any was open.
func (s *Server) cancelFlows(ctx context.Context, user core.UserID) bool {
	cancelled := false
	if s.cfg.Authoring.Active(user) {
		cancelled = s.cfg.Authoring.Cancel(ctx, user) == nil || cancelled
	}
	if s.cfg.Suggestions.Submitting(user) {
		cancelled = s.cfg.Suggestions.CancelSubmission(ctx, user) == nil || cancelled
	}
	if s.cfg.Suggestions.Reviewing(user) {
		cancelled = s.cfg.Suggestions.CancelReview(ctx, user) == nil || cancelled
	}
	if _, ok := s.addingAdmin.Take(user); ok {
		cancelled = true
	}
	return cancelled
}

// handleCallback routes an inline button press.
func (s *Server) handleCallback(ctx context.Context, cb *transport.Callback) {
	d, err := s.cfg.Callbacks.Decode(cb.Data)
	if err != nil {
		s.counters.Rejected.Add(1)
		s.log.Debug("rejected callback", "user", cb.From, "error", err)
		s.answer(ctx, cb, "⚠️ This button is no longer valid.", true)
		return
	}
	s.cfg.Users.Register(cb.From)
	if err := s.dispatch(ctx, cb, d); err != nil {
		s.log.Debug("callback failed", "user", cb.From, "action", d.Action, "error", err)
		s.answer(ctx, cb, callbackError(err), true)
		return
	}
	s.answer(ctx, cb, "", false)
}

func (s *Server) dispatch(ctx context.Context, cb *transport.Callback, d callback.Data) error {
	user := cb.From
	switch d.Action {
	// User menus
	case actionMenu:
		s.showMenu(ctx, user)
	case actionBrowse:
		s.showCategories(ctx, user)
	case actionCategory:
		return s.showCategory(ctx, user, d.Arg(0))
	case actionAll:
		page, _ := strconv.Atoi(d.Arg(0))
		s.showAll(ctx, user, page)
	case actionGet, actionRecheck:
		s.download(ctx, user, d.Arg(0))

	// Suggestions
	case suggest.ActionOpen:
		s.cancelFlows(ctx, user)
		err := s.cfg.Suggestions.Begin(ctx, user)
		if errors.Is(err, suggest.ErrBanned) || errors.Is(err, suggest.ErrCooldown) {
			return nil
		}
		return err
	case suggest.ActionCancel:
		return s.cfg.Suggestions.CancelSubmission(ctx, user)
	case suggest.ActionApprovePress, suggest.ActionRejectPress:
		action := suggest.ActionApprove
		if d.Action == suggest.ActionRejectPress {
			action = suggest.ActionReject
		}
		// Other flows end so the comment text reaches the review.
		if !s.cfg.Suggestions.Reviewing(user) && s.cfg.Roles.IsAdmin(user) {
			s.cancelFlows(ctx, user)
		}
		return s.cfg.Suggestions.StartReview(ctx, user, d.Arg(0), action)

	// Authoring
	case actionNewPost:
		s.cancelFlows(ctx, user)
		return s.cfg.Authoring.StartCreate(ctx, user)
	case authoring.ActionCategory, authoring.ActionNotify:
		err := s.cfg.Authoring.Handle(ctx, user, authoring.Input{Choice: d.Arg(0)})
		if errors.Is(err, authoring.ErrNoSession) || errors.Is(err, authoring.ErrWrongState) || errors.Is(err, role.ErrForbidden) {
			return err
		}
		s.logFlowError("authoring choice rejected", user, err)
	case authoring.ActionConfirm:
		_, err := s.cfg.Authoring.Confirm(ctx, user)
		return err
	case authoring.ActionCancel:
		return s.cfg.Authoring.Cancel(ctx, user)

	// Administration
	case actionAdmin:
		return s.showAdmin(ctx, user)
	case actionManage:
		return s.showManage(ctx, user)
	case actionEdit:
		return s.showEdit(ctx, user, d.Arg(0))
	case actionEditField:
		if !s.cfg.Roles.IsAdmin(user) {
			return role.ErrForbidden
		}
		s.cancelFlows(ctx, user)
		return s.cfg.Authoring.StartEdit(ctx, user, d.Arg(0), authoring.Field(d.Arg(1)))
	case actionDelete:
		return s.deletePost(ctx, user, d.Arg(0))
	case actionStats:
		if !s.cfg.Roles.IsAdmin(user) {
			return role.ErrForbidden
		}
		s.send(ctx, core.UserChat(user), formatStats(s.Stats()), s.backTo(actionAdmin))

	// Owner
	case actionAdmins:
		return s.showAdmins(ctx, user)
	case actionAdminAdd:
		return s.beginAddAdmin(ctx, user)
	case actionAdminCancel:
		if _, ok := s.addingAdmin.Take(user); ok {
			s.send(ctx, core.UserChat(user), "❌ Cancelled.", nil)
		}
	case actionAdminList:
		return s.listAdmins(ctx, user)
	case actionAdminRemove:
		return s.removeAdmin(ctx, user, d.Arg(0))

	default:
		s.log.Debug("unhandled callback action", "action", d.Action)
	}
	return nil
}

func (s *Server) answer(ctx context.Context, cb *transport.Callback, text string, alert bool) {
	if err := s.cfg.Transport.AnswerCallback(ctx, cb.QueryID, text, alert); err != nil {
		s.log.Debug("failed to answer callback", "error", err)
	}
}

func (s *Server) logFlowError(msg string, user core.UserID, err error) {
	if err != nil {
		s.log.Debug(msg, "user", user, "error", err)
	}
}

// callbackError maps a dispatch error to the alert shown to the user.
func callbackError(err error) string {
	switch {
	case errors.Is(err, role.ErrForbidden):
		return "⛔ Access denied."
	case errors.Is(err, suggest.ErrAlreadyResolved):
		return "⚠️ This suggestion was already handled."
	case errors.Is(err, suggest.ErrReviewInProgress):
		return "⚠️ Finish your current review first."
	case errors.Is(err, suggest.ErrNotFound):
		return "❌ Suggestion not found."
	case errors.Is(err, authoring.ErrNoSession), errors.Is(err, suggest.ErrNoSession):
		return "⚠️ This action has expired."
	case errors.Is(err, authoring.ErrWrongState):
		return "⚠️ Not now."
	default:
		return "❌ Something went wrong."
	}
}

// parseCommand splits "/cmd arg" into its parts. The bot suffix of
// "/cmd@bot" is dropped.
func parseCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, arg, _ := strings.Cut(strings.TrimSpace(text), " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}
