package authoring

import (
	"context"
	"errors"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/transport"
)

// prompt asks for the input the session's state expects. problem, when
// set, is shown above the question.
func (c *Controller) prompt(ctx context.Context, user core.UserID, s Session, problem string) error {
	var text string
	var kb transport.Keyboard
	switch s.State {
	case StateAwaitingMedia:
		text = "📸 Send a photo, video or animation for the post."
	case StateAwaitingTitle:
		text = "✏️ Send the post title (up to 200 characters)."
	case StateAwaitingFile:
		text = "📎 Send the file as a document, or a download link starting with http:// or https://."
	case StateAwaitingCategory:
		text = "📂 Choose a category:"
		for _, cat := range c.cfg.Categories {
			kb = append(kb, transport.Row(transport.Button{
				Text: cat.Label,
				Data: c.cfg.Callbacks.MustEncode(ActionCategory, cat.Key),
			}))
		}
	case StateAwaitingChannels:
		text = "📢 Send the channels to publish to, separated by spaces (for example @YAKMODS), or \"all\" for every configured channel."
	case StateAwaitingNotifyChoice:
		text = "🔔 Notify users about this post?"
		kb = append(kb, transport.Row(
			transport.Button{Text: "✅ Yes", Data: c.cfg.Callbacks.MustEncode(ActionNotify, NotifyYes)},
			transport.Button{Text: "🔕 No", Data: c.cfg.Callbacks.MustEncode(ActionNotify, NotifyNo)},
		))
	default:
		return nil
	}
	if problem != "" {
		text = "⚠️ " + problem + "\n\n" + text
	}
	kb = append(kb, transport.Row(transport.Button{
		Text: "❌ Cancel",
		Data: c.cfg.Callbacks.MustEncode(ActionCancel),
	}))
	_, err := c.cfg.Transport.SendText(ctx, core.UserChat(user), text, kb)
	return err
}

// describe turns a validation error into a user-facing sentence.
func describe(err error) string {
	switch {
	case errors.Is(err, post.ErrTitleTooLong):
		return "The title is too long."
	case errors.Is(err, post.ErrInvalidLink):
		return "The link must start with http:// or https://."
	case errors.Is(err, post.ErrInvalidChannel):
		var ve *post.ValidationError
		if errors.As(err, &ve) && ve.Value != "" {
			return "Invalid channel name: " + ve.Value
		}
		return "Invalid channel name."
	case errors.Is(err, post.ErrNoChannels):
		return "Name at least one channel."
	case errors.Is(err, post.ErrUnknownCategory):
		return "Unknown category."
	case errors.Is(err, post.ErrMissingField):
		return "That is not what I asked for."
	}
	return err.Error()
}
