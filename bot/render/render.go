// Package render builds the captions and buttons shown with posts. Output
// is a deterministic function of the post fields and the bot username.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/transport"
)

// DownloadPrefix is the /start payload prefix of download deep links.
const DownloadPrefix = "download_"

// Identity resolves the bot's own username.
type Identity interface {
	GetSelfIdentity(ctx context.Context) (string, error)
}

// Renderer renders posts. The bot username is fetched once and cached.
type Renderer struct {
	ident Identity
	log   *slog.Logger

	mu      sync.Mutex
	botName string
}

// New creates a Renderer.
func New(ident Identity, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{ident: ident, log: logger.WithGroup("render")}
}

// BotName returns the cached bot username, fetching it on first use.
func (r *Renderer) BotName(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.botName != "" {
		return r.botName, nil
	}
	name, err := r.ident.GetSelfIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("get bot identity: %w", err)
	}
	r.botName = strings.TrimPrefix(name, "@")
	return r.botName, nil
}

// DeepLink returns the link that opens the download flow for id.
func (r *Renderer) DeepLink(ctx context.Context, id string) (string, error) {
	name, err := r.BotName(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://t.me/%s?start=%s%s", name, DownloadPrefix, id), nil
}

// PostKeyboard returns the download button for a post. If the bot identity
// cannot be resolved the post is rendered without buttons.
func (r *Renderer) PostKeyboard(ctx context.Context, id string) transport.Keyboard {
	link, err := r.DeepLink(ctx, id)
	if err != nil {
		r.log.Warn("rendering post without download button", "post", id, "error", err)
		return nil
	}
	return transport.Keyboard{
		transport.Row(transport.Button{Text: "📥 Download", URL: link}),
	}
}

// Caption returns the channel caption for p.
func Caption(p *post.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔥 %s\n\n📥 Tap the button below to download", p.Title)
	if p.File != nil {
		fmt.Fprintf(&b, "\n\n📦 File: %s\n💾 Size: %.2f MB", p.File.Name, p.File.SizeMB())
	} else if p.Link != "" {
		fmt.Fprintf(&b, "\n\n🔗 Link: %s", p.Link)
	}
	return b.String()
}

// AnnounceCaption returns the caption used when notifying users.
func AnnounceCaption(p *post.Post) string {
	return "🆕 New post!\n\n" + Caption(p)
}

// Summary returns the authoring preview summary for p.
func Summary(p *post.Post, cats post.Categories) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Post preview\n\nTitle: %s\nCategory: %s\n", p.Title, cats.Label(p.Category))
	if p.File != nil {
		fmt.Fprintf(&b, "File: %s (%.2f MB)\n", p.File.Name, p.File.SizeMB())
	} else {
		fmt.Fprintf(&b, "Link: %s\n", p.Link)
	}
	fmt.Fprintf(&b, "Channels: %s\n", strings.Join(p.SelectedChannels, ", "))
	notify := "no"
	if p.NotifyOnPublish {
		notify = "yes"
	}
	fmt.Fprintf(&b, "Notify users: %s", notify)
	return b.String()
}
