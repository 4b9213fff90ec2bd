// Package telegram implements transport.Client on the Telegram MTProto
// API as a bot account.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/transport"
)

// Compile-time interface check.
var _ transport.Client = (*Client)(nil)

const (
	// DefaultMaxFloodWait is the longest flood wait honoured before a call
	// fails.
	DefaultMaxFloodWait = 60 * time.Second
	floodRetries        = 3
)

// Config holds the configuration for a Telegram bot client.
type Config struct {
	// AppID and AppHash identify the API application.
	AppID   int
	AppHash string
	// BotToken is the token issued by @BotFather.
	BotToken string
	// SessionFile stores the MTProto session between runs.
	SessionFile string
	// MaxFloodWait caps how long a call waits out FLOOD_WAIT. Defaults to
	// DefaultMaxFloodWait.
	MaxFloodWait time.Duration
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client implements transport.Client over gotd.
type Client struct {
	cfg    Config
	log    *slog.Logger
	client *telegram.Client
	api    *tg.Client

	mu            sync.RWMutex
	connected     bool
	cancel        context.CancelFunc
	done          chan struct{}
	updateHandler transport.UpdateHandler
	stateHandler  transport.StateHandler
	self          string

	// Access hashes learned from updates and resolved channels.
	peersMu  sync.Mutex
	users    map[int64]int64
	channels map[string]*tg.InputChannel
}

// New creates a new Telegram client with the given configuration.
func New(cfg Config) *Client {
	if cfg.MaxFloodWait == 0 {
		cfg.MaxFloodWait = DefaultMaxFloodWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Client{
		cfg:      cfg,
		log:      cfg.Logger.WithGroup("telegram"),
		users:    make(map[int64]int64),
		channels: make(map[string]*tg.InputChannel),
	}

	d := tg.NewUpdateDispatcher()
	d.OnNewMessage(c.onNewMessage)
	d.OnBotCallbackQuery(c.onCallbackQuery)

	opts := telegram.Options{UpdateHandler: d}
	if cfg.SessionFile != "" {
		opts.SessionStorage = &session.FileStorage{Path: cfg.SessionFile}
	}
	c.client = telegram.NewClient(cfg.AppID, cfg.AppHash, opts)
	c.api = c.client.API()
	return c
}

// Start authenticates as the bot and delivers updates until ctx is
// cancelled, Stop is called or the connection fails.
func (c *Client) Start(ctx context.Context) error {
	if c.cfg.BotToken == "" {
		return errors.New("bot token is required")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()
	defer close(done)
	defer cancel()

	err := c.client.Run(runCtx, func(ctx context.Context) error {
		if err := c.auth(ctx); err != nil {
			return err
		}
		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		c.mu.Lock()
		c.self = self.Username
		c.connected = true
		c.mu.Unlock()
		c.log.Info("connected to telegram", "bot", self.Username)
		c.emit(transport.EventConnected)

		<-ctx.Done()
		return ctx.Err()
	})

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()
	if wasConnected {
		c.emit(transport.EventDisconnected)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		c.emit(transport.EventError)
	}
	return err
}

// auth logs in with the bot token unless the session is already
// authorized.
func (c *Client) auth(ctx context.Context) error {
	status, err := c.client.Auth().Status(ctx)
	if err == nil && status.Authorized {
		return nil
	}
	return c.call(ctx, func(ctx context.Context) error {
		_, err := c.client.Auth().Bot(ctx, c.cfg.BotToken)
		return err
	})
}

// Stop ends the run loop and waits for it to return.
func (c *Client) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

// IsConnected returns true while the bot session is authorized and running.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetUpdateHandler sets the callback for inbound updates.
func (c *Client) SetUpdateHandler(fn transport.UpdateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateHandler = fn
}

// SetStateHandler sets the callback for client state changes.
func (c *Client) SetStateHandler(fn transport.StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandler = fn
}

func (c *Client) emit(e transport.Event) {
	c.mu.RLock()
	handler := c.stateHandler
	c.mu.RUnlock()
	if handler != nil {
		handler(c, e)
	}
}

func (c *Client) deliver(ctx context.Context, u transport.Update) {
	c.mu.RLock()
	handler := c.updateHandler
	c.mu.RUnlock()
	if handler != nil {
		handler(ctx, u)
	}
}

func (c *Client) learn(e tg.Entities) {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	for id, u := range e.Users {
		c.users[id] = u.AccessHash
	}
}

func (c *Client) onNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	c.learn(e)
	msg, ok := convertMessage(u.Message, e)
	if !ok {
		return nil
	}
	c.deliver(ctx, transport.Update{Message: msg})
	return nil
}

func (c *Client) onCallbackQuery(ctx context.Context, e tg.Entities, u *tg.UpdateBotCallbackQuery) error {
	c.learn(e)
	c.deliver(ctx, transport.Update{Callback: convertCallback(u)})
	return nil
}

// call runs fn, waiting out flood limits up to MaxFloodWait.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		wait, isFlood := telegram.AsFloodWait(err)
		if !isFlood {
			return err
		}
		if wait > c.cfg.MaxFloodWait || attempt == floodRetries {
			return fmt.Errorf("flood wait %v: %w", wait, err)
		}
		c.log.Warn("flood wait", "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// channel resolves a public "@name" to an input channel, caching the
// result.
func (c *Client) channel(ctx context.Context, chat core.ChatID) (*tg.InputChannel, error) {
	name := strings.TrimPrefix(string(chat), "@")
	c.peersMu.Lock()
	ch, ok := c.channels[name]
	c.peersMu.Unlock()
	if ok {
		return ch, nil
	}

	var res *tg.ContactsResolvedPeer
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		res, err = c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: name})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", chat, err)
	}
	for _, rc := range res.Chats {
		if v, ok := rc.(*tg.Channel); ok {
			ch = &tg.InputChannel{ChannelID: v.ID, AccessHash: v.AccessHash}
			break
		}
	}
	if ch == nil {
		return nil, fmt.Errorf("resolve %s: not a channel", chat)
	}
	c.peersMu.Lock()
	c.channels[name] = ch
	c.peersMu.Unlock()
	return ch, nil
}

func (c *Client) userPeer(id core.UserID) *tg.InputPeerUser {
	c.peersMu.Lock()
	defer c.peersMu.Unlock()
	return &tg.InputPeerUser{UserID: int64(id), AccessHash: c.users[int64(id)]}
}

func (c *Client) peer(ctx context.Context, chat core.ChatID) (tg.InputPeerClass, error) {
	if chat.IsChannel() {
		ch, err := c.channel(ctx, chat)
		if err != nil {
			return nil, err
		}
		return &tg.InputPeerChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash}, nil
	}
	id, ok := chat.User()
	if !ok {
		return nil, fmt.Errorf("unsupported chat %q", chat)
	}
	return c.userPeer(id), nil
}

func (c *Client) send(ctx context.Context, chat core.ChatID, fn func(ctx context.Context, peer tg.InputPeerClass) (tg.UpdatesClass, error)) (core.Handle, error) {
	peer, err := c.peer(ctx, chat)
	if err != nil {
		return core.Handle{}, err
	}
	var upd tg.UpdatesClass
	err = c.call(ctx, func(ctx context.Context) error {
		var err error
		upd, err = fn(ctx, peer)
		return err
	})
	if err != nil {
		return core.Handle{}, fmt.Errorf("send to %s: %w", chat, err)
	}
	id, err := sentMessageID(upd)
	if err != nil {
		return core.Handle{}, fmt.Errorf("send to %s: %w", chat, err)
	}
	return core.Handle{Chat: chat, MessageID: id}, nil
}

// SendText sends a text message with optional inline buttons.
func (c *Client) SendText(ctx context.Context, chat core.ChatID, text string, kb transport.Keyboard) (core.Handle, error) {
	return c.send(ctx, chat, func(ctx context.Context, peer tg.InputPeerClass) (tg.UpdatesClass, error) {
		return c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
			Peer:        peer,
			Message:     text,
			RandomID:    rand.Int64(),
			ReplyMarkup: replyMarkup(kb),
		})
	})
}

// SendMedia sends a photo, video or animation with a caption.
func (c *Client) SendMedia(ctx context.Context, chat core.ChatID, media post.Media, caption string, kb transport.Keyboard) (core.Handle, error) {
	in, err := inputMedia(media)
	if err != nil {
		return core.Handle{}, err
	}
	return c.sendMedia(ctx, chat, in, caption, kb)
}

// SendFile delivers an uploaded document.
func (c *Client) SendFile(ctx context.Context, chat core.ChatID, file post.File, caption string) (core.Handle, error) {
	in, err := inputDocument(file)
	if err != nil {
		return core.Handle{}, err
	}
	return c.sendMedia(ctx, chat, in, caption, nil)
}

func (c *Client) sendMedia(ctx context.Context, chat core.ChatID, in tg.InputMediaClass, caption string, kb transport.Keyboard) (core.Handle, error) {
	return c.send(ctx, chat, func(ctx context.Context, peer tg.InputPeerClass) (tg.UpdatesClass, error) {
		return c.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
			Peer:        peer,
			Media:       in,
			Message:     caption,
			RandomID:    rand.Int64(),
			ReplyMarkup: replyMarkup(kb),
		})
	})
}

// ReplaceMedia rewrites the media, caption and buttons of a sent message.
func (c *Client) ReplaceMedia(ctx context.Context, h core.Handle, media post.Media, caption string, kb transport.Keyboard) error {
	in, err := inputMedia(media)
	if err != nil {
		return err
	}
	return c.edit(ctx, h, &tg.MessagesEditMessageRequest{
		Message:     caption,
		Media:       in,
		ReplyMarkup: replyMarkup(kb),
	})
}

// ClearAffordances removes the inline buttons from a sent message.
func (c *Client) ClearAffordances(ctx context.Context, h core.Handle) error {
	return c.edit(ctx, h, &tg.MessagesEditMessageRequest{ReplyMarkup: &tg.ReplyInlineMarkup{}})
}

func (c *Client) edit(ctx context.Context, h core.Handle, req *tg.MessagesEditMessageRequest) error {
	peer, err := c.peer(ctx, h.Chat)
	if err != nil {
		return err
	}
	req.Peer = peer
	req.ID = h.MessageID
	err = c.call(ctx, func(ctx context.Context) error {
		_, err := c.api.MessagesEditMessage(ctx, req)
		return err
	})
	return classify(err, h)
}

// DeleteMessage deletes a sent message.
func (c *Client) DeleteMessage(ctx context.Context, h core.Handle) error {
	var err error
	if h.Chat.IsChannel() {
		ch, cerr := c.channel(ctx, h.Chat)
		if cerr != nil {
			return cerr
		}
		err = c.call(ctx, func(ctx context.Context) error {
			_, err := c.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{Channel: ch, ID: []int{h.MessageID}})
			return err
		})
	} else {
		err = c.call(ctx, func(ctx context.Context) error {
			_, err := c.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{Revoke: true, ID: []int{h.MessageID}})
			return err
		})
	}
	return classify(err, h)
}

// classify maps Telegram errors about missing messages to
// transport.ErrNotFound. An unchanged edit is not an error.
func classify(err error, h core.Handle) error {
	switch {
	case err == nil:
		return nil
	case tgerr.Is(err, "MESSAGE_NOT_MODIFIED"):
		return nil
	case tgerr.Is(err, "MESSAGE_ID_INVALID", "MESSAGE_DELETE_FORBIDDEN"):
		return fmt.Errorf("message %s: %w", h, transport.ErrNotFound)
	}
	return fmt.Errorf("message %s: %w", h, err)
}

// GetMembership returns the user's status in a channel.
func (c *Client) GetMembership(ctx context.Context, channel core.ChatID, user core.UserID) (core.MemberStatus, error) {
	ch, err := c.channel(ctx, channel)
	if err != nil {
		return "", err
	}
	var res *tg.ChannelsChannelParticipant
	err = c.call(ctx, func(ctx context.Context) error {
		var err error
		res, err = c.api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
			Channel:     ch,
			Participant: c.userPeer(user),
		})
		return err
	})
	if tgerr.Is(err, "USER_NOT_PARTICIPANT") {
		return core.MemberLeft, nil
	}
	if err != nil {
		return "", fmt.Errorf("membership in %s: %w", channel, err)
	}
	return participantStatus(res.Participant), nil
}

// GetSelfIdentity returns the bot's username.
func (c *Client) GetSelfIdentity(ctx context.Context) (string, error) {
	c.mu.RLock()
	name := c.self
	c.mu.RUnlock()
	if name != "" {
		return name, nil
	}
	self, err := c.client.Self(ctx)
	if err != nil {
		return "", fmt.Errorf("get self: %w", err)
	}
	return self.Username, nil
}

// AnswerCallback acknowledges an inline button press.
func (c *Client) AnswerCallback(ctx context.Context, queryID string, text string, alert bool) error {
	var id int64
	if _, err := fmt.Sscan(queryID, &id); err != nil {
		return fmt.Errorf("query id %q: %w", queryID, err)
	}
	return c.call(ctx, func(ctx context.Context) error {
		_, err := c.api.MessagesSetBotCallbackAnswer(ctx, &tg.MessagesSetBotCallbackAnswerRequest{
			QueryID: id,
			Message: text,
			Alert:   alert,
		})
		return err
	})
}
