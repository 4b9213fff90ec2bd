package telegram

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/transport"
)

// Reference prefixes for stored media. A reference is
// "<prefix>:<id>:<access hash>:<base64 file reference>".
const (
	refPhoto    = "p"
	refDocument = "d"
)

var errBadRef = errors.New("malformed media reference")

func encodeRef(prefix string, id, hash int64, fileRef []byte) string {
	return fmt.Sprintf("%s:%d:%d:%s", prefix, id, hash, base64.RawURLEncoding.EncodeToString(fileRef))
}

type fileRef struct {
	prefix string
	id     int64
	hash   int64
	ref    []byte
}

func decodeRef(s string) (fileRef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || (parts[0] != refPhoto && parts[0] != refDocument) {
		return fileRef{}, fmt.Errorf("%w: %q", errBadRef, s)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fileRef{}, fmt.Errorf("%w: %q", errBadRef, s)
	}
	hash, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return fileRef{}, fmt.Errorf("%w: %q", errBadRef, s)
	}
	ref, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return fileRef{}, fmt.Errorf("%w: %q", errBadRef, s)
	}
	return fileRef{prefix: parts[0], id: id, hash: hash, ref: ref}, nil
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

// inputMedia converts stored media to an upload-free input. External URLs
// are passed through for Telegram to fetch.
func inputMedia(m post.Media) (tg.InputMediaClass, error) {
	if isURL(m.Ref) {
		if m.Kind == post.MediaPhoto {
			return &tg.InputMediaPhotoExternal{URL: m.Ref}, nil
		}
		return &tg.InputMediaDocumentExternal{URL: m.Ref}, nil
	}
	r, err := decodeRef(m.Ref)
	if err != nil {
		return nil, err
	}
	return r.input(), nil
}

func inputDocument(f post.File) (tg.InputMediaClass, error) {
	r, err := decodeRef(f.Ref)
	if err != nil {
		return nil, err
	}
	if r.prefix != refDocument {
		return nil, fmt.Errorf("%w: not a document", errBadRef)
	}
	return r.input(), nil
}

func (r fileRef) input() tg.InputMediaClass {
	if r.prefix == refPhoto {
		return &tg.InputMediaPhoto{ID: &tg.InputPhoto{ID: r.id, AccessHash: r.hash, FileReference: r.ref}}
	}
	return &tg.InputMediaDocument{ID: &tg.InputDocument{ID: r.id, AccessHash: r.hash, FileReference: r.ref}}
}

// replyMarkup converts a keyboard. A nil keyboard yields nil.
func replyMarkup(kb transport.Keyboard) tg.ReplyMarkupClass {
	if kb == nil {
		return nil
	}
	rows := make([]tg.KeyboardButtonRow, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tg.KeyboardButtonClass, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, &tg.KeyboardButtonURL{Text: b.Text, URL: b.URL})
				continue
			}
			buttons = append(buttons, &tg.KeyboardButtonCallback{Text: b.Text, Data: b.Data})
		}
		rows = append(rows, tg.KeyboardButtonRow{Buttons: buttons})
	}
	return &tg.ReplyInlineMarkup{Rows: rows}
}

// convertMedia classifies message media into preview media or a document.
func convertMedia(media tg.MessageMediaClass) (*post.Media, *post.File) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil, nil
		}
		return &post.Media{Kind: post.MediaPhoto, Ref: encodeRef(refPhoto, p.ID, p.AccessHash, p.FileReference)}, nil
	case *tg.MessageMediaDocument:
		d, ok := m.Document.(*tg.Document)
		if !ok {
			return nil, nil
		}
		ref := encodeRef(refDocument, d.ID, d.AccessHash, d.FileReference)
		var name string
		var video, animated bool
		for _, a := range d.Attributes {
			switch a := a.(type) {
			case *tg.DocumentAttributeFilename:
				name = a.FileName
			case *tg.DocumentAttributeVideo:
				video = true
			case *tg.DocumentAttributeAnimated:
				animated = true
			}
		}
		switch {
		case animated:
			return &post.Media{Kind: post.MediaAnimation, Ref: ref}, nil
		case video && strings.HasPrefix(d.MimeType, "video/"):
			return &post.Media{Kind: post.MediaVideo, Ref: ref}, nil
		}
		return nil, &post.File{Ref: ref, Name: name, Size: d.Size}
	}
	return nil, nil
}

// convertMessage converts an inbound message. ok is false for messages the
// bot ignores, such as its own.
func convertMessage(msg tg.MessageClass, e tg.Entities) (*transport.Message, bool) {
	m, ok := msg.(*tg.Message)
	if !ok || m.Out {
		return nil, false
	}
	out := &transport.Message{ID: m.ID, Text: m.Message}

	var from int64
	if p, ok := m.FromID.(*tg.PeerUser); ok {
		from = p.UserID
	}
	switch p := m.PeerID.(type) {
	case *tg.PeerUser:
		out.Private = true
		if from == 0 {
			from = p.UserID
		}
		out.Chat = core.UserChat(core.UserID(from))
	case *tg.PeerChannel:
		out.Chat = core.ChatID("-100" + strconv.FormatInt(p.ChannelID, 10))
	case *tg.PeerChat:
		out.Chat = core.ChatID("-" + strconv.FormatInt(p.ChatID, 10))
	}
	if from == 0 {
		return nil, false
	}
	out.From = core.UserID(from)
	if u, ok := e.Users[from]; ok {
		out.Username = u.Username
	}
	if m.Media != nil {
		out.Media, out.Document = convertMedia(m.Media)
	}
	return out, true
}

func convertCallback(u *tg.UpdateBotCallbackQuery) *transport.Callback {
	cb := &transport.Callback{
		QueryID: strconv.FormatInt(u.QueryID, 10),
		From:    core.UserID(u.UserID),
		Data:    u.Data,
	}
	if p, ok := u.Peer.(*tg.PeerUser); ok {
		cb.Message = core.Handle{Chat: core.UserChat(core.UserID(p.UserID)), MessageID: u.MsgID}
	}
	return cb
}

// participantStatus maps a channel participant to a member status.
func participantStatus(p tg.ChannelParticipantClass) core.MemberStatus {
	switch p := p.(type) {
	case *tg.ChannelParticipantCreator:
		return core.MemberCreator
	case *tg.ChannelParticipantAdmin:
		return core.MemberAdministrator
	case *tg.ChannelParticipant, *tg.ChannelParticipantSelf:
		return core.MemberMember
	case *tg.ChannelParticipantBanned:
		switch {
		case p.BannedRights.ViewMessages:
			return core.MemberKicked
		case p.Left:
			return core.MemberLeft
		}
		return core.MemberRestricted
	}
	return core.MemberLeft
}

// sentMessageID finds the id of a message just sent or edited.
func sentMessageID(u tg.UpdatesClass) (int, error) {
	var updates []tg.UpdateClass
	switch u := u.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID, nil
	case *tg.Updates:
		updates = u.Updates
	case *tg.UpdatesCombined:
		updates = u.Updates
	}
	for _, upd := range updates {
		switch v := upd.(type) {
		case *tg.UpdateMessageID:
			return v.ID, nil
		case *tg.UpdateNewMessage:
			if m, ok := v.Message.(*tg.Message); ok {
				return m.ID, nil
			}
		case *tg.UpdateNewChannelMessage:
			if m, ok := v.Message.(*tg.Message); ok {
				return m.ID, nil
			}
		}
	}
	return 0, errors.New("no message id in response")
}
