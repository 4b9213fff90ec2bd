// Package authoring implements the admin post creation and editing
// conversations.
package authoring

import (
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
)

// State is a step of the authoring conversation.
type State int

const (
	StateAwaitingMedia State = iota
	StateAwaitingTitle
	StateAwaitingFile
	StateAwaitingCategory
	StateAwaitingChannels
	StateAwaitingNotifyChoice
	StatePreviewing
)

func (s State) String() string {
	switch s {
	case StateAwaitingMedia:
		return "awaiting_media"
	case StateAwaitingTitle:
		return "awaiting_title"
	case StateAwaitingFile:
		return "awaiting_file"
	case StateAwaitingCategory:
		return "awaiting_category"
	case StateAwaitingChannels:
		return "awaiting_channels"
	case StateAwaitingNotifyChoice:
		return "awaiting_notify_choice"
	case StatePreviewing:
		return "previewing"
	}
	return "unknown"
}

// Mode distinguishes creating a post from editing one field of it.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

// Field is an editable post field.
type Field string

const (
	FieldTitle   Field = "title"
	FieldPayload Field = "file"
	FieldMedia   Field = "media"
)

// Session is one admin's authoring state.
type Session struct {
	Mode  Mode
	State State
	// PostID is the edit target, or the draft once previewing.
	PostID   string
	Draft    post.Post
	Previews []core.Handle
}

// Input is one step of admin input. Choice carries an inline button value.
type Input struct {
	Text   string
	Media  *post.Media
	File   *post.File
	Choice string
}

// Notify choices.
const (
	NotifyYes = "yes"
	NotifyNo  = "no"
)

// Rules are the configuration-dependent checks applied while collecting.
type Rules struct {
	Categories post.Categories
	// AllChannels is what the word "all" expands to.
	AllChannels []string
}

// Step advances a create-mode session by one input. On error the returned
// session is the unchanged input session.
func Step(s Session, in Input, rules Rules) (Session, error) {
	next := s
	switch s.State {
	case StateAwaitingMedia:
		m, err := mediaInput(in)
		if err != nil {
			return s, err
		}
		next.Draft.Media = m
		next.State = StateAwaitingTitle

	case StateAwaitingTitle:
		t, err := post.ValidateTitle(in.Text)
		if err != nil {
			return s, err
		}
		next.Draft.Title = t
		next.State = StateAwaitingFile

	case StateAwaitingFile:
		f, link, err := payloadInput(in)
		if err != nil {
			return s, err
		}
		next.Draft.File, next.Draft.Link = f, link
		next.State = StateAwaitingCategory

	case StateAwaitingCategory:
		key := in.Choice
		if key == "" {
			key = in.Text
		}
		if !rules.Categories.Has(key) {
			return s, &post.ValidationError{Field: "category", Value: key, Err: post.ErrUnknownCategory}
		}
		next.Draft.Category = key
		next.State = StateAwaitingChannels

	case StateAwaitingChannels:
		chs, err := post.ParseChannels(in.Text, rules.AllChannels)
		if err != nil {
			return s, err
		}
		next.Draft.SelectedChannels = chs
		next.Draft.RequiredChannels = append([]string(nil), chs...)
		next.State = StateAwaitingNotifyChoice

	case StateAwaitingNotifyChoice:
		switch in.Choice {
		case NotifyYes:
			next.Draft.NotifyOnPublish = true
		case NotifyNo:
			next.Draft.NotifyOnPublish = false
		default:
			return s, &post.ValidationError{Field: "notify", Value: in.Choice, Err: post.ErrMissingField}
		}
		next.State = StatePreviewing

	default:
		return s, ErrWrongState
	}
	return next, nil
}

func mediaInput(in Input) (post.Media, error) {
	if in.Media == nil || in.Media.IsZero() || !in.Media.Kind.Valid() {
		return post.Media{}, &post.ValidationError{Field: "media", Err: post.ErrMissingField}
	}
	return *in.Media, nil
}

func payloadInput(in Input) (*post.File, string, error) {
	if in.File != nil && in.File.Ref != "" {
		f := *in.File
		return &f, "", nil
	}
	if in.Text == "" {
		return nil, "", &post.ValidationError{Field: "payload", Err: post.ErrMissingField}
	}
	link, err := post.ValidateLink(in.Text)
	if err != nil {
		return nil, "", err
	}
	return nil, link, nil
}
