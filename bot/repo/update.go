package repo

import (
	"github.com/kabili207/modgate/core/post"
)

// Update is a single-field change applied by UpdateField.
type Update interface {
	apply(p *post.Post) error
}

// SetTitle replaces the title.
type SetTitle string

func (u SetTitle) apply(p *post.Post) error {
	t, err := post.ValidateTitle(string(u))
	if err != nil {
		return err
	}
	p.Title = t
	return nil
}

// SetMedia replaces the preview media.
type SetMedia post.Media

func (u SetMedia) apply(p *post.Post) error {
	m := post.Media(u)
	if m.IsZero() || !m.Kind.Valid() {
		return &post.ValidationError{Field: "media", Value: string(m.Kind), Err: post.ErrMissingField}
	}
	p.Media = m
	return nil
}

// SetFile replaces the payload with an uploaded file.
type SetFile post.File

func (u SetFile) apply(p *post.Post) error {
	f := post.File(u)
	if f.Ref == "" {
		return &post.ValidationError{Field: "file", Err: post.ErrMissingField}
	}
	p.File = &f
	p.Link = ""
	return nil
}

// SetLink replaces the payload with an external link.
type SetLink string

func (u SetLink) apply(p *post.Post) error {
	l, err := post.ValidateLink(string(u))
	if err != nil {
		return err
	}
	p.Link = l
	p.File = nil
	return nil
}
