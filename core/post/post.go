// Package post defines the downloadable content item distributed by the bot
// and the validation rules applied to its fields.
package post

import (
	"maps"
	"slices"
	"time"

	"github.com/kabili207/modgate/core"
)

// Status is the lifecycle state of a post.
type Status int

const (
	StatusDraft Status = iota
	StatusPublished
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusPublished:
		return "published"
	}
	return "unknown"
}

// MediaKind is the kind of preview media attached to a post.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
)

// Valid reports whether k is a supported media kind.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaPhoto, MediaVideo, MediaAnimation:
		return true
	}
	return false
}

// Media is the preview image, video or animation shown with a post.
// Ref is an opaque transport reference or an external URL.
type Media struct {
	Kind MediaKind
	Ref  string
}

// IsZero returns true if no media is set.
func (m Media) IsZero() bool {
	return m.Ref == ""
}

// File is an uploaded document delivered on download.
type File struct {
	Ref  string
	Name string
	Size int64
}

// SizeMB returns the file size in mebibytes.
func (f File) SizeMB() float64 {
	return float64(f.Size) / 1024 / 1024
}

// Post is a content item. Exactly one of File and Link is set on a
// complete post.
type Post struct {
	ID               string
	Title            string
	Media            Media
	File             *File
	Link             string
	Category         string
	RequiredChannels []string
	SelectedChannels []string
	Published        map[string]core.Handle
	Downloads        int
	NotifyOnPublish  bool
	Status           Status
	CreatedAt        time.Time
}

// HasFile reports whether the payload is an uploaded file.
func (p *Post) HasFile() bool {
	return p.File != nil
}

// Clone returns a deep copy of the post.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	if p.File != nil {
		f := *p.File
		c.File = &f
	}
	c.RequiredChannels = slices.Clone(p.RequiredChannels)
	c.SelectedChannels = slices.Clone(p.SelectedChannels)
	c.Published = maps.Clone(p.Published)
	if c.Published == nil {
		c.Published = make(map[string]core.Handle)
	}
	return &c
}

// PublishedKeys returns the channel keys the post has been published to,
// sorted for stable iteration.
func (p *Post) PublishedKeys() []string {
	return slices.Sorted(maps.Keys(p.Published))
}

// Validate checks that the post is complete and every field is well formed.
func (p *Post) Validate(cats Categories) error {
	if _, err := ValidateTitle(p.Title); err != nil {
		return err
	}
	if p.Media.IsZero() {
		return &ValidationError{Field: "media", Err: ErrMissingField}
	}
	if !p.Media.Kind.Valid() {
		return &ValidationError{Field: "media", Value: string(p.Media.Kind), Err: ErrMissingField}
	}
	switch {
	case p.File != nil && p.Link != "":
		return &ValidationError{Field: "payload", Err: ErrAmbiguousPayload}
	case p.File != nil:
		if p.File.Ref == "" {
			return &ValidationError{Field: "file", Err: ErrMissingField}
		}
	case p.Link != "":
		if _, err := ValidateLink(p.Link); err != nil {
			return err
		}
	default:
		return &ValidationError{Field: "payload", Err: ErrMissingField}
	}
	if !cats.Has(p.Category) {
		return &ValidationError{Field: "category", Value: p.Category, Err: ErrUnknownCategory}
	}
	if len(p.SelectedChannels) == 0 {
		return &ValidationError{Field: "channels", Err: ErrNoChannels}
	}
	return nil
}
