// Package storage defines the persistence boundary for posts and user state.
package storage

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
)

// UserState is the persisted part of the user registry and role set.
type UserState struct {
	Known  []core.UserID `json:"known"`
	Banned []core.UserID `json:"banned"`
	Admins []core.UserID `json:"admins"`
}

// Snapshot is everything a Store holds.
type Snapshot struct {
	Posts []*post.Post
	Users UserState
}

// Store persists published posts and user state. Saves replace the whole
// stored set.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	SavePosts(ctx context.Context, posts []*post.Post) error
	SaveUsers(ctx context.Context, users UserState) error
	Close() error
}

// Record is the stored form of a published post.
type Record struct {
	ID               string                 `json:"id"`
	Title            string                 `json:"title"`
	MediaKind        string                 `json:"media_kind"`
	MediaRef         string                 `json:"media_ref"`
	File             *FileRecord            `json:"file,omitempty"`
	Link             string                 `json:"link,omitempty"`
	Category         string                 `json:"category"`
	RequiredChannels []string               `json:"required_channels"`
	SelectedChannels []string               `json:"selected_channels"`
	Published        map[string]core.Handle `json:"published"`
	Downloads        int                    `json:"downloads"`
	NotifyOnPublish  bool                   `json:"notify_on_publish"`
	CreatedAt        time.Time              `json:"created_at"`
}

// FileRecord is the stored form of an uploaded file.
type FileRecord struct {
	Ref  string `json:"ref"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// NewRecord converts a post to its stored form.
func NewRecord(p *post.Post) Record {
	r := Record{
		ID:               p.ID,
		Title:            p.Title,
		MediaKind:        string(p.Media.Kind),
		MediaRef:         p.Media.Ref,
		Link:             p.Link,
		Category:         p.Category,
		RequiredChannels: slices.Clone(p.RequiredChannels),
		SelectedChannels: slices.Clone(p.SelectedChannels),
		Published:        p.Published,
		Downloads:        p.Downloads,
		NotifyOnPublish:  p.NotifyOnPublish,
		CreatedAt:        p.CreatedAt.UTC(),
	}
	if p.File != nil {
		r.File = &FileRecord{Ref: p.File.Ref, Name: p.File.Name, Size: p.File.Size}
	}
	return r
}

// Post converts the record back to a published post.
func (r Record) Post() *post.Post {
	p := &post.Post{
		ID:               r.ID,
		Title:            r.Title,
		Media:            post.Media{Kind: post.MediaKind(r.MediaKind), Ref: r.MediaRef},
		Link:             r.Link,
		Category:         r.Category,
		RequiredChannels: r.RequiredChannels,
		SelectedChannels: r.SelectedChannels,
		Published:        r.Published,
		Downloads:        r.Downloads,
		NotifyOnPublish:  r.NotifyOnPublish,
		Status:           post.StatusPublished,
		CreatedAt:        r.CreatedAt,
	}
	if r.File != nil {
		p.File = &post.File{Ref: r.File.Ref, Name: r.File.Name, Size: r.File.Size}
	}
	if p.Published == nil {
		p.Published = make(map[string]core.Handle)
	}
	return p
}

// UserSource supplies the user state to persist.
type UserSource struct {
	Known  func() []core.UserID
	Banned func() []core.UserID
	Admins func() []core.UserID
}

// SyncUsers returns a change callback that saves the current user state to
// s. Failures are logged only.
func SyncUsers(s Store, src UserSource, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.WithGroup("storage")
	return func() {
		state := UserState{}
		if src.Known != nil {
			state.Known = src.Known()
		}
		if src.Banned != nil {
			state.Banned = src.Banned()
		}
		if src.Admins != nil {
			state.Admins = src.Admins()
		}
		if err := s.SaveUsers(context.Background(), state); err != nil {
			log.Error("failed to save users", "error", err)
		}
	}
}
