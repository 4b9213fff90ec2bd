// Package repo holds draft and published posts and enforces the one-way
// Draft -> Published lifecycle.
package repo

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
)

var (
	ErrNotFound = errors.New("post not found")
	ErrNotDraft = errors.New("post is not a draft")
)

// Saver durably stores the published posts. Drafts are never saved.
type Saver interface {
	SavePosts(ctx context.Context, posts []*post.Post) error
}

// Config configures a Repository.
type Config struct {
	// Saver receives the full published set after each mutation. Optional.
	Saver Saver

	// NewID generates post IDs. If nil, random UUIDs are used.
	NewID func() string

	// Now returns the creation timestamp for new drafts. If nil, time.Now.
	Now func() time.Time

	// Logger for repository events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Repository stores drafts and published posts under one mutex so every
// ID lives in exactly one of them. All reads return copies.
type Repository struct {
	mu        sync.Mutex
	drafts    map[string]*post.Post
	published map[string]*post.Post

	saver Saver
	newID func() string
	now   func() time.Time
	log   *slog.Logger
}

// New creates an empty Repository.
func New(cfg Config) *Repository {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Repository{
		drafts:    make(map[string]*post.Post),
		published: make(map[string]*post.Post),
		saver:     cfg.Saver,
		newID:     newID,
		now:       now,
		log:       logger.WithGroup("repo"),
	}
}

// Restore loads previously published posts. Existing entries with the same
// ID are replaced.
func (r *Repository) Restore(posts []*post.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range posts {
		c := p.Clone()
		c.Status = post.StatusPublished
		r.published[c.ID] = c
	}
	r.log.Info("restored posts", "count", len(posts))
}

// CreateDraft stores p as a new draft and returns its ID.
func (r *Repository) CreateDraft(p *post.Post) string {
	c := p.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.newID()
	c.Status = post.StatusDraft
	c.Downloads = 0
	c.Published = make(map[string]core.Handle)
	c.CreatedAt = r.now()
	r.drafts[c.ID] = c
	r.log.Debug("draft created", "id", c.ID, "title", c.Title)
	return c.ID
}

// GetDraft returns a copy of the draft with the given ID.
func (r *Repository) GetDraft(id string) (*post.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// GetPublished returns a copy of the published post with the given ID.
func (r *Repository) GetPublished(id string) (*post.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.published[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Get returns a copy of the post in either state.
func (r *Repository) Get(id string) (*post.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Promote moves a draft to the published set. Promoting a post that is
// already published is a no-op.
func (r *Repository) Promote(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.published[id]; ok {
		return nil
	}
	p, ok := r.drafts[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.drafts, id)
	p.Status = post.StatusPublished
	r.published[id] = p
	r.log.Info("post published", "id", id, "title", p.Title)
	r.persist()
	return nil
}

// CancelDraft deletes a draft. Published posts are not affected.
func (r *Repository) CancelDraft(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drafts[id]; ok {
		delete(r.drafts, id)
		r.log.Debug("draft cancelled", "id", id)
		return nil
	}
	if _, ok := r.published[id]; ok {
		return ErrNotDraft
	}
	return ErrNotFound
}

// DeletePublished removes a published post and returns it.
func (r *Repository) DeletePublished(id string) (*post.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.published[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.published, id)
	r.log.Info("post deleted", "id", id, "title", p.Title)
	r.persist()
	return p, nil
}

// IncrementDownloads bumps the download counter of a published post and
// returns the new value.
func (r *Repository) IncrementDownloads(id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.published[id]
	if !ok {
		return 0, ErrNotFound
	}
	p.Downloads++
	r.persist()
	return p.Downloads, nil
}

// UpdateField applies u to the post in either state.
func (r *Repository) UpdateField(id string, u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	next := p.Clone()
	if err := u.apply(next); err != nil {
		return err
	}
	*p = *next
	if p.Status == post.StatusPublished {
		r.persist()
	}
	return nil
}

// RecordPublishHandle stores the message handle for a channel key. Keys are
// never removed.
func (r *Repository) RecordPublishHandle(id, key string, h core.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.lookup(id)
	if err != nil {
		return err
	}
	if p.Published == nil {
		p.Published = make(map[string]core.Handle)
	}
	p.Published[key] = h
	if p.Status == post.StatusPublished {
		r.persist()
	}
	return nil
}

// ListPublished returns copies of all published posts, oldest first.
func (r *Repository) ListPublished() []*post.Post {
	return r.list(func(*post.Post) bool { return true })
}

// ListByCategory returns copies of the published posts in category, oldest
// first.
func (r *Repository) ListByCategory(category string) []*post.Post {
	return r.list(func(p *post.Post) bool { return p.Category == category })
}

// CountByCategory returns the number of published posts per category.
func (r *Repository) CountByCategory() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, p := range r.published {
		out[p.Category]++
	}
	return out
}

// Count returns the number of published posts.
func (r *Repository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

// Stats summarizes the published posts.
type Stats struct {
	Posts     int
	Downloads int
	Top       []*post.Post
}

// Stats returns totals and the top n posts by downloads.
func (r *Repository) Stats(n int) Stats {
	posts := r.ListPublished()
	var s Stats
	s.Posts = len(posts)
	for _, p := range posts {
		s.Downloads += p.Downloads
	}
	slices.SortStableFunc(posts, func(a, b *post.Post) int {
		return cmp.Compare(b.Downloads, a.Downloads)
	})
	if n > len(posts) {
		n = len(posts)
	}
	s.Top = posts[:n]
	return s
}

func (r *Repository) list(keep func(*post.Post) bool) []*post.Post {
	r.mu.Lock()
	out := make([]*post.Post, 0, len(r.published))
	for _, p := range r.published {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b *post.Post) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// lookup must be called with r.mu held.
func (r *Repository) lookup(id string) (*post.Post, error) {
	if p, ok := r.drafts[id]; ok {
		return p, nil
	}
	if p, ok := r.published[id]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

// persist writes the published set. Failures are logged only. Must be
// called with r.mu held.
func (r *Repository) persist() {
	if r.saver == nil {
		return
	}
	snapshot := make([]*post.Post, 0, len(r.published))
	for _, p := range r.published {
		snapshot = append(snapshot, p.Clone())
	}
	if err := r.saver.SavePosts(context.Background(), snapshot); err != nil {
		r.log.Error("failed to save posts", "error", err)
	}
}
