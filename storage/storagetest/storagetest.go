// Package storagetest holds behaviour tests shared by every storage.Store
// implementation.
package storagetest

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/storage"
)

// Opener returns a store. Calling it twice with the same t must return
// stores over the same underlying data.
type Opener func(t *testing.T) storage.Store

// SamplePosts returns two published posts, one with a file and one with a
// link.
func SamplePosts() []*post.Post {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*post.Post{
		{
			ID:               "p1",
			Title:            "Cool Mod",
			Media:            post.Media{Kind: post.MediaPhoto, Ref: "photo-1"},
			File:             &post.File{Ref: "doc-1", Name: "mod.zip", Size: 2048},
			Category:         "mapping",
			RequiredChannels: []string{"@YAKMODS"},
			SelectedChannels: []string{"@YAKMODS"},
			Published:        map[string]core.Handle{"@YAKMODS": {Chat: "@YAKMODS", MessageID: 7}},
			Downloads:        3,
			NotifyOnPublish:  true,
			Status:           post.StatusPublished,
			CreatedAt:        created,
		},
		{
			ID:               "p2",
			Title:            "Linked",
			Media:            post.Media{Kind: post.MediaVideo, Ref: "vid"},
			Link:             "https://example.com/x",
			Category:         "other",
			RequiredChannels: []string{"@A", "@B"},
			SelectedChannels: []string{"@A"},
			Published:        map[string]core.Handle{},
			Status:           post.StatusPublished,
			CreatedAt:        created.Add(time.Minute),
		},
	}
}

// Run exercises the store contract.
func Run(t *testing.T, open Opener) {
	t.Run("EmptyLoad", func(t *testing.T) {
		s := open(t)
		snap, err := s.Load(context.Background())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(snap.Posts) != 0 || len(snap.Users.Known) != 0 {
			t.Errorf("snapshot = %+v", snap)
		}
	})

	t.Run("PostsRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		want := SamplePosts()
		if err := s.SavePosts(ctx, want); err != nil {
			t.Fatalf("SavePosts: %v", err)
		}
		snap, err := open(t).Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(snap.Posts) != 2 {
			t.Fatalf("posts = %d", len(snap.Posts))
		}
		got := snap.Posts[0]
		if got.ID != "p1" || got.Title != "Cool Mod" || got.File == nil || got.File.Name != "mod.zip" ||
			got.Downloads != 3 || !got.NotifyOnPublish || got.Status != post.StatusPublished ||
			!got.CreatedAt.Equal(want[0].CreatedAt) {
			t.Errorf("post = %+v", got)
		}
		if h := got.Published["@YAKMODS"]; h.MessageID != 7 {
			t.Errorf("handle = %+v", h)
		}
		link := snap.Posts[1]
		if link.File != nil || link.Link != "https://example.com/x" || !slices.Equal(link.RequiredChannels, []string{"@A", "@B"}) {
			t.Errorf("link post = %+v", link)
		}
		if link.Published == nil {
			t.Error("published map is nil")
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		posts := SamplePosts()
		if err := s.SavePosts(ctx, posts); err != nil {
			t.Fatal(err)
		}
		if err := s.SavePosts(ctx, posts[1:]); err != nil {
			t.Fatal(err)
		}
		snap, err := s.Load(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(snap.Posts) != 1 || snap.Posts[0].ID != "p2" {
			t.Errorf("posts = %v", snap.Posts)
		}
	})

	t.Run("UsersRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		s := open(t)
		in := storage.UserState{
			Known:  []core.UserID{100, 101},
			Banned: []core.UserID{101},
			Admins: []core.UserID{2, 3},
		}
		if err := s.SaveUsers(ctx, in); err != nil {
			t.Fatalf("SaveUsers: %v", err)
		}
		snap, err := open(t).Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !slices.Equal(snap.Users.Known, in.Known) || !slices.Equal(snap.Users.Banned, in.Banned) ||
			!slices.Equal(snap.Users.Admins, in.Admins) {
			t.Errorf("users = %+v", snap.Users)
		}
	})
}
