package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/kabili207/modgate/bot/render"
	"github.com/kabili207/modgate/bot/repo"
	"github.com/kabili207/modgate/core/access"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/transport/transporttest"
)

type testHarness struct {
	tr    *transporttest.Fake
	posts *repo.Repository
	sync  *Synchronizer
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	tr := transporttest.New()
	posts := repo.New(repo.Config{})
	dir := access.NewDirectory(map[string]string{"main": "@YAKMODS"}, "main")
	return &testHarness{
		tr:    tr,
		posts: posts,
		sync: New(Config{
			Transport: tr,
			Posts:     posts,
			Channels:  dir,
			Renderer:  render.New(tr, nil),
		}),
	}
}

func (h *testHarness) draft(channels ...string) string {
	return h.posts.CreateDraft(&post.Post{
		Title:            "Mod",
		Media:            post.Media{Kind: post.MediaPhoto, Ref: "photo-1"},
		Link:             "https://example.com",
		Category:         "mapping",
		SelectedChannels: channels,
		RequiredChannels: channels,
	})
}

func TestSync_CreateSendsToSelectedChannels(t *testing.T) {
	h := newTestHarness(t)
	id := h.draft("main", "@second")

	rep, err := h.sync.Sync(context.Background(), id, ModeCreate)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Sent != 2 || rep.Replaced != 0 || len(rep.Failed) != 0 {
		t.Errorf("report = %+v", rep)
	}
	p, _ := h.posts.Get(id)
	if got := p.Published["main"]; got.Chat != "@YAKMODS" || got.IsZero() {
		t.Errorf("main handle = %v", got)
	}
	if got := p.Published["@second"]; got.Chat != "@second" {
		t.Errorf("@second handle = %v", got)
	}

	sent, _ := h.tr.Last("@YAKMODS")
	if sent.Text != render.Caption(p) {
		t.Errorf("caption = %q", sent.Text)
	}
	btns := transporttest.Buttons(sent.Keyboard)
	if len(btns) != 1 || btns[0].URL != "https://t.me/modgate_bot?start=download_"+id {
		t.Errorf("buttons = %+v", btns)
	}
}

func TestSync_EditReplacesInPlace(t *testing.T) {
	h := newTestHarness(t)
	id := h.draft("main")
	h.sync.Sync(context.Background(), id, ModeCreate)
	h.posts.Promote(id)
	before, _ := h.posts.Get(id)

	h.posts.UpdateField(id, repo.SetTitle("New Title"))
	rep, err := h.sync.Sync(context.Background(), id, ModeEdit)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Replaced != 1 || rep.Sent != 0 {
		t.Errorf("report = %+v", rep)
	}
	after, _ := h.posts.Get(id)
	if after.Published["main"] != before.Published["main"] {
		t.Errorf("handle changed on replace: %v -> %v", before.Published["main"], after.Published["main"])
	}
	live, ok := h.tr.Live(after.Published["main"])
	if !ok || live.Text != render.Caption(after) {
		t.Errorf("live message = %+v", live)
	}
	if len(h.tr.SentTo("@YAKMODS")) != 1 {
		t.Error("edit should not send a second message")
	}
}

func TestSync_EditResendsWhenMessageGone(t *testing.T) {
	h := newTestHarness(t)
	id := h.draft("main")
	h.sync.Sync(context.Background(), id, ModeCreate)
	h.posts.Promote(id)
	before, _ := h.posts.Get(id)
	h.tr.Forget(before.Published["main"])

	rep, err := h.sync.Sync(context.Background(), id, ModeEdit)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if rep.Sent != 1 {
		t.Errorf("report = %+v, want one resend", rep)
	}
	after, _ := h.posts.Get(id)
	if after.Published["main"] == before.Published["main"] {
		t.Error("handle not updated after resend")
	}
}

func TestSync_FailureKeepsHandleAndContinues(t *testing.T) {
	h := newTestHarness(t)
	id := h.draft("main", "@second")
	h.sync.Sync(context.Background(), id, ModeCreate)
	before, _ := h.posts.Get(id)

	h.tr.FailSendsTo("@YAKMODS", true)
	rep, err := h.sync.Sync(context.Background(), id, ModeEdit)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(rep.Failed) != 1 || rep.Replaced != 1 {
		t.Errorf("report = %+v", rep)
	}
	if !errors.Is(rep.Failed["main"], transporttest.ErrInjected) {
		t.Errorf("failure = %v", rep.Failed["main"])
	}
	after, _ := h.posts.Get(id)
	if after.Published["main"] != before.Published["main"] {
		t.Error("failed channel lost its handle")
	}
}

func TestSync_CreateFailureLeavesNoHandle(t *testing.T) {
	h := newTestHarness(t)
	id := h.draft("main", "@second")
	h.tr.FailSendsTo("@second", true)
	rep, _ := h.sync.Sync(context.Background(), id, ModeCreate)
	if rep.OK() != 1 {
		t.Errorf("OK() = %d, want 1", rep.OK())
	}
	p, _ := h.posts.Get(id)
	if _, ok := p.Published["@second"]; ok {
		t.Error("failed channel recorded a handle")
	}
}

func TestSync_UnknownPost(t *testing.T) {
	h := newTestHarness(t)
	if _, err := h.sync.Sync(context.Background(), "missing", ModeEdit); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if len(h.tr.Sent()) != 0 {
		t.Error("unknown post triggered sends")
	}
}
