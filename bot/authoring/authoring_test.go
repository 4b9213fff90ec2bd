package authoring

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kabili207/modgate/bot/broadcast"
	"github.com/kabili207/modgate/bot/publish"
	"github.com/kabili207/modgate/bot/render"
	"github.com/kabili207/modgate/bot/repo"
	"github.com/kabili207/modgate/bot/users"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/access"
	"github.com/kabili207/modgate/core/callback"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/transport/transporttest"
)

const (
	owner core.UserID = 1
	admin core.UserID = 2
	user  core.UserID = 100
)

type testHarness struct {
	tr    *transporttest.Fake
	posts *repo.Repository
	users *users.Registry
	roles *role.Set
	ctl   *Controller
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	tr := transporttest.New()
	posts := repo.New(repo.Config{})
	reg := users.New(users.Config{})
	roles := role.NewSet(role.SetConfig{Owner: owner, Admins: []core.UserID{admin}})
	dir := access.NewDirectory(map[string]string{"main": "@YAKMODS"}, "main")
	rnd := render.New(tr, nil)
	ctl := NewController(Config{
		Transport: tr,
		Posts:     posts,
		Roles:     roles,
		Publisher: publish.New(publish.Config{Transport: tr, Posts: posts, Channels: dir, Renderer: rnd}),
		Fanout: broadcast.New(broadcast.Config{
			Transport: tr, Posts: posts, Audience: reg, Staff: roles, Renderer: rnd, Delay: -1,
		}),
		Renderer:   rnd,
		Callbacks:  callback.New([]byte("test")),
		Categories: post.DefaultCategories,
		Channels:   dir,
	})
	return &testHarness{tr: tr, posts: posts, users: reg, roles: roles, ctl: ctl}
}

// walkToPreview drives a create session through every collecting state.
func (h *testHarness) walkToPreview(t *testing.T, who core.UserID, notify string) Session {
	t.Helper()
	ctx := context.Background()
	if err := h.ctl.StartCreate(ctx, who); err != nil {
		t.Fatalf("StartCreate: %v", err)
	}
	steps := []Input{
		{Media: &post.Media{Kind: post.MediaPhoto, Ref: "photo-1"}},
		{Text: "Cool Mod"},
		{File: &post.File{Ref: "doc-1", Name: "mod.zip", Size: 2 * 1024 * 1024}},
		{Choice: "mapping"},
		{Text: "@YAKMODS"},
		{Choice: notify},
	}
	for i, in := range steps {
		if err := h.ctl.Handle(ctx, who, in); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	s, ok := h.ctl.Session(who)
	if !ok || s.State != StatePreviewing {
		t.Fatalf("session = %+v, %v; want previewing", s, ok)
	}
	return s
}

func TestCreateFlow_PublishAndAnnounce(t *testing.T) {
	h := newTestHarness(t)
	for _, id := range []core.UserID{owner, admin, 100, 101, 102} {
		h.users.Register(id)
	}
	ctx := context.Background()

	s := h.walkToPreview(t, admin, NotifyYes)
	if len(s.Previews) != 2 {
		t.Fatalf("previews = %d, want 2", len(s.Previews))
	}
	d, err := h.posts.GetDraft(s.PostID)
	if err != nil {
		t.Fatalf("draft not created: %v", err)
	}
	if d.Title != "Cool Mod" || d.Category != "mapping" || d.File == nil || !d.NotifyOnPublish {
		t.Errorf("draft = %+v", d)
	}
	if len(d.RequiredChannels) != 1 || d.RequiredChannels[0] != "@YAKMODS" {
		t.Errorf("required = %v", d.RequiredChannels)
	}

	res, err := h.ctl.Confirm(ctx, admin)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Channels != 1 || res.Failed != 0 || res.Notified != 3 {
		t.Errorf("result = %+v", res)
	}

	p, err := h.posts.GetPublished(s.PostID)
	if err != nil {
		t.Fatalf("post not published: %v", err)
	}
	if p.Downloads != 0 {
		t.Errorf("downloads = %d", p.Downloads)
	}
	if hd := p.Published["@YAKMODS"]; hd.IsZero() || hd.Chat != "@YAKMODS" {
		t.Errorf("handle = %v", hd)
	}
	if _, err := h.posts.GetDraft(s.PostID); !errors.Is(err, repo.ErrNotFound) {
		t.Error("draft still present after confirm")
	}
	for _, hd := range s.Previews {
		if _, ok := h.tr.Live(hd); ok {
			t.Errorf("preview %v not deleted", hd)
		}
	}
	if h.ctl.Active(admin) {
		t.Error("session not cleared")
	}
	for _, id := range []core.UserID{100, 101, 102} {
		if len(h.tr.SentTo(core.UserChat(id))) != 1 {
			t.Errorf("user %d not notified", id)
		}
	}
	last, _ := h.tr.Last(core.UserChat(admin))
	if !strings.Contains(last.Text, "published") {
		t.Errorf("confirmation = %q", last.Text)
	}

	if _, err := h.ctl.Confirm(ctx, admin); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Confirm err = %v, want ErrNoSession", err)
	}
}

func TestCreateFlow_NoNotify(t *testing.T) {
	h := newTestHarness(t)
	h.users.Register(100)
	h.walkToPreview(t, owner, NotifyNo)
	res, err := h.ctl.Confirm(context.Background(), owner)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Notified != 0 || len(h.tr.SentTo(core.UserChat(100))) != 0 {
		t.Error("users notified despite opt-out")
	}
}

func TestCreateFlow_TitleTooLongReprompts(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.ctl.StartCreate(ctx, admin)
	h.ctl.Handle(ctx, admin, Input{Media: &post.Media{Kind: post.MediaVideo, Ref: "v"}})

	err := h.ctl.Handle(ctx, admin, Input{Text: strings.Repeat("x", 201)})
	if !errors.Is(err, post.ErrTitleTooLong) {
		t.Fatalf("err = %v, want ErrTitleTooLong", err)
	}
	s, _ := h.ctl.Session(admin)
	if s.State != StateAwaitingTitle || s.Draft.Title != "" {
		t.Errorf("session = %+v, want unchanged", s)
	}
	last, _ := h.tr.Last(core.UserChat(admin))
	if !strings.Contains(last.Text, "too long") {
		t.Errorf("re-prompt = %q", last.Text)
	}
	if h.posts.Count() != 0 {
		t.Error("validation failure created a post")
	}

	if err := h.ctl.Handle(ctx, admin, Input{Text: "Fine"}); err != nil {
		t.Fatalf("valid title rejected: %v", err)
	}
}

func TestCreateFlow_InvalidChannel(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.ctl.StartCreate(ctx, admin)
	for _, in := range []Input{
		{Media: &post.Media{Kind: post.MediaPhoto, Ref: "p"}},
		{Text: "T"},
		{Text: "https://example.com/mod"},
		{Text: "timers"},
	} {
		if err := h.ctl.Handle(ctx, admin, in); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if err := h.ctl.Handle(ctx, admin, Input{Text: "@bad-name"}); !errors.Is(err, post.ErrInvalidChannel) {
		t.Errorf("err = %v, want ErrInvalidChannel", err)
	}
	if err := h.ctl.Handle(ctx, admin, Input{Text: "all"}); err != nil {
		t.Fatalf("all rejected: %v", err)
	}
	s, _ := h.ctl.Session(admin)
	if len(s.Draft.SelectedChannels) != 1 || s.Draft.SelectedChannels[0] != "@YAKMODS" {
		t.Errorf("selected = %v", s.Draft.SelectedChannels)
	}
}

func TestCancelAtPreview(t *testing.T) {
	h := newTestHarness(t)
	s := h.walkToPreview(t, admin, NotifyNo)
	if err := h.ctl.Cancel(context.Background(), admin); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := h.posts.Get(s.PostID); !errors.Is(err, repo.ErrNotFound) {
		t.Error("draft survived cancel")
	}
	if len(h.tr.Deleted()) != 2 {
		t.Errorf("deleted = %v, want both previews", h.tr.Deleted())
	}
	if len(h.tr.SentTo("@YAKMODS")) != 0 {
		t.Error("cancelled post reached a channel")
	}
	if err := h.ctl.Cancel(context.Background(), admin); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Cancel err = %v", err)
	}
}

func TestRoleChecks(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	if err := h.ctl.StartCreate(ctx, user); !errors.Is(err, role.ErrForbidden) {
		t.Errorf("user StartCreate err = %v, want ErrForbidden", err)
	}

	h.ctl.StartCreate(ctx, admin)
	h.roles.Remove(admin)
	err := h.ctl.Handle(ctx, admin, Input{Media: &post.Media{Kind: post.MediaPhoto, Ref: "p"}})
	if !errors.Is(err, role.ErrForbidden) {
		t.Errorf("demoted Handle err = %v, want ErrForbidden", err)
	}
	if h.ctl.Active(admin) {
		t.Error("demoted admin kept session")
	}
}

func TestConfirm_DemotedAtPreview(t *testing.T) {
	h := newTestHarness(t)
	s := h.walkToPreview(t, admin, NotifyNo)
	h.roles.Remove(admin)
	if _, err := h.ctl.Confirm(context.Background(), admin); !errors.Is(err, role.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := h.posts.Get(s.PostID); !errors.Is(err, repo.ErrNotFound) {
		t.Error("draft survived forbidden confirm")
	}
}

func TestEditFlow_ReplacesInPlace(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	s := h.walkToPreview(t, admin, NotifyNo)
	h.ctl.Confirm(ctx, admin)
	before, _ := h.posts.GetPublished(s.PostID)

	if err := h.ctl.StartEdit(ctx, admin, s.PostID, FieldTitle); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if err := h.ctl.Handle(ctx, admin, Input{Text: "New Title"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	after, _ := h.posts.GetPublished(s.PostID)
	if after.Title != "New Title" {
		t.Errorf("title = %q", after.Title)
	}
	if after.Published["@YAKMODS"] != before.Published["@YAKMODS"] {
		t.Error("edit changed the channel handle")
	}
	live, _ := h.tr.Live(after.Published["@YAKMODS"])
	if !strings.Contains(live.Text, "New Title") {
		t.Errorf("channel caption = %q", live.Text)
	}
	if h.ctl.Active(admin) {
		t.Error("edit session not ended")
	}
	if h.posts.Count() != 1 {
		t.Error("edit created a post")
	}
}

func TestEditFlow_PayloadAndMedia(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	s := h.walkToPreview(t, admin, NotifyNo)
	h.ctl.Confirm(ctx, admin)

	h.ctl.StartEdit(ctx, admin, s.PostID, FieldPayload)
	if err := h.ctl.Handle(ctx, admin, Input{Text: "not a link"}); !errors.Is(err, post.ErrInvalidLink) {
		t.Errorf("err = %v, want ErrInvalidLink", err)
	}
	if !h.ctl.Active(admin) {
		t.Fatal("session ended on invalid input")
	}
	if err := h.ctl.Handle(ctx, admin, Input{Text: "https://example.com/new"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	p, _ := h.posts.GetPublished(s.PostID)
	if p.File != nil || p.Link != "https://example.com/new" {
		t.Errorf("payload = %v / %q", p.File, p.Link)
	}

	h.ctl.StartEdit(ctx, admin, s.PostID, FieldMedia)
	if err := h.ctl.Handle(ctx, admin, Input{Media: &post.Media{Kind: post.MediaAnimation, Ref: "gif"}}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	p, _ = h.posts.GetPublished(s.PostID)
	if p.Media.Kind != post.MediaAnimation {
		t.Errorf("media = %+v", p.Media)
	}
}

func TestEditFlow_PostDeleted(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	s := h.walkToPreview(t, admin, NotifyNo)
	h.ctl.Confirm(ctx, admin)
	h.ctl.StartEdit(ctx, admin, s.PostID, FieldTitle)
	h.posts.DeletePublished(s.PostID)

	if err := h.ctl.Handle(ctx, admin, Input{Text: "x"}); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if h.ctl.Active(admin) {
		t.Error("session kept for deleted post")
	}
	if err := h.ctl.StartEdit(ctx, admin, s.PostID, FieldTitle); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("StartEdit err = %v, want ErrNotFound", err)
	}
}

func TestStep(t *testing.T) {
	rules := Rules{Categories: post.DefaultCategories, AllChannels: []string{"@a", "@b"}}
	tests := []struct {
		name    string
		state   State
		in      Input
		want    State
		wantErr error
	}{
		{"media missing", StateAwaitingMedia, Input{Text: "hi"}, StateAwaitingMedia, post.ErrMissingField},
		{"media ok", StateAwaitingMedia, Input{Media: &post.Media{Kind: post.MediaPhoto, Ref: "x"}}, StateAwaitingTitle, nil},
		{"file missing", StateAwaitingFile, Input{}, StateAwaitingFile, post.ErrMissingField},
		{"category typed", StateAwaitingCategory, Input{Text: "effects"}, StateAwaitingChannels, nil},
		{"category unknown", StateAwaitingCategory, Input{Choice: "nope"}, StateAwaitingCategory, post.ErrUnknownCategory},
		{"channels all", StateAwaitingChannels, Input{Text: "all"}, StateAwaitingNotifyChoice, nil},
		{"notify bad", StateAwaitingNotifyChoice, Input{Text: "maybe"}, StateAwaitingNotifyChoice, post.ErrMissingField},
		{"preview", StatePreviewing, Input{Text: "x"}, StatePreviewing, ErrWrongState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Step(Session{State: tt.state}, tt.in, rules)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got.State != tt.want {
				t.Errorf("state = %v, want %v", got.State, tt.want)
			}
		})
	}
}
