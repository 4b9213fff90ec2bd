package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kabili207/modgate/bot/users"
	"github.com/kabili207/modgate/core"
	"github.com/kabili207/modgate/core/callback"
	"github.com/kabili207/modgate/core/clock"
	"github.com/kabili207/modgate/core/post"
	"github.com/kabili207/modgate/core/role"
	"github.com/kabili207/modgate/transport"
	"github.com/kabili207/modgate/transport/transporttest"
)

const (
	owner     core.UserID = 1
	admin     core.UserID = 2
	submitter core.UserID = 100
)

type testHarness struct {
	tr    *transporttest.Fake
	users *users.Registry
	roles *role.Set
	time  *clock.Manual
	codec *callback.Codec
	wf    *Workflow
}

func newTestHarness(t *testing.T, threshold int) *testHarness {
	t.Helper()
	clk, m := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	tr := transporttest.New()
	reg := users.New(users.Config{Cooldown: 60 * time.Second, Threshold: threshold, Clock: clk})
	roles := role.NewSet(role.SetConfig{Owner: owner, Admins: []core.UserID{admin}})
	codec := callback.New([]byte("k"))
	n := 0
	wf := New(Config{
		Transport: tr,
		Users:     reg,
		Roles:     roles,
		Clock:     clk,
		Callbacks: codec,
		NewID: func() string {
			n++
			return fmt.Sprintf("sugg%04d-0000-0000-0000-000000000000", n)
		},
	})
	return &testHarness{tr: tr, users: reg, roles: roles, time: m, codec: codec, wf: wf}
}

func (h *testHarness) submit(t *testing.T, user core.UserID, text string) (*Suggestion, error) {
	t.Helper()
	ctx := context.Background()
	if err := h.wf.Begin(ctx, user); err != nil {
		return nil, err
	}
	return h.wf.Submit(ctx, user, &transport.Message{From: user, Text: text, Private: true})
}

func TestSubmit_DeliversToOwnerInbox(t *testing.T) {
	h := newTestHarness(t, 10)
	s, err := h.submit(t, submitter, "Add more maps")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.Resolution != Pending || s.Inbox.Chat != core.UserChat(owner) {
		t.Errorf("suggestion = %+v", s)
	}
	msg, ok := h.tr.Live(s.Inbox)
	if !ok {
		t.Fatal("inbox message missing")
	}
	if !strings.Contains(msg.Text, "Add more maps") || !strings.Contains(msg.Text, "#"+s.ShortID()) {
		t.Errorf("inbox text = %q", msg.Text)
	}
	btns := transporttest.Buttons(msg.Keyboard)
	if len(btns) != 2 {
		t.Fatalf("buttons = %+v", btns)
	}
	d, err := h.codec.Decode(btns[0].Data)
	if err != nil || d.Action != ActionApprovePress || d.Arg(0) != s.ID {
		t.Errorf("approve button = %+v, %v", d, err)
	}
	if h.wf.Submitting(submitter) {
		t.Error("session left open")
	}
}

func TestSubmit_PhotoSuggestion(t *testing.T) {
	h := newTestHarness(t, 10)
	ctx := context.Background()
	h.wf.Begin(ctx, submitter)
	s, err := h.wf.Submit(ctx, submitter, &transport.Message{
		From:  submitter,
		Text:  "look",
		Media: &post.Media{Kind: post.MediaPhoto, Ref: "ph"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	msg, _ := h.tr.Live(s.Inbox)
	if msg.Kind != transporttest.KindMedia || msg.Media.Ref != "ph" {
		t.Errorf("inbox message = %+v", msg)
	}
}

func TestSubmit_Empty(t *testing.T) {
	h := newTestHarness(t, 10)
	ctx := context.Background()
	h.wf.Begin(ctx, submitter)
	if _, err := h.wf.Submit(ctx, submitter, &transport.Message{From: submitter}); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
	if !h.wf.Submitting(submitter) {
		t.Error("empty input should keep the prompt open")
	}
}

func TestSubmit_WithoutSession(t *testing.T) {
	h := newTestHarness(t, 10)
	if _, err := h.wf.Submit(context.Background(), submitter, &transport.Message{Text: "x"}); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestSubmit_CooldownAndBan(t *testing.T) {
	h := newTestHarness(t, 2)

	if _, err := h.submit(t, submitter, "first"); err != nil {
		t.Fatalf("first: %v", err)
	}

	h.time.Advance(4 * time.Second)
	_, err := h.submit(t, submitter, "second")
	var ce *CooldownError
	if !errors.As(err, &ce) {
		t.Fatalf("second err = %v, want CooldownError", err)
	}
	if ce.Remaining != 56 || ce.Violations != 1 {
		t.Errorf("cooldown = %+v", ce)
	}
	last, _ := h.tr.Last(core.UserChat(submitter))
	if !strings.Contains(last.Text, "wait 56 seconds") {
		t.Errorf("reply = %q", last.Text)
	}

	h.time.Advance(4 * time.Second)
	if _, err := h.submit(t, submitter, "third"); !errors.Is(err, ErrBanned) {
		t.Fatalf("third err = %v, want ErrBanned", err)
	}
	if !h.users.IsBanned(submitter) {
		t.Error("user not banned at threshold")
	}
	if h.wf.PendingCount() != 1 {
		t.Errorf("pending = %d, want only the first", h.wf.PendingCount())
	}

	// Even after the cooldown a banned user is refused.
	h.time.Advance(time.Hour)
	if _, err := h.submit(t, submitter, "fourth"); !errors.Is(err, ErrBanned) {
		t.Errorf("after ban err = %v, want ErrBanned", err)
	}
}

func TestSubmit_DefaultThresholdTakesFourRapidAttempts(t *testing.T) {
	h := newTestHarness(t, 3)
	h.submit(t, submitter, "1")
	for i := 0; i < 2; i++ {
		h.time.Advance(time.Second)
		if _, err := h.submit(t, submitter, "x"); !errors.Is(err, ErrCooldown) {
			t.Fatalf("attempt %d err = %v, want ErrCooldown", i+2, err)
		}
	}
	h.time.Advance(time.Second)
	if _, err := h.submit(t, submitter, "x"); !errors.Is(err, ErrBanned) {
		t.Fatalf("4th attempt err = %v, want ErrBanned", err)
	}
}

func TestSubmit_CooldownRecheckedOnText(t *testing.T) {
	h := newTestHarness(t, 10)
	ctx := context.Background()
	// Open two prompts before either is submitted.
	h.wf.Begin(ctx, submitter)
	if _, err := h.wf.Submit(ctx, submitter, &transport.Message{From: submitter, Text: "a"}); err != nil {
		t.Fatal(err)
	}
	h.time.Advance(61 * time.Second)
	h.wf.Begin(ctx, submitter)
	h.time.Advance(-60 * time.Second)
	if _, err := h.wf.Submit(ctx, submitter, &transport.Message{From: submitter, Text: "b"}); !errors.Is(err, ErrCooldown) {
		t.Errorf("err = %v, want ErrCooldown on text arrival", err)
	}
}

func TestReview_ApproveFlow(t *testing.T) {
	h := newTestHarness(t, 10)
	ctx := context.Background()
	s, _ := h.submit(t, submitter, "idea")

	if err := h.wf.StartReview(ctx, admin, s.ID, ActionApprove); err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	cleared := h.tr.Cleared()
	if len(cleared) != 1 || cleared[0] != s.Inbox {
		t.Errorf("cleared = %v, want inbox", cleared)
	}
	if !h.wf.Reviewing(admin) {
		t.Fatal("reviewer session missing")
	}

	got, err := h.wf.Comment(ctx, admin, "great idea")
	if err != nil {
		t.Fatalf("Comment: %v", err)
	}
	if got.Resolution != Approved || got.Comment != "great idea" || got.ReviewerID != admin {
		t.Errorf("resolved = %+v", got)
	}
	verdict, _ := h.tr.Last(core.UserChat(submitter))
	if !strings.Contains(verdict.Text, "approved") || !strings.Contains(verdict.Text, "great idea") {
		t.Errorf("verdict = %q", verdict.Text)
	}
}

func TestReview_SecondPressRejected(t *testing.T) {
	h := newTestHarness(t, 10)
	ctx := context.Background()
	s, _ := h.submit(t, submitter, "idea")

	h.wf.StartReview(ctx, owner, s.ID, ActionReject)
	if err := h.wf.StartReview(ctx, admin, s.ID, ActionApprove); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("concurrent press err = %v, want ErrAlreadyResolved", err)
	}
	h.wf.Comment(ctx, owner, "no")

	if err := h.wf.StartReview(ctx, admin, s.ID, ActionApprove); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("press after resolution err = %v, want ErrAlreadyResolved", err)
	}
	if err := h.wf.StartReview(ctx, admin, "unknown", ActionApprove); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
	got, _ := h.wf.Get(s.ID)
	if got.Resolution != Rejected {
		t.Errorf("resolution = %v, want rejected", got.Resolution)
	}
	if n := len(h.tr.SentTo(core.UserChat(submitter))); n != 3 {
		// prompt, thanks, one verdict
		t.Errorf("submitter messages = %d, want 3", n)
	}
}

func TestResolve_ExactlyOnce(t *testing.T) {
	h := newTestHarness(t, 10)
	s, _ := h.submit(t, submitter, "idea")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := ActionApprove
			if i%2 == 0 {
				action = ActionReject
			}
			if _, err := h.wf.Resolve(s.Inbox, action, admin, "c"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("successful resolutions = %d, want 1", wins)
	}
}

func TestReview_Forbidden(t *testing.T) {
	h := newTestHarness(t, 10)
	ctx := context.Background()
	s, _ := h.submit(t, submitter, "idea")
	if err := h.wf.StartReview(ctx, submitter, s.ID, ActionApprove); !errors.Is(err, role.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}

	h.wf.StartReview(ctx, admin, s.ID, ActionApprove)
	h.roles.Remove(admin)
	if _, err := h.wf.Comment(ctx, admin, "ok"); !errors.Is(err, role.ErrForbidden) {
		t.Errorf("demoted comment err = %v, want ErrForbidden", err)
	}
	got, _ := h.wf.Get(s.ID)
	if got.Resolution != Pending {
		t.Error("demoted reviewer resolved suggestion")
	}
	if msg, ok := h.tr.Live(got.Inbox); !ok || len(transporttest.Buttons(msg.Keyboard)) != 2 {
		t.Errorf("inbox buttons not restored: %+v", msg)
	}
	// Released for another reviewer.
	if err := h.wf.StartReview(ctx, owner, s.ID, ActionApprove); err != nil {
		t.Errorf("owner StartReview after release: %v", err)
	}
}

func TestReview_OneAtATime(t *testing.T) {
	h := newTestHarness(t, 10)
	ctx := context.Background()
	a, _ := h.submit(t, submitter, "a")
	b, _ := h.submit(t, 101, "b")
	h.wf.StartReview(ctx, admin, a.ID, ActionApprove)
	if err := h.wf.StartReview(ctx, admin, b.ID, ActionApprove); !errors.Is(err, ErrReviewInProgress) {
		t.Errorf("err = %v, want ErrReviewInProgress", err)
	}
}

func TestReview_CancelRestoresInbox(t *testing.T) {
	h := newTestHarness(t, 10)
	ctx := context.Background()
	s, _ := h.submit(t, submitter, "idea")
	h.wf.StartReview(ctx, owner, s.ID, ActionApprove)

	if err := h.wf.CancelReview(ctx, owner); err != nil {
		t.Fatalf("CancelReview: %v", err)
	}
	if h.wf.Reviewing(owner) {
		t.Error("review still open")
	}
	got, _ := h.wf.Get(s.ID)
	if got.Resolution != Pending {
		t.Fatalf("resolution = %v, want pending", got.Resolution)
	}
	if got.Inbox == s.Inbox {
		t.Fatal("text inbox should be sent again")
	}
	msg, ok := h.tr.Live(got.Inbox)
	if !ok || !strings.Contains(msg.Text, "idea") || len(transporttest.Buttons(msg.Keyboard)) != 2 {
		t.Errorf("restored inbox = %+v", msg)
	}
	if _, err := h.wf.Resolve(s.Inbox, ActionApprove, owner, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old inbox resolve err = %v, want ErrNotFound", err)
	}
	if n := len(h.tr.SentTo(core.UserChat(submitter))); n != 2 {
		t.Errorf("submitter messages = %d, want no verdict", n)
	}

	// Another reviewer can pick it up from the new message.
	if err := h.wf.StartReview(ctx, admin, s.ID, ActionReject); err != nil {
		t.Fatalf("StartReview after cancel: %v", err)
	}
	res, err := h.wf.Comment(ctx, admin, "no")
	if err != nil || res.Resolution != Rejected {
		t.Errorf("Comment = %+v, %v", res, err)
	}
}

func TestReview_CancelPhotoEditsInPlace(t *testing.T) {
	h := newTestHarness(t, 10)
	ctx := context.Background()
	h.wf.Begin(ctx, submitter)
	s, err := h.wf.Submit(ctx, submitter, &transport.Message{
		From:  submitter,
		Text:  "look",
		Media: &post.Media{Kind: post.MediaPhoto, Ref: "ph"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.wf.StartReview(ctx, owner, s.ID, ActionApprove)
	h.wf.CancelReview(ctx, owner)

	got, _ := h.wf.Get(s.ID)
	if got.Inbox != s.Inbox {
		t.Errorf("inbox moved to %v, want edit in place", got.Inbox)
	}
	msg, _ := h.tr.Live(s.Inbox)
	if msg.Media.Ref != "ph" || len(transporttest.Buttons(msg.Keyboard)) != 2 {
		t.Errorf("inbox = %+v", msg)
	}
}

func TestCancelReview_WithoutSession(t *testing.T) {
	h := newTestHarness(t, 10)
	if err := h.wf.CancelReview(context.Background(), owner); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}
