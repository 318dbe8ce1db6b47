package session

import (
	"context"
	"testing"
	"time"

	"github.com/zulandar/wayfare/internal/apperr"
	"github.com/zulandar/wayfare/internal/booking"
	"github.com/zulandar/wayfare/internal/chat"
	"github.com/zulandar/wayfare/internal/db"
	"github.com/zulandar/wayfare/internal/identity"
	"github.com/zulandar/wayfare/internal/messaging"
	"github.com/zulandar/wayfare/internal/models"
	"github.com/zulandar/wayfare/internal/realtime"
)

type env struct {
	bookings *booking.Manager
	messages *messaging.Service
	hub      *realtime.Hub
	booking  *models.Booking
}

func newEnv(t *testing.T, accept bool) *env {
	t.Helper()
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	hub := realtime.NewHub(32)
	t.Cleanup(hub.Close)

	e := &env{
		bookings: booking.NewManager(gormDB, booking.ManagerOpts{}),
		messages: messaging.NewService(gormDB, messaging.ServiceOpts{Hub: hub}),
		hub:      hub,
	}
	ctx := context.Background()
	b, err := e.bookings.Propose(ctx, booking.ProposeOpts{Self: "alice", Other: "bob", Tier: "local"})
	if err != nil {
		t.Fatal(err)
	}
	if accept {
		if b, err = e.bookings.Accept(ctx, b.ID, "bob"); err != nil {
			t.Fatal(err)
		}
	}
	e.booking = b
	return e
}

func (e *env) open(t *testing.T, party string, opts Opts) *Session {
	t.Helper()
	opts.BookingID = e.booking.ID
	opts.Identity = identity.Static(party)
	opts.Bookings = e.bookings
	opts.Messages = e.messages
	opts.Hub = e.hub
	s, err := Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Open(%s): %v", party, err)
	}
	t.Cleanup(s.Close)
	return s
}

func contents(s *Session) []string {
	msgs := s.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestOpen_LoadsVisibleMessages(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.messages.Send(ctx, e.booking.ID, "alice", "one")
	e.messages.Send(ctx, e.booking.ID, "bob", "two")

	s := e.open(t, "bob", Opts{})
	if got := contents(s); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("messages = %v", got)
	}
	if s.Viewer() != "bob" || s.Booking().ID != e.booking.ID {
		t.Errorf("viewer %q booking %q", s.Viewer(), s.Booking().ID)
	}
	if c := s.Countdown(); !c.Started || c.Expired {
		t.Errorf("countdown = %+v", c)
	}
}

func TestOpen_Errors(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	_, err := Open(ctx, Opts{BookingID: e.booking.ID, Identity: identity.Static(""), Bookings: e.bookings, Messages: e.messages})
	if err == nil {
		t.Error("expected error without identity")
	}
	_, err = Open(ctx, Opts{BookingID: e.booking.ID, Identity: identity.Static("mallory"), Bookings: e.bookings, Messages: e.messages})
	if !apperr.IsNotFound(err) {
		t.Errorf("outsider err = %v", err)
	}
	_, err = Open(ctx, Opts{BookingID: "missing", Identity: identity.Static("alice"), Bookings: e.bookings, Messages: e.messages})
	if !apperr.IsNotFound(err) {
		t.Errorf("missing booking err = %v", err)
	}
	_, err = Open(ctx, Opts{BookingID: e.booking.ID, Identity: identity.Static("alice"), Bookings: e.bookings, Messages: e.messages,
		Countdown: chat.TickerOpts{Spec: "never"}})
	if err == nil {
		t.Error("expected error for bad countdown schedule")
	}
}

func TestOpen_PendingHasNoCountdown(t *testing.T) {
	e := newEnv(t, false)
	s := e.open(t, "alice", Opts{})
	if got := s.Countdown().String(); got != "Not started" {
		t.Errorf("countdown = %q", got)
	}
}

func TestSend_AppearsForBothWithoutRefetch(t *testing.T) {
	e := newEnv(t, true)
	inserted := make(chan string, 4)
	alice := e.open(t, "alice", Opts{})
	bob := e.open(t, "bob", Opts{OnInsert: func(m models.Message) { inserted <- m.Content }})

	alice.SetDraft("hello")
	msg, err := alice.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if alice.Draft() != "" {
		t.Errorf("draft = %q, want cleared", alice.Draft())
	}

	select {
	case c := <-inserted:
		if c != "hello" {
			t.Errorf("OnInsert got %q", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bob never saw the insert")
	}
	// The stream echo must not duplicate alice's own row.
	time.Sleep(50 * time.Millisecond)
	if got := alice.Messages(); len(got) != 1 || got[0].ID != msg.ID {
		t.Errorf("alice messages = %+v", got)
	}
	waitFor(t, "bob's view", func() bool { return len(bob.Messages()) == 1 })
}

func TestSend_FailureRestoresDraft(t *testing.T) {
	e := newEnv(t, true)
	s := e.open(t, "alice", Opts{})
	if err := e.bookings.Cancel(context.Background(), e.booking.ID, "bob"); err != nil {
		t.Fatal(err)
	}

	s.SetDraft("are you there?")
	_, err := s.Send(context.Background(), "are you there?")
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if s.Draft() != "are you there?" {
		t.Errorf("draft = %q, want restored", s.Draft())
	}
	if len(s.Messages()) != 0 {
		t.Errorf("failed send left a message: %v", contents(s))
	}
}

func TestDeleteForEveryone_RemovesFromOpenViews(t *testing.T) {
	e := newEnv(t, true)
	alice := e.open(t, "alice", Opts{})
	bob := e.open(t, "bob", Opts{})
	oops, err := alice.Send(context.Background(), "oops")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "bob to see oops", func() bool { return len(bob.Messages()) == 1 })

	if err := alice.DeleteForEveryone(context.Background(), oops.ID); err != nil {
		t.Fatalf("DeleteForEveryone: %v", err)
	}
	if len(alice.Messages()) != 0 {
		t.Error("alice still sees oops")
	}
	waitFor(t, "bob's view to drop oops", func() bool { return len(bob.Messages()) == 0 })
}

func TestDeleteForEveryone_NotSenderRollsBack(t *testing.T) {
	e := newEnv(t, true)
	alice := e.open(t, "alice", Opts{})
	bob := e.open(t, "bob", Opts{})
	m, _ := alice.Send(context.Background(), "mine")
	waitFor(t, "bob to see mine", func() bool { return len(bob.Messages()) == 1 })

	err := bob.DeleteForEveryone(context.Background(), m.ID)
	if !apperr.IsForbidden(err) {
		t.Fatalf("err = %v, want forbidden", err)
	}
	if got := contents(bob); len(got) != 1 || got[0] != "mine" {
		t.Errorf("bob messages after rollback = %v", got)
	}
}

func TestDeleteForMe_OnlyViewerLosesMessage(t *testing.T) {
	e := newEnv(t, true)
	alice := e.open(t, "alice", Opts{})
	bob := e.open(t, "bob", Opts{})
	m, _ := bob.Send(context.Background(), "hello")
	waitFor(t, "alice to see hello", func() bool { return len(alice.Messages()) == 1 })

	if err := alice.DeleteForMe(context.Background(), m.ID); err != nil {
		t.Fatal(err)
	}
	if len(alice.Messages()) != 0 {
		t.Error("alice still sees hello")
	}
	// Bob ignores alice's hide.
	time.Sleep(50 * time.Millisecond)
	if len(bob.Messages()) != 1 {
		t.Errorf("bob messages = %v", contents(bob))
	}
}

func TestDeleteForMe_FailureRefetches(t *testing.T) {
	e := newEnv(t, true)
	alice := e.open(t, "alice", Opts{})
	alice.Send(context.Background(), "keep")

	if err := alice.DeleteForMe(context.Background(), 9999); !apperr.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
	if got := contents(alice); len(got) != 1 || got[0] != "keep" {
		t.Errorf("messages = %v", got)
	}
}

func TestClear_IsLocalToViewer(t *testing.T) {
	e := newEnv(t, true)
	alice := e.open(t, "alice", Opts{})
	bob := e.open(t, "bob", Opts{})
	alice.Send(context.Background(), "before")
	waitFor(t, "bob to see before", func() bool { return len(bob.Messages()) == 1 })

	if err := bob.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(bob.Messages()) != 0 {
		t.Error("bob's view not cleared")
	}
	if len(alice.Messages()) != 1 {
		t.Error("alice's view affected by bob's clear")
	}
	if err := bob.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(bob.Messages()) != 0 {
		t.Errorf("bob sees %v after refresh", contents(bob))
	}
}

func TestRefresh_RecoversAfterStreamLoss(t *testing.T) {
	e := newEnv(t, true)
	bob := e.open(t, "bob", Opts{})
	bob.sub.Unsubscribe()

	e.messages.Send(context.Background(), e.booking.ID, "alice", "missed")
	time.Sleep(50 * time.Millisecond)
	if len(bob.Messages()) != 0 {
		t.Fatal("closed stream still delivered")
	}
	if err := bob.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := contents(bob); len(got) != 1 || got[0] != "missed" {
		t.Errorf("messages = %v", got)
	}
}

func TestClose_Idempotent(t *testing.T) {
	e := newEnv(t, true)
	s := e.open(t, "alice", Opts{})
	s.Close()
	s.Close()
	if n := e.hub.Subscribers(e.booking.ID); n != 0 {
		t.Errorf("subscribers after Close = %d", n)
	}
}
