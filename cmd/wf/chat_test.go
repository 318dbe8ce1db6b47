package main

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/wayfare/internal/booking"
	"github.com/zulandar/wayfare/internal/chat"
	"github.com/zulandar/wayfare/internal/db"
	"github.com/zulandar/wayfare/internal/identity"
	"github.com/zulandar/wayfare/internal/messaging"
	"github.com/zulandar/wayfare/internal/models"
	"github.com/zulandar/wayfare/internal/realtime"
	"github.com/zulandar/wayfare/internal/session"
)

// activeBooking proposes and accepts a booking between alice and bob.
func activeBooking(t *testing.T, cfgPath string) string {
	t.Helper()
	id := propose(t, cfgPath, "alice", "bob", "local")
	if out, err := run(t, "booking", "accept", id, "--config", cfgPath, "--as", "bob"); err != nil {
		t.Fatalf("accept failed: %v\n%s", err, out)
	}
	return id
}

func TestChatCmd_Help(t *testing.T) {
	out, err := run(t, "chat", "--help")
	if err != nil {
		t.Fatalf("chat --help failed: %v", err)
	}
	for _, sub := range []string{"send", "list", "unsend", "hide", "clear", "remaining", "watch"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected chat help to list %q, got: %s", sub, out)
		}
	}
}

func TestChatCmd_SendAndList(t *testing.T) {
	cfgPath := initDB(t)
	id := activeBooking(t, cfgPath)

	out, err := run(t, "chat", "send", id, "Hi!", "--config", cfgPath, "--as", "alice")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.Contains(out, "Sent message 1") {
		t.Errorf("expected sent confirmation, got: %s", out)
	}
	if _, err := run(t, "chat", "send", id, "Hello", "--config", cfgPath, "--as", "bob"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	out, err = run(t, "chat", "list", id, "--config", cfgPath, "--as", "bob")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	hi, hello := strings.Index(out, "Hi!"), strings.Index(out, "Hello")
	if hi < 0 || hello < 0 || hi > hello {
		t.Errorf("expected Hi! before Hello, got: %s", out)
	}
}

func TestChatCmd_SendToPendingFails(t *testing.T) {
	cfgPath := initDB(t)
	id := propose(t, cfgPath, "alice", "bob", "local")

	if _, err := run(t, "chat", "send", id, "too soon", "--config", cfgPath, "--as", "alice"); err == nil {
		t.Fatal("expected send on a pending booking to fail")
	}
}

func TestChatCmd_HideIsPerViewer(t *testing.T) {
	cfgPath := initDB(t)
	id := activeBooking(t, cfgPath)
	if _, err := run(t, "chat", "send", id, "secret", "--config", cfgPath, "--as", "alice"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	out, err := run(t, "chat", "hide", "1", "--config", cfgPath, "--as", "bob")
	if err != nil {
		t.Fatalf("hide failed: %v", err)
	}
	if !strings.Contains(out, "Hid message 1") {
		t.Errorf("expected hide confirmation, got: %s", out)
	}

	out, _ = run(t, "chat", "list", id, "--config", cfgPath, "--as", "bob")
	if !strings.Contains(out, "No messages") {
		t.Errorf("expected bob's view to be empty, got: %s", out)
	}
	out, _ = run(t, "chat", "list", id, "--config", cfgPath, "--as", "alice")
	if !strings.Contains(out, "secret") {
		t.Errorf("expected alice to still see the message, got: %s", out)
	}
}

func TestChatCmd_UnsendOnlyBySender(t *testing.T) {
	cfgPath := initDB(t)
	id := activeBooking(t, cfgPath)
	if _, err := run(t, "chat", "send", id, "oops", "--config", cfgPath, "--as", "alice"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if _, err := run(t, "chat", "unsend", "1", "--config", cfgPath, "--as", "bob"); err == nil {
		t.Fatal("expected unsend by the recipient to fail")
	}
	if _, err := run(t, "chat", "unsend", "1", "--config", cfgPath, "--as", "alice"); err != nil {
		t.Fatalf("unsend failed: %v", err)
	}
	for _, party := range []string{"alice", "bob"} {
		out, _ := run(t, "chat", "list", id, "--config", cfgPath, "--as", party)
		if strings.Contains(out, "oops") {
			t.Errorf("%s still sees the unsent message: %s", party, out)
		}
	}
}

func TestChatCmd_BadMessageID(t *testing.T) {
	cfgPath := initDB(t)
	_, err := run(t, "chat", "hide", "abc", "--config", cfgPath, "--as", "bob")
	if err == nil || !strings.Contains(err.Error(), "invalid message id") {
		t.Fatalf("expected invalid message id, got: %v", err)
	}
}

func TestChatCmd_ClearIsPerViewer(t *testing.T) {
	cfgPath := initDB(t)
	id := activeBooking(t, cfgPath)
	if _, err := run(t, "chat", "send", id, "before", "--config", cfgPath, "--as", "alice"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	out, err := run(t, "chat", "clear", id, "--config", cfgPath, "--as", "alice")
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !strings.Contains(out, "Cleared chat") {
		t.Errorf("expected clear confirmation, got: %s", out)
	}

	out, _ = run(t, "chat", "list", id, "--config", cfgPath, "--as", "alice")
	if !strings.Contains(out, "No messages") {
		t.Errorf("expected alice's history to be cleared, got: %s", out)
	}
	out, _ = run(t, "chat", "list", id, "--config", cfgPath, "--as", "bob")
	if !strings.Contains(out, "before") {
		t.Errorf("expected bob's history untouched, got: %s", out)
	}
}

func TestChatCmd_Remaining(t *testing.T) {
	cfgPath := initDB(t)
	pending := propose(t, cfgPath, "alice", "carol", "local")
	out, err := run(t, "chat", "remaining", pending, "--config", cfgPath, "--as", "carol")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if strings.TrimSpace(out) != "Not started" {
		t.Errorf("pending remaining = %q, want Not started", out)
	}

	id := activeBooking(t, cfgPath)
	out, err = run(t, "chat", "remaining", id, "--config", cfgPath, "--as", "alice")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if !strings.Contains(out, "h ") || !strings.HasSuffix(strings.TrimSpace(out), "m") {
		t.Errorf("expected an hours and minutes countdown, got: %q", out)
	}

	orig := timeNow
	timeNow = func() time.Time { return time.Now().Add(25 * time.Hour) }
	defer func() { timeNow = orig }()
	out, err = run(t, "chat", "remaining", id, "--config", cfgPath, "--as", "alice")
	if err != nil {
		t.Fatalf("remaining failed: %v", err)
	}
	if strings.TrimSpace(out) != "Expired" {
		t.Errorf("remaining after 25h = %q, want Expired", out)
	}

	if _, err := run(t, "chat", "remaining", id, "--config", cfgPath, "--as", "mallory"); err == nil {
		t.Fatal("expected outsider to get an error")
	}
}

func TestChatWatchCmd_Help(t *testing.T) {
	out, err := run(t, "chat", "watch", "--help")
	if err != nil {
		t.Fatalf("chat watch --help failed: %v", err)
	}
	for _, want := range []string{"--poll", "/clear", "/hide"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected watch help to mention %q, got: %s", want, out)
		}
	}
}

// openWatchSession opens a session for viewer on an active in-memory booking.
func openWatchSession(t *testing.T, viewer string) (*session.Session, *messaging.Service, *models.Booking) {
	t.Helper()
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	ctx := context.Background()
	mgr := booking.NewManager(gormDB, booking.ManagerOpts{})
	b, err := mgr.Propose(ctx, booking.ProposeOpts{Self: "alice", Other: "bob", Tier: "local"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if b, err = mgr.Accept(ctx, b.ID, "bob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	hub := realtime.NewHub(0)
	t.Cleanup(hub.Close)
	msgs := messaging.NewService(gormDB, messaging.ServiceOpts{Hub: hub})
	s, err := session.Open(ctx, session.Opts{
		BookingID: b.ID,
		Identity:  identity.Static(viewer),
		Bookings:  mgr,
		Messages:  msgs,
		Hub:       hub,
		Countdown: chat.TickerOpts{Spec: "@every 1h"},
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(s.Close)
	return s, msgs, b
}

func TestRunWatchLine_SendsText(t *testing.T) {
	s, _, _ := openWatchSession(t, "alice")
	ctx := context.Background()

	if err := runWatchLine(ctx, s, "   "); err != nil {
		t.Fatalf("blank line: %v", err)
	}
	if err := runWatchLine(ctx, s, "  see you at the station  "); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := s.Messages()
	if len(got) != 1 || got[0].Content != "see you at the station" {
		t.Fatalf("messages = %+v, want the sent line", got)
	}
	if s.Draft() != "" {
		t.Errorf("draft = %q, want empty after send", s.Draft())
	}
}

func TestRunWatchLine_Commands(t *testing.T) {
	s, msgs, b := openWatchSession(t, "bob")
	ctx := context.Background()

	first, err := msgs.Send(ctx, b.ID, "alice", "one")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := msgs.Send(ctx, b.ID, "bob", "two"); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Messages()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("session saw %d messages, want 2", len(s.Messages()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := runWatchLine(ctx, s, "/hide"); err == nil {
		t.Error("expected usage error for /hide without id")
	}
	if err := runWatchLine(ctx, s, "/unsend nope"); err == nil {
		t.Error("expected error for bad id")
	}
	if err := runWatchLine(ctx, s, "/unsend "+strconv.FormatUint(uint64(first.ID), 10)); err == nil {
		t.Error("expected bob to be unable to unsend alice's message")
	}
	if err := runWatchLine(ctx, s, "/hide "+strconv.FormatUint(uint64(first.ID), 10)); err != nil {
		t.Fatalf("/hide: %v", err)
	}
	if got := s.Messages(); len(got) != 1 || got[0].Content != "two" {
		t.Fatalf("after hide = %+v, want only two", got)
	}
	if err := runWatchLine(ctx, s, "/clear"); err != nil {
		t.Fatalf("/clear: %v", err)
	}
	if got := s.Messages(); len(got) != 0 {
		t.Errorf("after clear = %+v, want empty", got)
	}
}

func TestPrinter_DedupsAndPrintsCountdown(t *testing.T) {
	buf := new(bytes.Buffer)
	p := newPrinter(buf)
	if p.tty {
		t.Fatal("a buffer is not a terminal")
	}

	now := time.Now()
	p.message(models.Message{ID: 1, SenderID: "alice", Content: "hi", CreatedAt: now})
	p.message(models.Message{ID: 1, SenderID: "alice", Content: "hi", CreatedAt: now})
	p.message(models.Message{ID: 2, SenderID: "bob", Content: "hey", CreatedAt: now})
	p.countdown(chat.Countdown{Started: true, Hours: 3, Minutes: 5})
	p.countdown(chat.Countdown{Started: true, Hours: 3, Minutes: 5})
	p.notice("error: %s", "boom")

	out := buf.String()
	if n := strings.Count(out, "alice: hi"); n != 1 {
		t.Errorf("message 1 printed %d times, want 1:\n%s", n, out)
	}
	if !strings.Contains(out, "#2 bob: hey") {
		t.Errorf("expected message 2, got:\n%s", out)
	}
	if n := strings.Count(out, "Time left: 3h 5m"); n != 1 {
		t.Errorf("countdown printed %d times, want 1:\n%s", n, out)
	}
	if !strings.Contains(out, "error: boom") {
		t.Errorf("expected notice, got:\n%s", out)
	}
	if strings.Contains(out, "\033[2K") {
		t.Errorf("non-terminal output should not contain escapes:\n%s", out)
	}
}

func TestReadLines(t *testing.T) {
	lines := make(chan string)
	go readLines(strings.NewReader("a\nb\n"), lines)
	var got []string
	for l := range lines {
		got = append(got, l)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("lines = %v, want [a b]", got)
	}
}
