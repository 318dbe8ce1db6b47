package chat

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/wayfare/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func activeSince(ago time.Duration) *models.Booking {
	started := testNow.Add(-ago)
	return &models.Booking{ID: "b1", Status: models.BookingActive, ChatStartedAt: &started}
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		name    string
		booking *models.Booking
		ttl     time.Duration
		want    string
		hours   int
		minutes int
	}{
		{"just started", activeSince(0), 0, "24h 0m", 24, 0},
		{"partway", activeSince(90 * time.Minute), 0, "22h 30m", 22, 30},
		{"truncates seconds", activeSince(23*time.Hour + 59*time.Minute + 30*time.Second), 0, "0h 0m", 0, 0},
		{"exact expiry", activeSince(24 * time.Hour), 0, "Expired", 0, 0},
		{"25 hours", activeSince(25 * time.Hour), 0, "Expired", 0, 0},
		{"custom ttl", activeSince(time.Hour), 2 * time.Hour, "1h 0m", 1, 0},
		{"pending", &models.Booking{Status: models.BookingPending}, 0, "Not started", 0, 0},
		{"nil", nil, 0, "Not started", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Remaining(tt.booking, testNow, tt.ttl)
			if got.String() != tt.want {
				t.Errorf("String() = %q, want %q", got.String(), tt.want)
			}
			if got.Hours != tt.hours || got.Minutes != tt.minutes {
				t.Errorf("= %dh %dm, want %dh %dm", got.Hours, got.Minutes, tt.hours, tt.minutes)
			}
		})
	}
}

func TestExpiresAtAndIsExpired(t *testing.T) {
	b := activeSince(time.Hour)
	if got := ExpiresAt(b, 0); !got.Equal(testNow.Add(23 * time.Hour)) {
		t.Errorf("ExpiresAt = %v", got)
	}
	if !ExpiresAt(&models.Booking{}, 0).IsZero() {
		t.Error("ExpiresAt of unstarted chat should be zero")
	}
	if IsExpired(b, testNow, 0) {
		t.Error("1h-old chat reported expired")
	}
	if !IsExpired(activeSince(25*time.Hour), testNow, 0) {
		t.Error("25h-old chat not expired")
	}
	if IsExpired(&models.Booking{}, testNow, 0) {
		t.Error("unstarted chat reported expired")
	}
}

func TestParseSpec(t *testing.T) {
	for _, spec := range []string{"@every 1m", "*/5 * * * *", "@hourly"} {
		if _, err := ParseSpec(spec); err != nil {
			t.Errorf("ParseSpec(%q): %v", spec, err)
		}
	}
	_, err := ParseSpec("every minute")
	if err == nil || !strings.Contains(err.Error(), "chat: parse countdown schedule") {
		t.Errorf("err = %v", err)
	}
}

func TestStartTicker_DeliversImmediately(t *testing.T) {
	var got []Countdown
	tk, err := StartTicker(activeSince(time.Hour), TickerOpts{Now: func() time.Time { return testNow }}, func(c Countdown) {
		got = append(got, c)
	})
	if err != nil {
		t.Fatalf("StartTicker: %v", err)
	}
	defer tk.Stop()

	if len(got) == 0 {
		t.Fatal("no countdown delivered on start")
	}
	if got[0].String() != "23h 0m" {
		t.Errorf("first countdown = %q", got[0].String())
	}
}

func TestStartTicker_TicksAndStops(t *testing.T) {
	var mu sync.Mutex
	n := 0
	tk, err := StartTicker(activeSince(time.Hour), TickerOpts{Spec: "@every 1s"}, func(Countdown) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := n >= 2
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	tk.Stop()
	tk.Stop()

	mu.Lock()
	after := n
	mu.Unlock()
	if after < 2 {
		t.Fatalf("ticks = %d, want at least 2", after)
	}
	time.Sleep(1200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if n != after {
		t.Errorf("ticked after Stop: %d -> %d", after, n)
	}
}

func TestStartTicker_Errors(t *testing.T) {
	if _, err := StartTicker(nil, TickerOpts{}, func(Countdown) {}); err == nil {
		t.Error("expected error for nil booking")
	}
	if _, err := StartTicker(activeSince(0), TickerOpts{Spec: "bogus"}, func(Countdown) {}); err == nil {
		t.Error("expected error for bad spec")
	}
}
