// Package chat derives the ephemeral chat window from an active booking and
// keeps a countdown of the time left.
package chat

import (
	"fmt"
	"time"

	"github.com/zulandar/wayfare/internal/models"
)

// DefaultTTL is how long a chat stays open after the invitation is accepted.
const DefaultTTL = 24 * time.Hour

// Countdown is the time left in a chat window, split for display.
type Countdown struct {
	Started bool          `json:"started"`
	Expired bool          `json:"expired"`
	Hours   int           `json:"hours"`
	Minutes int           `json:"minutes"`
	Left    time.Duration `json:"-"`
}

// String renders the countdown the way the chat header shows it.
func (c Countdown) String() string {
	switch {
	case !c.Started:
		return "Not started"
	case c.Expired:
		return "Expired"
	default:
		return fmt.Sprintf("%dh %dm", c.Hours, c.Minutes)
	}
}

// ExpiresAt returns when b's chat closes, or the zero time if the chat has not
// started.
func ExpiresAt(b *models.Booking, ttl time.Duration) time.Time {
	if b == nil || b.ChatStartedAt == nil {
		return time.Time{}
	}
	return b.ChatStartedAt.Add(ttlOrDefault(ttl))
}

// Remaining computes chatStartedAt + ttl - now. ttl <= 0 uses DefaultTTL.
func Remaining(b *models.Booking, now time.Time, ttl time.Duration) Countdown {
	end := ExpiresAt(b, ttl)
	if end.IsZero() {
		return Countdown{}
	}
	left := end.Sub(now)
	if left <= 0 {
		return Countdown{Started: true, Expired: true}
	}
	return Countdown{
		Started: true,
		Hours:   int(left / time.Hour),
		Minutes: int((left % time.Hour) / time.Minute),
		Left:    left,
	}
}

// IsExpired reports whether b's chat window has closed at now. A chat that
// has not started is not expired.
func IsExpired(b *models.Booking, now time.Time, ttl time.Duration) bool {
	return Remaining(b, now, ttl).Expired
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
