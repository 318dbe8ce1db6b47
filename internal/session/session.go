// Package session holds the state of one open chat view: the viewer's
// message list kept fresh by change events, the unsent draft, and the
// countdown to chat expiry.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/zulandar/wayfare/internal/apperr"
	"github.com/zulandar/wayfare/internal/booking"
	"github.com/zulandar/wayfare/internal/chat"
	"github.com/zulandar/wayfare/internal/identity"
	"github.com/zulandar/wayfare/internal/messaging"
	"github.com/zulandar/wayfare/internal/models"
	"github.com/zulandar/wayfare/internal/realtime"
)

// Opts holds the collaborators and callbacks for a session.
type Opts struct {
	BookingID string
	Identity  identity.Provider
	Bookings  *booking.Manager
	Messages  *messaging.Service
	Hub       *realtime.Hub
	Countdown chat.TickerOpts

	OnInsert    func(models.Message) // a new message landed at the end of the list
	OnCountdown func(chat.Countdown)
}

// Session is an open chat view. Methods are safe for concurrent use.
type Session struct {
	viewer   string
	booking  *models.Booking
	messages *messaging.Service

	view   *realtime.View
	sub    *realtime.Subscription
	ticker *chat.Ticker
	cancel context.CancelFunc
	done   chan struct{}

	onInsert    func(models.Message)
	onCountdown func(chat.Countdown)

	mu        sync.Mutex
	draft     string
	countdown chat.Countdown

	closeOnce sync.Once
}

// Open resolves the viewer, loads the booking and its visible messages, and
// starts following changes. The subscription is taken before the initial
// fetch so no change between the two is missed.
func Open(ctx context.Context, opts Opts) (*Session, error) {
	const op = "session: open"

	viewer, err := opts.Identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, apperr.Validation(op, err.Error())
	}
	b, err := opts.Bookings.Get(ctx, opts.BookingID)
	if err != nil {
		return nil, err
	}
	if !b.HasParty(viewer) {
		return nil, apperr.NotFound(op, "booking not found: "+opts.BookingID)
	}

	s := &Session{
		viewer:      viewer,
		booking:     b,
		messages:    opts.Messages,
		onInsert:    opts.OnInsert,
		onCountdown: opts.OnCountdown,
		done:        make(chan struct{}),
	}

	if opts.Hub != nil {
		s.sub = opts.Hub.Subscribe(b.ID)
	}
	msgs, err := opts.Messages.ListVisible(ctx, b.ID, viewer)
	if err != nil {
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
		return nil, err
	}
	s.view = realtime.NewView(viewer, msgs)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.sub != nil {
		go func() {
			defer close(s.done)
			realtime.Dispatch(runCtx, s.sub, s.view, s.onInsert)
		}()
	} else {
		close(s.done)
	}

	if b.ChatStartedAt != nil {
		s.ticker, err = chat.StartTicker(b, opts.Countdown, s.setCountdown)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return s, nil
}

// Viewer returns the party this session belongs to.
func (s *Session) Viewer() string { return s.viewer }

// Booking returns the booking as loaded when the session opened.
func (s *Session) Booking() *models.Booking { return s.booking }

// Messages returns the current visible message list.
func (s *Session) Messages() []models.Message { return s.view.Messages() }

// Draft returns the unsent input text.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the unsent input text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// Countdown returns the most recently computed time left.
func (s *Session) Countdown() chat.Countdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}

func (s *Session) setCountdown(c chat.Countdown) {
	s.mu.Lock()
	s.countdown = c
	s.mu.Unlock()
	if s.onCountdown != nil {
		s.onCountdown(c)
	}
}

// Send posts text. The draft is cleared up front and restored if the send
// fails. The stored row is appended at once; the stream echo is ignored as a
// duplicate.
func (s *Session) Send(ctx context.Context, text string) (*models.Message, error) {
	s.mu.Lock()
	s.draft = ""
	s.mu.Unlock()

	msg, err := s.messages.Send(ctx, s.booking.ID, s.viewer, text)
	if err != nil {
		s.mu.Lock()
		if s.draft == "" {
			s.draft = text
		}
		s.mu.Unlock()
		return nil, err
	}
	if s.view.Append(*msg) && s.onInsert != nil {
		s.onInsert(*msg)
	}
	return msg, nil
}

// DeleteForMe hides a message for this viewer. It disappears locally at once;
// on failure the list is re-fetched.
func (s *Session) DeleteForMe(ctx context.Context, messageID uint) error {
	s.view.Remove(messageID)
	if _, err := s.messages.DeleteForMe(ctx, messageID, s.viewer); err != nil {
		s.recover(ctx, "hide")
		return err
	}
	return nil
}

// DeleteForEveryone removes one of the viewer's own messages for both
// parties. It disappears locally at once; on failure the list is re-fetched.
func (s *Session) DeleteForEveryone(ctx context.Context, messageID uint) error {
	s.view.Remove(messageID)
	if err := s.messages.DeleteForEveryone(ctx, messageID, s.viewer); err != nil {
		s.recover(ctx, "delete")
		return err
	}
	return nil
}

// Clear empties the list immediately and moves the viewer's watermark. The
// local clear is not rolled back if the store call fails.
func (s *Session) Clear(ctx context.Context) error {
	s.view.Clear()
	_, err := s.messages.ClearForViewer(ctx, s.booking.ID, s.viewer)
	return err
}

// Refresh re-fetches the visible messages. This is the recovery path after a
// dropped stream or when the view comes back into focus.
func (s *Session) Refresh(ctx context.Context) error {
	msgs, err := s.messages.ListVisible(ctx, s.booking.ID, s.viewer)
	if err != nil {
		return err
	}
	s.view.Reset(msgs)
	return nil
}

func (s *Session) recover(ctx context.Context, what string) {
	if err := s.Refresh(ctx); err != nil {
		log.Printf("session: refresh after failed %s on booking %s: %v", what, s.booking.ID, err)
	}
}

// Close stops the countdown and the change stream. Safe to call more than
// once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
	})
}
