// Package messaging stores chat messages and applies the per-viewer
// visibility rules: clear watermarks and delete-for-me hides.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/wayfare/internal/apperr"
	"github.com/zulandar/wayfare/internal/chat"
	"github.com/zulandar/wayfare/internal/models"
	"github.com/zulandar/wayfare/internal/realtime"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ServiceOpts configures a Service.
type ServiceOpts struct {
	Hub           *realtime.Hub    // receives change events; nil disables publishing
	Now           func() time.Time // defaults to time.Now
	TTL           time.Duration    // chat window; defaults to chat.DefaultTTL
	EnforceExpiry bool             // reject sends once the chat window has closed
}

// Service reads and writes chat messages. Safe for concurrent use.
type Service struct {
	db   *gorm.DB
	hub  *realtime.Hub
	now  func() time.Time
	ttl  time.Duration
	hard bool
}

// NewService returns a Service backed by db.
func NewService(db *gorm.DB, opts ServiceOpts) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = chat.DefaultTTL
	}
	return &Service{db: db, hub: opts.Hub, now: now, ttl: ttl, hard: opts.EnforceExpiry}
}

// Send appends a message to an active booking's chat.
func (s *Service) Send(ctx context.Context, bookingID, senderID, content string) (*models.Message, error) {
	const op = "messaging: send"

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation(op, "message is empty")
	}

	b, err := s.booking(ctx, op, bookingID, senderID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingActive {
		return nil, apperr.Conflict(op, "chat opens once the invitation is accepted")
	}
	now := s.now().UTC()
	if s.hard && chat.IsExpired(b, now, s.ttl) {
		return nil, apperr.Conflict(op, "this chat has expired")
	}

	msg := models.Message{
		BookingID: bookingID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, apperr.Transport(op, err)
	}

	s.publish(realtime.Event{Type: realtime.EventInsert, BookingID: bookingID, New: copyMessage(&msg)})
	return &msg, nil
}

// ListVisible returns the messages viewerID can see, oldest first: created
// after the viewer's clear watermark and not hidden by the viewer.
func (s *Service) ListVisible(ctx context.Context, bookingID, viewerID string) ([]models.Message, error) {
	const op = "messaging: list"

	b, err := s.booking(ctx, op, bookingID, viewerID)
	if err != nil {
		return nil, err
	}
	watermark := b.ClearedAt(viewerID)

	q := s.db.WithContext(ctx).Preload("Hides").Where("booking_id = ?", bookingID)
	if watermark != nil {
		q = q.Where("created_at > ?", *watermark)
	}
	var rows []models.Message
	if err := q.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, apperr.Transport(op, err)
	}

	visible := rows[:0]
	for _, m := range rows {
		if m.VisibleTo(viewerID, watermark) {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// DeleteForEveryone removes a message permanently. Only its sender may do
// this.
func (s *Service) DeleteForEveryone(ctx context.Context, messageID uint, requesterID string) error {
	op := fmt.Sprintf("messaging: delete %d", messageID)

	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return apperr.Forbidden(op, "only the sender can delete a message for everyone")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND sender_id = ?", messageID, requesterID).Delete(&models.Message{})
		if res.Error != nil {
			return apperr.Transport(op, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound(op, "message not found")
		}
		if err := tx.Where("message_id = ?", messageID).Delete(&models.MessageHide{}).Error; err != nil {
			return apperr.Transport(op, err)
		}
		return nil
	})
	if err != nil {
		return classify(op, err)
	}

	old := *msg
	old.Hides = nil
	s.publish(realtime.Event{Type: realtime.EventDelete, BookingID: msg.BookingID, Old: &old})
	return nil
}

// DeleteForMe hides a message from viewerID only. Repeating it is a no-op and
// concurrent hides by different viewers are all kept.
func (s *Service) DeleteForMe(ctx context.Context, messageID uint, viewerID string) (*models.Message, error) {
	op := fmt.Sprintf("messaging: hide %d", messageID)

	msg, err := s.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.booking(ctx, op, msg.BookingID, viewerID); err != nil {
		return nil, err
	}

	hide := models.MessageHide{MessageID: messageID, PartyID: viewerID, CreatedAt: s.now().UTC()}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&hide).Error; err != nil {
		return nil, apperr.Transport(op, err)
	}

	updated, err := s.Get(ctx, messageID)
	if err != nil {
		// Deleted for everyone in between; drop the orphaned hide.
		if apperr.IsNotFound(err) {
			s.db.WithContext(ctx).Where("message_id = ?", messageID).Delete(&models.MessageHide{})
		}
		return nil, err
	}
	s.publish(realtime.Event{Type: realtime.EventUpdate, BookingID: updated.BookingID, New: copyMessage(updated)})
	return updated, nil
}

// ClearForViewer moves viewerID's watermark to now and returns it. Only the
// viewer's history is affected.
func (s *Service) ClearForViewer(ctx context.Context, bookingID, viewerID string) (time.Time, error) {
	const op = "messaging: clear"

	b, err := s.booking(ctx, op, bookingID, viewerID)
	if err != nil {
		return time.Time{}, err
	}
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Update(b.ClearedAtColumn(viewerID), now)
	if res.Error != nil {
		return time.Time{}, apperr.Transport(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return time.Time{}, apperr.NotFound(op, "booking not found")
	}
	return now, nil
}

// Get loads a message with its hides.
func (s *Service) Get(ctx context.Context, messageID uint) (*models.Message, error) {
	op := fmt.Sprintf("messaging: get %d", messageID)
	var msg models.Message
	err := s.db.WithContext(ctx).Preload("Hides").Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "message not found")
	}
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	return &msg, nil
}

// booking loads bookingID and checks that party belongs to it. Non-parties
// get NotFound so the booking's existence is not revealed.
func (s *Service) booking(ctx context.Context, op, bookingID, party string) (*models.Booking, error) {
	var b models.Booking
	err := s.db.WithContext(ctx).Where("id = ?", bookingID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "booking not found")
	}
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	if !b.HasParty(party) {
		return nil, apperr.NotFound(op, "booking not found")
	}
	return &b, nil
}

func (s *Service) publish(e realtime.Event) {
	if s.hub != nil {
		s.hub.Publish(e)
	}
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	c.Hides = append([]models.MessageHide(nil), m.Hides...)
	return &c
}

func classify(op string, err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Transport(op, err)
}
