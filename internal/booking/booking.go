// Package booking implements the trip invitation lifecycle between two
// parties: propose, accept, decline/cancel, and pair lookup with duplicate
// repair.
package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/wayfare/internal/apperr"
	"github.com/zulandar/wayfare/internal/config"
	"github.com/zulandar/wayfare/internal/models"
	"gorm.io/gorm"
)

// Role describes a party's side of a booking.
type Role string

const (
	RoleNone     Role = "none"
	RoleSent     Role = "sent"
	RoleReceived Role = "received"
)

// ManagerOpts configures a Manager.
type ManagerOpts struct {
	Tiers []config.TierConfig // empty accepts any non-empty tier key
	Now   func() time.Time    // defaults to time.Now
}

// Manager runs booking transitions against the store. It holds no per-call
// state and is safe for concurrent use.
type Manager struct {
	db    *gorm.DB
	now   func() time.Time
	tiers []config.TierConfig
}

// NewManager returns a Manager backed by db.
func NewManager(db *gorm.DB, opts ManagerOpts) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{db: db, now: now, tiers: opts.Tiers}
}

// ProposeOpts holds the parameters for a trip proposal.
type ProposeOpts struct {
	Self  string
	Other string
	Tier  string
	Seen  *models.Booking // the caller's cached booking for the pair, if any
}

// Propose creates a pending booking from Self to Other. Any pending rows for
// the pair are replaced in the same transaction; an active booking is never
// replaced.
func (m *Manager) Propose(ctx context.Context, opts ProposeOpts) (*models.Booking, error) {
	const op = "booking: propose"

	self, other := strings.TrimSpace(opts.Self), strings.TrimSpace(opts.Other)
	switch {
	case self == "":
		return nil, apperr.Validation(op, "self is required")
	case other == "":
		return nil, apperr.Validation(op, "other party is required")
	case self == other:
		return nil, apperr.Validation(op, "cannot invite yourself")
	case opts.Tier == "":
		return nil, apperr.Validation(op, "tier is required")
	}
	if _, ok := m.LookupTier(opts.Tier); !ok {
		return nil, apperr.Validation(op, "unknown tier "+opts.Tier)
	}
	if opts.Seen != nil {
		return nil, apperr.Conflict(op, apperr.MsgInvitationExists)
	}

	now := m.now().UTC()
	b := &models.Booking{
		ID:        uuid.NewString(),
		PartyA:    self,
		PartyB:    other,
		InvitedBy: self,
		Tier:      opts.Tier,
		Status:    models.BookingPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.Booking
		if err := pairQuery(tx, self, other).Find(&existing).Error; err != nil {
			return apperr.Transport(op, err)
		}
		var stale []string
		for _, e := range existing {
			if e.Status == models.BookingActive {
				return apperr.Conflict(op, apperr.MsgInvitationExists)
			}
			stale = append(stale, e.ID)
		}
		if err := deleteBookings(tx, stale); err != nil {
			return apperr.Transport(op, err)
		}
		if err := tx.Create(b).Error; err != nil {
			return apperr.Transport(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return b, nil
}

// Accept activates a pending booking and starts its chat. Only the invited
// party may accept.
func (m *Manager) Accept(ctx context.Context, bookingID, actor string) (*models.Booking, error) {
	const op = "booking: accept"
	if bookingID == "" || actor == "" {
		return nil, apperr.Validation(op, "booking id and actor are required")
	}

	now := m.now().UTC()
	db := m.db.WithContext(ctx)
	res := db.Model(&models.Booking{}).
		Where("id = ? AND status = ? AND invited_by <> ? AND (party_a = ? OR party_b = ?)",
			bookingID, models.BookingPending, actor, actor, actor).
		Updates(map[string]any{
			"status":          models.BookingActive,
			"chat_started_at": now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return nil, apperr.Transport(op, res.Error)
	}

	var b models.Booking
	err := db.Where("id = ?", bookingID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, apperr.MsgNoLongerAvailable)
	}
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	if res.RowsAffected > 0 {
		return &b, nil
	}

	switch {
	case !b.HasParty(actor):
		return nil, apperr.NotFound(op, apperr.MsgNoLongerAvailable)
	case b.Status == models.BookingActive:
		return nil, apperr.Conflict(op, "booking is already active")
	case b.InvitedBy == actor:
		return nil, apperr.Conflict(op, "the inviter cannot accept their own invitation")
	}
	return nil, apperr.Conflict(op, "booking is not pending")
}

// Decline rejects an invitation. The booking and its messages are deleted.
func (m *Manager) Decline(ctx context.Context, bookingID, actor string) error {
	return m.remove(ctx, "booking: decline", bookingID, actor)
}

// Cancel withdraws an invitation. It has the same effect as Decline.
func (m *Manager) Cancel(ctx context.Context, bookingID, actor string) error {
	return m.remove(ctx, "booking: cancel", bookingID, actor)
}

func (m *Manager) remove(ctx context.Context, op, bookingID, actor string) error {
	if bookingID == "" || actor == "" {
		return apperr.Validation(op, "booking id and actor are required")
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND (party_a = ? OR party_b = ?)", bookingID, actor, actor).
			Delete(&models.Booking{})
		if res.Error != nil {
			return apperr.Transport(op, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound(op, apperr.MsgNoLongerAvailable)
		}
		if err := deleteMessages(tx, []string{bookingID}); err != nil {
			return apperr.Transport(op, err)
		}
		return nil
	})
	return classify(op, err)
}

// ForPair returns the booking between self and other, or nil when there is
// none. When duplicates exist the most recently created row is kept and the
// others are deleted.
func (m *Manager) ForPair(ctx context.Context, self, other string) (*models.Booking, error) {
	const op = "booking: for pair"
	if self == "" || other == "" {
		return nil, apperr.Validation(op, "both parties are required")
	}

	db := m.db.WithContext(ctx)
	var rows []models.Booking
	if err := pairQuery(db, self, other).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, apperr.Transport(op, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		stale := make([]string, 0, len(rows)-1)
		for _, r := range rows[1:] {
			stale = append(stale, r.ID)
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			return deleteBookings(tx, stale)
		})
		if err != nil {
			return nil, apperr.Transport(op, err)
		}
	}
	return &rows[0], nil
}

// Get loads a booking by id.
func (m *Manager) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	const op = "booking: get"
	var b models.Booking
	err := m.db.WithContext(ctx).Where("id = ?", bookingID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "booking not found: "+bookingID)
	}
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	return &b, nil
}

// RoleOf returns party's side of b. The party whose proposal survived is
// the sender; the counterpart treats it as received.
func RoleOf(b *models.Booking, party string) Role {
	switch {
	case b == nil || !b.HasParty(party):
		return RoleNone
	case b.InvitedBy == party:
		return RoleSent
	default:
		return RoleReceived
	}
}

// Tiers returns the configured tier catalog.
func (m *Manager) Tiers() []config.TierConfig {
	out := make([]config.TierConfig, len(m.tiers))
	copy(out, m.tiers)
	return out
}

// LookupTier finds a tier by key. With no catalog configured every key is
// accepted.
func (m *Manager) LookupTier(key string) (config.TierConfig, bool) {
	if len(m.tiers) == 0 {
		return config.TierConfig{ID: key}, key != ""
	}
	for _, t := range m.tiers {
		if t.ID == key {
			return t, true
		}
	}
	return config.TierConfig{}, false
}

func pairQuery(db *gorm.DB, a, b string) *gorm.DB {
	return db.Where("(party_a = ? AND party_b = ?) OR (party_a = ? AND party_b = ?)", a, b, b, a)
}

// deleteBookings removes the given bookings along with their messages and
// hide rows.
func deleteBookings(tx *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := deleteMessages(tx, ids); err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&models.Booking{}).Error
}

func deleteMessages(tx *gorm.DB, bookingIDs []string) error {
	sub := tx.Model(&models.Message{}).Select("id").Where("booking_id IN ?", bookingIDs)
	if err := tx.Where("message_id IN (?)", sub).Delete(&models.MessageHide{}).Error; err != nil {
		return err
	}
	return tx.Where("booking_id IN ?", bookingIDs).Delete(&models.Message{}).Error
}

// classify keeps typed errors and treats anything else as a store failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Transport(op, err)
}
