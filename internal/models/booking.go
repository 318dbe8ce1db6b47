package models

import "time"

// Booking statuses. Declined and cancelled bookings are deleted, not stored.
const (
	BookingPending = "pending"
	BookingActive  = "active"
)

// Booking is a trip invitation between exactly two parties. PartyA is the
// slot filled by the proposer; InvitedBy records who proposed.
type Booking struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	PartyA          string     `gorm:"size:64;not null;index:idx_booking_pair" json:"party_a"`
	PartyB          string     `gorm:"size:64;not null;index:idx_booking_pair" json:"party_b"`
	InvitedBy       string     `gorm:"size:64;not null" json:"invited_by"`
	Tier            string     `gorm:"size:32;not null" json:"tier"`
	Status          string     `gorm:"size:16;default:pending;index" json:"status"`
	ChatStartedAt   *time.Time `json:"chat_started_at"`
	PartyAClearedAt *time.Time `json:"party_a_cleared_at"`
	PartyBClearedAt *time.Time `json:"party_b_cleared_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasParty reports whether id occupies either slot.
func (b *Booking) HasParty(id string) bool {
	return id != "" && (b.PartyA == id || b.PartyB == id)
}

// Counterpart returns the other party, or "" when id is not a party.
func (b *Booking) Counterpart(id string) string {
	switch id {
	case b.PartyA:
		return b.PartyB
	case b.PartyB:
		return b.PartyA
	}
	return ""
}

// ClearedAt returns the clear watermark for party id (nil if never cleared
// or not a party).
func (b *Booking) ClearedAt(id string) *time.Time {
	switch id {
	case b.PartyA:
		return b.PartyAClearedAt
	case b.PartyB:
		return b.PartyBClearedAt
	}
	return nil
}

// ClearedAtColumn returns the watermark column for party id.
func (b *Booking) ClearedAtColumn(id string) string {
	switch id {
	case b.PartyA:
		return "party_a_cleared_at"
	case b.PartyB:
		return "party_b_cleared_at"
	}
	return ""
}
