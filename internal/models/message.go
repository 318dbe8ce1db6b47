package models

import "time"

// Message is one chat line within a booking's chat session. IDs are
// auto-incremented and therefore follow creation order.
type Message struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingID string    `gorm:"size:36;not null;index:idx_message_booking_created" json:"booking_id"`
	SenderID  string    `gorm:"size:64;not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_message_booking_created" json:"created_at"`

	Hides []MessageHide `gorm:"foreignKey:MessageID" json:"hides,omitempty"`
}

// MessageHide records that one party soft-deleted a message for themselves.
// The composite key makes the hidden-by set append-only and duplicate-free.
type MessageHide struct {
	MessageID uint      `gorm:"primaryKey" json:"message_id"`
	PartyID   string    `gorm:"primaryKey;size:64" json:"party_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HiddenBy returns the parties that hid this message. Hides must be loaded.
func (m *Message) HiddenBy() []string {
	ids := make([]string, 0, len(m.Hides))
	for _, h := range m.Hides {
		ids = append(ids, h.PartyID)
	}
	return ids
}

// IsHiddenFor reports whether party id has hidden this message.
func (m *Message) IsHiddenFor(id string) bool {
	for _, h := range m.Hides {
		if h.PartyID == id {
			return true
		}
	}
	return false
}

// VisibleTo applies the visibility rule: created strictly after the viewer's
// watermark and not hidden by the viewer.
func (m *Message) VisibleTo(viewer string, watermark *time.Time) bool {
	if watermark != nil && !m.CreatedAt.After(*watermark) {
		return false
	}
	return !m.IsHiddenFor(viewer)
}
