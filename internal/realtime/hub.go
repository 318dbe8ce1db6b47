// Package realtime carries message change events from the store to open chat
// views and reconciles those deltas into a canonical, ordered message list.
package realtime

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/zulandar/wayfare/internal/models"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

// EventType identifies the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Event is a change to one message row. Old is set for deletes, New for
// inserts and updates.
type Event struct {
	Type      EventType       `json:"type"`
	BookingID string          `json:"booking_id"`
	Old       *models.Message `json:"old,omitempty"`
	New       *models.Message `json:"new,omitempty"`
	Origin    string          `json:"origin,omitempty"`
}

// MessageID returns the id of the row the event refers to.
func (e Event) MessageID() uint {
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return 0
}

// Sink receives every event published on a Hub, after local fan-out.
type Sink func(Event)

// Hub fans change events out to subscribers of a booking's message stream.
// Delivery is at-most-once: a subscriber whose buffer is full misses the
// event and must re-fetch to catch up.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	sinks  []Sink
	closed bool
}

// NewHub creates a Hub. buffer <= 0 uses DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is one listener on a booking's message stream.
type Subscription struct {
	BookingID string
	C         <-chan Event

	hub     *Hub
	ch      chan Event
	once    sync.Once
	dropped atomic.Int64
}

// Subscribe registers a listener for bookingID. The returned channel is
// closed by Unsubscribe or Close.
func (h *Hub) Subscribe(bookingID string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{BookingID: bookingID, C: ch, hub: h, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	set, ok := h.subs[bookingID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[bookingID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[s.BookingID]; ok {
			if _, ok := set[s]; ok {
				delete(set, s)
				close(s.ch)
			}
			if len(set) == 0 {
				delete(h.subs, s.BookingID)
			}
		}
	})
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// AddSink registers a function that sees every published event.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Publish delivers e to local subscribers and then to every sink.
func (h *Hub) Publish(e Event) {
	h.Deliver(e)

	h.mu.RLock()
	sinks := append([]Sink(nil), h.sinks...)
	h.mu.RUnlock()
	for _, s := range sinks {
		s(e)
	}
}

// Deliver fans e out to local subscribers only. Never blocks.
func (h *Hub) Deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subs[e.BookingID] {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			log.Printf("realtime: subscriber on booking %s is full, dropped %s for message %d",
				e.BookingID, e.Type, e.MessageID())
		}
	}
}

// Subscribers returns the number of live subscriptions for bookingID.
func (h *Hub) Subscribers(bookingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[bookingID])
}

// Close closes every subscription. Later subscriptions are returned closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, id)
	}
}
