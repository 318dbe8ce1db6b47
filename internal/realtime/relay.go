package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingPrefix  = "messages."
	publishTimeout = 5 * time.Second
)

// RoutingKey returns the topic key for a booking's change events.
func RoutingKey(bookingID string) string {
	return routingPrefix + bookingID
}

// Relay mirrors hub events onto a RabbitMQ topic exchange so that several API
// processes sharing one database see each other's changes. Events that came
// from this process are recognised by their Origin and not re-delivered.
type Relay struct {
	hub      *Hub
	origin   string
	exchange string

	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRelay dials url, declares the exchange and a private queue bound to every
// booking, and registers the relay as a sink on hub.
func NewRelay(url, exchange string, hub *Hub) (*Relay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: declare exchange %s: %w", exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingPrefix+"*", exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: bind queue: %w", err)
	}

	r := &Relay{
		hub:      hub,
		origin:   uuid.NewString(),
		exchange: exchange,
		conn:     conn,
		ch:       ch,
		queue:    q.Name,
	}
	hub.AddSink(r.forward)
	return r, nil
}

// Origin returns the id stamped on events published by this process.
func (r *Relay) Origin() string { return r.origin }

func (r *Relay) forward(e Event) {
	if e.Origin != "" {
		return
	}
	e.Origin = r.origin
	body, err := json.Marshal(e)
	if err != nil {
		log.Printf("realtime: encode %s event: %v", e.Type, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err = r.ch.PublishWithContext(ctx, r.exchange, RoutingKey(e.BookingID), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
	if err != nil {
		log.Printf("realtime: publish %s for booking %s: %v", e.Type, e.BookingID, err)
	}
}

// Run consumes remote events and delivers them to local subscribers until ctx
// is cancelled or the broker closes the channel.
func (r *Relay) Run(ctx context.Context) error {
	deliveries, err := r.ch.ConsumeWithContext(ctx, r.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("realtime: consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("realtime: delivery channel closed")
			}
			r.receive(d.RoutingKey, d.Body)
		}
	}
}

// receive decodes one broker message and delivers it locally. It reports
// whether the event was delivered.
func (r *Relay) receive(key string, body []byte) bool {
	e, err := decodeEvent(body)
	if err != nil {
		log.Printf("realtime: drop undecodable message on %s: %v", key, err)
		return false
	}
	if e.Origin == r.origin {
		return false
	}
	if want := strings.TrimPrefix(key, routingPrefix); key != "" && want != e.BookingID {
		log.Printf("realtime: drop event for booking %s routed as %s", e.BookingID, key)
		return false
	}
	r.hub.Deliver(e)
	return true
}

func decodeEvent(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, err
	}
	switch e.Type {
	case EventInsert, EventUpdate:
		if e.New == nil {
			return Event{}, fmt.Errorf("%s event without new row", e.Type)
		}
	case EventDelete:
		if e.Old == nil {
			return Event{}, fmt.Errorf("DELETE event without old row")
		}
	default:
		return Event{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.BookingID == "" {
		return Event{}, fmt.Errorf("event without booking id")
	}
	return e, nil
}

// Close shuts down the broker channel and connection.
func (r *Relay) Close() error {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
