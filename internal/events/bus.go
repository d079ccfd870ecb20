package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownTopic   = errors.New("events: unknown topic")
	ErrMissingOrder   = errors.New("events: order id is required")
	ErrInvalidPayload = errors.New("events: payload is not valid json")
	errNoStore        = errors.New("events: store not configured")
)

// Event is one row of domain_events. AggregateID carries the Sejoli order id.
type Event struct {
	ID          uuid.UUID
	Topic       string
	AggregateID string
	Payload     []byte
	OccurredAt  time.Time
}

// EventStore persists events.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, ev Event) (Event, error)
}

// Notifier reacts to a persisted event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus records order events and fans them out. Persistence comes first; a
// notifier only ever sees events that were stored.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
}

// Emit stores the event and then runs every notifier. Notifier failures are
// logged and returned joined alongside the stored event.
func (b *Bus) Emit(ctx context.Context, topic string, orderID string, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errNoStore
	}
	ev, err := newEvent(topic, orderID, payload)
	if err != nil {
		return Event{}, err
	}
	stored, err := b.Store.InsertDomainEvent(ctx, ev)
	if err != nil {
		return Event{}, fmt.Errorf("events: persist %s for order %s: %w", ev.Topic, ev.AggregateID, err)
	}

	var errs []error
	for _, n := range b.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, stored); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("topic", stored.Topic).
				Str("order_id", stored.AggregateID).
				Msg("chipin_event_notify_failed")
			errs = append(errs, err)
		}
	}
	return stored, errors.Join(errs...)
}

func newEvent(topic, orderID string, payload any) (Event, error) {
	topic = strings.TrimSpace(topic)
	if !Known(topic) {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Event{}, ErrMissingOrder
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: uuid.New(), Topic: topic, AggregateID: orderID, Payload: raw}, nil
}

// marshalPayload accepts a value to encode or pre-encoded JSON. Empty input
// becomes an empty object so the jsonb column never holds null.
func marshalPayload(payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(strings.TrimSpace(v))
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("events: encode payload: %w", err)
		}
		return encoded, nil
	}
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, ErrInvalidPayload
	}
	return append([]byte(nil), raw...), nil
}
