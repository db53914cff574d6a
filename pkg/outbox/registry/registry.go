// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads so the publisher can reject malformed rows before sending them.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/db/models"
	"github.com/petalpost/storefront-backend/pkg/enums"
	"github.com/petalpost/storefront-backend/pkg/outbox"
	"github.com/petalpost/storefront-backend/pkg/outbox/payloads"
)

// EventDescriptor describes where one event type is published.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (subject, error)
}

type subject interface {
	Subject() uuid.UUID
}

// ResolvedEvent is a validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// Attributes are the Pub/Sub message attributes subscribers filter on.
func (r *ResolvedEvent) Attributes(event models.OutboxEvent) map[string]string {
	return map[string]string{
		"event_id":       r.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    r.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		"schema_version": fmt.Sprint(r.Envelope.Version),
	}
}

// NonRetryableError marks a row that will never publish as stored.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func decodeInto[T subject](data json.RawMessage) (subject, error) {
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func route[T subject](event enums.OutboxEventType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     event,
		AggregateType: event.Aggregate(),
		Topic:         topic,
		decode:        decodeInto[T],
	}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry sends every order event to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	reg := &EventRegistry{routes: map[enums.OutboxEventType]EventDescriptor{}}
	for _, d := range []EventDescriptor{
		route[payloads.OrderConfirmedEvent](enums.EventOrderConfirmed, cfg.OrdersTopic),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, cfg.OrdersTopic),
		route[payloads.OrderCancelledEvent](enums.EventOrderCancelled, cfg.OrdersTopic),
	} {
		reg.routes[d.EventType] = d
	}
	return reg, nil
}

// Topics lists the distinct topics events are routed to.
func (r *EventRegistry) Topics() []string {
	var topics []string
	seen := map[string]bool{}
	for _, d := range r.routes {
		if !seen[d.Topic] {
			seen[d.Topic] = true
			topics = append(topics, d.Topic)
		}
	}
	return topics
}

// Resolve checks a row against its descriptor and decodes the payload. Every
// failure is a NonRetryableError: retrying the same bytes cannot help.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("outbox row %s: %w", event.ID, err))
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	d, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, fmt.Errorf("unsupported event type %q", event.EventType)
	case d.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("event %s belongs to %s, row says %s", event.EventType, d.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%s has no payload", event.EventType)
	}
	payload, err := d.decode(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}
	if payload.Subject() != event.AggregateID {
		return nil, fmt.Errorf("payload is about order %s, row is %s", payload.Subject(), event.AggregateID)
	}
	return &ResolvedEvent{Descriptor: d, Envelope: envelope, Payload: payload}, nil
}
