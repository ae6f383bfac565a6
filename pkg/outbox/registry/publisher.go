package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	"github.com/angelmondragon/salesledger/pkg/outbox"
	"github.com/angelmondragon/salesledger/pkg/outbox/payloads"
)

var payloadRules = validator.New(validator.WithRequiredStructEnabled())

// EventDescriptor ties an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

// ResolvedEvent is an outbox row decoded and checked against its descriptor.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will fail the same way on every attempt;
// the publisher dead-letters it immediately.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// NewEventRegistry routes every order and principal event to the order
// events topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.OrderEventsTopic)
	if topic == "" {
		return nil, errors.New("order events topic is required")
	}

	descriptors := []EventDescriptor{
		describe[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder),
		describe[payloads.OrderHeaderUpdatedEvent](enums.EventOrderHeaderUpdated, enums.AggregateOrder),
		describe[payloads.OrderLinesReplacedEvent](enums.EventOrderLinesReplaced, enums.AggregateOrder),
		describe[payloads.OrderLineChangedEvent](enums.EventOrderLineUpdated, enums.AggregateOrder),
		describe[payloads.OrderLineChangedEvent](enums.EventOrderLineDeleted, enums.AggregateOrder),
		describe[payloads.OrderDeletedEvent](enums.EventOrderDeleted, enums.AggregateOrder),
		describe[payloads.PrincipalRoleChangedEvent](enums.EventPrincipalRoleChanged, enums.AggregatePrincipal),
		describe[payloads.PrincipalPermissionsChangedEvent](enums.EventPrincipalPermissionsChanged, enums.AggregatePrincipal),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		desc.Topic = topic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve decodes an outbox row into its typed payload. Every failure is a
// NonRetryableError: the stored row will not change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanent("event %s belongs to %s aggregates, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case strings.TrimSpace(event.AggregateID) == "":
		return nil, permanent("event %s has no aggregate_id", event.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	payload, err := DecodeData(desc, envelope.Data)
	if err != nil {
		return nil, err
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

// DecodeData unmarshals data into the descriptor's payload type and checks
// its validate tags.
func DecodeData(desc EventDescriptor, data json.RawMessage) (any, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, permanent("%s payload is empty", desc.EventType)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", desc.EventType, err)
	}
	if err := payloadRules.Struct(payload); err != nil {
		return nil, permanent("invalid %s payload: %w", desc.EventType, err)
	}
	return payload, nil
}
