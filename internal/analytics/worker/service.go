package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/internal/analytics/router"
	"github.com/angelmondragon/salesledger/internal/analytics/types"
	"github.com/angelmondragon/salesledger/pkg/enums"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/metrics"
	"github.com/angelmondragon/salesledger/pkg/outbox"
	"github.com/angelmondragon/salesledger/pkg/outbox/idempotency"
)

const consumerName = "analytics"

// Handler processes one decoded order event.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	return fn(ctx, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Outcome, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Params wires a Service.
type Params struct {
	Subscription receiver
	Handler      Handler
	Idempotency  idempotencyChecker
	Logger       *logger.Logger
	Metrics      *metrics.ConsumerMetrics
}

// Service feeds order events from the analytics subscription into Handler.
// Each event id is claimed in Redis before handling and marked complete
// after; a failed handler releases the claim and nacks so redelivery retries
// it. Messages that can never succeed are acked and logged so they do not
// block the subscription.
type Service struct {
	sub      receiver
	handler  Handler
	claims   idempotencyChecker
	logg     *logger.Logger
	counters *metrics.ConsumerMetrics
}

func NewService(p Params) (*Service, error) {
	switch {
	case p.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case p.Handler == nil:
		return nil, errors.New("analytics handler is required")
	case p.Idempotency == nil:
		return nil, errors.New("idempotency manager is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{
		sub:      p.Subscription,
		handler:  p.Handler,
		claims:   p.Idempotency,
		logg:     p.Logger,
		counters: p.Metrics,
	}, nil
}

// Run blocks receiving messages until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.sub.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if s.consume(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// consume reports whether msg should be acked.
func (s *Service) consume(ctx context.Context, msg *gcppubsub.Message) bool {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	env, eventID, err := decodeMessage(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping malformed order event")
		s.counters.Inc(consumerName, msg.Attributes["event_type"], metrics.ConsumerDropped)
		return true
	}
	eventType := string(env.EventType)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   eventType,
		"aggregate_id": env.AggregateID,
		"occurred_at":  env.OccurredAt.Format(time.RFC3339Nano),
	})

	outcome, err := s.claims.Claim(ctx, consumerName, eventID)
	if err != nil {
		s.logg.Error(ctx, "idempotency claim failed", err)
		s.counters.Inc(consumerName, eventType, metrics.ConsumerRetried)
		return false
	}
	switch outcome {
	case idempotency.Processed:
		s.logg.Info(ctx, "order event already processed")
		s.counters.Inc(consumerName, eventType, metrics.ConsumerDuplicate)
		return true
	case idempotency.InFlight:
		s.logg.Info(ctx, "order event claimed by another delivery")
		s.counters.Inc(consumerName, eventType, metrics.ConsumerRetried)
		return false
	}

	err = s.handler.Handle(ctx, env)
	switch {
	case err == nil:
		s.logg.Info(ctx, "order event recorded")
		s.counters.Inc(consumerName, eventType, metrics.ConsumerHandled)
		s.complete(ctx, eventID)
		return true
	case errors.Is(err, router.ErrUnsupportedEventType), errors.Is(err, router.ErrInvalidPayload):
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping order event")
		s.counters.Inc(consumerName, eventType, metrics.ConsumerDropped)
		s.complete(ctx, eventID)
		return true
	}

	s.logg.Error(ctx, "order event handler failed", err)
	if relErr := s.claims.Release(ctx, consumerName, eventID); relErr != nil {
		s.logg.Error(ctx, "idempotency release failed", relErr)
	}
	s.counters.Inc(consumerName, eventType, metrics.ConsumerRetried)
	return false
}

// complete records the done marker. Failing here is logged only: the event
// was handled, and the lease expiry at worst allows one more delivery.
func (s *Service) complete(ctx context.Context, eventID uuid.UUID) {
	if err := s.claims.Complete(ctx, consumerName, eventID); err != nil {
		s.logg.Error(ctx, "idempotency complete failed", err)
	}
}

// decodeMessage reads the outbox envelope from the body and routing fields
// from the attributes set by the outbox publisher. The body's event id wins
// over the attribute.
func decodeMessage(msg *gcppubsub.Message) (types.Envelope, uuid.UUID, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(name string) string { return strings.TrimSpace(msg.Attributes[name]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return types.Envelope{}, uuid.Nil, errors.New("aggregate_id missing")
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = attr("event_id")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return types.Envelope{}, uuid.Nil, fmt.Errorf("event_id %q: %w", rawID, err)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		occurredAt, _ = time.Parse(time.RFC3339Nano, attr("created_at"))
	}

	env := types.Envelope{
		EventID:       eventID.String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}
	if stored.Actor != nil && stored.Actor.PrincipalID != uuid.Nil {
		env.ActorID = stored.Actor.PrincipalID.String()
	}
	return env, eventID, nil
}
