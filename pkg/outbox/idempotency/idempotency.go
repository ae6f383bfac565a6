package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesledger/pkg/redis"
)

const (
	stateProcessing = "processing"
	stateDone       = "done"
)

// Outcome is the result of claiming an event.
type Outcome int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed Outcome = iota
	// Processed means the event was already handled.
	Processed
	// InFlight means another delivery holds the claim; retry later.
	InFlight
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case Processed:
		return "processed"
	case InFlight:
		return "in_flight"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Store is the slice of the redis client the guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager dedupes event deliveries per consumer in two phases: a claim held
// for lease while the handler runs, then a done marker kept for ttl. A worker
// that dies mid-handle loses its claim when the lease expires, so the event
// is retried rather than silently skipped.
// Keys look like `sl:idempotency:evt:processed:<consumer>:<event_id>`.
type Manager struct {
	store Store
	ttl   time.Duration
	lease time.Duration
}

func NewManager(store Store, ttl, lease time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl <= 0:
		return nil, errors.New("ttl must be positive")
	case lease <= 0 || lease > ttl:
		return nil, errors.New("lease must be positive and no longer than ttl")
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// Claim tries to take eventID for consumer.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Outcome, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return 0, err
	}
	ok, err := m.store.SetNX(ctx, key, stateProcessing, m.lease)
	if err != nil {
		return 0, err
	}
	if ok {
		return Claimed, nil
	}
	state, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// Lease expired between the two calls; the redelivery will claim it.
		return InFlight, nil
	case err != nil:
		return 0, err
	case state == stateDone:
		return Processed, nil
	}
	return InFlight, nil
}

// Complete marks a claimed event as handled for the configured ttl.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, stateDone, m.ttl)
}

// Release drops a claim so a redelivery is processed again.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String()), nil
}
