package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

// CurrentVersion is the envelope version written when an event sets none.
const CurrentVersion = 1

// DomainEvent is what services hand to Emit. Data is marshalled into the
// envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) check() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unknown event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("unknown aggregate type %q", e.AggregateType)
	case strings.TrimSpace(e.AggregateID) == "":
		return fmt.Errorf("%s event has no aggregate id", e.EventType)
	case e.Data == nil:
		return fmt.Errorf("%s event has no data", e.EventType)
	}
	return nil
}

// row builds the outbox row; the envelope's event id is the row id.
func (e DomainEvent) row(id uuid.UUID, now time.Time) (models.OutboxEvent, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal %s data: %w", e.EventType, err)
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	body, err := json.Marshal(PayloadEnvelope{
		Version:    max(e.Version, CurrentVersion),
		EventID:    id.String(),
		EventType:  e.EventType.String(),
		OccurredAt: occurred.UTC(),
		Actor:      e.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("marshal %s envelope: %w", e.EventType, err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       body,
	}, nil
}

// Emitter queues events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

// Service writes events to outbox_events. It never publishes; the outbox
// publisher picks rows up after the surrounding transaction commits.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("outbox emit needs the caller's transaction")
	}
	if err := event.check(); err != nil {
		return err
	}
	row, err := event.row(uuid.New(), s.now().UTC())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       row.ID.String(),
			"event_type":     row.EventType,
			"aggregate_type": row.AggregateType,
			"aggregate_id":   row.AggregateID,
		}), "outbox event queued")
	}
	return nil
}
