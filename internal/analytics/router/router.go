package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/salesledger/internal/analytics/types"
	"github.com/angelmondragon/salesledger/internal/analytics/writer"
	"github.com/angelmondragon/salesledger/pkg/enums"
	"github.com/angelmondragon/salesledger/pkg/logger"
	"github.com/angelmondragon/salesledger/pkg/outbox/payloads"
)

var (
	ErrUnsupportedEventType = errors.New("unsupported analytics event type")
	// ErrInvalidPayload marks envelopes whose data cannot be decoded; they
	// are never retried.
	ErrInvalidPayload = errors.New("invalid analytics payload")
)

// Writer delivers BigQuery rows produced by the router.
type Writer interface {
	InsertSalesEvent(ctx context.Context, row types.SalesEventRow) error
}

type rowBuilder func(env types.Envelope, row *types.SalesEventRow) error

// Router maps order events onto sales event rows. Principal events carry no
// sales data and are skipped.
type Router struct {
	writer   Writer
	logg     *logger.Logger
	builders map[enums.OutboxEventType]rowBuilder
}

func NewRouter(w Writer, logg *logger.Logger) (*Router, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{
		writer: w,
		logg:   logg,
		builders: map[enums.OutboxEventType]rowBuilder{
			enums.EventOrderCreated:       orderCreated,
			enums.EventOrderHeaderUpdated: headerUpdated,
			enums.EventOrderLinesReplaced: linesReplaced,
			enums.EventOrderLineUpdated:   lineChanged,
			enums.EventOrderLineDeleted:   lineChanged,
			enums.EventOrderDeleted:       func(types.Envelope, *types.SalesEventRow) error { return nil },
		},
	}, nil
}

// Handle implements worker.Handler.
func (r *Router) Handle(ctx context.Context, env types.Envelope) error {
	if env.AggregateType == enums.AggregatePrincipal {
		r.logg.Debug(ctx, "skipping principal event")
		return nil
	}
	build, ok := r.builders[env.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, env.EventType)
	}

	row := types.SalesEventRow{
		EventID:    env.EventID,
		EventType:  string(env.EventType),
		OccurredAt: env.OccurredAt,
		OrderID:    env.AggregateID,
		ActorID:    optional(env.ActorID),
	}
	if err := build(env, &row); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	payload, err := writer.EncodeJSON(env.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	row.Payload = payload

	return r.writer.InsertSalesEvent(ctx, row)
}

func orderCreated(env types.Envelope, row *types.SalesEventRow) error {
	var event payloads.OrderCreatedEvent
	if err := env.Decode(&event); err != nil {
		return err
	}
	row.OrderDate = optional(event.OrderDate)
	row.CustomerID = event.CustomerID
	row.EmployeeID = event.EmployeeID
	applyLines(row, event.Lines, event.Total)
	return nil
}

func headerUpdated(env types.Envelope, row *types.SalesEventRow) error {
	var event payloads.OrderHeaderUpdatedEvent
	if err := env.Decode(&event); err != nil {
		return err
	}
	row.OrderDate = optional(event.OrderDate)
	row.CustomerID = event.CustomerID
	row.EmployeeID = event.EmployeeID
	return nil
}

func linesReplaced(env types.Envelope, row *types.SalesEventRow) error {
	var event payloads.OrderLinesReplacedEvent
	if err := env.Decode(&event); err != nil {
		return err
	}
	applyLines(row, event.Lines, event.Total)
	return nil
}

func lineChanged(env types.Envelope, row *types.SalesEventRow) error {
	var event payloads.OrderLineChangedEvent
	if err := env.Decode(&event); err != nil {
		return err
	}
	applyLines(row, []payloads.OrderLine{event.Line}, "")
	return nil
}

func applyLines(row *types.SalesEventRow, lines []payloads.OrderLine, total string) {
	count := int64(len(lines))
	var qty int64
	for _, line := range lines {
		qty += int64(line.Quantity)
	}
	row.LineCount = &count
	row.Quantity = &qty
	row.Total = optional(total)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
