package types

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/angelmondragon/salesledger/pkg/enums"
)

// Envelope is an outbox event as received from the order events subscription.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	ActorID       string                    `json:"actor_id,omitempty"`
	Payload       json.RawMessage           `json:"payload"`
}

// Decode unmarshals the payload into out. An empty payload leaves out untouched.
func (e Envelope) Decode(out any) error {
	if len(bytes.TrimSpace(e.Payload)) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, out)
}
