package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies the principal that caused the event.
type ActorRef struct {
	PrincipalID uuid.UUID `json:"principalId"`
	Role        string    `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events and
// published as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
