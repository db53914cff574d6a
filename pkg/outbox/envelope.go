package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef says what produced an order event: an admin action, the payment
// callback, the submit endpoint or a reconcile job. System jobs leave UserID
// empty.
type ActorRef struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
	Source string `json:"source,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// verbatim as the Pub/Sub message body. Data holds one of the payloads types.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
