package outbox

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

// CurrentSchemaVersion is stamped on envelopes whose event leaves Version unset.
const CurrentSchemaVersion = 1

// ActorRef identifies who caused the event.
type ActorRef struct {
	UserID    uuid.UUID       `json:"userId,omitempty"`
	OwnerType enums.OwnerType `json:"ownerType,omitempty"`
	OwnerID   *uuid.UUID      `json:"ownerId,omitempty"`
	Role      string          `json:"role,omitempty"`
}

const systemRole = "system"

// SystemActor marks events raised by scheduled jobs and gateway webhooks.
func SystemActor() *ActorRef {
	return &ActorRef{Role: systemRole}
}

// Envelope is the JSON document stored in outbox_events.payload and sent
// verbatim as the Pub/Sub message body.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

// Attributes are the Pub/Sub message attributes consumers filter and
// dedupe on.
func Attributes(row models.OutboxEvent, env Envelope) map[string]string {
	return map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(row.EventType),
		"schema_version": strconv.Itoa(env.Version),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}
