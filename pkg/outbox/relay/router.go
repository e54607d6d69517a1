package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox/payloads"
)

// Message is one outbox row ready for Pub/Sub.
type Message struct {
	RowID       uuid.UUID
	EventID     string
	EventType   enums.OutboxEventType
	Topic       string
	OrderingKey string
	Data        []byte
	Attributes  map[string]string
}

// PoisonError marks a row that can never be published as stored. The relay
// buries it instead of retrying.
type PoisonError struct {
	Reason string
	Err    error
}

func (e *PoisonError) Error() string {
	if e.Err == nil {
		return "poison outbox row: " + e.Reason
	}
	return fmt.Sprintf("poison outbox row: %s: %v", e.Reason, e.Err)
}

func (e *PoisonError) Unwrap() error { return e.Err }

func poison(reason string, err error) error {
	return &PoisonError{Reason: reason, Err: err}
}

// IsPoison reports whether err marks an unpublishable row.
func IsPoison(err error) bool {
	var p *PoisonError
	return errors.As(err, &p)
}

type route struct {
	topic  string
	schema func() any
}

// Router maps event types to topics and checks each stored payload against
// the schema its consumers decode.
type Router struct {
	routes map[enums.OutboxEventType]route
}

func NewRouter(cfg config.PubSubConfig) (*Router, error) {
	if cfg.BillingTopic == "" {
		return nil, errors.New("relay: billing topic is required")
	}
	subscription := func() any { return new(payloads.SubscriptionEvent) }
	trial := func() any { return new(payloads.TrialEvent) }
	escalation := func() any { return new(payloads.PendingOperationEscalatedEvent) }

	r := &Router{routes: map[enums.OutboxEventType]route{
		enums.EventSubscriptionCheckoutStarted: {cfg.BillingTopic, subscription},
		enums.EventSubscriptionActivated:       {cfg.BillingTopic, subscription},
		enums.EventSubscriptionCanceled:        {cfg.BillingTopic, subscription},
		enums.EventSubscriptionReverted:        {cfg.BillingTopic, subscription},
		enums.EventTrialDowngraded:             {cfg.BillingTopic, subscription},
		enums.EventTrialStarted:                {cfg.BillingTopic, trial},
		enums.EventTrialExpired:                {cfg.BillingTopic, trial},
		enums.EventPendingOperationEscalated:   {cfg.BillingTopic, escalation},
	}}
	return r, nil
}

// Message validates row and builds its Pub/Sub message. Every error it
// returns is a *PoisonError.
func (r *Router) Message(row models.OutboxEvent) (Message, error) {
	rt, ok := r.routes[row.EventType]
	if !ok {
		return Message{}, poison("unrouted event type "+string(row.EventType), nil)
	}
	if want := row.EventType.Aggregate(); row.AggregateType != want {
		return Message{}, poison(fmt.Sprintf("aggregate %s, want %s", row.AggregateType, want), nil)
	}
	if row.AggregateID == uuid.Nil {
		return Message{}, poison("missing aggregate id", nil)
	}

	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return Message{}, poison("undecodable envelope", err)
	}
	if env.EventID == "" {
		return Message{}, poison("envelope without event id", nil)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Message{}, poison("envelope without data", nil)
	}
	if err := json.Unmarshal(data, rt.schema()); err != nil {
		return Message{}, poison("data does not match "+string(row.EventType), err)
	}

	return Message{
		RowID:       row.ID,
		EventID:     env.EventID,
		EventType:   row.EventType,
		Topic:       rt.topic,
		OrderingKey: row.AggregateID.String(),
		Data:        row.Payload,
		Attributes:  outbox.Attributes(row, env),
	}, nil
}
