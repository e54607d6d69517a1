package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
)

func envelopeJSON(t *testing.T, eventID string, data string) []byte {
	t.Helper()
	raw, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return raw
}

func row(t *testing.T, eventType enums.OutboxEventType, aggregateID uuid.UUID, data string) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: eventType.Aggregate(),
		AggregateID:   aggregateID,
		Payload:       envelopeJSON(t, uuid.NewString(), data),
	}
}

func testRouter(t *testing.T) *Router {
	t.Helper()
	r, err := NewRouter(config.PubSubConfig{BillingTopic: "billing-events"})
	require.NoError(t, err)
	return r
}

func TestRouterBuildsOrderedMessage(t *testing.T) {
	subID := uuid.New()
	in := row(t, enums.EventSubscriptionCanceled, subID, `{"subscription_id":"`+subID.String()+`","status":"CANCELED"}`)

	msg, err := testRouter(t).Message(in)
	require.NoError(t, err)
	assert.Equal(t, "billing-events", msg.Topic)
	assert.Equal(t, subID.String(), msg.OrderingKey)
	assert.Equal(t, []byte(in.Payload), msg.Data)
	assert.Equal(t, string(enums.EventSubscriptionCanceled), msg.Attributes["event_type"])
	assert.Equal(t, "1", msg.Attributes["schema_version"])
	assert.Equal(t, msg.EventID, msg.Attributes["event_id"])
}

func TestRouterRejectsPoisonRows(t *testing.T) {
	good := func() models.OutboxEvent {
		return row(t, enums.EventTrialStarted, uuid.New(), `{"trial_days":30}`)
	}
	tests := []struct {
		name   string
		mutate func(*models.OutboxEvent)
	}{
		{"unknown type", func(r *models.OutboxEvent) { r.EventType = "billing.unknown" }},
		{"aggregate mismatch", func(r *models.OutboxEvent) { r.AggregateType = enums.AggregatePendingOperation }},
		{"nil aggregate", func(r *models.OutboxEvent) { r.AggregateID = uuid.Nil }},
		{"broken envelope", func(r *models.OutboxEvent) { r.Payload = []byte(`{"version":`) }},
		{"null data", func(r *models.OutboxEvent) { r.Payload = envelopeJSON(t, "evt-1", "null") }},
		{"missing event id", func(r *models.OutboxEvent) { r.Payload = envelopeJSON(t, "", `{}`) }},
		{"schema mismatch", func(r *models.OutboxEvent) { r.Payload = envelopeJSON(t, "evt-2", `{"trial_days":"thirty"}`) }},
	}
	router := testRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := good()
			tt.mutate(&in)
			_, err := router.Message(in)
			require.Error(t, err)
			assert.True(t, IsPoison(err), "got %v", err)
		})
	}
}

func TestNewRouterRequiresTopic(t *testing.T) {
	_, err := NewRouter(config.PubSubConfig{})
	assert.Error(t, err)
}
