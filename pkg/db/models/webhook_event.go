package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WebhookEvent is the durable dedup record of a gateway delivery.
type WebhookEvent struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider    string         `gorm:"column:provider;not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventID     string         `gorm:"column:event_id;not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventType   string         `gorm:"column:event_type;not null"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb"`
	ProcessedAt time.Time      `gorm:"column:processed_at;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}
