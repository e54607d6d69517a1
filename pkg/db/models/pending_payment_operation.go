package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

// PendingPaymentOperation is a gateway side effect waiting to be replayed.
type PendingPaymentOperation struct {
	ID             uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type           enums.PendingOperationType `gorm:"column:type;not null"`
	SubscriptionID uuid.UUID                  `gorm:"column:subscription_id;type:uuid;not null;index"`
	PaymentID      *uuid.UUID                 `gorm:"column:payment_id;type:uuid"`
	ExternalID     string                     `gorm:"column:external_id;not null"`
	OperationData  datatypes.JSON             `gorm:"column:operation_data;type:jsonb"`
	LastError      *string                    `gorm:"column:last_error"`
	AttemptCount   int                        `gorm:"column:attempt_count;not null;default:0"`
	TerminalAt     *time.Time                 `gorm:"column:terminal_at"`
	EscalatedAt    *time.Time                 `gorm:"column:escalated_at"`
	CreatedAt      time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
