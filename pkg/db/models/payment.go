package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

// Payment is a billing attempt tied to a subscription. Rows are never deleted.
type Payment struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID     uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	Status             enums.PaymentStatus `gorm:"column:status;not null"`
	Amount             decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	ExternalPaymentID  *string             `gorm:"column:external_payment_id;uniqueIndex:ux_payments_external_payment_id"`
	ExternalInvoiceURL *string             `gorm:"column:external_invoice_url"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`
	FailureReason      *string             `gorm:"column:failure_reason"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
