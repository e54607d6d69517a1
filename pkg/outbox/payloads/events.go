package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

// SubscriptionEvent describes a lifecycle transition of one subscription row.
type SubscriptionEvent struct {
	SubscriptionID      uuid.UUID                `json:"subscription_id"`
	OwnerType           enums.OwnerType          `json:"owner_type"`
	OwnerID             uuid.UUID                `json:"owner_id"`
	Plan                enums.SubscriptionPlan   `json:"plan"`
	Status              enums.SubscriptionStatus `json:"status"`
	PreviousStatus      enums.SubscriptionStatus `json:"previous_status,omitempty"`
	BillingInterval     enums.BillingInterval    `json:"billing_interval,omitempty"`
	CurrentPeriodEnd    *time.Time               `json:"current_period_end,omitempty"`
	ExternalID          string                   `json:"external_subscription_id,omitempty"`
	Amount              *decimal.Decimal         `json:"amount,omitempty"`
	DiscountAmount      *decimal.Decimal         `json:"discount_amount,omitempty"`
	CouponCode          string                   `json:"coupon_code,omitempty"`
	PaymentURL          string                   `json:"payment_url,omitempty"`
	Warning             string                   `json:"warning,omitempty"`
	CancelAtPeriodEnd   bool                     `json:"cancel_at_period_end"`
	PendingOperationIDs []uuid.UUID              `json:"pending_operation_ids,omitempty"`
}

// TrialEvent is emitted when a trial starts or ends.
type TrialEvent struct {
	SubscriptionID   uuid.UUID              `json:"subscription_id"`
	OwnerType        enums.OwnerType        `json:"owner_type"`
	OwnerID          uuid.UUID              `json:"owner_id"`
	Plan             enums.SubscriptionPlan `json:"plan"`
	TrialEndDate     *time.Time             `json:"trial_end_date,omitempty"`
	TrialDays        int                    `json:"trial_days,omitempty"`
	Source           string                 `json:"source,omitempty"`
	HasPaymentMethod bool                   `json:"has_payment_method"`
}

// PendingOperationEscalatedEvent asks an operator to finish a gateway cleanup by hand.
type PendingOperationEscalatedEvent struct {
	OperationID    uuid.UUID                  `json:"operation_id"`
	OperationType  enums.PendingOperationType `json:"operation_type"`
	SubscriptionID uuid.UUID                  `json:"subscription_id"`
	ExternalID     string                     `json:"external_id"`
	Attempts       int                        `json:"attempts"`
	LastError      string                     `json:"last_error,omitempty"`
	Terminal       bool                       `json:"terminal"`
}
