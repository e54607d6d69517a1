package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

// Subscription is the local billing ledger row of a family or a nanny.
// Exactly one of FamilyID/NannyID is set and each is unique.
type Subscription struct {
	ID                     uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FamilyID               *uuid.UUID               `gorm:"column:family_id;type:uuid;uniqueIndex:ux_subscriptions_family_id"`
	NannyID                *uuid.UUID               `gorm:"column:nanny_id;type:uuid;uniqueIndex:ux_subscriptions_nanny_id"`
	Plan                   enums.SubscriptionPlan   `gorm:"column:plan;not null"`
	BillingInterval        *enums.BillingInterval   `gorm:"column:billing_interval"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;not null"`
	PaymentGateway         *enums.PaymentGateway    `gorm:"column:payment_gateway"`
	ExternalCustomerID     *string                  `gorm:"column:external_customer_id"`
	ExternalSubscriptionID *string                  `gorm:"column:external_subscription_id;index"`
	CurrentPeriodStart     *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd       *time.Time               `gorm:"column:current_period_end"`
	TrialEndDate           *time.Time               `gorm:"column:trial_end_date"`
	CancelAtPeriodEnd      bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt             *time.Time               `gorm:"column:canceled_at"`
	CancelReason           *string                  `gorm:"column:cancel_reason"`
	AppliedCouponID        *uuid.UUID               `gorm:"column:applied_coupon_id;type:uuid"`
	DiscountAmount         decimal.NullDecimal      `gorm:"column:discount_amount;type:numeric(12,2)"`
	TriggerTrialUsedAt     *time.Time               `gorm:"column:trigger_trial_used_at"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// HasGatewaySubscription reports whether billing exists at the gateway.
func (s *Subscription) HasGatewaySubscription() bool {
	return s != nil && s.ExternalSubscriptionID != nil && *s.ExternalSubscriptionID != ""
}

// HoldsPaidAccess reports whether the row entitles its owner to a paid plan.
func (s *Subscription) HoldsPaidAccess() bool {
	return s != nil && !s.Plan.IsFree() && s.Status.GrantsAccess()
}
