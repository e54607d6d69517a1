package subscriptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

// Summary is the subscription view returned to owners.
type Summary struct {
	ID                 uuid.UUID                `json:"id"`
	OwnerType          enums.OwnerType          `json:"ownerType"`
	OwnerID            uuid.UUID                `json:"ownerId"`
	Plan               enums.SubscriptionPlan   `json:"plan"`
	BillingInterval    *enums.BillingInterval   `json:"billingInterval,omitempty"`
	Status             enums.SubscriptionStatus `json:"status"`
	PaymentGateway     *enums.PaymentGateway    `json:"paymentGateway,omitempty"`
	CurrentPeriodStart *time.Time               `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time               `json:"currentPeriodEnd,omitempty"`
	TrialEndDate       *time.Time               `json:"trialEndDate,omitempty"`
	CancelAtPeriodEnd  bool                     `json:"cancelAtPeriodEnd"`
	CanceledAt         *time.Time               `json:"canceledAt,omitempty"`
	AppliedCouponID    *uuid.UUID               `json:"appliedCouponId,omitempty"`
	DiscountAmount     *decimal.Decimal         `json:"discountAmount,omitempty"`
	HasPaidAccess      bool                     `json:"hasPaidAccess"`
	HasPaymentMethod   bool                     `json:"hasPaymentMethod"`
}

// NewSummary maps a stored row to its public view. Gateway ids stay internal.
func NewSummary(sub *models.Subscription) *Summary {
	if sub == nil {
		return nil
	}
	owner := billing.OwnerOf(sub)
	out := &Summary{
		ID:                 sub.ID,
		OwnerType:          owner.Type,
		OwnerID:            owner.ID,
		Plan:               sub.Plan,
		BillingInterval:    sub.BillingInterval,
		Status:             sub.Status,
		PaymentGateway:     sub.PaymentGateway,
		CurrentPeriodStart: toUTC(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   toUTC(sub.CurrentPeriodEnd),
		TrialEndDate:       toUTC(sub.TrialEndDate),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         toUTC(sub.CanceledAt),
		AppliedCouponID:    sub.AppliedCouponID,
		HasPaidAccess:      sub.HoldsPaidAccess(),
		HasPaymentMethod:   sub.HasGatewaySubscription(),
	}
	if sub.DiscountAmount.Valid {
		discount := sub.DiscountAmount.Decimal
		out.DiscountAmount = &discount
	}
	return out
}

func toUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
