package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/coupons"
	"github.com/devfurlan/cuidly-sub007/internal/pendingops"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

// TrialInput activates a cardless trial through a FREE_TRIAL_DAYS coupon.
type TrialInput struct {
	Requester  Requester
	Plan       enums.SubscriptionPlan
	Interval   enums.BillingInterval
	CouponCode string
}

// ActivateTrial never talks to the gateway. A previous checkout left at the
// gateway is handed to the retry queue instead.
func (s *service) ActivateTrial(ctx context.Context, input TrialInput) (*models.Subscription, error) {
	req := input.Requester
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.CouponCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	interval := input.Interval
	if interval == "" {
		interval = s.pricer.DefaultInterval()
	}
	gross, err := s.pricer.Price(req.Owner.Type, input.Plan, interval)
	if err != nil {
		return nil, err
	}
	result, err := s.coupons.Validate(ctx, coupons.ValidateInput{
		Code:           input.CouponCode,
		Plan:           input.Plan,
		Interval:       interval,
		Identity:       req.identity(),
		PurchaseAmount: &gross,
	})
	if err != nil {
		return nil, err
	}
	if !result.IsValid {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCoupon, result.Message)
	}
	if !result.IsFreeTrial {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon does not grant a free trial")
	}
	if result.RequiresCreditCard {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon requires a credit card, use checkout instead")
	}

	now := s.now()
	trialEnd := now.Add(time.Duration(result.TrialDays) * 24 * time.Hour)
	var saved *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, err := txRepo.FindByOwnerForUpdate(ctx, req.Owner)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if current.HoldsPaidAccess() {
			return pkgerrors.New(pkgerrors.CodeAlreadySubscribed, "owner already holds a paid subscription")
		}

		row := models.Subscription{ID: uuid.New()}
		if current != nil {
			row = *current
			if current.HasGatewaySubscription() {
				if _, err := s.pending.Enqueue(ctx, tx, pendingops.EnqueueInput{
					Type:           enums.PendingOperationCancelSubscription,
					SubscriptionID: current.ID,
					ExternalID:     *current.ExternalSubscriptionID,
					Reason:         "replaced by a cardless trial",
				}); err != nil {
					return err
				}
				if err := s.supersedeOpenPayments(ctx, txRepo, current.ID, now); err != nil {
					return err
				}
			}
		}
		row.Plan = input.Plan
		row.BillingInterval = ptr(interval)
		row.Status = enums.SubscriptionStatusTrialing
		row.PaymentGateway = nil
		row.ExternalCustomerID = nil
		row.ExternalSubscriptionID = nil
		row.CurrentPeriodStart = ptr(now)
		row.CurrentPeriodEnd = ptr(trialEnd)
		row.TrialEndDate = ptr(trialEnd)
		row.CancelAtPeriodEnd = false
		row.CanceledAt = nil
		row.CancelReason = nil
		row.AppliedCouponID = ptr(result.CouponID)
		row.DiscountAmount = decimal.NewNullDecimal(decimal.Zero)
		row.UpdatedAt = now
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		if err := txRepo.UpsertByOwner(ctx, req.Owner, &row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist trial")
		}
		if _, err := s.coupons.Apply(ctx, tx, coupons.ApplyInput{
			CouponID:       result.CouponID,
			Identity:       req.identity(),
			SubscriptionID: row.ID,
			DiscountAmount: decimal.Zero,
		}); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, enums.EventTrialStarted, row.ID, req.actor(), TrialPayload(&row, result.TrialDays, "coupon")); err != nil {
			return err
		}
		saved = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(s.logContext(ctx, req.Owner, saved.ID), fmt.Sprintf("trial activated for %d days with coupon %s", result.TrialDays, result.Code))
	return saved, nil
}

// ActivateTriggerTrial upgrades a free row to its paid counterpart once per owner.
func (s *service) ActivateTriggerTrial(ctx context.Context, req Requester) (*models.Subscription, error) {
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	if !s.triggerEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "trigger trial is not enabled")
	}

	now := s.now()
	days := s.cfg.TriggerTrialDays
	trialEnd := now.Add(time.Duration(days) * 24 * time.Hour)
	var saved *models.Subscription
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, err := txRepo.FindByOwnerForUpdate(ctx, req.Owner)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotEligible, "owner has no free plan subscription")
		}
		if current.TriggerTrialUsedAt != nil {
			return pkgerrors.New(pkgerrors.CodeAlreadyUsed, "trigger trial already used")
		}
		if !current.Plan.IsFree() || current.Plan.OwnerType() != req.Owner.Type || current.Status != enums.SubscriptionStatusActive {
			return pkgerrors.New(pkgerrors.CodeNotEligible, "owner is not on a free plan")
		}

		current.Plan = current.Plan.PaidCounterpart()
		if current.BillingInterval == nil {
			current.BillingInterval = ptr(s.pricer.DefaultInterval())
		}
		current.Status = enums.SubscriptionStatusTrialing
		current.TrialEndDate = ptr(trialEnd)
		current.CurrentPeriodStart = ptr(now)
		current.CurrentPeriodEnd = ptr(trialEnd)
		current.CancelAtPeriodEnd = false
		current.CanceledAt = nil
		current.TriggerTrialUsedAt = ptr(now)
		current.UpdatedAt = now
		if err := txRepo.UpdateSubscription(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist trigger trial")
		}
		if err := s.emit(ctx, tx, enums.EventTrialStarted, current.ID, req.actor(), TrialPayload(current, days, "trigger")); err != nil {
			return err
		}
		saved = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(s.logContext(ctx, req.Owner, saved.ID), fmt.Sprintf("trigger trial activated for %d days", days))
	return saved, nil
}
