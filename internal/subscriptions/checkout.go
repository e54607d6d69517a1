package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/internal/coupons"
	"github.com/devfurlan/cuidly-sub007/internal/gateway"
	"github.com/devfurlan/cuidly-sub007/internal/pendingops"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

// CheckoutInput starts or replaces a paid subscription.
type CheckoutInput struct {
	Requester  Requester
	Plan       enums.SubscriptionPlan
	Interval   enums.BillingInterval
	CouponCode string
}

// CheckoutResult is the persisted row plus the link the owner pays through.
type CheckoutResult struct {
	Subscription   *models.Subscription
	PaymentURL     string
	Amount         decimal.Decimal
	DiscountAmount decimal.Decimal
}

type pricing struct {
	gross    decimal.Decimal
	discount decimal.Decimal
	final    decimal.Decimal
	coupon   *coupons.Result
}

func (s *service) CreateOrUpgrade(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	req := input.Requester
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	interval := input.Interval
	if interval == "" {
		interval = s.pricer.DefaultInterval()
	}

	existing, err := s.repo.FindByOwner(ctx, req.Owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	var existingID uuid.UUID
	if existing != nil {
		existingID = existing.ID
	}
	logCtx := s.logContext(ctx, req.Owner, existingID)
	if existing.HoldsPaidAccess() {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadySubscribed, "owner already holds a paid subscription")
	}

	price, err := s.price(ctx, req, input.Plan, interval, input.CouponCode)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var trialEnd *time.Time
	if price.coupon != nil && price.coupon.IsFreeTrial {
		if !price.coupon.RequiresCreditCard {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon grants a trial without a card, activate it as a trial instead")
		}
		trialEnd = ptr(now.Add(time.Duration(price.coupon.TrialDays) * 24 * time.Hour))
	}

	customerID := ""
	if existing != nil && existing.ExternalCustomerID != nil {
		customerID = *existing.ExternalCustomerID
	}
	if customerID == "" {
		customer, err := s.gateway.CreateCustomer(ctx, gateway.CustomerInput{
			Name:              req.Name,
			Email:             req.Email,
			ExternalReference: req.Owner.String(),
		})
		if err != nil {
			return nil, gatewayFailure(err, "customer creation")
		}
		customerID = customer.ID
	}

	dueDate := now
	if trialEnd != nil {
		dueDate = *trialEnd
	}
	gwSub, err := s.gateway.CreateSubscription(ctx, gateway.SubscriptionInput{
		CustomerID:        customerID,
		Value:             price.final,
		Cycle:             interval.GatewayCycle(),
		NextDueDate:       dueDate,
		Description:       s.cfg.PaymentDescription,
		ExternalReference: req.Owner.String(),
	})
	if err != nil {
		return nil, gatewayFailure(err, "subscription creation")
	}

	// The row id is reserved up front so a compensation can reference it.
	subscriptionID := uuid.New()
	if existing != nil {
		subscriptionID = existing.ID
	}

	link, err := s.gateway.CreatePaymentLink(ctx, gwSub.ID)
	if err != nil {
		s.compensate(logCtx, subscriptionID, gwSub.ID)
		return nil, gatewayFailure(err, "payment link creation")
	}

	var (
		saved *models.Subscription
		prior *models.Subscription
	)
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, err := txRepo.FindByOwnerForUpdate(ctx, req.Owner)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if current.HoldsPaidAccess() {
			return pkgerrors.New(pkgerrors.CodeAlreadySubscribed, "owner already holds a paid subscription")
		}

		row := models.Subscription{ID: subscriptionID}
		if current != nil {
			snapshot := *current
			prior = &snapshot
			row = *current
		}
		row.Plan = input.Plan
		row.BillingInterval = ptr(interval)
		row.Status = enums.SubscriptionStatusIncomplete
		row.PaymentGateway = ptr(enums.PaymentGatewayAsaas)
		row.ExternalCustomerID = ptr(customerID)
		row.ExternalSubscriptionID = ptr(gwSub.ID)
		row.CurrentPeriodStart = nil
		row.CurrentPeriodEnd = nil
		row.TrialEndDate = trialEnd
		row.CancelAtPeriodEnd = false
		row.CanceledAt = nil
		row.CancelReason = nil
		row.AppliedCouponID = nil
		row.DiscountAmount = decimal.NullDecimal{}
		row.UpdatedAt = now
		if trialEnd != nil {
			row.Status = enums.SubscriptionStatusTrialing
			row.CurrentPeriodStart = ptr(now)
			row.CurrentPeriodEnd = trialEnd
		}
		if price.coupon != nil {
			row.AppliedCouponID = ptr(price.coupon.CouponID)
			row.DiscountAmount = decimal.NewNullDecimal(price.discount)
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		if err := txRepo.UpsertByOwner(ctx, req.Owner, &row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
		}

		if err := s.supersedeOpenPayments(ctx, txRepo, row.ID, now); err != nil {
			return err
		}
		payment := &models.Payment{
			ID:                 uuid.New(),
			SubscriptionID:     row.ID,
			Status:             enums.PaymentStatusPending,
			Amount:             link.Amount,
			ExternalPaymentID:  ptr(link.PaymentID),
			ExternalInvoiceURL: ptr(link.URL),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if payment.Amount.IsZero() {
			payment.Amount = price.final
		}
		if err := txRepo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}

		if price.coupon != nil {
			if _, err := s.coupons.Apply(ctx, tx, coupons.ApplyInput{
				CouponID:       price.coupon.CouponID,
				Identity:       req.identity(),
				SubscriptionID: row.ID,
				DiscountAmount: price.discount,
			}); err != nil {
				return err
			}
		}

		previous := enums.SubscriptionStatus("")
		if prior != nil {
			previous = prior.Status
		}
		data := SubscriptionPayload(&row, previous)
		data.Amount = ptr(price.final)
		data.PaymentURL = link.URL
		if price.coupon != nil {
			data.CouponCode = price.coupon.Code
		}
		if err := s.emit(ctx, tx, enums.EventSubscriptionCheckoutStarted, row.ID, req.actor(), data); err != nil {
			return err
		}
		if row.Status == enums.SubscriptionStatusTrialing {
			if err := s.emit(ctx, tx, enums.EventTrialStarted, row.ID, req.actor(), TrialPayload(&row, price.coupon.TrialDays, "coupon")); err != nil {
				return err
			}
		}
		saved = &row
		return nil
	})
	if err != nil {
		s.compensate(logCtx, subscriptionID, gwSub.ID)
		return nil, err
	}

	logCtx = s.logContext(ctx, req.Owner, saved.ID)
	if prior != nil && prior.HasGatewaySubscription() && *prior.ExternalSubscriptionID != gwSub.ID {
		s.discardAbandoned(logCtx, saved.ID, *prior.ExternalSubscriptionID)
	}
	s.info(logCtx, fmt.Sprintf("checkout started with status %s", saved.Status))

	return &CheckoutResult{
		Subscription:   saved,
		PaymentURL:     link.URL,
		Amount:         price.final,
		DiscountAmount: price.discount,
	}, nil
}

func (s *service) price(ctx context.Context, req Requester, plan enums.SubscriptionPlan, interval enums.BillingInterval, code string) (*pricing, error) {
	gross, err := s.pricer.Price(req.Owner.Type, plan, interval)
	if err != nil {
		return nil, err
	}
	out := &pricing{gross: gross, discount: decimal.Zero, final: gross}
	if strings.TrimSpace(code) == "" {
		return out, nil
	}
	result, err := s.coupons.Validate(ctx, coupons.ValidateInput{
		Code:           code,
		Plan:           plan,
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
	out.coupon = result
	out.discount = result.DiscountAmount
	out.final = result.FinalAmount
	return out, nil
}

// supersedeOpenPayments closes the pending charges of an abandoned checkout.
func (s *service) supersedeOpenPayments(ctx context.Context, txRepo billing.Repository, subscriptionID uuid.UUID, now time.Time) error {
	open, err := txRepo.ListOpenPayments(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open payments")
	}
	for i := range open {
		open[i].Status = enums.PaymentStatusFailed
		open[i].FailureReason = ptr("superseded by a new checkout")
		open[i].UpdatedAt = now
		if err := txRepo.UpdatePayment(ctx, &open[i]); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close superseded payment")
		}
	}
	return nil
}

// compensate removes a gateway subscription whose local row was never written.
func (s *service) compensate(ctx context.Context, subscriptionID uuid.UUID, externalID string) {
	err := s.gateway.DeleteSubscription(ctx, externalID)
	if err == nil {
		s.warn(ctx, fmt.Sprintf("checkout rolled back, gateway subscription %s deleted", externalID))
		return
	}
	if !gateway.IsRetryable(err) {
		s.logError(ctx, fmt.Sprintf("checkout rolled back, gateway subscription %s could not be deleted", externalID), err)
		return
	}
	s.enqueueStandalone(ctx, pendingops.EnqueueInput{
		Type:           enums.PendingOperationCancelSubscription,
		SubscriptionID: subscriptionID,
		ExternalID:     externalID,
		Reason:         gateway.Describe(err),
	})
}

// discardAbandoned deletes the gateway subscription of a checkout that was replaced.
func (s *service) discardAbandoned(ctx context.Context, subscriptionID uuid.UUID, externalID string) {
	err := s.gateway.DeleteSubscription(ctx, externalID)
	switch {
	case err == nil:
		s.info(ctx, fmt.Sprintf("abandoned gateway subscription %s deleted", externalID))
	case gateway.IsRetryable(err):
		s.enqueueStandalone(ctx, pendingops.EnqueueInput{
			Type:           enums.PendingOperationCancelSubscription,
			SubscriptionID: subscriptionID,
			ExternalID:     externalID,
			Reason:         gateway.Describe(err),
		})
	default:
		s.logError(ctx, fmt.Sprintf("abandoned gateway subscription %s could not be deleted", externalID), err)
	}
}

func (s *service) enqueueStandalone(ctx context.Context, input pendingops.EnqueueInput) {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.pending.Enqueue(ctx, tx, input)
		return err
	})
	if err != nil {
		s.logError(ctx, fmt.Sprintf("could not queue deletion of gateway subscription %s", input.ExternalID), err)
		return
	}
	s.warn(ctx, fmt.Sprintf("deletion of gateway subscription %s queued for retry", input.ExternalID))
}
