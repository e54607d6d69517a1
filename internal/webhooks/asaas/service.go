package asaaswebhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/internal/subscriptions"
	"github.com/devfurlan/cuidly-sub007/pkg/asaas"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
)

const (
	// Provider is the webhook_events.provider value of gateway deliveries.
	Provider = "asaas"
	// Consumer scopes the Redis dedup keys.
	Consumer = "asaas-webhook"
)

// activatableStatuses may move to ACTIVE on a confirmed payment. A terminal row
// changed after it was read stays terminal because the update is conditional.
var activatableStatuses = []enums.SubscriptionStatus{
	enums.SubscriptionStatusIncomplete,
	enums.SubscriptionStatusTrialing,
	enums.SubscriptionStatusActive,
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// dedupGuard is the Redis fast path in front of the durable webhook_events check.
type dedupGuard interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

type ServiceParams struct {
	BillingRepo       billing.Repository
	EventRepo         Repository
	Outbox            *outbox.Service
	Guard             dedupGuard
	TransactionRunner txRunner
	Logger            *logger.Logger
	Now               func() time.Time
}

// Result reports what happened to one delivery.
type Result struct {
	Duplicate bool
	Ignored   bool
}

type Service struct {
	billingRepo billing.Repository
	eventRepo   Repository
	outbox      *outbox.Service
	guard       dedupGuard
	txRunner    txRunner
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.EventRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event repo required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		billingRepo: params.BillingRepo,
		eventRepo:   params.EventRepo,
		outbox:      params.Outbox,
		guard:       params.Guard,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// HandleEvent applies one verified delivery exactly once. The Redis guard is
// an optimisation; the webhook_events row written in the same transaction as
// the state change is what makes redelivery harmless.
func (s *Service) HandleEvent(ctx context.Context, event asaas.WebhookEvent, raw []byte) (Result, error) {
	logCtx := s.withFields(ctx, map[string]any{"webhook_event_id": event.ID, "webhook_event_type": event.Event})

	if s.guard != nil {
		claimed, err := s.guard.Claim(ctx, Consumer, event.ID)
		if err != nil {
			s.warn(logCtx, "webhook dedup cache unavailable, relying on durable check: "+err.Error())
		} else if !claimed {
			s.info(logCtx, "duplicate webhook delivery ignored")
			return Result{Duplicate: true}, nil
		}
	}

	var result Result
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		record := &models.WebhookEvent{
			ID:          uuid.New(),
			Provider:    Provider,
			EventID:     event.ID,
			EventType:   event.Event,
			Payload:     datatypes.JSON(raw),
			ProcessedAt: now,
			CreatedAt:   now,
		}
		inserted, err := s.eventRepo.WithTx(tx).Record(ctx, record)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
		}
		if !inserted {
			result.Duplicate = true
			return nil
		}
		applied, err := s.apply(ctx, tx, event, now)
		if err != nil {
			return err
		}
		result.Ignored = !applied
		return nil
	})
	if err != nil {
		if s.guard != nil {
			if delErr := s.guard.Release(ctx, Consumer, event.ID); delErr != nil {
				s.logError(logCtx, "failed to release webhook dedup key", delErr)
			}
		}
		s.logError(logCtx, "webhook processing failed", err)
		return Result{}, err
	}

	switch {
	case result.Duplicate:
		s.info(logCtx, "duplicate webhook delivery ignored")
	case result.Ignored:
		s.info(logCtx, "webhook event recorded without state change")
	default:
		s.info(logCtx, "webhook event applied")
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, event asaas.WebhookEvent, now time.Time) (bool, error) {
	switch event.Event {
	case asaas.EventPaymentConfirmed:
		return s.confirmPayment(ctx, tx, event, enums.PaymentStatusConfirmed, now)
	case asaas.EventPaymentReceived:
		return s.confirmPayment(ctx, tx, event, enums.PaymentStatusPaid, now)
	case asaas.EventPaymentOverdue, asaas.EventPaymentDeleted, asaas.EventPaymentRefunded:
		return s.failPayment(ctx, tx, event, now)
	case asaas.EventSubscriptionDeleted, asaas.EventSubscriptionInactivated:
		return s.cancelSubscription(ctx, tx, event, now)
	default:
		return false, nil
	}
}

// confirmPayment records the settled charge and activates the subscription it pays for.
func (s *Service) confirmPayment(ctx context.Context, tx *gorm.DB, event asaas.WebhookEvent, status enums.PaymentStatus, now time.Time) (bool, error) {
	if event.Payment == nil || strings.TrimSpace(event.Payment.ID) == "" {
		s.warn(ctx, "payment event without payment, recorded without state change")
		return false, nil
	}
	repo := s.billingRepo.WithTx(tx)

	payment, err := repo.FindPaymentByExternalID(ctx, event.Payment.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	var sub *models.Subscription
	if payment != nil {
		sub, err = repo.FindByID(ctx, payment.SubscriptionID)
	} else if event.Payment.Subscription != "" {
		sub, err = repo.FindByExternalSubscriptionID(ctx, event.Payment.Subscription)
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		s.warn(ctx, fmt.Sprintf("payment %s does not belong to a known subscription", event.Payment.ID))
		return false, nil
	}

	if payment == nil {
		payment = &models.Payment{
			ID:                uuid.New(),
			SubscriptionID:    sub.ID,
			Status:            status,
			Amount:            event.Payment.Value,
			ExternalPaymentID: ptr(event.Payment.ID),
			PaidAt:            ptr(now),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if url := strings.TrimSpace(event.Payment.InvoiceURL); url != "" {
			payment.ExternalInvoiceURL = ptr(url)
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
		}
	} else if payment.Status != enums.PaymentStatusPaid {
		payment.Status = status
		payment.PaidAt = ptr(now)
		payment.FailureReason = nil
		payment.UpdatedAt = now
		if err := repo.UpdatePayment(ctx, payment); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}
	}

	if sub.Status.IsTerminal() {
		s.warn(s.subscriptionContext(ctx, sub), fmt.Sprintf("payment %s confirmed for a %s subscription; access is not restored without a new checkout", event.Payment.ID, sub.Status))
		return true, nil
	}

	previous := sub.Status
	interval := enums.BillingIntervalMonth
	if sub.BillingInterval != nil {
		interval = *sub.BillingInterval
	}
	periodEnd := now.AddDate(0, interval.Months(), 0)
	rows, err := repo.TransitionStatus(ctx, sub.ID, activatableStatuses, map[string]any{
		"status":               enums.SubscriptionStatusActive,
		"current_period_start": now,
		"current_period_end":   periodEnd,
		"updated_at":           now,
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate subscription")
	}
	if rows == 0 {
		s.warn(s.subscriptionContext(ctx, sub), fmt.Sprintf("payment %s confirmed after the subscription left an activatable state; access is not restored", event.Payment.ID))
		return true, nil
	}
	sub.Status = enums.SubscriptionStatusActive
	sub.CurrentPeriodStart = ptr(now)
	sub.CurrentPeriodEnd = ptr(periodEnd)
	sub.UpdatedAt = now
	if previous != enums.SubscriptionStatusActive {
		data := subscriptions.SubscriptionPayload(sub, previous)
		data.Amount = ptr(payment.Amount)
		if err := s.emit(ctx, tx, enums.EventSubscriptionActivated, sub.ID, data, now); err != nil {
			return false, err
		}
		s.info(s.subscriptionContext(ctx, sub), "subscription activated by payment confirmation")
	}
	return true, nil
}

func (s *Service) failPayment(ctx context.Context, tx *gorm.DB, event asaas.WebhookEvent, now time.Time) (bool, error) {
	if event.Payment == nil || strings.TrimSpace(event.Payment.ID) == "" {
		s.warn(ctx, "payment event without payment, recorded without state change")
		return false, nil
	}
	repo := s.billingRepo.WithTx(tx)
	payment, err := repo.FindPaymentByExternalID(ctx, event.Payment.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil || payment.Status == enums.PaymentStatusFailed {
		return false, nil
	}
	payment.Status = enums.PaymentStatusFailed
	payment.FailureReason = ptr(strings.ToLower(event.Event))
	payment.UpdatedAt = now
	if err := repo.UpdatePayment(ctx, payment); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	return true, nil
}

// cancelSubscription mirrors a gateway-side deletion. Rows already in a terminal
// state are left untouched.
func (s *Service) cancelSubscription(ctx context.Context, tx *gorm.DB, event asaas.WebhookEvent, now time.Time) (bool, error) {
	externalID := event.SubscriptionID()
	if externalID == "" {
		s.warn(ctx, "subscription event without subscription, recorded without state change")
		return false, nil
	}
	repo := s.billingRepo.WithTx(tx)
	sub, err := repo.FindByExternalSubscriptionID(ctx, externalID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return false, nil
	}
	rows, err := repo.TransitionStatus(ctx, sub.ID, []enums.SubscriptionStatus{
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusTrialing,
		enums.SubscriptionStatusIncomplete,
	}, map[string]any{
		"status":               enums.SubscriptionStatusCanceled,
		"canceled_at":          now,
		"cancel_at_period_end": false,
		"cancel_reason":        "canceled at the payment gateway",
		"updated_at":           now,
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
	}
	if rows == 0 {
		return false, nil
	}
	previous := sub.Status
	sub.Status = enums.SubscriptionStatusCanceled
	sub.CanceledAt = ptr(now)
	sub.CancelAtPeriodEnd = false
	if err := s.emit(ctx, tx, enums.EventSubscriptionCanceled, sub.ID, subscriptions.SubscriptionPayload(sub, previous), now); err != nil {
		return false, err
	}
	s.warn(s.subscriptionContext(ctx, sub), "subscription canceled by the payment gateway")
	return true, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, subscriptionID uuid.UUID, data any, now time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   subscriptionID,
		Actor:         &outbox.ActorRef{Role: "gateway"},
		Data:          data,
		Version:       1,
		OccurredAt:    now,
	})
}

func (s *Service) subscriptionContext(ctx context.Context, sub *models.Subscription) context.Context {
	if s.logg == nil {
		return ctx
	}
	owner := billing.OwnerOf(sub)
	ctx = s.logg.WithOwner(ctx, string(owner.Type), owner.ID.String())
	return s.logg.WithSubscriptionID(ctx, sub.ID.String())
}

func (s *Service) withFields(ctx context.Context, fields map[string]any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *Service) logError(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}

func ptr[T any](v T) *T {
	return &v
}
