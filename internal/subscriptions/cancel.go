package subscriptions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/internal/gateway"
	"github.com/devfurlan/cuidly-sub007/internal/pendingops"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

// CancelInput ends the owner's subscription immediately.
type CancelInput struct {
	Requester Requester
	Reason    string
}

// CancelResult carries the canceled row. Warning lists gateway cleanups that
// were deferred or need manual handling.
type CancelResult struct {
	Subscription *models.Subscription
	Warning      string
}

// RevertResult carries the row after a revert attempt.
type RevertResult struct {
	Subscription *models.Subscription
	Warning      string
}

// gatewayCleanup is the outcome of the best-effort gateway calls made before
// the local cancellation is written.
type gatewayCleanup struct {
	warnings        []string
	queued          []pendingops.EnqueueInput
	deletedInvoices map[uuid.UUID]bool
}

// Cancel always ends with a CANCELED row once preconditions pass. Gateway
// failures become warnings and, when retryable, pending operations.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*CancelResult, error) {
	req := input.Requester
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByOwner(ctx, req.Owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.Status == enums.SubscriptionStatusCanceled {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyCanceled, "subscription already canceled")
	}
	logCtx := s.logContext(ctx, req.Owner, sub.ID)

	openPayments, err := s.repo.ListOpenPayments(ctx, sub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open payments")
	}
	cleanup := s.cleanupGateway(ctx, sub, openPayments)

	now := s.now()
	var saved *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, err := txRepo.FindByOwnerForUpdate(ctx, req.Owner)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		if current.Status == enums.SubscriptionStatusCanceled {
			return pkgerrors.New(pkgerrors.CodeAlreadyCanceled, "subscription already canceled")
		}
		drift, err := s.driftCleanup(ctx, txRepo, sub, current, openPayments)
		if err != nil {
			return err
		}
		cleanup.queued = append(cleanup.queued, drift.queued...)
		cleanup.warnings = append(cleanup.warnings, drift.warnings...)

		previous := current.Status
		current.Status = enums.SubscriptionStatusCanceled
		current.CanceledAt = ptr(now)
		current.CancelAtPeriodEnd = false
		current.CancelReason = nil
		if reason := strings.TrimSpace(input.Reason); reason != "" {
			current.CancelReason = ptr(reason)
		}
		current.UpdatedAt = now
		if err := txRepo.UpdateSubscription(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cancellation")
		}

		for i := range openPayments {
			payment := openPayments[i]
			if !cleanup.deletedInvoices[payment.ID] {
				continue
			}
			payment.Status = enums.PaymentStatusFailed
			payment.FailureReason = ptr("invoice canceled with the subscription")
			payment.UpdatedAt = now
			if err := txRepo.UpdatePayment(ctx, &payment); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close canceled invoice")
			}
		}

		queuedIDs := make([]uuid.UUID, 0, len(cleanup.queued))
		for _, op := range cleanup.queued {
			queued, err := s.pending.Enqueue(ctx, tx, op)
			if err != nil {
				return err
			}
			queuedIDs = append(queuedIDs, queued.ID)
		}

		data := SubscriptionPayload(current, previous)
		data.Warning = strings.Join(cleanup.warnings, "; ")
		data.PendingOperationIDs = queuedIDs
		if err := s.emit(ctx, tx, enums.EventSubscriptionCanceled, current.ID, req.actor(), data); err != nil {
			return err
		}
		saved = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	warning := strings.Join(cleanup.warnings, "; ")
	if warning != "" {
		s.warn(logCtx, "subscription canceled with warnings: "+warning)
	} else {
		s.info(logCtx, "subscription canceled")
	}
	return &CancelResult{Subscription: saved, Warning: warning}, nil
}

func (s *service) cleanupGateway(ctx context.Context, sub *models.Subscription, openPayments []models.Payment) gatewayCleanup {
	cleanup := gatewayCleanup{deletedInvoices: map[uuid.UUID]bool{}}

	if sub.HasGatewaySubscription() {
		externalID := *sub.ExternalSubscriptionID
		if err := s.gateway.DeleteSubscription(ctx, externalID); err != nil {
			desc := gateway.Describe(err)
			if gateway.IsRetryable(err) {
				cleanup.queued = append(cleanup.queued, pendingops.EnqueueInput{
					Type:           enums.PendingOperationCancelSubscription,
					SubscriptionID: sub.ID,
					ExternalID:     externalID,
					Reason:         desc,
				})
				cleanup.warnings = append(cleanup.warnings, fmt.Sprintf("gateway subscription %s cancellation will be retried: %s", externalID, desc))
			} else {
				cleanup.warnings = append(cleanup.warnings, fmt.Sprintf("gateway subscription %s could not be canceled and needs manual handling: %s", externalID, desc))
			}
		}
	}

	for _, payment := range openPayments {
		if payment.ExternalPaymentID == nil || *payment.ExternalPaymentID == "" {
			continue
		}
		externalID := *payment.ExternalPaymentID
		err := s.gateway.DeleteInvoice(ctx, externalID)
		if err == nil {
			cleanup.deletedInvoices[payment.ID] = true
			continue
		}
		desc := gateway.Describe(err)
		if gateway.IsRetryable(err) {
			paymentID := payment.ID
			cleanup.queued = append(cleanup.queued, pendingops.EnqueueInput{
				Type:           enums.PendingOperationCancelInvoice,
				SubscriptionID: sub.ID,
				PaymentID:      &paymentID,
				ExternalID:     externalID,
				Reason:         desc,
			})
			cleanup.warnings = append(cleanup.warnings, fmt.Sprintf("invoice %s cancellation will be retried: %s", externalID, desc))
			continue
		}
		cleanup.warnings = append(cleanup.warnings, fmt.Sprintf("invoice %s could not be canceled and needs manual handling: %s", externalID, desc))
	}
	return cleanup
}

// driftCleanup queues the gateway resources a checkout attached to the row
// after snapshot was read. The gateway calls never saw them, so they go
// straight to the retry queue.
func (s *service) driftCleanup(ctx context.Context, txRepo billing.Repository, snapshot, current *models.Subscription, seen []models.Payment) (gatewayCleanup, error) {
	var drift gatewayCleanup

	snapshotID := ""
	if snapshot.HasGatewaySubscription() {
		snapshotID = *snapshot.ExternalSubscriptionID
	}
	if current.HasGatewaySubscription() && *current.ExternalSubscriptionID != snapshotID {
		externalID := *current.ExternalSubscriptionID
		drift.queued = append(drift.queued, pendingops.EnqueueInput{
			Type:           enums.PendingOperationCancelSubscription,
			SubscriptionID: current.ID,
			ExternalID:     externalID,
			Reason:         "gateway subscription attached during cancellation",
		})
		drift.warnings = append(drift.warnings, fmt.Sprintf("gateway subscription %s was created during cancellation; its cancellation is queued", externalID))
	}

	open, err := txRepo.ListOpenPayments(ctx, current.ID)
	if err != nil {
		return drift, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open payments")
	}
	known := make(map[uuid.UUID]bool, len(seen))
	for _, payment := range seen {
		known[payment.ID] = true
	}
	for _, payment := range open {
		if known[payment.ID] {
			continue
		}
		paymentID := payment.ID
		externalID := *payment.ExternalPaymentID
		drift.queued = append(drift.queued, pendingops.EnqueueInput{
			Type:           enums.PendingOperationCancelInvoice,
			SubscriptionID: current.ID,
			PaymentID:      &paymentID,
			ExternalID:     externalID,
			Reason:         "invoice issued during cancellation",
		})
		drift.warnings = append(drift.warnings, fmt.Sprintf("invoice %s was issued during cancellation; its cancellation is queued", externalID))
	}
	return drift, nil
}

// RevertCancellation clears a scheduled cancellation. A gateway subscription
// deleted out of band cannot be recreated without a card, so the row is left
// untouched and the caller is told to start a new checkout.
func (s *service) RevertCancellation(ctx context.Context, req Requester) (*RevertResult, error) {
	if err := req.Owner.Validate(); err != nil {
		return nil, err
	}
	sub, err := s.repo.FindByOwner(ctx, req.Owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if !sub.CancelAtPeriodEnd {
		return nil, pkgerrors.New(pkgerrors.CodeNotScheduledForCancelation, "subscription is not scheduled for cancellation")
	}
	logCtx := s.logContext(ctx, req.Owner, sub.ID)

	if sub.HasGatewaySubscription() {
		if _, err := s.gateway.GetSubscription(ctx, *sub.ExternalSubscriptionID); err != nil {
			if !gateway.IsNotFound(err) {
				return nil, gatewayFailure(err, "subscription lookup")
			}
			warning := "the billing subscription no longer exists at the payment gateway; reactivate manually by starting a new checkout"
			s.warn(logCtx, "cancellation revert refused: "+warning)
			return &RevertResult{Subscription: sub, Warning: warning}, nil
		}
	}

	now := s.now()
	var saved *models.Subscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		current, err := txRepo.FindByOwnerForUpdate(ctx, req.Owner)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock subscription")
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		if !current.CancelAtPeriodEnd {
			return pkgerrors.New(pkgerrors.CodeNotScheduledForCancelation, "subscription is not scheduled for cancellation")
		}
		current.CancelAtPeriodEnd = false
		current.CanceledAt = nil
		current.CancelReason = nil
		current.UpdatedAt = now
		if err := txRepo.UpdateSubscription(ctx, current); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist revert")
		}
		if err := s.emit(ctx, tx, enums.EventSubscriptionReverted, current.ID, req.actor(), SubscriptionPayload(current, current.Status)); err != nil {
			return err
		}
		saved = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.info(logCtx, "scheduled cancellation reverted")
	return &RevertResult{Subscription: saved}, nil
}
