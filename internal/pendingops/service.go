package pendingops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/internal/gateway"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/metrics"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox/payloads"
)

const sweepName = "pending_operations"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service enqueues failed gateway side effects and replays them.
type Service interface {
	Enqueue(ctx context.Context, tx *gorm.DB, input EnqueueInput) (*models.PendingPaymentOperation, error)
	Sweep(ctx context.Context) (billing.SweepSummary, error)
	Retry(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]models.PendingPaymentOperation, error)
}

// ServiceParams groups dependencies for the retry queue.
type ServiceParams struct {
	Repo              Repository
	Gateway           gateway.Client
	Outbox            *outbox.Service
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.SweepMetrics
	Config            config.BillingConfig
	Now               func() time.Time
}

// EnqueueInput describes the gateway call to replay.
type EnqueueInput struct {
	Type           enums.PendingOperationType
	SubscriptionID uuid.UUID
	PaymentID      *uuid.UUID
	ExternalID     string
	Reason         string
}

// OperationData is the replay payload stored with each row.
type OperationData struct {
	ExternalID string `json:"externalId"`
	Reason     string `json:"reason,omitempty"`
}

type service struct {
	repo     Repository
	gateway  gateway.Client
	outbox   *outbox.Service
	txRunner txRunner
	logg     *logger.Logger
	metrics  *metrics.SweepMetrics
	cfg      config.BillingConfig
	now      func() time.Time
}

// NewService builds the retry queue service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("pending operation repo required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	cfg := params.Config
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 10
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		metrics:  params.Metrics,
		cfg:      cfg,
		now:      now,
	}, nil
}

// Enqueue stores the operation inside tx, next to the state change that needed it.
func (s *service) Enqueue(ctx context.Context, tx *gorm.DB, input EnqueueInput) (*models.PendingPaymentOperation, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid pending operation type")
	}
	if input.SubscriptionID == uuid.Nil || strings.TrimSpace(input.ExternalID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription and external id are required")
	}
	data, err := json.Marshal(OperationData{ExternalID: input.ExternalID, Reason: input.Reason})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode operation data")
	}
	now := s.now()
	op := &models.PendingPaymentOperation{
		ID:             uuid.New(),
		Type:           input.Type,
		SubscriptionID: input.SubscriptionID,
		PaymentID:      input.PaymentID,
		ExternalID:     input.ExternalID,
		OperationData:  datatypes.JSON(data),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.Reason != "" {
		reason := input.Reason
		op.LastError = &reason
	}
	if err := s.repo.WithTx(tx).Enqueue(ctx, op); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue pending operation")
	}
	return op, nil
}

// Sweep replays every due row once. Only a failure to list rows is returned as an error.
func (s *service) Sweep(ctx context.Context) (billing.SweepSummary, error) {
	var summary billing.SweepSummary
	now := s.now()
	ops, err := s.repo.ListDue(ctx, DueQuery{
		Now:         now,
		Backoff:     s.cfg.RetryBackoff,
		MaxAttempts: s.cfg.RetryMaxAttempts,
		Limit:       s.cfg.SweepBatchSize,
	})
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending operations")
	}
	for i := range ops {
		if ctx.Err() != nil {
			break
		}
		s.process(ctx, &ops[i], &summary)
	}

	s.metrics.Add(sweepName, "succeeded", summary.Succeeded)
	s.metrics.Add(sweepName, "failed", summary.Failed)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"sweep":     sweepName,
			"total":     summary.TotalProcessed,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
		})
		s.logg.Info(logCtx, "pending operation sweep finished")
	}
	return summary, nil
}

// Retry replays one row immediately, ignoring the backoff window.
func (s *service) Retry(ctx context.Context, id uuid.UUID) error {
	op, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending operation")
	}
	if op == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "pending operation not found")
	}
	if op.TerminalAt != nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "pending operation is terminal and needs manual handling")
	}
	var summary billing.SweepSummary
	s.process(ctx, op, &summary)
	if summary.Failed > 0 {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, summary.Err, "retry pending operation")
	}
	return nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.PendingPaymentOperation, error) {
	ops, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending operations")
	}
	return ops, nil
}

func (s *service) process(ctx context.Context, op *models.PendingPaymentOperation, summary *billing.SweepSummary) {
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"pending_operation_id": op.ID.String(),
			"operation_type":       op.Type,
			"subscription_id":      op.SubscriptionID.String(),
			"external_id":          op.ExternalID,
		})
	}

	callErr := s.replay(ctx, op)
	if callErr == nil || gateway.IsNotFound(callErr) {
		if err := s.repo.Delete(ctx, op.ID); err != nil {
			summary.Failure(fmt.Errorf("delete pending operation %s: %w", op.ID, err))
			return
		}
		summary.Success()
		if s.logg != nil {
			s.logg.Info(logCtx, "pending operation resolved")
		}
		return
	}

	now := s.now()
	message := gateway.Describe(callErr)
	terminal := !gateway.IsRetryable(callErr)
	attempts := op.AttemptCount + 1
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if terminal {
			if err := txRepo.MarkTerminal(ctx, op.ID, message, now); err != nil {
				return err
			}
		} else if err := txRepo.RecordFailure(ctx, op.ID, message, now); err != nil {
			return err
		}
		if !terminal && attempts < s.cfg.RetryMaxAttempts {
			return nil
		}
		escalated, err := txRepo.MarkEscalated(ctx, op.ID, now)
		if err != nil || !escalated {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPendingOperationEscalated,
			AggregateType: enums.AggregatePendingOperation,
			AggregateID:   op.ID,
			Actor:         outbox.SystemActor(),
			OccurredAt:    now,
			Data: payloads.PendingOperationEscalatedEvent{
				OperationID:    op.ID,
				OperationType:  op.Type,
				SubscriptionID: op.SubscriptionID,
				ExternalID:     op.ExternalID,
				Attempts:       attempts,
				LastError:      message,
				Terminal:       terminal,
			},
		})
	})
	if err != nil {
		summary.Failure(fmt.Errorf("record failure of pending operation %s: %w", op.ID, err))
		return
	}
	summary.Failure(callErr)
	if s.logg != nil {
		if terminal {
			s.logg.Error(logCtx, "pending operation rejected by gateway, manual handling required", callErr)
		} else {
			s.logg.Warn(logCtx, fmt.Sprintf("pending operation retry failed (attempt %d): %s", attempts, message))
		}
	}
}

func (s *service) replay(ctx context.Context, op *models.PendingPaymentOperation) error {
	externalID := op.ExternalID
	if len(op.OperationData) > 0 {
		var data OperationData
		if err := json.Unmarshal(op.OperationData, &data); err == nil && data.ExternalID != "" {
			externalID = data.ExternalID
		}
	}
	switch op.Type {
	case enums.PendingOperationCancelSubscription:
		return s.gateway.DeleteSubscription(ctx, externalID)
	case enums.PendingOperationCancelInvoice:
		return s.gateway.DeleteInvoice(ctx, externalID)
	default:
		return gateway.NewError("replay", gateway.KindBusiness, fmt.Sprintf("unsupported operation type %q", op.Type), nil)
	}
}
