package pendingops

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/repo"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
)

// Repository persists gateway operations awaiting replay.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Enqueue(ctx context.Context, op *models.PendingPaymentOperation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PendingPaymentOperation, error)
	ListDue(ctx context.Context, query DueQuery) ([]models.PendingPaymentOperation, error)
	List(ctx context.Context, filter ListFilter) ([]models.PendingPaymentOperation, error)
	CountForSubscription(ctx context.Context, subscriptionID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, message string, at time.Time) error
	MarkTerminal(ctx context.Context, id uuid.UUID, message string, at time.Time) error
	MarkEscalated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// DueQuery selects rows the sweep may replay now.
type DueQuery struct {
	Now         time.Time
	Backoff     time.Duration
	MaxAttempts int
	Limit       int
}

// ListFilter drives the operator listing.
type ListFilter struct {
	IncludeTerminal bool
	SubscriptionID  *uuid.UUID
	Limit           int
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Enqueue(ctx context.Context, op *models.PendingPaymentOperation) error {
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	return r.DB(ctx).Create(op).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PendingPaymentOperation, error) {
	return repo.First[models.PendingPaymentOperation](r.DB(ctx).Where("id = ?", id))
}

// ListDue returns live rows untouched for at least the backoff window, oldest first.
func (r *repository) ListDue(ctx context.Context, query DueQuery) ([]models.PendingPaymentOperation, error) {
	q := r.DB(ctx).
		Where("terminal_at IS NULL").
		Where("updated_at <= ?", query.Now.Add(-query.Backoff))
	if query.MaxAttempts > 0 {
		q = q.Where("attempt_count < ?", query.MaxAttempts)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	var ops []models.PendingPaymentOperation
	if err := q.Order("created_at ASC").Order("id ASC").Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.PendingPaymentOperation, error) {
	q := r.DB(ctx).Order("created_at ASC")
	if !filter.IncludeTerminal {
		q = q.Where("terminal_at IS NULL")
	}
	if filter.SubscriptionID != nil {
		q = q.Where("subscription_id = ?", *filter.SubscriptionID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var ops []models.PendingPaymentOperation
	if err := q.Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}

func (r *repository) CountForSubscription(ctx context.Context, subscriptionID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.PendingPaymentOperation{}).
		Where("subscription_id = ?", subscriptionID).
		Count(&count).Error
	return count, err
}

// Delete removes a replayed row. Deleting a row another sweep already removed is not an error.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).Where("id = ?", id).Delete(&models.PendingPaymentOperation{}).Error
}

func (r *repository) RecordFailure(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	return r.DB(ctx).Model(&models.PendingPaymentOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    message,
			"updated_at":    at,
		}).Error
}

func (r *repository) MarkTerminal(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	return r.DB(ctx).Model(&models.PendingPaymentOperation{}).
		Where("id = ? AND terminal_at IS NULL", id).
		Updates(map[string]any{
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    message,
			"terminal_at":   at,
			"updated_at":    at,
		}).Error
}

// MarkEscalated stamps escalated_at once and reports whether this call did it.
func (r *repository) MarkEscalated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).Model(&models.PendingPaymentOperation{}).
		Where("id = ? AND escalated_at IS NULL", id).
		Updates(map[string]any{
			"escalated_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
