package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/repo"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
)

// maxErrorLen caps last_error so a verbose transport error cannot bloat rows.
const maxErrorLen = 1024

// Repository persists outbox rows. A row is pending until published_at is
// set and dead once attempt_count reaches the relay's max attempts.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) Insert(ctx context.Context, tx *gorm.DB, row *models.OutboxEvent) error {
	if tx == nil {
		return ErrNoTransaction
	}
	return tx.WithContext(ctx).Create(row).Error
}

// Pending returns the oldest rows still owed to the bus, skipping dead ones.
func (r *Repository) Pending(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	q := r.DB(ctx).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(ctx context.Context, at time.Time, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB(ctx).Model(&models.OutboxEvent{}).
		Where("id IN ? AND published_at IS NULL", ids).
		Update("published_at", at).Error
}

// RecordFailure bumps the attempt counter after a retryable publish error.
func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	return r.DB(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateError(cause),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// Bury marks a row dead so Pending stops returning it.
func (r *Repository) Bury(ctx context.Context, id uuid.UUID, maxAttempts int, cause error) error {
	return r.DB(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateError(cause),
			"attempt_count": gorm.Expr("CASE WHEN attempt_count > ? THEN attempt_count ELSE ? END", maxAttempts, maxAttempts),
		}).Error
}

// Purge deletes rows published before cutoff and dead rows created before
// cutoff. Rows still pending are never touched.
func (r *Repository) Purge(ctx context.Context, tx *gorm.DB, cutoff time.Time, deadAttempts int) (int64, error) {
	conn := r.Bind(tx).DB(ctx)
	q := conn.Where("published_at IS NOT NULL AND published_at < ?", cutoff)
	if deadAttempts > 0 {
		q = q.Or("published_at IS NULL AND attempt_count >= ? AND created_at < ?", deadAttempts, cutoff)
	}
	res := q.Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// Backlog summarizes rows not yet delivered.
type Backlog struct {
	Pending       int64
	Dead          int64
	OldestPending *time.Time
}

func (r *Repository) Backlog(ctx context.Context, maxAttempts int) (Backlog, error) {
	var b Backlog
	pending := r.DB(ctx).Model(&models.OutboxEvent{}).Where("published_at IS NULL AND attempt_count < ?", maxAttempts)
	if err := pending.Count(&b.Pending).Error; err != nil {
		return b, err
	}
	if err := r.DB(ctx).Model(&models.OutboxEvent{}).
		Where("published_at IS NULL AND attempt_count >= ?", maxAttempts).
		Count(&b.Dead).Error; err != nil {
		return b, err
	}
	if b.Pending > 0 {
		oldest, err := repo.First[models.OutboxEvent](r.DB(ctx).
			Where("published_at IS NULL AND attempt_count < ?", maxAttempts).
			Order("created_at ASC"))
		if err != nil {
			return b, err
		}
		if oldest != nil {
			b.OldestPending = &oldest.CreatedAt
		}
	}
	return b, nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}
