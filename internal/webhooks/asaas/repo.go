package asaaswebhook

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/devfurlan/cuidly-sub007/internal/repo"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
)

// Repository stores the durable record of every delivery.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, event *models.WebhookEvent) (bool, error)
	Exists(ctx context.Context, provider, eventID string) (bool, error)
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

// Record inserts the delivery and reports false when (provider, event_id) was already stored.
func (r *repository) Record(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Exists(ctx context.Context, provider, eventID string) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.WebhookEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Count(&count).Error
	return count > 0, err
}
