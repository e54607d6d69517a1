package coupons

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/devfurlan/cuidly-sub007/internal/repo"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
)

// Repository persists coupons and their redemptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, coupon *models.Coupon) error
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	List(ctx context.Context, includeInactive bool) ([]models.Coupon, error)
	CountUsages(ctx context.Context, couponID uuid.UUID) (int64, error)
	InsertUsage(ctx context.Context, usage *models.CouponUsage) (bool, error)
	IncrementUsage(ctx context.Context, couponID uuid.UUID) (bool, error)
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

func (r *repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.DB(ctx).Create(coupon).Error
}

// FindByCode looks up a normalized code; soft-deleted coupons are excluded.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return repo.First[models.Coupon](r.DB(ctx).Preload("AllowedUsers").Where("code = ?", code))
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	return repo.First[models.Coupon](r.DB(ctx).Preload("AllowedUsers").Where("id = ?", id))
}

func (r *repository) List(ctx context.Context, includeInactive bool) ([]models.Coupon, error) {
	query := r.DB(ctx).Order("created_at DESC")
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var coupons []models.Coupon
	if err := query.Find(&coupons).Error; err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repository) CountUsages(ctx context.Context, couponID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.CouponUsage{}).Where("coupon_id = ?", couponID).Count(&count).Error
	return count, err
}

// InsertUsage records a redemption and reports whether a new row was written.
// A second redemption of the same coupon by the same subscription is a no-op.
func (r *repository) InsertUsage(ctx context.Context, usage *models.CouponUsage) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "coupon_id"}, {Name: "subscription_id"}},
			DoNothing: true,
		}).
		Create(usage)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementUsage bumps the counter unless the usage limit is already reached.
func (r *repository) IncrementUsage(ctx context.Context, couponID uuid.UUID) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", couponID).
		Where("usage_limit IS NULL OR usage_count < usage_limit").
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
