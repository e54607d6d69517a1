package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

// Coupon is a promotional code created by an administrator.
type Coupon struct {
	ID                  uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code                string                   `gorm:"column:code;not null;uniqueIndex:ux_coupons_code"`
	Description         *string                  `gorm:"column:description"`
	DiscountType        enums.DiscountType       `gorm:"column:discount_type;not null"`
	DiscountValue       decimal.Decimal          `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MaxDiscount         decimal.NullDecimal      `gorm:"column:max_discount;type:numeric(12,2)"`
	MinPurchaseAmount   decimal.NullDecimal      `gorm:"column:min_purchase_amount;type:numeric(12,2)"`
	UsageLimit          *int                     `gorm:"column:usage_limit"`
	UsageCount          int                      `gorm:"column:usage_count;not null;default:0"`
	ApplicableTo        enums.CouponApplicableTo `gorm:"column:applicable_to;not null"`
	ApplicablePlanIDs   pq.StringArray           `gorm:"column:applicable_plan_ids;type:text[]"`
	ApplicableIntervals pq.StringArray           `gorm:"column:applicable_intervals;type:text[]"`
	HasUserRestriction  bool                     `gorm:"column:has_user_restriction;not null;default:false"`
	RequiresCreditCard  bool                     `gorm:"column:requires_credit_card;not null;default:false"`
	IsActive            bool                     `gorm:"column:is_active;not null"`
	StartDate           time.Time                `gorm:"column:start_date;not null"`
	EndDate             time.Time                `gorm:"column:end_date;not null"`
	CreatedBy           *uuid.UUID               `gorm:"column:created_by;type:uuid"`
	AllowedUsers        []CouponAllowedUser      `gorm:"foreignKey:CouponID"`
	CreatedAt           time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt           gorm.DeletedAt           `gorm:"column:deleted_at;index"`
}

// CouponAllowedUser is one allow-listed identity of a restricted coupon.
type CouponAllowedUser struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CouponID  uuid.UUID  `gorm:"column:coupon_id;type:uuid;not null;index"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid"`
	Email     *string    `gorm:"column:email"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// CouponUsage records one redemption; (coupon_id, subscription_id) is unique.
type CouponUsage struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CouponID       uuid.UUID       `gorm:"column:coupon_id;type:uuid;not null;uniqueIndex:ux_coupon_usages_coupon_subscription"`
	SubscriptionID uuid.UUID       `gorm:"column:subscription_id;type:uuid;not null;uniqueIndex:ux_coupon_usages_coupon_subscription"`
	UserID         *uuid.UUID      `gorm:"column:user_id;type:uuid"`
	Email          *string         `gorm:"column:email"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
