package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/pkg/db"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

// MaxTrialDays bounds FREE_TRIAL_DAYS coupons.
const MaxTrialDays = 365

// CreateInput carries an administrator's coupon definition.
type CreateInput struct {
	Code                string
	Description         string
	DiscountType        enums.DiscountType
	DiscountValue       decimal.Decimal
	MaxDiscount         *decimal.Decimal
	MinPurchaseAmount   *decimal.Decimal
	UsageLimit          *int
	ApplicableTo        enums.CouponApplicableTo
	ApplicablePlanIDs   []string
	ApplicableIntervals []string
	HasUserRestriction  bool
	AllowedEmails       []string
	AllowedUserIDs      []uuid.UUID
	StartDate           time.Time
	EndDate             time.Time
	IsActive            *bool
	RequiresCreditCard  bool
	CreatedBy           *uuid.UUID
}

// ValidateDefinition checks the invariants a stored coupon must satisfy and
// returns every violation at once.
func ValidateDefinition(input CreateInput) error {
	var errs error
	if NormalizeCode(input.Code) == "" {
		errs = multierr.Append(errs, errors.New("code is required"))
	}
	if !input.DiscountType.IsValid() {
		errs = multierr.Append(errs, fmt.Errorf("invalid discount type %q", input.DiscountType))
	}
	switch input.DiscountType {
	case enums.DiscountTypePercentage:
		if !input.DiscountValue.IsPositive() || input.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			errs = multierr.Append(errs, errors.New("percentage discount must be greater than 0 and at most 100"))
		}
	case enums.DiscountTypeFixed:
		if !input.DiscountValue.IsPositive() {
			errs = multierr.Append(errs, errors.New("fixed discount must be greater than 0"))
		}
	case enums.DiscountTypeFreeTrialDays:
		if !input.DiscountValue.IsInteger() || input.DiscountValue.LessThan(decimal.NewFromInt(1)) ||
			input.DiscountValue.GreaterThan(decimal.NewFromInt(MaxTrialDays)) {
			errs = multierr.Append(errs, fmt.Errorf("trial days must be an integer between 1 and %d", MaxTrialDays))
		}
	}
	if input.MaxDiscount != nil && !input.MaxDiscount.IsPositive() {
		errs = multierr.Append(errs, errors.New("max discount must be greater than 0"))
	}
	if input.MinPurchaseAmount != nil && input.MinPurchaseAmount.IsNegative() {
		errs = multierr.Append(errs, errors.New("min purchase amount must not be negative"))
	}
	if input.UsageLimit != nil && *input.UsageLimit <= 0 {
		errs = multierr.Append(errs, errors.New("usage limit must be greater than 0"))
	}

	applicableTo := input.ApplicableTo
	if applicableTo == "" {
		applicableTo = enums.CouponApplicableAll
	}
	if !applicableTo.IsValid() {
		errs = multierr.Append(errs, fmt.Errorf("invalid applicable_to %q", input.ApplicableTo))
	}
	if applicableTo == enums.CouponApplicableSpecificPlan && len(cleanList(input.ApplicablePlanIDs)) == 0 {
		errs = multierr.Append(errs, errors.New("specific plan coupons need at least one plan"))
	}
	for _, plan := range cleanList(input.ApplicablePlanIDs) {
		if !enums.SubscriptionPlan(plan).IsValid() {
			errs = multierr.Append(errs, fmt.Errorf("unknown plan %q", plan))
		}
	}
	for _, interval := range cleanList(input.ApplicableIntervals) {
		if !enums.BillingInterval(interval).IsValid() {
			errs = multierr.Append(errs, fmt.Errorf("unknown billing interval %q", interval))
		}
	}
	if input.HasUserRestriction && len(cleanList(input.AllowedEmails)) == 0 && len(input.AllowedUserIDs) == 0 {
		errs = multierr.Append(errs, errors.New("restricted coupons need at least one allowed user"))
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		errs = multierr.Append(errs, errors.New("start and end dates are required"))
	} else if !input.EndDate.After(input.StartDate) {
		errs = multierr.Append(errs, errors.New("end date must be after start date"))
	}
	return errs
}

// Create stores a new coupon and its allow-list.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Coupon, error) {
	if err := ValidateDefinition(input); err != nil {
		messages := make([]string, 0)
		for _, e := range multierr.Errors(err) {
			messages = append(messages, e.Error())
		}
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon definition").WithDetails(messages)
	}

	coupon := buildCoupon(input, s.now())
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, coupon); err != nil {
			if db.IsUniqueViolation(err, "ux_coupons_code") {
				return pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"coupon_id": coupon.ID.String(), "code": coupon.Code})
		s.logg.Info(logCtx, "coupon created")
	}
	return coupon, nil
}

func buildCoupon(input CreateInput, now time.Time) *models.Coupon {
	applicableTo := input.ApplicableTo
	if applicableTo == "" {
		applicableTo = enums.CouponApplicableAll
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	coupon := &models.Coupon{
		ID:                 uuid.New(),
		Code:               NormalizeCode(input.Code),
		DiscountType:       input.DiscountType,
		DiscountValue:      input.DiscountValue,
		UsageLimit:         input.UsageLimit,
		ApplicableTo:       applicableTo,
		HasUserRestriction: input.HasUserRestriction,
		RequiresCreditCard: input.RequiresCreditCard,
		IsActive:           active,
		StartDate:          input.StartDate.UTC(),
		EndDate:            input.EndDate.UTC(),
		CreatedBy:          input.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		coupon.Description = &desc
	}
	if input.MaxDiscount != nil {
		coupon.MaxDiscount = decimal.NewNullDecimal(*input.MaxDiscount)
	}
	if input.MinPurchaseAmount != nil {
		coupon.MinPurchaseAmount = decimal.NewNullDecimal(*input.MinPurchaseAmount)
	}
	if plans := cleanList(input.ApplicablePlanIDs); len(plans) > 0 {
		coupon.ApplicablePlanIDs = pq.StringArray(plans)
	}
	if intervals := cleanList(input.ApplicableIntervals); len(intervals) > 0 {
		coupon.ApplicableIntervals = pq.StringArray(intervals)
	}
	for _, email := range cleanList(input.AllowedEmails) {
		normalized := NormalizeEmail(email)
		coupon.AllowedUsers = append(coupon.AllowedUsers, models.CouponAllowedUser{ID: uuid.New(), CouponID: coupon.ID, Email: &normalized, CreatedAt: now})
	}
	for _, id := range input.AllowedUserIDs {
		userID := id
		coupon.AllowedUsers = append(coupon.AllowedUsers, models.CouponAllowedUser{ID: uuid.New(), CouponID: coupon.ID, UserID: &userID, CreatedAt: now})
	}
	return coupon
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}
