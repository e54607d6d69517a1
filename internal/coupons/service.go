package coupons

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

// Pricer resolves the gross price used when no purchase amount is supplied.
type Pricer interface {
	Price(owner enums.OwnerType, plan enums.SubscriptionPlan, interval enums.BillingInterval) (decimal.Decimal, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service validates, redeems and creates coupons.
type Service interface {
	Validate(ctx context.Context, input ValidateInput) (*Result, error)
	Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) (bool, error)
	Create(ctx context.Context, input CreateInput) (*models.Coupon, error)
	List(ctx context.Context, includeInactive bool) ([]models.Coupon, error)
}

// ServiceParams groups dependencies for the coupon service.
type ServiceParams struct {
	Repo              Repository
	Pricer            Pricer
	TransactionRunner txRunner
	Logger            *logger.Logger
	Now               func() time.Time
}

// Identity is the requester a coupon is checked against.
type Identity struct {
	UserID    uuid.UUID
	Email     string
	OwnerType enums.OwnerType
}

type ValidateInput struct {
	Code           string
	Plan           enums.SubscriptionPlan
	Interval       enums.BillingInterval
	Identity       Identity
	PurchaseAmount *decimal.Decimal
}

// Result is the outcome of a validation. Invalid coupons are reported through
// IsValid and Message, never as errors.
type Result struct {
	IsValid            bool               `json:"isValid"`
	Message            string             `json:"message,omitempty"`
	CouponID           uuid.UUID          `json:"couponId,omitempty"`
	Code               string             `json:"code,omitempty"`
	DiscountType       enums.DiscountType `json:"discountType,omitempty"`
	PurchaseAmount     decimal.Decimal    `json:"purchaseAmount"`
	DiscountAmount     decimal.Decimal    `json:"discountAmount"`
	FinalAmount        decimal.Decimal    `json:"finalAmount"`
	IsFreeTrial        bool               `json:"isFreeTrial"`
	TrialDays          int                `json:"trialDays,omitempty"`
	RequiresCreditCard bool               `json:"requiresCreditCard"`
}

type ApplyInput struct {
	CouponID       uuid.UUID
	Identity       Identity
	SubscriptionID uuid.UUID
	DiscountAmount decimal.Decimal
}

type service struct {
	repo     Repository
	pricer   Pricer
	txRunner txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a coupon service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("coupon repo required")
	}
	if params.Pricer == nil {
		return nil, fmt.Errorf("pricer required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		pricer:   params.Pricer,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func invalid(message string) *Result {
	return &Result{IsValid: false, Message: message}
}

// Validate runs the eligibility checks in order and stops at the first failure.
func (s *service) Validate(ctx context.Context, input ValidateInput) (*Result, error) {
	code := NormalizeCode(input.Code)
	if code == "" {
		return invalid("coupon code is required"), nil
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if coupon == nil {
		return invalid("coupon not found"), nil
	}

	now := s.now()
	if !coupon.IsActive {
		return invalid("coupon is inactive"), nil
	}
	if now.Before(coupon.StartDate) {
		return invalid("coupon is not yet valid"), nil
	}
	if now.After(coupon.EndDate) {
		return invalid("coupon has expired"), nil
	}

	if msg := checkApplicability(coupon, input); msg != "" {
		return invalid(msg), nil
	}

	if coupon.UsageLimit != nil {
		used, err := s.repo.CountUsages(ctx, coupon.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usages")
		}
		if used >= int64(*coupon.UsageLimit) {
			return invalid("coupon usage limit reached"), nil
		}
	}

	amount, err := s.purchaseAmount(input)
	if err != nil {
		return nil, err
	}
	if coupon.MinPurchaseAmount.Valid && amount.LessThan(coupon.MinPurchaseAmount.Decimal) {
		return invalid(fmt.Sprintf("minimum purchase amount is %s", coupon.MinPurchaseAmount.Decimal.StringFixed(2))), nil
	}

	if coupon.HasUserRestriction && !allowListed(coupon.AllowedUsers, input.Identity) {
		return invalid("coupon is not available for this account"), nil
	}

	result := &Result{
		IsValid:            true,
		CouponID:           coupon.ID,
		Code:               coupon.Code,
		DiscountType:       coupon.DiscountType,
		PurchaseAmount:     amount,
		RequiresCreditCard: coupon.RequiresCreditCard,
	}
	switch coupon.DiscountType {
	case enums.DiscountTypeFreeTrialDays:
		result.IsFreeTrial = true
		result.TrialDays = int(coupon.DiscountValue.IntPart())
		result.DiscountAmount = decimal.Zero
	default:
		result.DiscountAmount = ComputeDiscount(coupon.DiscountType, coupon.DiscountValue, coupon.MaxDiscount, amount)
	}
	result.FinalAmount = FinalAmount(amount, result.DiscountAmount)
	return result, nil
}

func (s *service) purchaseAmount(input ValidateInput) (decimal.Decimal, error) {
	if input.PurchaseAmount != nil {
		if input.PurchaseAmount.IsNegative() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "purchase amount must not be negative")
		}
		return *input.PurchaseAmount, nil
	}
	return s.pricer.Price(input.Identity.OwnerType, input.Plan, input.Interval)
}

func checkApplicability(coupon *models.Coupon, input ValidateInput) string {
	switch coupon.ApplicableTo {
	case enums.CouponApplicableFamilies:
		if input.Identity.OwnerType != enums.OwnerTypeFamily {
			return "coupon is only valid for families"
		}
	case enums.CouponApplicableNannies:
		if input.Identity.OwnerType != enums.OwnerTypeNanny {
			return "coupon is only valid for nannies"
		}
	case enums.CouponApplicableSpecificPlan:
		if !contains(coupon.ApplicablePlanIDs, string(input.Plan)) {
			return "coupon is not valid for this plan"
		}
	}
	if len(coupon.ApplicableIntervals) > 0 && !contains(coupon.ApplicableIntervals, string(input.Interval)) {
		return "coupon is not valid for this billing interval"
	}
	return ""
}

func allowListed(allowed []models.CouponAllowedUser, identity Identity) bool {
	email := NormalizeEmail(identity.Email)
	for _, entry := range allowed {
		if entry.UserID != nil && identity.UserID != uuid.Nil && *entry.UserID == identity.UserID {
			return true
		}
		if entry.Email != nil && email != "" && NormalizeEmail(*entry.Email) == email {
			return true
		}
	}
	return false
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

// ComputeDiscount returns the monetary discount for amount, rounded to cents.
func ComputeDiscount(kind enums.DiscountType, value decimal.Decimal, maxDiscount decimal.NullDecimal, amount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch kind {
	case enums.DiscountTypePercentage:
		discount = amount.Mul(value).Div(decimal.NewFromInt(100))
		if maxDiscount.Valid && discount.GreaterThan(maxDiscount.Decimal) {
			discount = maxDiscount.Decimal
		}
	case enums.DiscountTypeFixed:
		discount = decimal.Min(value, amount)
	default:
		return decimal.Zero
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount.Round(2)
}

// FinalAmount never drops below zero.
func FinalAmount(amount, discount decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, amount.Sub(discount))
}

// Apply records one redemption of the coupon by the subscription inside tx.
// It reports false when the subscription had already redeemed the coupon.
func (s *service) Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("coupon apply requires a transaction")
	}
	if input.CouponID == uuid.Nil || input.SubscriptionID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "coupon and subscription are required")
	}
	txRepo := s.repo.WithTx(tx)

	usage := &models.CouponUsage{
		ID:             uuid.New(),
		CouponID:       input.CouponID,
		SubscriptionID: input.SubscriptionID,
		DiscountAmount: input.DiscountAmount,
		CreatedAt:      s.now(),
	}
	if input.Identity.UserID != uuid.Nil {
		id := input.Identity.UserID
		usage.UserID = &id
	}
	if email := NormalizeEmail(input.Identity.Email); email != "" {
		usage.Email = &email
	}

	inserted, err := txRepo.InsertUsage(ctx, usage)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record coupon usage")
	}
	if !inserted {
		return false, nil
	}

	incremented, err := txRepo.IncrementUsage(ctx, input.CouponID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment coupon usage")
	}
	if !incremented {
		return false, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon usage limit reached")
	}
	return true, nil
}

func (s *service) List(ctx context.Context, includeInactive bool) ([]models.Coupon, error) {
	coupons, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	return coupons, nil
}
