package coupons

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/api/middleware"
	"github.com/devfurlan/cuidly-sub007/api/responses"
	"github.com/devfurlan/cuidly-sub007/api/validators"
	couponsvc "github.com/devfurlan/cuidly-sub007/internal/coupons"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

type validateRequest struct {
	Code            string           `json:"code" validate:"required,max=64"`
	Plan            string           `json:"plan" validate:"required,subscription_plan"`
	BillingInterval string           `json:"billingInterval" validate:"required,billing_interval"`
	PurchaseAmount  *decimal.Decimal `json:"purchaseAmount,omitempty"`
}

type createRequest struct {
	Code                string           `json:"code" validate:"required,min=3,max=64"`
	Description         string           `json:"description,omitempty" validate:"max=500"`
	DiscountType        string           `json:"discountType" validate:"required,discount_type"`
	DiscountValue       decimal.Decimal  `json:"discountValue"`
	MaxDiscount         *decimal.Decimal `json:"maxDiscount,omitempty"`
	MinPurchaseAmount   *decimal.Decimal `json:"minPurchaseAmount,omitempty"`
	UsageLimit          *int             `json:"usageLimit,omitempty"`
	ApplicableTo        string           `json:"applicableTo,omitempty" validate:"omitempty,coupon_applicable_to"`
	ApplicablePlanIDs   []string         `json:"applicablePlanIds,omitempty"`
	ApplicableIntervals []string         `json:"applicableIntervals,omitempty" validate:"omitempty,dive,billing_interval"`
	HasUserRestriction  bool             `json:"hasUserRestriction"`
	AllowedEmails       []string         `json:"allowedEmails,omitempty" validate:"omitempty,dive,email"`
	AllowedUserIDs      []uuid.UUID      `json:"allowedUserIds,omitempty"`
	StartDate           time.Time        `json:"startDate" validate:"required"`
	EndDate             time.Time        `json:"endDate" validate:"required"`
	IsActive            *bool            `json:"isActive,omitempty"`
	RequiresCreditCard  bool             `json:"requiresCreditCard"`
}

type couponResponse struct {
	ID                  uuid.UUID                `json:"id"`
	Code                string                   `json:"code"`
	Description         *string                  `json:"description,omitempty"`
	DiscountType        enums.DiscountType       `json:"discountType"`
	DiscountValue       decimal.Decimal          `json:"discountValue"`
	MaxDiscount         *decimal.Decimal         `json:"maxDiscount,omitempty"`
	MinPurchaseAmount   *decimal.Decimal         `json:"minPurchaseAmount,omitempty"`
	UsageLimit          *int                     `json:"usageLimit,omitempty"`
	UsageCount          int                      `json:"usageCount"`
	ApplicableTo        enums.CouponApplicableTo `json:"applicableTo"`
	ApplicablePlanIDs   []string                 `json:"applicablePlanIds,omitempty"`
	ApplicableIntervals []string                 `json:"applicableIntervals,omitempty"`
	HasUserRestriction  bool                     `json:"hasUserRestriction"`
	RequiresCreditCard  bool                     `json:"requiresCreditCard"`
	IsActive            bool                     `json:"isActive"`
	StartDate           time.Time                `json:"startDate"`
	EndDate             time.Time                `json:"endDate"`
}

func newCouponResponse(c *models.Coupon) couponResponse {
	resp := couponResponse{
		ID:                  c.ID,
		Code:                c.Code,
		Description:         c.Description,
		DiscountType:        c.DiscountType,
		DiscountValue:       c.DiscountValue,
		UsageLimit:          c.UsageLimit,
		UsageCount:          c.UsageCount,
		ApplicableTo:        c.ApplicableTo,
		ApplicablePlanIDs:   c.ApplicablePlanIDs,
		ApplicableIntervals: c.ApplicableIntervals,
		HasUserRestriction:  c.HasUserRestriction,
		RequiresCreditCard:  c.RequiresCreditCard,
		IsActive:            c.IsActive,
		StartDate:           c.StartDate.UTC(),
		EndDate:             c.EndDate.UTC(),
	}
	if c.MaxDiscount.Valid {
		v := c.MaxDiscount.Decimal
		resp.MaxDiscount = &v
	}
	if c.MinPurchaseAmount.Valid {
		v := c.MinPurchaseAmount.Decimal
		resp.MinPurchaseAmount = &v
	}
	return resp
}

// Validate previews a coupon for the caller. An unusable code is a 200 with
// isValid=false so clients can show the reason inline.
func Validate(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}
		p, ok := middleware.PrincipalFromContext(r.Context())
		ownerType, isOwner := p.OwnerType()
		if !ok || !isOwner {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "family or nanny account required"))
			return
		}

		var payload validateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Validate(r.Context(), couponsvc.ValidateInput{
			Code:     payload.Code,
			Plan:     enums.SubscriptionPlan(payload.Plan),
			Interval: enums.BillingInterval(payload.BillingInterval),
			Identity: couponsvc.Identity{
				UserID:    p.UserID,
				Email:     p.Email,
				OwnerType: ownerType,
			},
			PurchaseAmount: payload.PurchaseAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Create(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := couponsvc.CreateInput{
			Code:                payload.Code,
			Description:         validators.SanitizeString(payload.Description, 500),
			DiscountType:        enums.DiscountType(payload.DiscountType),
			DiscountValue:       payload.DiscountValue,
			MaxDiscount:         payload.MaxDiscount,
			MinPurchaseAmount:   payload.MinPurchaseAmount,
			UsageLimit:          payload.UsageLimit,
			ApplicableTo:        enums.CouponApplicableTo(payload.ApplicableTo),
			ApplicablePlanIDs:   payload.ApplicablePlanIDs,
			ApplicableIntervals: payload.ApplicableIntervals,
			HasUserRestriction:  payload.HasUserRestriction,
			AllowedEmails:       payload.AllowedEmails,
			AllowedUserIDs:      payload.AllowedUserIDs,
			StartDate:           payload.StartDate,
			EndDate:             payload.EndDate,
			IsActive:            payload.IsActive,
			RequiresCreditCard:  payload.RequiresCreditCard,
		}
		if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
			createdBy := p.UserID
			input.CreatedBy = &createdBy
		}

		coupon, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCouponResponse(coupon))
	}
}

func List(svc couponsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}
		includeInactive, err := validators.ParseQueryBool(r, "includeInactive", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), includeInactive)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]couponResponse, 0, len(list))
		for i := range list {
			out = append(out, newCouponResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
