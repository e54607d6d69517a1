package subscriptions

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/api/responses"
	"github.com/devfurlan/cuidly-sub007/api/validators"
	subsvc "github.com/devfurlan/cuidly-sub007/internal/subscriptions"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

const maxCancelReasonLength = 500

type checkoutRequest struct {
	Plan            string `json:"plan" validate:"required,subscription_plan"`
	BillingInterval string `json:"billingInterval" validate:"required,billing_interval"`
	CouponCode      string `json:"couponCode,omitempty" validate:"max=64"`
}

type trialRequest struct {
	Plan            string `json:"plan" validate:"required,subscription_plan"`
	BillingInterval string `json:"billingInterval,omitempty" validate:"omitempty,billing_interval"`
	CouponCode      string `json:"couponCode" validate:"required,max=64"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type checkoutResponse struct {
	Subscription   *subsvc.Summary `json:"subscription"`
	PaymentURL     string          `json:"paymentUrl,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

type subscriptionResponse struct {
	Subscription *subsvc.Summary `json:"subscription"`
	Warning      string          `json:"warning,omitempty"`
}

func Checkout(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		requester, err := requesterFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateOrUpgrade(r.Context(), subsvc.CheckoutInput{
			Requester:  requester,
			Plan:       enums.SubscriptionPlan(payload.Plan),
			Interval:   enums.BillingInterval(payload.BillingInterval),
			CouponCode: payload.CouponCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Subscription:   subsvc.NewSummary(result.Subscription),
			PaymentURL:     result.PaymentURL,
			Amount:         result.Amount,
			DiscountAmount: result.DiscountAmount,
		})
	}
}

// StartTrial activates a cardless trial coupon.
func StartTrial(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		requester, err := requesterFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload trialRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.ActivateTrial(r.Context(), subsvc.TrialInput{
			Requester:  requester,
			Plan:       enums.SubscriptionPlan(payload.Plan),
			Interval:   enums.BillingInterval(payload.BillingInterval),
			CouponCode: payload.CouponCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, subscriptionResponse{Subscription: subsvc.NewSummary(sub)})
	}
}

func TriggerTrial(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		requester, err := requesterFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.ActivateTriggerTrial(r.Context(), requester)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionResponse{Subscription: subsvc.NewSummary(sub)})
	}
}

// Cancel succeeds whenever the row can be canceled locally. Gateway trouble
// comes back as a warning next to the canceled subscription.
func Cancel(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		requester, err := requesterFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), subsvc.CancelInput{
			Requester: requester,
			Reason:    validators.SanitizeString(payload.Reason, maxCancelReasonLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionResponse{
			Subscription: subsvc.NewSummary(result.Subscription),
			Warning:      result.Warning,
		})
	}
}

func RevertCancellation(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		requester, err := requesterFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RevertCancellation(r.Context(), requester)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptionResponse{
			Subscription: subsvc.NewSummary(result.Subscription),
			Warning:      result.Warning,
		})
	}
}

func Current(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		requester, err := requesterFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.GetCurrent(r.Context(), requester.Owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subsvc.NewSummary(sub))
	}
}
