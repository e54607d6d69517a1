package validators

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

// customRules are the domain tags available in `validate` struct tags.
var customRules = map[string]struct {
	check   func(string) bool
	message string
}{
	"subscription_plan": {
		check:   func(v string) bool { return enums.SubscriptionPlan(v).IsValid() },
		message: "must be a known plan",
	},
	"billing_interval": {
		check:   func(v string) bool { return enums.BillingInterval(v).IsValid() },
		message: "must be MONTH, QUARTER or YEAR",
	},
	"discount_type": {
		check:   func(v string) bool { return enums.DiscountType(v).IsValid() },
		message: "must be PERCENTAGE, FIXED or FREE_TRIAL_DAYS",
	},
	"coupon_applicable_to": {
		check:   func(v string) bool { return enums.CouponApplicableTo(v).IsValid() },
		message: "must be ALL, FAMILIES, NANNIES or SPECIFIC_PLAN",
	},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their json name so details match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	for tag, rule := range customRules {
		check := rule.check
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("register %s: %v", tag, err))
		}
	}
	return v
}

func validateStruct(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = describe(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func describe(fe validator.FieldError) string {
	if rule, ok := customRules[fe.Tag()]; ok {
		return rule.message
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of " + fe.Param()
	case "uuid", "uuid4":
		return "must be a UUID"
	default:
		return "is invalid"
	}
}
