package enums

// DiscountType selects how a coupon reduces the price.
type DiscountType string

const (
	DiscountTypePercentage    DiscountType = "PERCENTAGE"
	DiscountTypeFixed         DiscountType = "FIXED"
	DiscountTypeFreeTrialDays DiscountType = "FREE_TRIAL_DAYS"
)

func (d DiscountType) IsValid() bool {
	switch d {
	case DiscountTypePercentage, DiscountTypeFixed, DiscountTypeFreeTrialDays:
		return true
	}
	return false
}

func ParseDiscountType(raw string) (DiscountType, error) {
	return parse("discount type", raw, DiscountType.IsValid)
}

// CouponApplicableTo restricts which owners or plans may redeem a coupon.
type CouponApplicableTo string

const (
	CouponApplicableAll          CouponApplicableTo = "ALL"
	CouponApplicableFamilies     CouponApplicableTo = "FAMILIES"
	CouponApplicableNannies      CouponApplicableTo = "NANNIES"
	CouponApplicableSpecificPlan CouponApplicableTo = "SPECIFIC_PLAN"
)

func (c CouponApplicableTo) IsValid() bool {
	switch c {
	case CouponApplicableAll, CouponApplicableFamilies, CouponApplicableNannies, CouponApplicableSpecificPlan:
		return true
	}
	return false
}

func ParseCouponApplicableTo(raw string) (CouponApplicableTo, error) {
	return parse("applicable_to", raw, CouponApplicableTo.IsValid)
}
