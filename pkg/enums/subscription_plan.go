package enums

// SubscriptionPlan identifies a plan, free tiers included.
type SubscriptionPlan string

const (
	PlanFamilyFree SubscriptionPlan = "FAMILY_FREE"
	PlanFamilyPlus SubscriptionPlan = "FAMILY_PLUS"
	PlanNannyFree  SubscriptionPlan = "NANNY_FREE"
	PlanNannyPro   SubscriptionPlan = "NANNY_PRO"
)

func (p SubscriptionPlan) String() string {
	return string(p)
}

func (p SubscriptionPlan) IsValid() bool {
	switch p {
	case PlanFamilyFree, PlanFamilyPlus, PlanNannyFree, PlanNannyPro:
		return true
	}
	return false
}

// IsFree reports whether the plan is a free tier.
func (p SubscriptionPlan) IsFree() bool {
	return p == PlanFamilyFree || p == PlanNannyFree
}

// OwnerType returns the kind of owner allowed to hold the plan.
func (p SubscriptionPlan) OwnerType() OwnerType {
	switch p {
	case PlanNannyFree, PlanNannyPro:
		return OwnerTypeNanny
	default:
		return OwnerTypeFamily
	}
}

// FreeCounterpart returns the free tier a paid plan falls back to.
func (p SubscriptionPlan) FreeCounterpart() SubscriptionPlan {
	if p.OwnerType() == OwnerTypeNanny {
		return PlanNannyFree
	}
	return PlanFamilyFree
}

// PaidCounterpart returns the paid plan a free tier upgrades to.
func (p SubscriptionPlan) PaidCounterpart() SubscriptionPlan {
	if p.OwnerType() == OwnerTypeNanny {
		return PlanNannyPro
	}
	return PlanFamilyPlus
}

func ParseSubscriptionPlan(raw string) (SubscriptionPlan, error) {
	return parse("plan", raw, SubscriptionPlan.IsValid)
}
