// Package plans resolves the paid plan/interval matrix and its prices.
package plans

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

type key struct {
	plan     enums.SubscriptionPlan
	interval enums.BillingInterval
}

// Catalog holds the gross price of every purchasable plan/interval pair.
type Catalog struct {
	prices map[key]decimal.Decimal
}

// NewCatalog builds the catalog from configured prices.
func NewCatalog(cfg config.PricingConfig) (*Catalog, error) {
	prices := map[key]decimal.Decimal{
		{enums.PlanFamilyPlus, enums.BillingIntervalMonth}:   cfg.FamilyPlusMonth,
		{enums.PlanFamilyPlus, enums.BillingIntervalQuarter}: cfg.FamilyPlusQuarter,
		{enums.PlanFamilyPlus, enums.BillingIntervalYear}:    cfg.FamilyPlusYear,
		{enums.PlanNannyPro, enums.BillingIntervalMonth}:     cfg.NannyProMonth,
		{enums.PlanNannyPro, enums.BillingIntervalYear}:      cfg.NannyProYear,
	}
	for k, price := range prices {
		if !price.IsPositive() {
			return nil, fmt.Errorf("price for %s/%s must be positive", k.plan, k.interval)
		}
	}
	return &Catalog{prices: prices}, nil
}

// Price returns the gross price of a paid plan for the owner kind.
func (c *Catalog) Price(owner enums.OwnerType, plan enums.SubscriptionPlan, interval enums.BillingInterval) (decimal.Decimal, error) {
	if !plan.IsValid() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan")
	}
	if plan.IsFree() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "free plans cannot be purchased")
	}
	if plan.OwnerType() != owner {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("plan %s is not available to %s accounts", plan, owner))
	}
	price, ok := c.prices[key{plan, interval}]
	if !ok {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("plan %s is not sold with %s billing", plan, interval))
	}
	return price, nil
}

// Supports reports whether the pair is purchasable.
func (c *Catalog) Supports(plan enums.SubscriptionPlan, interval enums.BillingInterval) bool {
	_, ok := c.prices[key{plan, interval}]
	return ok
}

// DefaultInterval is the cadence used when a paid plan is granted without
// checkout, as in trials.
func DefaultInterval() enums.BillingInterval {
	return enums.BillingIntervalMonth
}

func (c *Catalog) DefaultInterval() enums.BillingInterval {
	return DefaultInterval()
}
