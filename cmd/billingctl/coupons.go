package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/devfurlan/cuidly-sub007/internal/coupons"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

const couponDateLayout = "2006-01-02"

type couponFlags struct {
	code               string
	description        string
	discountType       string
	value              string
	maxDiscount        string
	minPurchase        string
	usageLimit         int
	applicableTo       string
	plans              []string
	intervals          []string
	emails             []string
	start              string
	end                string
	requiresCreditCard bool
}

func newCouponsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coupons",
		Short: "Administer discount coupons",
	}

	var flags couponFlags
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create a coupon",
		Example: "  billingctl coupons create --code WELCOME10 --type PERCENTAGE --value 10 --start 2026-01-01 --end 2026-12-31",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, err := flags.toInput()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			coupon, err := a.components.Coupons.Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created coupon %s (%s)\n", coupon.Code, coupon.ID)
			return nil
		},
	}
	f := create.Flags()
	f.StringVar(&flags.code, "code", "", "coupon code")
	f.StringVar(&flags.description, "description", "", "internal description")
	f.StringVar(&flags.discountType, "type", string(enums.DiscountTypePercentage), "PERCENTAGE, FIXED or FREE_TRIAL_DAYS")
	f.StringVar(&flags.value, "value", "", "discount value")
	f.StringVar(&flags.maxDiscount, "max-discount", "", "cap for percentage discounts")
	f.StringVar(&flags.minPurchase, "min-purchase", "", "minimum purchase amount")
	f.IntVar(&flags.usageLimit, "usage-limit", 0, "global redemption limit, 0 for unlimited")
	f.StringVar(&flags.applicableTo, "applicable-to", string(enums.CouponApplicableAll), "ALL, FAMILIES, NANNIES or SPECIFIC_PLAN")
	f.StringSliceVar(&flags.plans, "plans", nil, "plan ids for SPECIFIC_PLAN")
	f.StringSliceVar(&flags.intervals, "intervals", nil, "restrict to billing intervals")
	f.StringSliceVar(&flags.emails, "emails", nil, "restrict to these emails")
	f.StringVar(&flags.start, "start", "", "first valid day (YYYY-MM-DD)")
	f.StringVar(&flags.end, "end", "", "last valid day (YYYY-MM-DD)")
	f.BoolVar(&flags.requiresCreditCard, "requires-credit-card", false, "trial coupons only: require a card")
	_ = create.MarkFlagRequired("code")
	_ = create.MarkFlagRequired("value")
	_ = create.MarkFlagRequired("start")
	_ = create.MarkFlagRequired("end")

	var includeInactive bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List coupons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			items, err := a.components.Coupons.List(cmd.Context(), includeInactive)
			if err != nil {
				return err
			}
			for _, c := range items {
				limit := "unlimited"
				if c.UsageLimit != nil {
					limit = fmt.Sprintf("%d", *c.UsageLimit)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tused %d/%s\tactive=%t\n",
					c.Code, c.DiscountType, c.DiscountValue.String(), c.UsageCount, limit, c.IsActive)
			}
			return nil
		},
	}
	list.Flags().BoolVar(&includeInactive, "all", false, "include inactive coupons")

	cmd.AddCommand(create, list)
	return cmd
}

func (f couponFlags) toInput() (coupons.CreateInput, error) {
	input := coupons.CreateInput{
		Code:               strings.TrimSpace(f.code),
		Description:        f.description,
		ApplicablePlanIDs:  f.plans,
		AllowedEmails:      f.emails,
		HasUserRestriction: len(f.emails) > 0,
		RequiresCreditCard: f.requiresCreditCard,
	}

	var err error
	if input.DiscountType, err = enums.ParseDiscountType(f.discountType); err != nil {
		return input, fmt.Errorf("--type: %w", err)
	}
	if input.ApplicableTo, err = enums.ParseCouponApplicableTo(f.applicableTo); err != nil {
		return input, fmt.Errorf("--applicable-to: %w", err)
	}
	for _, raw := range f.intervals {
		interval, err := enums.ParseBillingInterval(raw)
		if err != nil {
			return input, fmt.Errorf("--intervals: %w", err)
		}
		input.ApplicableIntervals = append(input.ApplicableIntervals, string(interval))
	}

	value, err := decimal.NewFromString(f.value)
	if err != nil {
		return input, fmt.Errorf("invalid --value: %w", err)
	}
	input.DiscountValue = value

	if input.MaxDiscount, err = optionalDecimal("max-discount", f.maxDiscount); err != nil {
		return input, err
	}
	if input.MinPurchaseAmount, err = optionalDecimal("min-purchase", f.minPurchase); err != nil {
		return input, err
	}
	if f.usageLimit > 0 {
		limit := f.usageLimit
		input.UsageLimit = &limit
	}

	if input.StartDate, err = time.Parse(couponDateLayout, f.start); err != nil {
		return input, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(couponDateLayout, f.end)
	if err != nil {
		return input, fmt.Errorf("invalid --end: %w", err)
	}
	// the end day is inclusive
	input.EndDate = end.Add(24*time.Hour - time.Second)
	return input, nil
}

func optionalDecimal(flag, raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return &v, nil
}
