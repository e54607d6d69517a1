package enums

// BillingInterval is the cadence of a paid plan.
type BillingInterval string

const (
	BillingIntervalMonth   BillingInterval = "MONTH"
	BillingIntervalQuarter BillingInterval = "QUARTER"
	BillingIntervalYear    BillingInterval = "YEAR"
)

// intervalShape pairs each interval with its period length and the cycle
// name the gateway expects.
var intervalShape = map[BillingInterval]struct {
	months int
	cycle  string
}{
	BillingIntervalMonth:   {1, "MONTHLY"},
	BillingIntervalQuarter: {3, "QUARTERLY"},
	BillingIntervalYear:    {12, "YEARLY"},
}

func (b BillingInterval) String() string { return string(b) }

func (b BillingInterval) IsValid() bool {
	_, ok := intervalShape[b]
	return ok
}

// Months is the period length; unknown intervals count as monthly.
func (b BillingInterval) Months() int {
	if shape, ok := intervalShape[b]; ok {
		return shape.months
	}
	return 1
}

func (b BillingInterval) GatewayCycle() string {
	if shape, ok := intervalShape[b]; ok {
		return shape.cycle
	}
	return "MONTHLY"
}

func ParseBillingInterval(raw string) (BillingInterval, error) {
	return parse("billing interval", raw, BillingInterval.IsValid)
}
