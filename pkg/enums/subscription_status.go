package enums

// SubscriptionStatus is the lifecycle state of a local subscription row.
type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete SubscriptionStatus = "INCOMPLETE"
	SubscriptionStatusTrialing   SubscriptionStatus = "TRIALING"
	SubscriptionStatusActive     SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCanceled   SubscriptionStatus = "CANCELED"
	SubscriptionStatusExpired    SubscriptionStatus = "EXPIRED"
)

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) IsValid() bool {
	return s == SubscriptionStatusIncomplete || s.GrantsAccess() || s.IsTerminal()
}

// IsTerminal: the row can never grant access again.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusExpired
}

// GrantsAccess reports whether the owner currently holds the plan's features.
func (s SubscriptionStatus) GrantsAccess() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

func ParseSubscriptionStatus(raw string) (SubscriptionStatus, error) {
	return parse("subscription status", raw, SubscriptionStatus.IsValid)
}
