package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateSubscription     OutboxAggregateType = "subscription"
	AggregatePendingOperation OutboxAggregateType = "pending_operation"
)

// OutboxEventType names a billing lifecycle event published to the bus.
type OutboxEventType string

const (
	EventSubscriptionCheckoutStarted OutboxEventType = "billing.subscription.checkout_started"
	EventSubscriptionActivated       OutboxEventType = "billing.subscription.activated"
	EventSubscriptionCanceled        OutboxEventType = "billing.subscription.canceled"
	EventSubscriptionReverted        OutboxEventType = "billing.subscription.cancellation_reverted"
	EventTrialStarted                OutboxEventType = "billing.trial.started"
	EventTrialExpired                OutboxEventType = "billing.trial.expired"
	EventTrialDowngraded             OutboxEventType = "billing.trial.downgraded"
	EventPendingOperationEscalated   OutboxEventType = "billing.pending_operation.escalated"
)

// eventAggregates is the closed set of event types and the aggregate each
// one is keyed by.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventSubscriptionCheckoutStarted: AggregateSubscription,
	EventSubscriptionActivated:       AggregateSubscription,
	EventSubscriptionCanceled:        AggregateSubscription,
	EventSubscriptionReverted:        AggregateSubscription,
	EventTrialStarted:                AggregateSubscription,
	EventTrialExpired:                AggregateSubscription,
	EventTrialDowngraded:             AggregateSubscription,
	EventPendingOperationEscalated:   AggregatePendingOperation,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type the event is emitted for, or "" for
// unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateSubscription || a == AggregatePendingOperation
}
