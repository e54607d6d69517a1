package subscriptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox/payloads"
)

// SubscriptionPayload snapshots sub for a lifecycle event.
func SubscriptionPayload(sub *models.Subscription, previous enums.SubscriptionStatus) payloads.SubscriptionEvent {
	owner := billing.OwnerOf(sub)
	event := payloads.SubscriptionEvent{
		SubscriptionID:    sub.ID,
		OwnerType:         owner.Type,
		OwnerID:           owner.ID,
		Plan:              sub.Plan,
		Status:            sub.Status,
		PreviousStatus:    previous,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.BillingInterval != nil {
		event.BillingInterval = *sub.BillingInterval
	}
	if sub.ExternalSubscriptionID != nil {
		event.ExternalID = *sub.ExternalSubscriptionID
	}
	if sub.DiscountAmount.Valid {
		discount := sub.DiscountAmount.Decimal
		event.DiscountAmount = &discount
	}
	return event
}

// TrialPayload snapshots a trial start or end.
func TrialPayload(sub *models.Subscription, days int, source string) payloads.TrialEvent {
	owner := billing.OwnerOf(sub)
	return payloads.TrialEvent{
		SubscriptionID:   sub.ID,
		OwnerType:        owner.Type,
		OwnerID:          owner.ID,
		Plan:             sub.Plan,
		TrialEndDate:     sub.TrialEndDate,
		TrialDays:        days,
		Source:           source,
		HasPaymentMethod: sub.HasGatewaySubscription(),
	}
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, aggregateID uuid.UUID, actor *outbox.ActorRef, data any) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   aggregateID,
		Actor:         actor,
		Data:          data,
		Version:       1,
		OccurredAt:    s.now(),
	})
}
