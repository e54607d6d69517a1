package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

// ErrNoTransaction is returned when Emit is called outside a transaction.
var ErrNoTransaction = errors.New("outbox: emit requires the caller's transaction")

// DomainEvent is what services hand to Emit. AggregateType may be left
// empty; it is derived from EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Service writes outbox rows next to the state change that produced them.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

// Emit validates event and inserts it through tx so it commits or rolls
// back with the caller's writes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return ErrNoTransaction
	}
	row, env, err := s.buildRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, &row); err != nil {
		return fmt.Errorf("outbox: insert %s: %w", event.EventType, err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   row.EventType,
			"aggregate_id": row.AggregateID.String(),
		}), "outbox.queued")
	}
	return nil
}

func (s *Service) buildRow(event DomainEvent) (models.OutboxEvent, Envelope, error) {
	expected := event.EventType.Aggregate()
	switch {
	case expected == "":
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("outbox: unknown event type %q", event.EventType)
	case event.AggregateType != "" && event.AggregateType != expected:
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("outbox: %s is keyed by %s, not %s", event.EventType, expected, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("outbox: %s needs an aggregate id", event.EventType)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("outbox: encode %s data: %w", event.EventType, err)
	}
	env := Envelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		EventType:  string(event.EventType),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = CurrentSchemaVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = s.now()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("outbox: encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: expected,
		AggregateID:   event.AggregateID,
		Payload:       datatypes.JSON(payload),
	}, env, nil
}
