// Package dedup remembers which gateway deliveries a consumer has already
// claimed, so redelivered events short-circuit before touching the database.
package dedup

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the slice of the redis client the ledger needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

var (
	ErrConsumerRequired = errors.New("dedup: consumer is required")
	ErrEventIDRequired  = errors.New("dedup: event id is required")
)

// Ledger claims event ids per consumer for a fixed retention window.
type Ledger struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewLedger(store Store, ttl time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("dedup: store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("dedup: retention must be positive")
	}
	return &Ledger{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim reports true when this call is the first to see eventID for
// consumer. The claim time is stored as the value for debugging.
func (l *Ledger) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return l.store.SetNX(ctx, key, l.now().UTC().Format(time.RFC3339), l.ttl)
}

// Release forgets a claim so a delivery that failed downstream can be
// processed again on redelivery.
func (l *Ledger) Release(ctx context.Context, consumer, eventID string) error {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return err
	}
	return l.store.Del(ctx, key)
}

func (l *Ledger) key(consumer, eventID string) (string, error) {
	consumer = strings.ToLower(strings.TrimSpace(consumer))
	eventID = strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", ErrConsumerRequired
	case eventID == "":
		return "", ErrEventIDRequired
	}
	return l.store.IdempotencyKey("delivery:"+consumer, eventID), nil
}
