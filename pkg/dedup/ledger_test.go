package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	values map[string]any
	ttls   map[string]time.Duration
	err    error
}

func newMemStore() *memStore {
	return &memStore{values: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value
	m.ttls[key] = ttl
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "cuidly:idempotency:" + scope + ":" + id
}

func TestClaimOnlyOnce(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store, 72*time.Hour)
	require.NoError(t, err)
	ledger.now = func() time.Time { return time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	first, err := ledger.Claim(ctx, "Asaas-Webhook", "evt_7c1e")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := ledger.Claim(ctx, "asaas-webhook", " evt_7c1e ")
	require.NoError(t, err)
	assert.False(t, again, "consumer and id are normalized before keying")

	key := "cuidly:idempotency:delivery:asaas-webhook:evt_7c1e"
	assert.Equal(t, "2026-05-10T14:00:00Z", store.values[key])
	assert.Equal(t, 72*time.Hour, store.ttls[key])
}

func TestReleaseAllowsReclaim(t *testing.T) {
	ledger, err := NewLedger(newMemStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ledger.Claim(ctx, "asaas-webhook", "evt_bad")
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, "asaas-webhook", "evt_bad"))

	claimed, err := ledger.Claim(ctx, "asaas-webhook", "evt_bad")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestClaimValidationAndStoreErrors(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ledger.Claim(ctx, " ", "evt_1")
	assert.ErrorIs(t, err, ErrConsumerRequired)
	_, err = ledger.Claim(ctx, "asaas-webhook", "")
	assert.ErrorIs(t, err, ErrEventIDRequired)

	store.err = errors.New("redis: connection refused")
	_, err = ledger.Claim(ctx, "asaas-webhook", "evt_1")
	assert.EqualError(t, err, "redis: connection refused")
}

func TestNewLedgerRejectsBadInput(t *testing.T) {
	_, err := NewLedger(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewLedger(newMemStore(), 0)
	assert.Error(t, err)
}
