package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/metrics"
)

type memStore struct {
	mu        sync.Mutex
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    map[uuid.UUID]int
	buried    map[uuid.UUID]string
	fetchErr  error
}

func newMemStore(rows ...models.OutboxEvent) *memStore {
	return &memStore{rows: rows, failed: map[uuid.UUID]int{}, buried: map[uuid.UUID]string{}}
}

func (m *memStore) Pending(_ context.Context, limit, _ int) ([]models.OutboxEvent, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if len(m.rows) < limit {
		limit = len(m.rows)
	}
	return m.rows[:limit], nil
}

func (m *memStore) MarkPublished(_ context.Context, _ time.Time, ids ...uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, ids...)
	return nil
}

func (m *memStore) RecordFailure(_ context.Context, id uuid.UUID, _ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id]++
	return nil
}

func (m *memStore) Bury(_ context.Context, id uuid.UUID, _ int, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buried[id] = cause.Error()
	return nil
}

type sentMessage struct {
	orderingKey string
	eventType   string
}

type fakeSink struct {
	mu     sync.Mutex
	sent   []sentMessage
	failOn map[string]error
}

func (f *fakeSink) Publish(_ context.Context, _, orderingKey string, _ []byte, attrs map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[attrs["event_type"]+"/"+orderingKey]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, sentMessage{orderingKey: orderingKey, eventType: attrs["event_type"]})
	return "srv-" + attrs["event_id"], nil
}

func (f *fakeSink) sentFor(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.orderingKey == key {
			out = append(out, m.eventType)
		}
	}
	return out
}

func newTestRelay(t *testing.T, store Store, sink Sink, reg prometheus.Registerer) *Relay {
	t.Helper()
	r, err := New(Params{
		Store:   store,
		Sink:    sink,
		Router:  testRouter(t),
		Logger:  logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		Metrics: metrics.NewRelayMetrics(reg),
		Options: Options{BatchSize: 10, MaxAttempts: 3, Concurrency: 2},
	})
	require.NoError(t, err)
	return r
}

func TestDrainPublishesAndKeepsAggregateOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	rows := []models.OutboxEvent{
		row(t, enums.EventSubscriptionCheckoutStarted, a, `{}`),
		row(t, enums.EventTrialStarted, b, `{}`),
		row(t, enums.EventSubscriptionActivated, a, `{}`),
		row(t, enums.EventSubscriptionCanceled, a, `{}`),
	}
	store := newMemStore(rows...)
	sink := &fakeSink{}

	res, err := newTestRelay(t, store, sink, nil).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Fetched: 4, Published: 4}, res)
	assert.Equal(t, []string{
		string(enums.EventSubscriptionCheckoutStarted),
		string(enums.EventSubscriptionActivated),
		string(enums.EventSubscriptionCanceled),
	}, sink.sentFor(a.String()))
	assert.ElementsMatch(t, []uuid.UUID{rows[0].ID, rows[1].ID, rows[2].ID, rows[3].ID}, store.published)
}

func TestDrainHoldsBackAggregateAfterFailure(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	first := row(t, enums.EventSubscriptionActivated, a, `{}`)
	second := row(t, enums.EventSubscriptionCanceled, a, `{}`)
	other := row(t, enums.EventTrialStarted, b, `{}`)
	store := newMemStore(first, second, other)
	sink := &fakeSink{failOn: map[string]error{
		string(enums.EventSubscriptionActivated) + "/" + a.String(): errors.New("deadline exceeded"),
	}}
	reg := prometheus.NewRegistry()

	res, err := newTestRelay(t, store, sink, reg).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, 1, res.Published)
	assert.Equal(t, 1, store.failed[first.ID])
	assert.Empty(t, sink.sentFor(a.String()), "the canceled event must not overtake the failed activation")
	assert.Equal(t, []uuid.UUID{other.ID}, store.published)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var outcomes []string
	for _, mf := range mfs {
		if mf.GetName() != "outbox_relay_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					outcomes = append(outcomes, l.GetValue())
				}
			}
		}
	}
	assert.ElementsMatch(t, []string{"published", "retry"}, outcomes)
}

func TestDrainBuriesPoisonAndExhaustedRows(t *testing.T) {
	poisoned := row(t, enums.EventTrialExpired, uuid.New(), `{}`)
	poisoned.Payload = []byte(`not json`)
	exhausted := row(t, enums.EventPendingOperationEscalated, uuid.New(), `{}`)
	exhausted.AttemptCount = 2
	store := newMemStore(poisoned, exhausted)
	sink := &fakeSink{failOn: map[string]error{
		string(enums.EventPendingOperationEscalated) + "/" + exhausted.AggregateID.String(): errors.New("permission denied"),
	}}

	res, err := newTestRelay(t, store, sink, nil).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Buried)
	assert.Contains(t, store.buried[poisoned.ID], "undecodable envelope")
	assert.Contains(t, store.buried[exhausted.ID], "attempts exhausted")
	assert.Empty(t, store.failed)
}

func TestDrainReportsFetchError(t *testing.T) {
	store := newMemStore()
	store.fetchErr = errors.New("too many connections")
	_, err := newTestRelay(t, store, &fakeSink{}, nil).Drain(context.Background())
	assert.ErrorContains(t, err, "too many connections")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestRelay(t, newMemStore(), &fakeSink{}, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartitionKeepsFirstSeenOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	rows := []models.OutboxEvent{{AggregateID: b}, {AggregateID: a}, {AggregateID: b}}
	lanes := partition(rows)
	require.Len(t, lanes, 2)
	assert.Len(t, lanes[0], 2)
	assert.Equal(t, a, lanes[1][0].AggregateID)
}
