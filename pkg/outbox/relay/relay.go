// Package relay drains pending outbox rows to Pub/Sub. Delivery is at least
// once: a crash between the broker ack and MarkPublished republishes the
// row, so consumers dedupe on the event_id attribute.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/metrics"
)

// Store is the outbox table as the relay sees it.
type Store interface {
	Pending(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, at time.Time, ids ...uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, cause error) error
	Bury(ctx context.Context, id uuid.UUID, maxAttempts int, cause error) error
}

// Sink publishes one message and waits for the broker's ack.
type Sink interface {
	Publish(ctx context.Context, topic, orderingKey string, data []byte, attrs map[string]string) (string, error)
}

type Options struct {
	BatchSize      int
	Concurrency    int
	MaxAttempts    int
	PollInterval   time.Duration
	MaxBackoff     time.Duration
	PublishTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.MaxBackoff < o.PollInterval {
		o.MaxBackoff = 20 * o.PollInterval
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 15 * time.Second
	}
	return o
}

type Params struct {
	Store   Store
	Sink    Sink
	Router  *Router
	Logger  *logger.Logger
	Metrics *metrics.RelayMetrics
	Options Options
	Now     func() time.Time
}

type Relay struct {
	store   Store
	sink    Sink
	router  *Router
	logg    *logger.Logger
	metrics *metrics.RelayMetrics
	opts    Options
	now     func() time.Time
}

func New(params Params) (*Relay, error) {
	switch {
	case params.Store == nil:
		return nil, errors.New("relay: store is required")
	case params.Sink == nil:
		return nil, errors.New("relay: sink is required")
	case params.Router == nil:
		return nil, errors.New("relay: router is required")
	case params.Logger == nil:
		return nil, errors.New("relay: logger is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Relay{
		store:   params.Store,
		sink:    params.Sink,
		router:  params.Router,
		logg:    params.Logger,
		metrics: params.Metrics,
		opts:    params.Options.withDefaults(),
		now:     now,
	}, nil
}

// Result counts what one Drain did.
type Result struct {
	Fetched   int
	Published int
	Retried   int
	Buried    int
}

// Run drains until ctx ends. A full batch is followed immediately by the
// next one; store errors back off exponentially up to MaxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	wait := r.opts.PollInterval
	for {
		res, err := r.Drain(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.logg.Error(ctx, "outbox.relay_drain_failed", err)
			wait = min(wait*2, r.opts.MaxBackoff)
		case res.Fetched == r.opts.BatchSize:
			wait = r.opts.PollInterval
			continue
		default:
			wait = r.opts.PollInterval
		}
		if err := sleep(ctx, jitter(wait)); err != nil {
			return err
		}
	}
}

// Drain publishes one batch. Rows of the same aggregate go out in creation
// order and a failed row holds back the rest of its aggregate until the
// next drain. Different aggregates publish concurrently.
func (r *Relay) Drain(ctx context.Context) (Result, error) {
	rows, err := r.store.Pending(ctx, r.opts.BatchSize, r.opts.MaxAttempts)
	if err != nil {
		return Result{}, fmt.Errorf("fetch pending outbox rows: %w", err)
	}
	r.metrics.Fetched(len(rows))
	res := Result{Fetched: len(rows)}
	if len(rows) == 0 {
		return res, nil
	}

	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(r.opts.Concurrency)
	for _, lane := range partition(rows) {
		group.Go(func() error {
			laneRes, err := r.drainLane(ctx, lane)
			mu.Lock()
			res.Published += laneRes.Published
			res.Retried += laneRes.Retried
			res.Buried += laneRes.Buried
			mu.Unlock()
			return err
		})
	}
	err = group.Wait()
	if res.Published+res.Retried+res.Buried > 0 {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"fetched":   res.Fetched,
			"published": res.Published,
			"retried":   res.Retried,
			"buried":    res.Buried,
		}), "outbox.relay_drained")
	}
	return res, err
}

func (r *Relay) drainLane(ctx context.Context, lane []models.OutboxEvent) (Result, error) {
	var (
		res  Result
		sent []uuid.UUID
	)
	defer func() {
		if len(sent) == 0 {
			return
		}
		if err := r.store.MarkPublished(context.WithoutCancel(ctx), r.now(), sent...); err != nil {
			r.logg.Error(ctx, "outbox.mark_published_failed", err)
		}
	}()

	for _, row := range lane {
		if ctx.Err() != nil {
			return res, nil
		}
		msg, err := r.router.Message(row)
		if err != nil {
			if buryErr := r.bury(ctx, row, err); buryErr != nil {
				return res, buryErr
			}
			res.Buried++
			continue
		}

		if err := r.publish(ctx, msg); err != nil {
			if row.AttemptCount+1 >= r.opts.MaxAttempts {
				if buryErr := r.bury(ctx, row, fmt.Errorf("attempts exhausted: %w", err)); buryErr != nil {
					return res, buryErr
				}
				res.Buried++
			} else {
				r.logg.Warn(r.rowContext(ctx, row, err), "outbox.publish_retry")
				r.metrics.Event(string(row.EventType), "retry")
				if markErr := r.store.RecordFailure(ctx, row.ID, err); markErr != nil {
					return res, fmt.Errorf("record failure for %s: %w", row.ID, markErr)
				}
				res.Retried++
			}
			// later rows of this aggregate wait so consumers never see them first
			return res, nil
		}
		sent = append(sent, row.ID)
		res.Published++
		r.metrics.Event(string(row.EventType), "published")
	}
	return res, nil
}

func (r *Relay) publish(ctx context.Context, msg Message) error {
	pubCtx, cancel := context.WithTimeout(ctx, r.opts.PublishTimeout)
	defer cancel()
	start := time.Now()
	_, err := r.sink.Publish(pubCtx, msg.Topic, msg.OrderingKey, msg.Data, msg.Attributes)
	r.metrics.PublishTook(time.Since(start))
	return err
}

func (r *Relay) bury(ctx context.Context, row models.OutboxEvent, cause error) error {
	r.logg.Error(r.rowContext(ctx, row, nil), "outbox.row_buried", cause)
	r.metrics.Event(string(row.EventType), "buried")
	if err := r.store.Bury(ctx, row.ID, r.opts.MaxAttempts, cause); err != nil {
		return fmt.Errorf("bury %s: %w", row.ID, err)
	}
	return nil
}

func (r *Relay) rowContext(ctx context.Context, row models.OutboxEvent, err error) context.Context {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}
	if err != nil {
		fields["error_message"] = err.Error()
	}
	return r.logg.WithFields(ctx, fields)
}

// partition groups rows by aggregate, keeping fetch order inside a lane and
// ordering lanes by their oldest row.
func partition(rows []models.OutboxEvent) [][]models.OutboxEvent {
	index := make(map[uuid.UUID]int, len(rows))
	var lanes [][]models.OutboxEvent
	for _, row := range rows {
		i, ok := index[row.AggregateID]
		if !ok {
			i = len(lanes)
			index[row.AggregateID] = i
			lanes = append(lanes, nil)
		}
		lanes[i] = append(lanes[i], row)
	}
	return lanes
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/4+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
