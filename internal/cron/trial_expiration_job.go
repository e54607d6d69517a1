package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/internal/subscriptions"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/metrics"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
)

// TrialExpirationJobName is also the path segment of the jobs endpoint.
const TrialExpirationJobName = "trial-expiration"

const (
	defaultTrialGracePeriod  = 72 * time.Hour
	defaultFreePeriodEndYear = 2099
	defaultTrialBatchSize    = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// TrialExpirationJobParams configures the trial reconciler.
type TrialExpirationJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	BillingRepo billing.Repository
	Outbox      *outbox.Service
	Metrics     *metrics.SweepMetrics
	Config      config.BillingConfig
	Now         func() time.Time
}

// NewTrialExpirationJob builds the sweep that resolves trials whose window elapsed.
func NewTrialExpirationJob(params TrialExpirationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	cfg := params.Config
	if cfg.TrialGracePeriod <= 0 {
		cfg.TrialGracePeriod = defaultTrialGracePeriod
	}
	if cfg.FreePeriodEndYear <= 0 {
		cfg.FreePeriodEndYear = defaultFreePeriodEndYear
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = defaultTrialBatchSize
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &trialExpirationJob{
		logg:    params.Logger,
		db:      params.DB,
		repo:    params.BillingRepo,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		cfg:     cfg,
		now:     now,
	}, nil
}

type trialExpirationJob struct {
	logg    *logger.Logger
	db      txRunner
	repo    billing.Repository
	outbox  *outbox.Service
	metrics *metrics.SweepMetrics
	cfg     config.BillingConfig
	now     func() time.Time
}

type trialOutcome int

const (
	trialResolved trialOutcome = iota
	trialAlreadyResolved
	trialAwaitingPayment
)

func (j *trialExpirationJob) Name() string { return TrialExpirationJobName }

func (j *trialExpirationJob) Run(ctx context.Context) (billing.SweepSummary, error) {
	var summary billing.SweepSummary
	now := j.now()
	trials, err := j.repo.ListExpiredTrials(ctx, now, j.cfg.TrialGracePeriod, j.cfg.SweepBatchSize)
	if err != nil {
		return summary, fmt.Errorf("list expired trials: %w", err)
	}

	waiting := 0
	for i := range trials {
		if ctx.Err() != nil {
			break
		}
		sub := &trials[i]
		outcome, err := j.resolve(ctx, sub, now)
		switch {
		case err != nil:
			summary.Failure(fmt.Errorf("subscription %s: %w", sub.ID, err))
			j.logg.Error(j.subscriptionContext(ctx, sub), "trial reconciliation failed", err)
		case outcome == trialAlreadyResolved:
			summary.Skip()
		case outcome == trialAwaitingPayment:
			waiting++
			summary.Success()
		default:
			summary.Success()
		}
	}

	j.metrics.Add(TrialExpirationJobName, "succeeded", summary.Succeeded)
	j.metrics.Add(TrialExpirationJobName, "failed", summary.Failed)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"sweep":     TrialExpirationJobName,
		"total":     summary.TotalProcessed,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"waiting":   waiting,
	})
	j.logg.Info(logCtx, "trial expiration sweep finished")
	return summary, nil
}

func (j *trialExpirationJob) resolve(ctx context.Context, sub *models.Subscription, now time.Time) (trialOutcome, error) {
	if !sub.HasGatewaySubscription() {
		return j.downgrade(ctx, sub, now)
	}
	graceDate := now.Add(-j.cfg.TrialGracePeriod)
	if sub.TrialEndDate != nil && sub.TrialEndDate.Before(graceDate) {
		return j.expire(ctx, sub, now)
	}
	logCtx := j.logg.WithField(j.subscriptionContext(ctx, sub), "trial_end_date", sub.TrialEndDate)
	j.logg.Info(logCtx, "trial ended within grace period, awaiting payment confirmation")
	return trialAwaitingPayment, nil
}

// downgrade moves a cardless trial onto the free plan of its owner kind.
func (j *trialExpirationJob) downgrade(ctx context.Context, sub *models.Subscription, now time.Time) (trialOutcome, error) {
	periodEnd := time.Date(j.cfg.FreePeriodEndYear, time.December, 31, 23, 59, 59, 0, time.UTC)
	outcome := trialResolved
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := j.repo.WithTx(tx)
		rows, err := txRepo.TransitionStatus(ctx, sub.ID, []enums.SubscriptionStatus{enums.SubscriptionStatusTrialing}, map[string]any{
			"status":               enums.SubscriptionStatusActive,
			"plan":                 sub.Plan.FreeCounterpart(),
			"current_period_start": now,
			"current_period_end":   periodEnd,
			"cancel_at_period_end": false,
			"updated_at":           now,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			outcome = trialAlreadyResolved
			return nil
		}
		updated, err := txRepo.FindByID(ctx, sub.ID)
		if err != nil {
			return err
		}
		if updated == nil {
			return fmt.Errorf("subscription %s vanished during downgrade", sub.ID)
		}
		return j.emit(ctx, tx, enums.EventTrialDowngraded, sub, subscriptions.SubscriptionPayload(updated, enums.SubscriptionStatusTrialing), now)
	})
	if err != nil {
		return trialResolved, err
	}
	if outcome == trialResolved {
		j.logg.Info(j.subscriptionContext(ctx, sub), "cardless trial downgraded to free plan")
	}
	return outcome, nil
}

func (j *trialExpirationJob) expire(ctx context.Context, sub *models.Subscription, now time.Time) (trialOutcome, error) {
	outcome := trialResolved
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.WithTx(tx).TransitionStatus(ctx, sub.ID, []enums.SubscriptionStatus{enums.SubscriptionStatusTrialing}, map[string]any{
			"status":     enums.SubscriptionStatusExpired,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			outcome = trialAlreadyResolved
			return nil
		}
		return j.emit(ctx, tx, enums.EventTrialExpired, sub, subscriptions.TrialPayload(sub, 0, "reconciler"), now)
	})
	if err != nil {
		return trialResolved, err
	}
	if outcome == trialResolved {
		j.logg.Warn(j.subscriptionContext(ctx, sub), "trial expired without payment confirmation")
	}
	return outcome, nil
}

func (j *trialExpirationJob) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, sub *models.Subscription, data any, now time.Time) error {
	return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Actor:         outbox.SystemActor(),
		Data:          data,
		Version:       1,
		OccurredAt:    now,
	})
}

func (j *trialExpirationJob) subscriptionContext(ctx context.Context, sub *models.Subscription) context.Context {
	owner := billing.OwnerOf(sub)
	ctx = j.logg.WithOwner(ctx, string(owner.Type), owner.ID.String())
	return j.logg.WithSubscriptionID(ctx, sub.ID.String())
}
