package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/metrics"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
)

const (
	defaultOutboxRetention    = 30 * 24 * time.Hour
	defaultOutboxDeadAttempts = 10
)

// OutboxRetentionJobName is also the path segment of the jobs endpoint.
const OutboxRetentionJobName = "outbox-retention"

type outboxStore interface {
	Purge(ctx context.Context, tx *gorm.DB, cutoff time.Time, deadAttempts int) (int64, error)
	Backlog(ctx context.Context, maxAttempts int) (outbox.Backlog, error)
}

type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Repository   outboxStore
	Metrics      *metrics.SweepMetrics
	Retention    time.Duration
	DeadAttempts int
	Now          func() time.Time
}

// outboxRetentionJob trims delivered and dead outbox rows and reports the
// remaining backlog so a stalled relay shows up in the job log.
type outboxRetentionJob struct {
	logg         *logger.Logger
	repo         outboxStore
	metrics      *metrics.SweepMetrics
	retention    time.Duration
	deadAttempts int
	now          func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		repo:         params.Repository,
		metrics:      params.Metrics,
		retention:    params.Retention,
		deadAttempts: params.DeadAttempts,
		now:          params.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.deadAttempts <= 0 {
		job.deadAttempts = defaultOutboxDeadAttempts
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return OutboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) (billing.SweepSummary, error) {
	var summary billing.SweepSummary
	cutoff := j.now().UTC().Add(-j.retention)

	deleted, err := j.repo.Purge(ctx, nil, cutoff, j.deadAttempts)
	if err != nil {
		return summary, fmt.Errorf("purge outbox: %w", err)
	}
	summary.TotalProcessed = int(deleted)
	summary.Succeeded = int(deleted)
	j.metrics.Add(OutboxRetentionJobName, "deleted", int(deleted))

	fields := map[string]any{
		"cutoff":       cutoff.Format(time.RFC3339),
		"rows_deleted": deleted,
	}
	backlog, err := j.repo.Backlog(ctx, j.deadAttempts)
	if err != nil {
		// the purge already happened; a failed count is only reported
		j.logg.Error(j.logg.WithFields(ctx, fields), "outbox.backlog_failed", err)
		return summary, nil
	}
	fields["pending"] = backlog.Pending
	fields["dead"] = backlog.Dead
	if backlog.OldestPending != nil {
		fields["oldest_pending_age_s"] = int64(j.now().Sub(*backlog.OldestPending).Seconds())
	}
	logCtx := j.logg.WithFields(ctx, fields)
	if backlog.Dead > 0 {
		j.logg.Warn(logCtx, "outbox.retention_done_with_dead_rows")
		return summary, nil
	}
	j.logg.Info(logCtx, "outbox.retention_done")
	return summary, nil
}
