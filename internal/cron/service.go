package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
	Now      func() time.Time
}

// Service runs every registered job once per interval on whichever worker
// holds the lock. RunNow serves the scheduled-job endpoints and the CLI.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.JobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		now:      params.Now,
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// Run blocks until ctx is canceled. The first cycle starts immediately.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		s.metrics.LockSkipped()
		s.logg.Info(ctx, "cron lock held by another worker, skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()

	for i, job := range s.registry.Jobs() {
		if i > 0 {
			if err := s.lock.Refresh(ctx); err != nil {
				return fmt.Errorf("cycle aborted before %s: %w", job.Name(), err)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, _ = s.runJob(ctx, job)
	}
	return nil
}

// RunNow executes one job outside the schedule. It does not take the cron
// lock; every job tolerates a concurrent run through conditional updates.
func (s *Service) RunNow(ctx context.Context, name string) (billing.SweepSummary, error) {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return billing.SweepSummary{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown job %q", name)).
			WithDetails(map[string][]string{"jobs": s.registry.Names()})
	}
	return s.runJob(ctx, job)
}

func (s *Service) runJob(ctx context.Context, job Job) (billing.SweepSummary, error) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	started := s.now()
	summary, err := job.Run(jobCtx)
	finished := s.now()
	took := finished.Sub(started)

	outcome := metrics.JobOutcomeOK
	switch {
	case err != nil:
		outcome = metrics.JobOutcomeError
	case summary.Failed > 0:
		outcome = metrics.JobOutcomePartial
	}
	s.metrics.ObserveRun(job.Name(), outcome, took, finished)

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"outcome":     outcome,
		"duration_ms": took.Milliseconds(),
		"total":       summary.TotalProcessed,
		"succeeded":   summary.Succeeded,
		"failed":      summary.Failed,
		"skipped":     summary.Skipped,
	})
	switch outcome {
	case metrics.JobOutcomeError:
		s.logg.Error(jobCtx, "job failed", err)
	case metrics.JobOutcomePartial:
		s.logg.Warn(jobCtx, "job finished with row failures")
	default:
		s.logg.Info(jobCtx, "job finished")
	}
	return summary, err
}
