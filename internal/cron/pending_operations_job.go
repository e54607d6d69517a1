package cron

import (
	"context"
	"fmt"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
)

// PendingOperationsJobName is also the path segment of the jobs endpoint.
const PendingOperationsJobName = "pending-operations"

type operationSweeper interface {
	Sweep(ctx context.Context) (billing.SweepSummary, error)
}

// NewPendingOperationsJob wraps the retry queue sweep as a scheduled job.
func NewPendingOperationsJob(sweeper operationSweeper) (Job, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("pending operation sweeper required")
	}
	return &pendingOperationsJob{sweeper: sweeper}, nil
}

type pendingOperationsJob struct {
	sweeper operationSweeper
}

func (j *pendingOperationsJob) Name() string { return PendingOperationsJobName }

func (j *pendingOperationsJob) Run(ctx context.Context) (billing.SweepSummary, error) {
	summary, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return summary, fmt.Errorf("pending operations sweep: %w", err)
	}
	return summary, nil
}
