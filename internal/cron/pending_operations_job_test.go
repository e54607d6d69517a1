package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
)

type fakeSweeper struct {
	summary billing.SweepSummary
	err     error
	calls   int
}

func (f *fakeSweeper) Sweep(context.Context) (billing.SweepSummary, error) {
	f.calls++
	return f.summary, f.err
}

func TestPendingOperationsJobReturnsSweepSummary(t *testing.T) {
	sweeper := &fakeSweeper{summary: billing.SweepSummary{TotalProcessed: 4, Succeeded: 3, Failed: 1}}
	job, err := NewPendingOperationsJob(sweeper)
	if err != nil {
		t.Fatalf("NewPendingOperationsJob: %v", err)
	}
	if job.Name() != PendingOperationsJobName {
		t.Fatalf("unexpected name %s", job.Name())
	}
	summary, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TotalProcessed != 4 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestPendingOperationsJobWrapsListingError(t *testing.T) {
	job, err := NewPendingOperationsJob(&fakeSweeper{err: errors.New("db down")})
	if err != nil {
		t.Fatalf("NewPendingOperationsJob: %v", err)
	}
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewPendingOperationsJobRequiresSweeper(t *testing.T) {
	if _, err := NewPendingOperationsJob(nil); err == nil {
		t.Fatal("expected error")
	}
}
