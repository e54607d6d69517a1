package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
)

type namedJob string

func (n namedJob) Name() string { return string(n) }

func (namedJob) Run(context.Context) (billing.SweepSummary, error) {
	return billing.SweepSummary{}, nil
}

func TestRegistryKeepsCycleOrder(t *testing.T) {
	registry := NewRegistry(namedJob("trial-expiration"), nil, namedJob("pending-operations"), namedJob("outbox-retention"))

	assert.Equal(t, []string{"trial-expiration", "pending-operations", "outbox-retention"}, registry.Names())

	jobs := registry.Jobs()
	require.Len(t, jobs, 3)
	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "Jobs returns a copy")
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(namedJob("trial-expiration"), namedJob("pending-operations"))

	job, ok := registry.Lookup("pending-operations")
	require.True(t, ok)
	assert.Equal(t, "pending-operations", job.Name())

	_, ok = registry.Lookup("PENDING-OPERATIONS")
	assert.False(t, ok, "names are case sensitive")
}

func TestRegistryRejectsBadNames(t *testing.T) {
	assert.PanicsWithError(t, `cron: job "trial-expiration" registered twice`, func() {
		NewRegistry(namedJob("trial-expiration"), namedJob("trial-expiration"))
	})
	assert.Panics(t, func() { NewRegistry(namedJob("  ")) })
}

func TestEmptyRegistry(t *testing.T) {
	registry := NewRegistry()
	assert.Empty(t, registry.Jobs())
	assert.Empty(t, registry.Names())
}
