package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db"
	"github.com/devfurlan/cuidly-sub007/pkg/db/dbtest"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
)

var trialNow = time.Date(2026, 6, 20, 3, 0, 0, 0, time.UTC)

// staleTrials replays a listing taken before another run resolved the rows.
type staleTrials struct {
	billing.Repository
	rows []models.Subscription
}

func (s staleTrials) ListExpiredTrials(context.Context, time.Time, time.Duration, int) ([]models.Subscription, error) {
	out := make([]models.Subscription, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func newTrialJob(t *testing.T, conn *gorm.DB, repo billing.Repository) Job {
	t.Helper()
	job, err := NewTrialExpirationJob(TrialExpirationJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test"}),
		DB:          db.NewFromConn(conn),
		BillingRepo: repo,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), nil),
		Config: config.BillingConfig{
			TrialGracePeriod:  72 * time.Hour,
			FreePeriodEndYear: 2099,
		},
		Now: func() time.Time { return trialNow },
	})
	require.NoError(t, err)
	return job
}

func seedTrial(t *testing.T, conn *gorm.DB, trialEnd time.Time, externalID string) *models.Subscription {
	t.Helper()
	familyID := uuid.New()
	sub := &models.Subscription{
		ID:                 uuid.New(),
		FamilyID:           &familyID,
		Plan:               enums.PlanFamilyPlus,
		Status:             enums.SubscriptionStatusTrialing,
		CurrentPeriodStart: ptr(trialEnd.Add(-30 * 24 * time.Hour)),
		CurrentPeriodEnd:   ptr(trialEnd),
		TrialEndDate:       ptr(trialEnd),
		CreatedAt:          trialEnd.Add(-30 * 24 * time.Hour),
		UpdatedAt:          trialEnd.Add(-30 * 24 * time.Hour),
	}
	if externalID != "" {
		sub.PaymentGateway = ptr(enums.PaymentGatewayAsaas)
		sub.ExternalSubscriptionID = ptr(externalID)
	}
	require.NoError(t, conn.Create(sub).Error)
	return sub
}

func ptr[T any](v T) *T {
	return &v
}

func loadSubscription(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, conn.First(&sub, "id = ?", id).Error)
	return sub
}

func countEvents(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestTrialExpirationResolvesEachKind(t *testing.T) {
	conn := dbtest.Open(t)
	job := newTrialJob(t, conn, billing.NewRepository(conn))

	cardless := seedTrial(t, conn, trialNow.Add(-time.Hour), "")
	lapsed := seedTrial(t, conn, trialNow.Add(-5*24*time.Hour), "sub_lapsed")
	inGrace := seedTrial(t, conn, trialNow.Add(-24*time.Hour), "sub_grace")
	running := seedTrial(t, conn, trialNow.Add(24*time.Hour), "")

	summary, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalProcessed, "trials still inside the grace period are not listed")
	assert.Equal(t, 2, summary.Succeeded)
	assert.Zero(t, summary.Failed)

	downgraded := loadSubscription(t, conn, cardless.ID)
	assert.Equal(t, enums.SubscriptionStatusActive, downgraded.Status)
	assert.Equal(t, enums.PlanFamilyFree, downgraded.Plan)
	require.NotNil(t, downgraded.CurrentPeriodEnd)
	assert.True(t, downgraded.CurrentPeriodEnd.Equal(time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)))

	assert.Equal(t, enums.SubscriptionStatusExpired, loadSubscription(t, conn, lapsed.ID).Status)
	assert.Equal(t, enums.SubscriptionStatusTrialing, loadSubscription(t, conn, inGrace.ID).Status)
	assert.Equal(t, enums.SubscriptionStatusTrialing, loadSubscription(t, conn, running.ID).Status)

	assert.EqualValues(t, 1, countEvents(t, conn, enums.EventTrialDowngraded))
	assert.EqualValues(t, 1, countEvents(t, conn, enums.EventTrialExpired))
}

func TestTrialExpirationReachesCardlessTrialsBehindGracePeriod(t *testing.T) {
	conn := dbtest.Open(t)
	job, err := NewTrialExpirationJob(TrialExpirationJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test"}),
		DB:          db.NewFromConn(conn),
		BillingRepo: billing.NewRepository(conn),
		Outbox:      outbox.NewService(outbox.NewRepository(conn), nil),
		Config: config.BillingConfig{
			TrialGracePeriod:  72 * time.Hour,
			FreePeriodEndYear: 2099,
			SweepBatchSize:    3,
		},
		Now: func() time.Time { return trialNow },
	})
	require.NoError(t, err)

	for _, id := range []string{"sub_wait_1", "sub_wait_2", "sub_wait_3"} {
		seedTrial(t, conn, trialNow.Add(-48*time.Hour), id)
	}
	cardless := seedTrial(t, conn, trialNow.Add(-time.Hour), "")

	summary, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalProcessed)

	stored := loadSubscription(t, conn, cardless.ID)
	assert.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, enums.PlanFamilyFree, stored.Plan)

	var waiting int64
	require.NoError(t, conn.Model(&models.Subscription{}).Where("status = ?", enums.SubscriptionStatusTrialing).Count(&waiting).Error)
	assert.EqualValues(t, 3, waiting)
}

func TestTrialExpirationStaleRerunIsSkipped(t *testing.T) {
	conn := dbtest.Open(t)
	repo := billing.NewRepository(conn)
	sub := seedTrial(t, conn, trialNow.Add(-time.Hour), "")
	listed, err := repo.ListExpiredTrials(context.Background(), trialNow, 72*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	job := newTrialJob(t, conn, staleTrials{Repository: repo, rows: listed})

	first, err := job.Run(context.Background())
	require.NoError(t, err)
	second, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Succeeded)
	assert.Zero(t, first.Skipped)
	assert.Equal(t, 1, second.Succeeded)
	assert.Equal(t, 1, second.Skipped)
	assert.EqualValues(t, 1, countEvents(t, conn, enums.EventTrialDowngraded))
	assert.Equal(t, enums.SubscriptionStatusActive, loadSubscription(t, conn, sub.ID).Status)
}

func TestTrialExpirationConcurrentRunsConverge(t *testing.T) {
	conn := dbtest.Open(t)
	repo := billing.NewRepository(conn)
	sub := seedTrial(t, conn, trialNow.Add(-2*time.Hour), "")
	listed, err := repo.ListExpiredTrials(context.Background(), trialNow, 72*time.Hour, 10)
	require.NoError(t, err)
	job := newTrialJob(t, conn, staleTrials{Repository: repo, rows: listed})

	summaries := make([]billing.SweepSummary, 2)
	var g errgroup.Group
	for i := range summaries {
		i := i
		g.Go(func() error {
			var err error
			summaries[i], err = job.Run(context.Background())
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, summaries[0].Skipped+summaries[1].Skipped)
	assert.Zero(t, summaries[0].Failed+summaries[1].Failed)
	stored := loadSubscription(t, conn, sub.ID)
	assert.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, enums.PlanFamilyFree, stored.Plan)
	assert.EqualValues(t, 1, countEvents(t, conn, enums.EventTrialDowngraded))
}

func TestNewTrialExpirationJobRequiresDependencies(t *testing.T) {
	if _, err := NewTrialExpirationJob(TrialExpirationJobParams{}); err == nil {
		t.Fatal("expected logger error")
	}
}
