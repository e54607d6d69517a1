package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfurlan/cuidly-sub007/pkg/db/dbtest"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
)

func strPtr(v string) *string { return &v }

func TestUpsertByOwnerUpdatesInsteadOfDuplicating(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := Owner{Type: enums.OwnerTypeFamily, ID: uuid.New()}
	interval := enums.BillingIntervalMonth

	first := &models.Subscription{
		Plan:                   enums.PlanFamilyPlus,
		BillingInterval:        &interval,
		Status:                 enums.SubscriptionStatusIncomplete,
		ExternalSubscriptionID: strPtr("sub_1"),
	}
	require.NoError(t, repo.UpsertByOwner(ctx, owner, first))
	firstID := first.ID

	yearly := enums.BillingIntervalYear
	second := &models.Subscription{
		Plan:                   enums.PlanFamilyPlus,
		BillingInterval:        &yearly,
		Status:                 enums.SubscriptionStatusIncomplete,
		ExternalSubscriptionID: strPtr("sub_2"),
	}
	require.NoError(t, repo.UpsertByOwner(ctx, owner, second))

	assert.Equal(t, firstID, second.ID, "upsert must keep the original row id")
	require.NotNil(t, second.BillingInterval)
	assert.Equal(t, enums.BillingIntervalYear, *second.BillingInterval)
	assert.Equal(t, "sub_2", *second.ExternalSubscriptionID)

	var count int64
	require.NoError(t, conn.Model(&models.Subscription{}).Where("family_id = ?", owner.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertByOwnerKeepsFamiliesAndNanniesApart(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	id := uuid.New()

	family := &models.Subscription{Plan: enums.PlanFamilyFree, Status: enums.SubscriptionStatusActive}
	nanny := &models.Subscription{Plan: enums.PlanNannyFree, Status: enums.SubscriptionStatusActive}
	require.NoError(t, repo.UpsertByOwner(ctx, Owner{Type: enums.OwnerTypeFamily, ID: id}, family))
	require.NoError(t, repo.UpsertByOwner(ctx, Owner{Type: enums.OwnerTypeNanny, ID: id}, nanny))

	assert.NotEqual(t, family.ID, nanny.ID)
	assert.Nil(t, family.NannyID)
	assert.Nil(t, nanny.FamilyID)
}

func TestTransitionStatusIsConditional(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := Owner{Type: enums.OwnerTypeNanny, ID: uuid.New()}

	sub := &models.Subscription{Plan: enums.PlanNannyPro, Status: enums.SubscriptionStatusTrialing}
	require.NoError(t, repo.UpsertByOwner(ctx, owner, sub))

	from := []enums.SubscriptionStatus{enums.SubscriptionStatusTrialing}
	updates := map[string]any{"status": enums.SubscriptionStatusExpired}

	affected, err := repo.TransitionStatus(ctx, sub.ID, from, updates)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.TransitionStatus(ctx, sub.ID, from, updates)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected, "second transition must be a no-op")
}

func TestListExpiredTrials(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	grace := 72 * time.Hour

	expired := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	lapsed := now.Add(-5 * 24 * time.Hour)
	seed := []struct {
		name     string
		status   enums.SubscriptionStatus
		end      *time.Time
		external *string
	}{
		{"cardless", enums.SubscriptionStatusTrialing, &expired, nil},
		{"empty external id", enums.SubscriptionStatusTrialing, &expired, strPtr("")},
		{"running", enums.SubscriptionStatusTrialing, &future, nil},
		{"active", enums.SubscriptionStatusActive, &expired, nil},
		{"in grace", enums.SubscriptionStatusTrialing, &expired, strPtr("sub_grace")},
		{"past grace", enums.SubscriptionStatusTrialing, &lapsed, strPtr("sub_lapsed")},
	}
	for _, s := range seed {
		sub := &models.Subscription{Plan: enums.PlanFamilyPlus, Status: s.status, TrialEndDate: s.end, ExternalSubscriptionID: s.external}
		require.NoError(t, repo.UpsertByOwner(ctx, Owner{Type: enums.OwnerTypeFamily, ID: uuid.New()}, sub), s.name)
	}

	subs, err := repo.ListExpiredTrials(ctx, now, grace, 10)
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, "sub_lapsed", *subs[0].ExternalSubscriptionID, "oldest trial end first")
	for _, sub := range subs {
		assert.Equal(t, enums.SubscriptionStatusTrialing, sub.Status)
		if sub.ExternalSubscriptionID != nil {
			assert.NotEqual(t, "sub_grace", *sub.ExternalSubscriptionID)
		}
	}
}

func TestListOpenPaymentsSkipsSettledAndLocalOnly(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	subID := uuid.New()

	payments := []*models.Payment{
		{SubscriptionID: subID, Status: enums.PaymentStatusPending, Amount: decimal.NewFromInt(47), ExternalPaymentID: strPtr("pay_open")},
		{SubscriptionID: subID, Status: enums.PaymentStatusPaid, Amount: decimal.NewFromInt(47), ExternalPaymentID: strPtr("pay_paid")},
		{SubscriptionID: subID, Status: enums.PaymentStatusPending, Amount: decimal.NewFromInt(47)},
	}
	for _, p := range payments {
		require.NoError(t, repo.CreatePayment(ctx, p))
	}

	open, err := repo.ListOpenPayments(ctx, subID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "pay_open", *open[0].ExternalPaymentID)

	found, err := repo.FindPaymentByExternalID(ctx, "pay_paid")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Amount.Equal(decimal.NewFromInt(47)))

	missing, err := repo.FindPaymentByExternalID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindByOwnerReturnsNilWhenMissing(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	sub, err := repo.FindByOwner(context.Background(), Owner{Type: enums.OwnerTypeFamily, ID: uuid.New()})
	require.NoError(t, err)
	assert.Nil(t, sub)
}
