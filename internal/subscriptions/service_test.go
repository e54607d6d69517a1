package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/internal/coupons"
	"github.com/devfurlan/cuidly-sub007/internal/gateway"
	"github.com/devfurlan/cuidly-sub007/internal/gateway/gatewaytest"
	"github.com/devfurlan/cuidly-sub007/internal/pendingops"
	"github.com/devfurlan/cuidly-sub007/internal/plans"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db"
	"github.com/devfurlan/cuidly-sub007/pkg/db/dbtest"
	"github.com/devfurlan/cuidly-sub007/pkg/db/models"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
)

type harness struct {
	svc     Service
	conn    *gorm.DB
	gw      *gatewaytest.Fake
	coupons coupons.Service
	pending pendingops.Service
	repo    billing.Repository
	now     time.Time
}

func newHarness(t *testing.T, triggerEnabled bool) *harness {
	t.Helper()
	return newHarnessWith(t, triggerEnabled, nil)
}

func newHarnessWith(t *testing.T, triggerEnabled bool, wrap func(billing.Repository) billing.Repository) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	h := &harness{
		conn: conn,
		gw:   gatewaytest.New(),
		repo: billing.NewRepository(conn),
		now:  time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	txRunner := db.NewFromConn(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)

	catalog, err := plans.NewCatalog(config.PricingConfig{
		FamilyPlusMonth:   decimal.NewFromInt(47),
		FamilyPlusQuarter: decimal.NewFromInt(94),
		FamilyPlusYear:    decimal.NewFromInt(500),
		NannyProMonth:     decimal.RequireFromString("19.90"),
		NannyProYear:      decimal.NewFromInt(119),
	})
	require.NoError(t, err)

	h.coupons, err = coupons.NewService(coupons.ServiceParams{
		Repo:              coupons.NewRepository(conn),
		Pricer:            catalog,
		TransactionRunner: txRunner,
		Now:               clock,
	})
	require.NoError(t, err)

	billingCfg := config.BillingConfig{
		RetryBackoff:     5 * time.Minute,
		RetryMaxAttempts: 10,
		SweepBatchSize:   50,
		TriggerTrialDays: 7,
	}
	h.pending, err = pendingops.NewService(pendingops.ServiceParams{
		Repo:              pendingops.NewRepository(conn),
		Gateway:           h.gw,
		Outbox:            outboxSvc,
		TransactionRunner: txRunner,
		Config:            billingCfg,
		Now:               clock,
	})
	require.NoError(t, err)

	serviceRepo := h.repo
	if wrap != nil {
		serviceRepo = wrap(h.repo)
	}
	h.svc, err = NewService(ServiceParams{
		BillingRepo:         serviceRepo,
		Coupons:             h.coupons,
		Pricer:              catalog,
		Gateway:             h.gw,
		PendingOps:          h.pending,
		Outbox:              outboxSvc,
		TransactionRunner:   txRunner,
		Config:              billingCfg,
		TriggerTrialEnabled: triggerEnabled,
		Now:                 clock,
	})
	require.NoError(t, err)
	return h
}

func familyRequester() Requester {
	return Requester{
		Owner:  billing.Owner{Type: enums.OwnerTypeFamily, ID: uuid.New()},
		UserID: uuid.New(),
		Email:  "ana@example.com",
		Name:   "Ana Souza",
	}
}

func (h *harness) createCoupon(t *testing.T, input coupons.CreateInput) *models.Coupon {
	t.Helper()
	if input.ApplicableTo == "" {
		input.ApplicableTo = enums.CouponApplicableAll
	}
	input.StartDate = h.now.Add(-24 * time.Hour)
	input.EndDate = h.now.Add(60 * 24 * time.Hour)
	coupon, err := h.coupons.Create(context.Background(), input)
	require.NoError(t, err)
	return coupon
}

func (h *harness) seed(t *testing.T, owner billing.Owner, sub models.Subscription) *models.Subscription {
	t.Helper()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	owner.Apply(&sub)
	sub.CreatedAt = h.now.Add(-48 * time.Hour)
	sub.UpdatedAt = sub.CreatedAt
	require.NoError(t, h.conn.Create(&sub).Error)
	return &sub
}

func (h *harness) seedPayment(t *testing.T, subscriptionID uuid.UUID, externalID string) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		ID:                uuid.New(),
		SubscriptionID:    subscriptionID,
		Status:            enums.PaymentStatusPending,
		Amount:            decimal.NewFromInt(47),
		ExternalPaymentID: ptr(externalID),
		CreatedAt:         h.now.Add(-time.Hour),
		UpdatedAt:         h.now.Add(-time.Hour),
	}
	require.NoError(t, h.conn.Create(payment).Error)
	return payment
}

func (h *harness) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := h.conn.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (h *harness) current(t *testing.T, owner billing.Owner) *models.Subscription {
	t.Helper()
	sub, err := h.repo.FindByOwner(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func activePaid(externalID string) models.Subscription {
	return models.Subscription{
		Plan:                   enums.PlanFamilyPlus,
		BillingInterval:        ptr(enums.BillingIntervalMonth),
		Status:                 enums.SubscriptionStatusActive,
		PaymentGateway:         ptr(enums.PaymentGatewayAsaas),
		ExternalCustomerID:     ptr("cus_live"),
		ExternalSubscriptionID: ptr(externalID),
	}
}

func TestCheckoutWithPercentageCouponCapsDiscount(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	maxDiscount := decimal.NewFromInt(50)
	coupon := h.createCoupon(t, coupons.CreateInput{
		Code:          "SAVE20",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(20),
		MaxDiscount:   &maxDiscount,
	})
	req := familyRequester()

	res, err := h.svc.CreateOrUpgrade(ctx, CheckoutInput{
		Requester:  req,
		Plan:       enums.PlanFamilyPlus,
		Interval:   enums.BillingIntervalYear,
		CouponCode: "save20",
	})
	require.NoError(t, err)

	assert.True(t, res.Amount.Equal(decimal.NewFromInt(450)), "amount %s", res.Amount)
	assert.True(t, res.DiscountAmount.Equal(decimal.NewFromInt(50)), "discount %s", res.DiscountAmount)
	assert.NotEmpty(t, res.PaymentURL)
	require.Len(t, h.gw.CreatedSubscriptions, 1)
	assert.True(t, h.gw.CreatedSubscriptions[0].Value.Equal(decimal.NewFromInt(450)))
	assert.Equal(t, "YEARLY", h.gw.CreatedSubscriptions[0].Cycle)

	sub := h.current(t, req.Owner)
	assert.Equal(t, enums.SubscriptionStatusIncomplete, sub.Status)
	assert.Equal(t, enums.PlanFamilyPlus, sub.Plan)
	require.NotNil(t, sub.AppliedCouponID)
	assert.Equal(t, coupon.ID, *sub.AppliedCouponID)
	assert.True(t, sub.DiscountAmount.Decimal.Equal(decimal.NewFromInt(50)))

	assert.EqualValues(t, 1, h.count(t, &models.CouponUsage{}, "coupon_id = ?", coupon.ID))
	assert.EqualValues(t, 1, h.count(t, &models.Payment{}, "subscription_id = ? AND status = ?", sub.ID, enums.PaymentStatusPending))
	assert.EqualValues(t, 1, h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventSubscriptionCheckoutStarted))
}

func TestCheckoutRepeatedKeepsSingleRowAndDiscardsAbandonedGatewaySubscription(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	req := familyRequester()

	first, err := h.svc.CreateOrUpgrade(ctx, CheckoutInput{Requester: req, Plan: enums.PlanFamilyPlus, Interval: enums.BillingIntervalMonth})
	require.NoError(t, err)
	second, err := h.svc.CreateOrUpgrade(ctx, CheckoutInput{Requester: req, Plan: enums.PlanFamilyPlus, Interval: enums.BillingIntervalQuarter})
	require.NoError(t, err)

	assert.Equal(t, first.Subscription.ID, second.Subscription.ID)
	assert.EqualValues(t, 1, h.count(t, &models.Subscription{}, ""))
	assert.Equal(t, 1, h.gw.CallCount("create_customer"), "customer is reused")
	assert.Equal(t, []string{*first.Subscription.ExternalSubscriptionID}, h.gw.DeletedSubscriptions)

	sub := h.current(t, req.Owner)
	assert.Equal(t, enums.BillingIntervalQuarter, *sub.BillingInterval)
	assert.EqualValues(t, 1, h.count(t, &models.Payment{}, "subscription_id = ? AND status = ?", sub.ID, enums.PaymentStatusPending))
	assert.EqualValues(t, 1, h.count(t, &models.Payment{}, "subscription_id = ? AND status = ?", sub.ID, enums.PaymentStatusFailed))
}

func TestCheckoutRejectsOwnerWithPaidAccess(t *testing.T) {
	h := newHarness(t, false)
	req := familyRequester()
	h.seed(t, req.Owner, activePaid("sub_live"))

	_, err := h.svc.CreateOrUpgrade(context.Background(), CheckoutInput{Requester: req, Plan: enums.PlanFamilyPlus})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAlreadySubscribed))
	assert.Zero(t, h.gw.TotalCalls())
}

func TestCheckoutInvalidCouponMakesNoGatewayCalls(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.svc.CreateOrUpgrade(context.Background(), CheckoutInput{
		Requester:  familyRequester(),
		Plan:       enums.PlanFamilyPlus,
		CouponCode: "NOPE",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidCoupon))
	assert.Zero(t, h.gw.TotalCalls())
}

func TestCheckoutGatewayOutagePersistsNothing(t *testing.T) {
	h := newHarness(t, false)
	h.gw.Fail("create_subscription", gateway.KindTransport, "timeout")

	_, err := h.svc.CreateOrUpgrade(context.Background(), CheckoutInput{Requester: familyRequester(), Plan: enums.PlanFamilyPlus})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
	assert.EqualValues(t, 0, h.count(t, &models.Subscription{}, ""))
	assert.EqualValues(t, 0, h.count(t, &models.OutboxEvent{}, ""))
}

func TestCheckoutPaymentLinkFailureDeletesGatewaySubscription(t *testing.T) {
	h := newHarness(t, false)
	h.gw.Fail("create_payment_link", gateway.KindBusiness, "billing type not allowed")

	_, err := h.svc.CreateOrUpgrade(context.Background(), CheckoutInput{Requester: familyRequester(), Plan: enums.PlanFamilyPlus})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, []string{"sub_2"}, h.gw.DeletedSubscriptions)
	assert.EqualValues(t, 0, h.count(t, &models.Subscription{}, ""))
}

func TestCheckoutCardlessTrialCouponIsRejected(t *testing.T) {
	h := newHarness(t, false)
	h.createCoupon(t, coupons.CreateInput{
		Code:          "TRIAL30",
		DiscountType:  enums.DiscountTypeFreeTrialDays,
		DiscountValue: decimal.NewFromInt(30),
	})

	_, err := h.svc.CreateOrUpgrade(context.Background(), CheckoutInput{
		Requester:  familyRequester(),
		Plan:       enums.PlanFamilyPlus,
		CouponCode: "TRIAL30",
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidCoupon))
	assert.Zero(t, h.gw.TotalCalls())
}

func TestCheckoutCardTrialStartsTrialing(t *testing.T) {
	h := newHarness(t, false)
	h.createCoupon(t, coupons.CreateInput{
		Code:               "CARD14",
		DiscountType:       enums.DiscountTypeFreeTrialDays,
		DiscountValue:      decimal.NewFromInt(14),
		RequiresCreditCard: true,
	})
	req := familyRequester()

	res, err := h.svc.CreateOrUpgrade(context.Background(), CheckoutInput{Requester: req, Plan: enums.PlanFamilyPlus, CouponCode: "CARD14"})
	require.NoError(t, err)

	want := h.now.Add(14 * 24 * time.Hour)
	assert.Equal(t, enums.SubscriptionStatusTrialing, res.Subscription.Status)
	require.Len(t, h.gw.CreatedSubscriptions, 1)
	assert.True(t, h.gw.CreatedSubscriptions[0].NextDueDate.Equal(want))
	sub := h.current(t, req.Owner)
	require.NotNil(t, sub.TrialEndDate)
	assert.True(t, sub.TrialEndDate.Equal(want))
	assert.EqualValues(t, 1, h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventTrialStarted))
}

func TestActivateTrialWithoutCardSkipsGateway(t *testing.T) {
	h := newHarness(t, false)
	coupon := h.createCoupon(t, coupons.CreateInput{
		Code:          "TRIAL30",
		DiscountType:  enums.DiscountTypeFreeTrialDays,
		DiscountValue: decimal.NewFromInt(30),
	})
	req := familyRequester()

	sub, err := h.svc.ActivateTrial(context.Background(), TrialInput{Requester: req, Plan: enums.PlanFamilyPlus, CouponCode: "TRIAL30"})
	require.NoError(t, err)

	want := h.now.Add(30 * 24 * time.Hour)
	assert.Equal(t, enums.SubscriptionStatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEndDate)
	assert.True(t, sub.TrialEndDate.Equal(want))
	assert.Zero(t, h.gw.TotalCalls())

	stored := h.current(t, req.Owner)
	assert.Equal(t, enums.SubscriptionStatusTrialing, stored.Status)
	assert.Nil(t, stored.ExternalSubscriptionID)
	assert.True(t, stored.TrialEndDate.Equal(want))
	assert.EqualValues(t, 1, h.count(t, &models.CouponUsage{}, "coupon_id = ?", coupon.ID))
	assert.EqualValues(t, 1, h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventTrialStarted))
}

func TestActivateTrialSevenDayCoupon(t *testing.T) {
	h := newHarness(t, false)
	h.createCoupon(t, coupons.CreateInput{Code: "WEEK", DiscountType: enums.DiscountTypeFreeTrialDays, DiscountValue: decimal.NewFromInt(7)})

	sub, err := h.svc.ActivateTrial(context.Background(), TrialInput{Requester: familyRequester(), Plan: enums.PlanFamilyPlus, CouponCode: "WEEK"})
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, sub.TrialEndDate.Sub(h.now))
}

func TestActivateTrialRejections(t *testing.T) {
	h := newHarness(t, false)
	h.createCoupon(t, coupons.CreateInput{Code: "CARD7", DiscountType: enums.DiscountTypeFreeTrialDays, DiscountValue: decimal.NewFromInt(7), RequiresCreditCard: true})
	h.createCoupon(t, coupons.CreateInput{Code: "OFF10", DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewFromInt(10)})
	h.createCoupon(t, coupons.CreateInput{Code: "FREE7", DiscountType: enums.DiscountTypeFreeTrialDays, DiscountValue: decimal.NewFromInt(7)})
	ctx := context.Background()

	paid := familyRequester()
	h.seed(t, paid.Owner, activePaid("sub_live"))

	cases := []struct {
		name string
		req  Requester
		code string
		want pkgerrors.Code
	}{
		{name: "missing code", req: familyRequester(), code: "", want: pkgerrors.CodeValidation},
		{name: "card required", req: familyRequester(), code: "CARD7", want: pkgerrors.CodeInvalidCoupon},
		{name: "not a trial", req: familyRequester(), code: "OFF10", want: pkgerrors.CodeInvalidCoupon},
		{name: "already paid", req: paid, code: "FREE7", want: pkgerrors.CodeAlreadySubscribed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.ActivateTrial(ctx, TrialInput{Requester: tc.req, Plan: enums.PlanFamilyPlus, CouponCode: tc.code})
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, tc.want), "got %v", err)
		})
	}
	assert.Zero(t, h.gw.TotalCalls())
}

func TestActivateTrialQueuesDeletionOfAbandonedCheckout(t *testing.T) {
	h := newHarness(t, false)
	h.createCoupon(t, coupons.CreateInput{Code: "FREE7", DiscountType: enums.DiscountTypeFreeTrialDays, DiscountValue: decimal.NewFromInt(7)})
	req := familyRequester()
	abandoned := activePaid("sub_abandoned")
	abandoned.Status = enums.SubscriptionStatusIncomplete
	seeded := h.seed(t, req.Owner, abandoned)

	_, err := h.svc.ActivateTrial(context.Background(), TrialInput{Requester: req, Plan: enums.PlanFamilyPlus, CouponCode: "FREE7"})
	require.NoError(t, err)
	assert.Zero(t, h.gw.TotalCalls())
	assert.EqualValues(t, 1, h.count(t, &models.PendingPaymentOperation{}, "subscription_id = ? AND external_id = ?", seeded.ID, "sub_abandoned"))
}

func TestActivateTriggerTrial(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, false)
		req := familyRequester()
		h.seed(t, req.Owner, models.Subscription{Plan: enums.PlanFamilyFree, Status: enums.SubscriptionStatusActive})
		_, err := h.svc.ActivateTriggerTrial(ctx, req)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotEligible))
	})

	t.Run("no subscription", func(t *testing.T) {
		h := newHarness(t, true)
		_, err := h.svc.ActivateTriggerTrial(ctx, familyRequester())
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotEligible))
	})

	t.Run("paid plan", func(t *testing.T) {
		h := newHarness(t, true)
		req := familyRequester()
		h.seed(t, req.Owner, activePaid("sub_live"))
		_, err := h.svc.ActivateTriggerTrial(ctx, req)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotEligible))
	})

	t.Run("once per owner", func(t *testing.T) {
		h := newHarness(t, true)
		req := familyRequester()
		h.seed(t, req.Owner, models.Subscription{Plan: enums.PlanFamilyFree, Status: enums.SubscriptionStatusActive})

		sub, err := h.svc.ActivateTriggerTrial(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, enums.PlanFamilyPlus, sub.Plan)
		assert.Equal(t, enums.SubscriptionStatusTrialing, sub.Status)
		assert.Equal(t, 7*24*time.Hour, sub.TrialEndDate.Sub(h.now))
		require.NotNil(t, sub.TriggerTrialUsedAt)

		require.NoError(t, h.conn.Model(&models.Subscription{}).Where("id = ?", sub.ID).
			Updates(map[string]any{"plan": enums.PlanFamilyFree, "status": enums.SubscriptionStatusActive}).Error)

		_, err = h.svc.ActivateTriggerTrial(ctx, req)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAlreadyUsed))
		assert.Zero(t, h.gw.TotalCalls())
	})
}

func TestCancelPreconditions(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	_, err := h.svc.Cancel(ctx, CancelInput{Requester: familyRequester()})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	req := familyRequester()
	canceled := activePaid("sub_old")
	canceled.Status = enums.SubscriptionStatusCanceled
	h.seed(t, req.Owner, canceled)
	_, err = h.svc.Cancel(ctx, CancelInput{Requester: req})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeAlreadyCanceled))
	assert.Zero(t, h.gw.TotalCalls())
}

func TestCancelCleansUpGateway(t *testing.T) {
	h := newHarness(t, false)
	req := familyRequester()
	sub := h.seed(t, req.Owner, activePaid("sub_live"))
	payment := h.seedPayment(t, sub.ID, "pay_live")

	res, err := h.svc.Cancel(context.Background(), CancelInput{Requester: req, Reason: "too expensive"})
	require.NoError(t, err)

	assert.Empty(t, res.Warning)
	assert.Equal(t, enums.SubscriptionStatusCanceled, res.Subscription.Status)
	assert.Equal(t, []string{"sub_live"}, h.gw.DeletedSubscriptions)
	assert.Equal(t, []string{"pay_live"}, h.gw.DeletedInvoices)

	var stored models.Payment
	require.NoError(t, h.conn.First(&stored, "id = ?", payment.ID).Error)
	assert.Equal(t, enums.PaymentStatusFailed, stored.Status)
	current := h.current(t, req.Owner)
	assert.Equal(t, "too expensive", *current.CancelReason)
	require.NotNil(t, current.CanceledAt)
	assert.EqualValues(t, 1, h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventSubscriptionCanceled))
}

func TestCancelWithInvoiceLockedByTaxAuthority(t *testing.T) {
	h := newHarness(t, false)
	req := familyRequester()
	sub := h.seed(t, req.Owner, activePaid("sub_live"))
	h.seedPayment(t, sub.ID, "pay_sefaz")
	h.gw.Fail("delete_invoice", gateway.KindBusiness, "invoice already authorized by SEFAZ")

	res, err := h.svc.Cancel(context.Background(), CancelInput{Requester: req})
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStatusCanceled, h.current(t, req.Owner).Status)
	assert.EqualValues(t, 0, h.count(t, &models.PendingPaymentOperation{}, ""))
	assert.Contains(t, res.Warning, "invoice pay_sefaz")
	assert.Contains(t, res.Warning, "SEFAZ")
}

func TestCancelQueuesRetryableCleanupAndSweepConverges(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	req := familyRequester()
	sub := h.seed(t, req.Owner, activePaid("sub_live"))
	h.seedPayment(t, sub.ID, "pay_live")
	h.gw.Fail("delete_subscription", gateway.KindTransport, "connection reset")
	h.gw.Fail("delete_invoice", gateway.KindTransport, "connection reset")

	res, err := h.svc.Cancel(ctx, CancelInput{Requester: req})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, res.Subscription.Status)
	assert.Contains(t, res.Warning, "sub_live")
	assert.Contains(t, res.Warning, "; ")
	assert.EqualValues(t, 2, h.count(t, &models.PendingPaymentOperation{}, "subscription_id = ?", sub.ID))

	h.gw.Recover()
	h.now = h.now.Add(10 * time.Minute)
	summary, err := h.pending.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalProcessed)
	assert.Equal(t, 2, summary.Succeeded)
	assert.EqualValues(t, 0, h.count(t, &models.PendingPaymentOperation{}, ""))
	assert.Contains(t, h.gw.DeletedSubscriptions, "sub_live")
	assert.Contains(t, h.gw.DeletedInvoices, "pay_live")
}

// recheckoutOnLock lands a competing checkout just before Cancel takes the row
// lock: the row points at a new gateway subscription with a fresh invoice.
type recheckoutOnLock struct {
	billing.Repository
	tx *gorm.DB
}

func (r recheckoutOnLock) WithTx(tx *gorm.DB) billing.Repository {
	return recheckoutOnLock{Repository: r.Repository.WithTx(tx), tx: tx}
}

func (r recheckoutOnLock) FindByOwnerForUpdate(ctx context.Context, owner billing.Owner) (*models.Subscription, error) {
	if r.tx != nil {
		sub, err := r.Repository.FindByOwner(ctx, owner)
		if err != nil || sub == nil {
			return sub, err
		}
		if err := r.tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]any{
			"status":                   enums.SubscriptionStatusIncomplete,
			"external_subscription_id": "sub_new",
		}).Error; err != nil {
			return nil, err
		}
		if err := r.tx.Create(&models.Payment{
			ID:                uuid.New(),
			SubscriptionID:    sub.ID,
			Status:            enums.PaymentStatusPending,
			Amount:            decimal.NewFromInt(47),
			ExternalPaymentID: ptr("pay_new"),
		}).Error; err != nil {
			return nil, err
		}
	}
	return r.Repository.FindByOwnerForUpdate(ctx, owner)
}

func TestCancelQueuesGatewayResourcesAttachedMidCancel(t *testing.T) {
	h := newHarnessWith(t, false, func(r billing.Repository) billing.Repository { return recheckoutOnLock{Repository: r} })
	ctx := context.Background()
	req := familyRequester()
	sub := h.seed(t, req.Owner, activePaid("sub_old"))
	h.seedPayment(t, sub.ID, "pay_old")

	res, err := h.svc.Cancel(ctx, CancelInput{Requester: req})
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStatusCanceled, h.current(t, req.Owner).Status)
	assert.Equal(t, []string{"sub_old"}, h.gw.DeletedSubscriptions)
	assert.Equal(t, []string{"pay_old"}, h.gw.DeletedInvoices)
	assert.Contains(t, res.Warning, "sub_new")
	assert.Contains(t, res.Warning, "pay_new")
	assert.EqualValues(t, 1, h.count(t, &models.PendingPaymentOperation{}, "type = ? AND subscription_id = ?", enums.PendingOperationCancelSubscription, sub.ID))
	assert.EqualValues(t, 1, h.count(t, &models.PendingPaymentOperation{}, "type = ? AND subscription_id = ?", enums.PendingOperationCancelInvoice, sub.ID))

	h.now = h.now.Add(10 * time.Minute)
	summary, err := h.pending.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Contains(t, h.gw.DeletedSubscriptions, "sub_new")
	assert.Contains(t, h.gw.DeletedInvoices, "pay_new")
}

func TestRevertCancellation(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		h := newHarness(t, false)
		_, err := h.svc.RevertCancellation(ctx, familyRequester())
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	})

	t.Run("not scheduled", func(t *testing.T) {
		h := newHarness(t, false)
		req := familyRequester()
		h.seed(t, req.Owner, activePaid("sub_live"))
		_, err := h.svc.RevertCancellation(ctx, req)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotScheduledForCancelation))
	})

	t.Run("clears schedule", func(t *testing.T) {
		h := newHarness(t, false)
		req := familyRequester()
		scheduled := activePaid("sub_live")
		scheduled.CancelAtPeriodEnd = true
		h.seed(t, req.Owner, scheduled)

		res, err := h.svc.RevertCancellation(ctx, req)
		require.NoError(t, err)
		assert.Empty(t, res.Warning)
		assert.False(t, h.current(t, req.Owner).CancelAtPeriodEnd)
		assert.Equal(t, 1, h.gw.CallCount("get_subscription"))
		assert.EqualValues(t, 1, h.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventSubscriptionReverted))
	})

	t.Run("gateway subscription gone", func(t *testing.T) {
		h := newHarness(t, false)
		req := familyRequester()
		scheduled := activePaid("sub_gone")
		scheduled.CancelAtPeriodEnd = true
		h.seed(t, req.Owner, scheduled)
		h.gw.GoneSubscriptions["sub_gone"] = true

		res, err := h.svc.RevertCancellation(ctx, req)
		require.NoError(t, err)
		assert.Contains(t, res.Warning, "reactivate manually")
		assert.True(t, h.current(t, req.Owner).CancelAtPeriodEnd)
		assert.EqualValues(t, 0, h.count(t, &models.OutboxEvent{}, ""))
	})
}

func TestGetCurrent(t *testing.T) {
	h := newHarness(t, false)
	req := familyRequester()

	_, err := h.svc.GetCurrent(context.Background(), req.Owner)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	seeded := h.seed(t, req.Owner, activePaid("sub_live"))
	sub, err := h.svc.GetCurrent(context.Background(), req.Owner)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, sub.ID)
}
