// Package bootstrap assembles the billing services shared by the api, the
// cron worker and billingctl.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devfurlan/cuidly-sub007/internal/billing"
	"github.com/devfurlan/cuidly-sub007/internal/coupons"
	"github.com/devfurlan/cuidly-sub007/internal/cron"
	"github.com/devfurlan/cuidly-sub007/internal/gateway"
	"github.com/devfurlan/cuidly-sub007/internal/pendingops"
	"github.com/devfurlan/cuidly-sub007/internal/plans"
	"github.com/devfurlan/cuidly-sub007/internal/subscriptions"
	asaaswebhook "github.com/devfurlan/cuidly-sub007/internal/webhooks/asaas"
	"github.com/devfurlan/cuidly-sub007/pkg/asaas"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db"
	"github.com/devfurlan/cuidly-sub007/pkg/dedup"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/metrics"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
	"github.com/devfurlan/cuidly-sub007/pkg/redis"
)

// defaultWebhookDedupTTL mirrors the CUIDLY_WEBHOOK_DEDUP_TTL default.
const defaultWebhookDedupTTL = 30 * 24 * time.Hour

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer

	// Gateway replaces the REST-backed client, mostly for tests.
	Gateway gateway.Client
}

// Components holds every wired service.
type Components struct {
	Gateway       gateway.Client
	Plans         *plans.Catalog
	BillingRepo   billing.Repository
	Outbox        *outbox.Service
	OutboxRepo    *outbox.Repository
	Coupons       coupons.Service
	PendingOps    pendingops.Service
	Subscriptions subscriptions.Service
	AsaasWebhook  *asaaswebhook.Service
	Jobs          *cron.Registry
	Cron          *cron.Service
	CronMetrics   *metrics.JobMetrics
}

func New(ctx context.Context, params Params) (*Components, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("db client required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client required")
	}
	logg := params.Logger
	conn := params.DB.DB()

	sweepMetrics := metrics.NewSweepMetrics(params.Registerer)
	cronMetrics := metrics.NewJobMetrics(params.Registerer)

	gatewayClient := params.Gateway
	if gatewayClient == nil {
		api, err := asaas.NewClient(ctx, cfg.Gateway, logg, asaas.Options{
			Metrics: metrics.NewGatewayMetrics(params.Registerer),
		})
		if err != nil {
			return nil, fmt.Errorf("gateway client: %w", err)
		}
		gatewayClient, err = gateway.NewAsaasClient(api)
		if err != nil {
			return nil, fmt.Errorf("gateway adapter: %w", err)
		}
	}

	catalog, err := plans.NewCatalog(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("plan catalog: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)
	billingRepo := billing.NewRepository(conn)

	couponSvc, err := coupons.NewService(coupons.ServiceParams{
		Repo:              coupons.NewRepository(conn),
		Pricer:            catalog,
		TransactionRunner: params.DB,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("coupon service: %w", err)
	}

	pendingSvc, err := pendingops.NewService(pendingops.ServiceParams{
		Repo:              pendingops.NewRepository(conn),
		Gateway:           gatewayClient,
		Outbox:            outboxSvc,
		TransactionRunner: params.DB,
		Logger:            logg,
		Metrics:           sweepMetrics,
		Config:            cfg.Billing,
	})
	if err != nil {
		return nil, fmt.Errorf("pending operation service: %w", err)
	}

	subscriptionSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		BillingRepo:         billingRepo,
		Coupons:             couponSvc,
		Pricer:              catalog,
		Gateway:             gatewayClient,
		PendingOps:          pendingSvc,
		Outbox:              outboxSvc,
		TransactionRunner:   params.DB,
		Logger:              logg,
		Config:              cfg.Billing,
		TriggerTrialEnabled: cfg.FeatureFlags.TriggerTrialEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("subscription service: %w", err)
	}

	dedupTTL := cfg.Billing.WebhookDedupTTL
	if dedupTTL <= 0 {
		dedupTTL = defaultWebhookDedupTTL
	}
	guard, err := dedup.NewLedger(params.Redis, dedupTTL)
	if err != nil {
		return nil, fmt.Errorf("webhook guard: %w", err)
	}
	webhookSvc, err := asaaswebhook.NewService(asaaswebhook.ServiceParams{
		BillingRepo:       billingRepo,
		EventRepo:         asaaswebhook.NewRepository(conn),
		Outbox:            outboxSvc,
		Guard:             guard,
		TransactionRunner: params.DB,
		Logger:            logg,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}

	registry, err := newJobRegistry(cfg, logg, params.DB, billingRepo, outboxSvc, outboxRepo, pendingSvc, sweepMetrics)
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(params.Redis, cfg.Jobs.LockKey, cfg.Jobs.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}
	cronSvc, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Jobs.Interval,
	})
	if err != nil {
		return nil, fmt.Errorf("cron service: %w", err)
	}

	return &Components{
		Gateway:       gatewayClient,
		Plans:         catalog,
		BillingRepo:   billingRepo,
		Outbox:        outboxSvc,
		OutboxRepo:    outboxRepo,
		Coupons:       couponSvc,
		PendingOps:    pendingSvc,
		Subscriptions: subscriptionSvc,
		AsaasWebhook:  webhookSvc,
		Jobs:          registry,
		Cron:          cronSvc,
		CronMetrics:   cronMetrics,
	}, nil
}

func newJobRegistry(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	billingRepo billing.Repository,
	outboxSvc *outbox.Service,
	outboxRepo *outbox.Repository,
	pendingSvc pendingops.Service,
	sweepMetrics *metrics.SweepMetrics,
) (*cron.Registry, error) {
	trialJob, err := cron.NewTrialExpirationJob(cron.TrialExpirationJobParams{
		Logger:      logg,
		DB:          dbClient,
		BillingRepo: billingRepo,
		Outbox:      outboxSvc,
		Metrics:     sweepMetrics,
		Config:      cfg.Billing,
	})
	if err != nil {
		return nil, fmt.Errorf("trial expiration job: %w", err)
	}
	pendingJob, err := cron.NewPendingOperationsJob(pendingSvc)
	if err != nil {
		return nil, fmt.Errorf("pending operations job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		Repository:   outboxRepo,
		Metrics:      sweepMetrics,
		Retention:    cfg.Outbox.Retention,
		DeadAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return cron.NewRegistry(trialJob, pendingJob, retentionJob), nil
}
