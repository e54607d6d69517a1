package bootstrap

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/devfurlan/cuidly-sub007/internal/cron"
	"github.com/devfurlan/cuidly-sub007/internal/gateway/gatewaytest"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db"
	"github.com/devfurlan/cuidly-sub007/pkg/db/dbtest"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/redis"
)

func testConfig() *config.Config {
	return &config.Config{
		Pricing: config.PricingConfig{
			FamilyPlusMonth:   decimal.RequireFromString("47.00"),
			FamilyPlusQuarter: decimal.RequireFromString("94.00"),
			FamilyPlusYear:    decimal.RequireFromString("297.00"),
			NannyProMonth:     decimal.RequireFromString("19.90"),
			NannyProYear:      decimal.RequireFromString("119.00"),
		},
		Jobs: config.JobsConfig{LockKey: "cuidly:cron:test"},
	}
}

func TestNewWiresJobs(t *testing.T) {
	components, err := New(context.Background(), Params{
		Config:     testConfig(),
		Logger:     logger.New(logger.Options{ServiceName: "bootstrap-test"}),
		DB:         db.NewFromConn(dbtest.Open(t)),
		Redis:      &redis.Client{},
		Registerer: prometheus.NewRegistry(),
		Gateway:    gatewaytest.New(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for _, name := range []string{cron.TrialExpirationJobName, cron.PendingOperationsJobName, cron.OutboxRetentionJobName} {
		if _, ok := components.Jobs.Lookup(name); !ok {
			t.Fatalf("job %q not registered", name)
		}
	}
	if components.Subscriptions == nil || components.Coupons == nil || components.AsaasWebhook == nil || components.Cron == nil {
		t.Fatalf("missing components: %+v", components)
	}
}

func TestNewRejectsBadPricing(t *testing.T) {
	cfg := testConfig()
	cfg.Pricing.NannyProYear = decimal.Zero
	_, err := New(context.Background(), Params{
		Config:  cfg,
		Logger:  logger.New(logger.Options{ServiceName: "bootstrap-test"}),
		DB:      db.NewFromConn(dbtest.Open(t)),
		Redis:   &redis.Client{},
		Gateway: gatewaytest.New(),
	})
	if err == nil {
		t.Fatal("expected a pricing error")
	}
}
