// Package dbtest opens isolated in-memory sqlite databases carrying the
// billing schema for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		family_id TEXT NULL,
		nanny_id TEXT NULL,
		plan TEXT NOT NULL,
		billing_interval TEXT NULL,
		status TEXT NOT NULL,
		payment_gateway TEXT NULL,
		external_customer_id TEXT NULL,
		external_subscription_id TEXT NULL,
		current_period_start DATETIME NULL,
		current_period_end DATETIME NULL,
		trial_end_date DATETIME NULL,
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT 0,
		canceled_at DATETIME NULL,
		cancel_reason TEXT NULL,
		applied_coupon_id TEXT NULL,
		discount_amount NUMERIC NULL,
		trigger_trial_used_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK ((family_id IS NULL) <> (nanny_id IS NULL))
	)`,
	`CREATE UNIQUE INDEX ux_subscriptions_family_id ON subscriptions(family_id)`,
	`CREATE UNIQUE INDEX ux_subscriptions_nanny_id ON subscriptions(nanny_id)`,
	`CREATE TABLE coupons (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		description TEXT NULL,
		discount_type TEXT NOT NULL,
		discount_value NUMERIC NOT NULL,
		max_discount NUMERIC NULL,
		min_purchase_amount NUMERIC NULL,
		usage_limit INTEGER NULL,
		usage_count INTEGER NOT NULL DEFAULT 0,
		applicable_to TEXT NOT NULL,
		applicable_plan_ids TEXT NULL,
		applicable_intervals TEXT NULL,
		has_user_restriction BOOLEAN NOT NULL DEFAULT 0,
		requires_credit_card BOOLEAN NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		created_by TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		deleted_at DATETIME NULL
	)`,
	`CREATE UNIQUE INDEX ux_coupons_code ON coupons(code)`,
	`CREATE TABLE coupon_allowed_users (
		id TEXT PRIMARY KEY,
		coupon_id TEXT NOT NULL,
		user_id TEXT NULL,
		email TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE coupon_usages (
		id TEXT PRIMARY KEY,
		coupon_id TEXT NOT NULL,
		subscription_id TEXT NOT NULL,
		user_id TEXT NULL,
		email TEXT NULL,
		discount_amount NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX ux_coupon_usages_coupon_subscription ON coupon_usages(coupon_id, subscription_id)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		subscription_id TEXT NOT NULL,
		status TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		external_payment_id TEXT NULL,
		external_invoice_url TEXT NULL,
		paid_at DATETIME NULL,
		failure_reason TEXT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX ux_payments_external_payment_id ON payments(external_payment_id)`,
	`CREATE TABLE pending_payment_operations (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		subscription_id TEXT NOT NULL,
		payment_id TEXT NULL,
		external_id TEXT NOT NULL,
		operation_data TEXT NULL,
		last_error TEXT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		terminal_at DATETIME NULL,
		escalated_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE webhook_events (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NULL,
		processed_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX ux_webhook_events_provider_event ON webhook_events(provider, event_id)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		published_at DATETIME NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NULL
	)`,
}

// Open returns a fresh in-memory database named after the running test.
// The pool is pinned to a single connection so transactions never contend.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
