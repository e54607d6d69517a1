package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devfurlan/cuidly-sub007/api/controllers"
	couponcontrollers "github.com/devfurlan/cuidly-sub007/api/controllers/coupons"
	jobcontrollers "github.com/devfurlan/cuidly-sub007/api/controllers/jobs"
	subscriptioncontrollers "github.com/devfurlan/cuidly-sub007/api/controllers/subscriptions"
	webhookcontrollers "github.com/devfurlan/cuidly-sub007/api/controllers/webhooks"
	"github.com/devfurlan/cuidly-sub007/api/middleware"
	couponsvc "github.com/devfurlan/cuidly-sub007/internal/coupons"
	subscriptionsvc "github.com/devfurlan/cuidly-sub007/internal/subscriptions"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/enums"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	pkgredis "github.com/devfurlan/cuidly-sub007/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP surface needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	Ping(context.Context) error
}

// Services bundles the handlers' collaborators.
type Services struct {
	Subscriptions subscriptionsvc.Service
	Coupons       couponsvc.Service
	AsaasWebhook  webhookcontrollers.AsaasWebhookService
	Jobs          jobcontrollers.JobRunner
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	store RedisStore,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	couponPolicy := middleware.NewRateLimitPolicy(
		"coupon_validate",
		cfg.RateLimit.CouponWindow,
		cfg.RateLimit.CouponIPLimit,
		cfg.RateLimit.CouponUserLimit,
	)

	var (
		idempotencyStore pkgredis.IdempotencyStore
		readyDeps        = map[string]controllers.Pinger{"db": dbP}
		rateStore        interface {
			IncrWithTTL(context.Context, string, time.Duration) (int64, error)
		}
	)
	if store != nil {
		idempotencyStore = store
		rateStore = store
		readyDeps["redis"] = store
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/asaas", webhookcontrollers.AsaasWebhook(svcs.AsaasWebhook, cfg.Gateway.WebhookSecret, logg))
	})

	r.Route("/api/v1/jobs", func(r chi.Router) {
		run := jobcontrollers.Run(svcs.Jobs, cfg.Jobs.CronSecret, logg)
		r.Get("/{job}", run)
		r.Post("/{job}", run)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, cfg.Billing.IdempotencyKeyTTL, logg))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(middleware.RequireOwner(logg))
			r.Get("/me", subscriptioncontrollers.Current(svcs.Subscriptions, logg))
			r.Post("/checkout", subscriptioncontrollers.Checkout(svcs.Subscriptions, logg))
			r.Post("/trial", subscriptioncontrollers.StartTrial(svcs.Subscriptions, logg))
			r.Post("/trigger-trial", subscriptioncontrollers.TriggerTrial(svcs.Subscriptions, logg))
			r.Post("/cancel", subscriptioncontrollers.Cancel(svcs.Subscriptions, logg))
			r.Post("/revert-cancellation", subscriptioncontrollers.RevertCancellation(svcs.Subscriptions, logg))
		})

		r.With(middleware.RateLimit(couponPolicy, rateStore, logg)).
			Post("/coupons/validate", couponcontrollers.Validate(svcs.Coupons, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.Use(middleware.Idempotency(idempotencyStore, cfg.Billing.IdempotencyKeyTTL, logg))

		r.Route("/coupons", func(r chi.Router) {
			r.Post("/", couponcontrollers.Create(svcs.Coupons, logg))
			r.Get("/", couponcontrollers.List(svcs.Coupons, logg))
		})
	})

	return r
}
