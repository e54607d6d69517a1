package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/devfurlan/cuidly-sub007/internal/bootstrap"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/metrics"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox"
	"github.com/devfurlan/cuidly-sub007/pkg/outbox/relay"
	"github.com/devfurlan/cuidly-sub007/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	cfg, logg, err := bootstrap.LoadConfig(serviceName)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"topic":       cfg.PubSub.BillingTopic,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	rt, err := bootstrap.Open(ctx, cfg, logg, bootstrap.RuntimeOptions{DevMigrations: true})
	if err != nil {
		return err
	}
	defer rt.Close()
	dbClient := rt.DB

	bus, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer bus.Close()

	router, err := relay.NewRouter(cfg.PubSub)
	if err != nil {
		return err
	}
	rl, err := relay.New(relay.Params{
		Store:   outbox.NewRepository(dbClient.DB()),
		Sink:    bus,
		Router:  router,
		Logger:  logg,
		Metrics: metrics.NewRelayMetrics(prometheus.DefaultRegisterer),
		Options: relay.Options{
			BatchSize:      cfg.Outbox.BatchSize,
			Concurrency:    cfg.Outbox.Concurrency,
			MaxAttempts:    cfg.Outbox.MaxAttempts,
			PollInterval:   cfg.Outbox.PollInterval,
			PublishTimeout: cfg.Outbox.PublishTimeout,
		},
	})
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(groupCtx, "outbox relay started")
		return rl.Run(groupCtx)
	})
	if cfg.Outbox.MetricsListen != "" {
		group.Go(func() error {
			return bootstrap.Serve(groupCtx, &http.Server{
				Addr:              cfg.Outbox.MetricsListen,
				Handler:           opsHandler(dbClient),
				ReadHeaderTimeout: 5 * time.Second,
			}, 5*time.Second)
		})
	}
	return group.Wait()
}

// opsHandler serves /metrics and a readiness probe backed by the database.
func opsHandler(dbClient *db.Client) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := dbClient.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
