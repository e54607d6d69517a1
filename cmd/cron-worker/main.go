package main

import (
	"context"
	"errors"
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
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

const serviceName = "cron-worker"

func main() {
	cfg, logg, err := bootstrap.LoadConfig(serviceName)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Jobs.Interval.String(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// run drives the sweep loop and, when configured, a metrics listener. Either
// one failing stops the other.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	rt, err := bootstrap.Open(ctx, cfg, logg, bootstrap.RuntimeOptions{WithRedis: true, DevMigrations: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	components, err := rt.Components(ctx, bootstrap.Params{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return components.Cron.Run(groupCtx)
	})
	if cfg.Jobs.MetricsListen != "" {
		group.Go(func() error {
			return bootstrap.Serve(groupCtx, &http.Server{
				Addr:              cfg.Jobs.MetricsListen,
				Handler:           promhttp.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}, 5*time.Second)
		})
	}
	return group.Wait()
}
