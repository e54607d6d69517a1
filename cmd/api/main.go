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

	"github.com/devfurlan/cuidly-sub007/api/routes"
	"github.com/devfurlan/cuidly-sub007/internal/bootstrap"
	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, logg, err := bootstrap.LoadConfig(serviceName)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	rt, err := bootstrap.Open(ctx, cfg, logg, bootstrap.RuntimeOptions{WithRedis: true, DevMigrations: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logg.Error(ctx, "closing connections", err)
		}
	}()

	components, err := rt.Components(ctx, bootstrap.Params{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return err
	}

	addr := listenAddr(cfg)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instanceID(),
	})
	logg.Info(ctx, "starting api server")

	return bootstrap.Serve(ctx, &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, rt.DB, rt.Redis, routes.Services{
			Subscriptions: components.Subscriptions,
			Coupons:       components.Coupons,
			AsaasWebhook:  components.AsaasWebhook,
			Jobs:          components.Cron,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}, shutdownTimeout)
}

// listenAddr prefers the platform-assigned PORT.
func listenAddr(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + cfg.App.Port
}

func instanceID() string {
	if dyno := os.Getenv("DYNO"); dyno != "" {
		return dyno
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "local"
}
