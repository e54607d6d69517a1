package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/devfurlan/cuidly-sub007/pkg/config"
	"github.com/devfurlan/cuidly-sub007/pkg/db"
	"github.com/devfurlan/cuidly-sub007/pkg/logger"
	"github.com/devfurlan/cuidly-sub007/pkg/migrate"
	"github.com/devfurlan/cuidly-sub007/pkg/redis"
)

// LoadConfig reads .env when present, then the environment, and builds the
// logger for service.
func LoadConfig(service string) (*config.Config, *logger.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, logger.New(logger.Options{ServiceName: service}), err
	}
	cfg.Service.Kind = service
	logg := logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Environment: cfg.App.Env,
		Format:      logger.ParseFormat(cfg.App.LogFormat),
		WarnStack:   cfg.App.LogWarnStack,
	})
	return cfg, logg, nil
}

type RuntimeOptions struct {
	// WithRedis opens the redis client. The outbox relay and the migration
	// commands run without it.
	WithRedis bool
	// DevMigrations applies pending migrations in development when the
	// auto-migrate flag is set.
	DevMigrations bool
}

// Runtime holds the connections a process opens once and closes on exit.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client
}

func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts RuntimeOptions) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logg}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	rt.DB = dbClient

	if opts.DevMigrations {
		if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
			return nil, multierr.Append(fmt.Errorf("dev migrations: %w", err), rt.Close())
		}
	}
	if opts.WithRedis {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("redis: %w", err), rt.Close())
		}
		rt.Redis = redisClient
	}
	return rt, nil
}

// Close releases redis before the database. Safe on a nil or partial Runtime.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	var err error
	if rt.Redis != nil {
		err = multierr.Append(err, rt.Redis.Close())
	}
	if rt.DB != nil {
		err = multierr.Append(err, rt.DB.Close())
	}
	return err
}

// Components wires the billing services on top of the runtime connections.
func (rt *Runtime) Components(ctx context.Context, params Params) (*Components, error) {
	params.Config = rt.Config
	params.Logger = rt.Logger
	params.DB = rt.DB
	params.Redis = rt.Redis
	return New(ctx, params)
}

// Serve runs srv until ctx ends, then shuts it down within grace.
func Serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
