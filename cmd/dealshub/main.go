// Command dealshub runs the Deals Hub session gateway: the auth API the SPA
// talks to, the admin route guard, the cross-instance auth event relay and the
// idle session janitor, selected with SERVICES.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/dealshub/dealshub-go/config"
	"github.com/dealshub/dealshub-go/internal/bootstrap"
)

func main() {
	logger := bootstrap.InitLogger()
	if err := run(context.Background(), logger); err != nil {
		logger.Error("gateway exited", "error", err)
		os.Exit(1) //nolint:forbidigo // non-zero exit for the process supervisor
	}
}

func run(ctx context.Context, logger *slog.Logger) (err error) {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if logger, err = bootstrap.ConfigureLogger(cfg.Observability.Logging, os.Stdout); err != nil {
		return err
	}
	if err := bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting dealshub gateway",
		"auth_mode", cfg.Auth.Mode,
		"profile_source", cfg.Auth.ProfileSource,
		"services", bootstrap.GetEnabledServices(&cfg),
		"dev", cfg.IsDev)

	deps, err := connect(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, deps.close()) }()

	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          deps.db,
		RedisClient: deps.redis,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          deps.db,
		RedisClient: deps.redis,
		Logger:      logger,
	})
}

// infrastructure holds the process-wide connections. db is nil unless the
// profile source or startup migrations need Postgres.
type infrastructure struct {
	db    *sql.DB
	redis redis.UniversalClient
}

func (i infrastructure) close() error {
	var errs []error
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

func connect(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (infrastructure, error) {
	dbCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	var infra infrastructure
	rdb, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		return infra, fmt.Errorf("connect redis: %w", err)
	}
	infra.redis = rdb

	if !cfg.NeedsDatabase() {
		return infra, nil
	}
	if infra.db, err = bootstrap.ConnectDB(dbCfg); err != nil {
		return infra, errors.Join(fmt.Errorf("connect db: %w", err), infra.close())
	}
	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, infra.db, logger); err != nil {
			return infra, errors.Join(err, infra.close())
		}
	}
	return infra, nil
}
