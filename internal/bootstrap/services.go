package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dealshub/dealshub-go/config"
	redisadapter "github.com/dealshub/dealshub-go/internal/adapters/redis"
	"github.com/dealshub/dealshub-go/internal/observability/statsd"
	"github.com/dealshub/dealshub-go/internal/service"
)

const (
	sessionKeyPrefix   = "dealshub:session:"
	authEventKeyPrefix = "dealshub:auth:events:"
)

// ServiceContainer holds the gateway's long-lived components.
type ServiceContainer struct {
	Auth          AuthComponents
	Registry      *service.SessionRegistry
	Bus           *redisadapter.EventBus
	Sessions      *redisadapter.SessionStore
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink   statsd.Sink
	MetricsClient *statsd.Client
	MetricsConfig config.MetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// buildObservability configures the metrics adapter.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{MetricsConfig: cfg.Metrics}
	if !cfg.Metrics.IsEnabled() {
		return out
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		return out
	}
	out.MetricsClient = client
	out.MetricsSink = client
	return out
}

// instanceOrigin tags events this process publishes so the relay can skip its own.
func instanceOrigin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "dealshub"
	}
	return host + "-" + uuid.NewString()[:8]
}

// NewServices wires the auth backend, session persistence, and the session registry.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("redis client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)

	auth, err := BuildAuth(ctx, AuthConfig{
		Auth:       cfg.Auth,
		Sync:       cfg.Sync,
		DB:         deps.DB,
		HTTPClient: deps.HTTPClient,
		Metrics:    observability.MetricsSink,
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build auth: %w", err)
	}

	sessions := redisadapter.NewSessionStore(deps.RedisClient, redisadapter.WithKeyPrefix(sessionKeyPrefix))
	bus := redisadapter.NewEventBus(redisadapter.EventBusOptions{
		Client: deps.RedisClient,
		Prefix: authEventKeyPrefix,
		Logger: logger,
	})

	registry, err := service.NewSessionRegistry(service.SessionRegistryOptions{
		Auth:          auth.Authenticator,
		Sessions:      sessions,
		Profiles:      auth.Profiles,
		Roles:         auth.Roles,
		Publisher:     bus,
		Origin:        instanceOrigin(),
		Retry:         auth.Retry,
		DisplayName:   auth.DisplayName,
		MaxSessions:   cfg.Sync.MaxSessions,
		RefreshLeeway: cfg.Sync.RefreshLeeway,
		SessionTTL:    cfg.Sync.SessionTTL,
		Logger:        logger,
		Metrics:       observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build session registry: %w", err)
	}

	logger.InfoContext(ctx, "services initialised",
		"auth_mode", cfg.Auth.Mode,
		"profile_source", cfg.Auth.ProfileSource,
		"origin", registry.Origin(),
		"bearer_routes", auth.Verifier != nil,
	)

	return ServiceContainer{
		Auth:          auth,
		Registry:      registry,
		Bus:           bus,
		Sessions:      sessions,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains dependencies for running the enabled services.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// shutdownWaitTimeout bounds HTTP draining once a stop is requested.
const shutdownWaitTimeout = 15 * time.Second

// serviceUnit is one long-running part of the process. run blocks until ctx
// ends or the unit fails; a clean stop returns nil.
type serviceUnit struct {
	mode config.ServiceMode
	name string
	run  func(ctx context.Context) error
}

func serviceUnits(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []serviceUnit {
	return []serviceUnit{
		{mode: config.ServiceModeHTTP, name: "http server", run: func(ctx context.Context) error {
			return serveHTTP(ctx, newHTTPServer(&HTTPServerConfig{
				Config:      cfg.Config,
				Services:    cfg.Services,
				DB:          cfg.DB,
				RedisClient: cfg.RedisClient,
				Logger:      logger,
			}), logger)
		}},
		{mode: config.ServiceModeEventRelay, name: "event relay", run: func(ctx context.Context) error {
			svc := cfg.Services
			if svc.Bus == nil || svc.Registry == nil {
				return errors.New("event relay requires the event bus and session registry")
			}
			return service.NewEventRelay(svc.Bus, svc.Registry, logger).Run(ctx)
		}},
		{mode: config.ServiceModeSessionJanitor, name: "session janitor", run: func(ctx context.Context) error {
			var idle time.Duration
			if cfg.Config != nil {
				idle = cfg.Config.Sync.IdleTimeout
			}
			janitor, err := service.NewSessionJanitor(service.SessionJanitorOptions{
				Registry: cfg.Services.Registry,
				MaxIdle:  idle,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			return janitor.Run(ctx)
		}},
	}
}

// runUnits starts every enabled unit and waits for all of them. The first
// failure cancels the rest.
func runUnits(ctx context.Context, enabled config.ServiceSet, units []serviceUnit, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range units {
		if !enabled.Has(u.mode) {
			continue
		}
		logger.InfoContext(ctx, "service starting", "service", u.name, "mode", u.mode)
		g.Go(func() error {
			err := u.run(gctx)
			if err != nil && !(errors.Is(err, context.Canceled) && gctx.Err() != nil) {
				return fmt.Errorf("%s failed: %w", u.name, err)
			}
			logger.Info("service stopped", "service", u.name)
			return nil
		})
	}
	return g.Wait()
}

// RunServicesWithShutdown runs the enabled services until SIGINT, SIGTERM or
// the first service failure, then releases shared components. The registry
// closes only after the HTTP server has drained, so no request can acquire a
// session from a closing registry.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config with AppConfig is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := cfg.Config.EnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := runUnits(ctx, enabled, serviceUnits(cfg, logger), logger)
	if runErr != nil {
		logger.Error("service error", "error", runErr)
	} else {
		logger.Info("shutdown requested")
	}
	return errors.Join(runErr, closeServices(cfg.Services, logger))
}

// closeServices releases what NewServices built.
func closeServices(services ServiceContainer, logger *slog.Logger) error {
	var errs []error
	if services.Registry != nil {
		services.Registry.Close()
		logger.Info("session registry closed")
	}
	if client := services.Observability.MetricsClient; client != nil {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statsd client: %w", err))
		}
	}
	return errors.Join(errs...)
}
