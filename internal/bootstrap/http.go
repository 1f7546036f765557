package bootstrap

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dealshub/dealshub-go/config"
	httpx "github.com/dealshub/dealshub-go/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// newHTTPServer builds the gateway server without starting it.
func newHTTPServer(cfg *HTTPServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	closing := make(chan struct{})
	services := routerServices(cfg, appCfg, logger)
	services.Closing = closing

	server := &http.Server{
		Addr:              cmp.Or(appCfg.HTTP.Addr, defaultHTTPAddr),
		Handler:           httpx.NewRouter(services),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: /api/auth/events streams for the life of the tab.
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	server.RegisterOnShutdown(func() { close(closing) })
	return server
}

func routerServices(cfg *HTTPServerConfig, appCfg *config.AppConfig, logger *slog.Logger) httpx.RouterServices {
	services := httpx.RouterServices{
		Cookie: httpx.CookieConfig{
			Domain: appCfg.HTTP.CookieDomain,
			MaxAge: appCfg.Sync.SessionTTL,
		},
		Bearer: httpx.BearerConfig{
			Verifier: cfg.Services.Auth.Verifier,
			Logger:   logger,
		},
		AllowedOrigins:   appCfg.HTTP.AllowedOrigins,
		OAuthRedirectURL: appCfg.Auth.Supabase.OAuthRedirectURL,
		ReadyTimeout:     appCfg.Sync.ReadyTimeout,
		Readiness:        Readiness(cfg.DB, cfg.RedisClient),
		Logger:           logger,
	}
	// Nil pointers must not become non-nil interfaces.
	if cfg.Services.Registry != nil {
		services.Sessions = cfg.Services.Registry
	}
	if cfg.Services.Auth.BearerResolver != nil {
		services.Bearer.Resolver = cfg.Services.Auth.BearerResolver
	}
	if services.Bearer.Verifier == nil {
		logger.Warn("bearer routes disabled: auth backend has no token verifier", "auth_mode", appCfg.Auth.Mode)
	}
	return services
}

const defaultHTTPAddr = ":8080"

// serveHTTP listens until ctx ends, then drains in-flight requests for up to
// shutdownWaitTimeout. Event streams end as soon as shutdown begins.
func serveHTTP(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		listenErr <- server.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	case <-ctx.Done():
	}

	// ctx is already done; draining needs its own deadline.
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownWaitTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return errors.Join(fmt.Errorf("drain http server: %w", err), server.Close())
	}
	logger.Info("http server drained")
	return nil
}
