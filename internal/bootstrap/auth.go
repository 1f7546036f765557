package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/dealshub/dealshub-go/config"
	"github.com/dealshub/dealshub-go/internal/adapters/authroles"
	"github.com/dealshub/dealshub-go/internal/adapters/devauth"
	"github.com/dealshub/dealshub-go/internal/adapters/oidc"
	"github.com/dealshub/dealshub-go/internal/adapters/supabase"
	"github.com/dealshub/dealshub-go/internal/data"
	"github.com/dealshub/dealshub-go/internal/observability/statsd"
	"github.com/dealshub/dealshub-go/internal/ports"
	"github.com/dealshub/dealshub-go/internal/service"
)

const tokenLeeway = 30 * time.Second

// ErrDatabaseRequired is returned when PROFILE_SOURCE=postgres but no database is connected.
var ErrDatabaseRequired = errors.New("profile source postgres requires a database connection")

// AuthConfig contains the inputs for wiring the auth backend.
type AuthConfig struct {
	Auth       config.AuthConfig
	Sync       config.SyncConfig
	DB         *sql.DB
	HTTPClient *http.Client
	Metrics    statsd.Sink
	Logger     *slog.Logger
}

// AuthComponents is the auth backend wiring shared by every browser session.
type AuthComponents struct {
	Authenticator ports.Authenticator
	Profiles      service.ProfilesFunc
	Roles         ports.RoleMapper
	DisplayName   *service.DisplayNameExtractor
	Retry         service.RetryPolicy
	// Verifier and BearerResolver back the /api/v1 bearer routes. Both are nil
	// when the backend issues no verifiable tokens.
	Verifier       ports.TokenVerifier
	BearerResolver *service.BearerResolver
}

// BuildAuth wires the backend selected by AUTH_MODE and the profile source
// selected by PROFILE_SOURCE.
func BuildAuth(ctx context.Context, cfg AuthConfig) (AuthComponents, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Auth.Validate(); err != nil {
		return AuthComponents{}, err
	}

	displayName, err := service.NewDisplayNameExtractor(cfg.Sync.DisplayNameExpr, nil)
	if err != nil {
		return AuthComponents{}, err
	}
	comp := AuthComponents{
		Roles:       authroles.NewNormalizingRoleMapper(cfg.Auth.RoleAliases),
		DisplayName: displayName,
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.Sync.ProfileMaxAttempts,
			Delay:       service.LinearBackoff(cfg.Sync.ProfileRetryBase),
		},
	}

	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		err = buildDevAuth(cfg.Auth.DevAuth, &comp)
	case config.AuthModeSupabase:
		err = buildSupabase(ctx, cfg, &comp)
	default:
		err = fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
	if err != nil {
		return AuthComponents{}, err
	}

	if cfg.Auth.ProfileSource == config.ProfileSourcePostgres {
		if cfg.DB == nil {
			return AuthComponents{}, ErrDatabaseRequired
		}
		comp.Profiles = service.SharedProfiles(data.NewProfileRepo(cfg.DB))
	}

	if comp.Verifier != nil {
		comp.BearerResolver, err = service.NewBearerResolver(comp.Profiles, service.ProfileResolverOptions{
			Roles:       comp.Roles,
			DisplayName: displayName,
			Logger:      logger,
			Metrics:     cfg.Metrics,
		})
		if err != nil {
			return AuthComponents{}, err
		}
	} else {
		logger.Warn("bearer token routes disabled: backend has no token verifier", "mode", cfg.Auth.Mode)
	}

	logger.Info("auth backend configured",
		"mode", cfg.Auth.Mode,
		"profile_source", cfg.Auth.ProfileSource,
		"profile_retry_schedule", comp.Retry.Schedule(),
		"bearer_enabled", comp.Verifier != nil,
	)
	return comp, nil
}

func buildDevAuth(cfg config.DevAuthConfig, comp *AuthComponents) error {
	dev, err := devauth.NewBackend(devauth.Config{
		UserID:   cfg.UserID,
		Email:    cfg.Email,
		FullName: cfg.FullName,
		Password: cfg.Password,
		Roles:    cfg.Roles,
	})
	if err != nil {
		return fmt.Errorf("create dev auth backend: %w", err)
	}
	comp.Authenticator = dev
	comp.Profiles = service.SharedProfiles(dev)
	return nil
}

func buildSupabase(ctx context.Context, cfg AuthConfig, comp *AuthComponents) error {
	sb := cfg.Auth.Supabase
	client, err := supabase.NewClient(supabase.Config{
		URL:            sb.URL,
		AnonKey:        sb.AnonKey,
		ServiceRoleKey: sb.ServiceRoleKey,
		HTTPClient:     cfg.HTTPClient,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create supabase client: %w", err)
	}
	comp.Authenticator = client
	// Each session reads its own rows with its access token so row-level
	// security applies.
	comp.Profiles = func(ts oauth2.TokenSource) service.ProfileStore { return client.Profiles(ts) }

	verifier, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
		Issuer:  client.URL() + "/auth/v1",
		Secret:  sb.JWTSecret,
		JWKSURL: sb.JWKSURL,
		Leeway:  tokenLeeway,
	})
	if err != nil {
		return fmt.Errorf("create token verifier: %w", err)
	}
	comp.Verifier = verifier
	return nil
}
