package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	"github.com/dealshub/dealshub-go/internal/ports"
	"github.com/dealshub/dealshub-go/internal/service"
)

// TokenProfileResolver resolves the profile of a verified bearer caller,
// reading it on behalf of the caller's access token.
type TokenProfileResolver interface {
	Resolve(ctx context.Context, accessToken string, p domainauth.Principal) (domainauth.UserProfile, service.ResolveOutcome)
}

// BearerConfig wires token-authenticated API access.
type BearerConfig struct {
	Verifier ports.TokenVerifier
	Resolver TokenProfileResolver
	Logger   *slog.Logger
}

// RequireBearer authenticates the request from its Authorization header,
// resolves the caller's profile and applies the same decision rules as the
// session guard. The resolved profile is stored in the request context.
func RequireBearer(cfg BearerConfig, required domainauth.RequiredRole) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="dealshub"`)
				deny(w, r, domainauth.Redirect(domainauth.LoginPath))
				return
			}

			principal, _, err := cfg.Verifier.Verify(r.Context(), token)
			if err != nil {
				logger.DebugContext(r.Context(), "bearer token rejected", "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer realm="dealshub", error="invalid_token"`)
				deny(w, r, domainauth.Redirect(domainauth.LoginPath))
				return
			}

			profile, _ := cfg.Resolver.Resolve(r.Context(), token, principal)
			decision := service.Evaluate(domainauth.AuthenticatedState(profile), required)
			if !decision.Allowed {
				deny(w, r, decision)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetProfileInContext(r.Context(), profile)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

var (
	errNoProfile = errors.New("no authenticated profile")
	errNotFound  = errors.New("not found")
)
