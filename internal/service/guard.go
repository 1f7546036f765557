package service

import (
	"log/slog"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	"github.com/dealshub/dealshub-go/internal/identity"
	"github.com/dealshub/dealshub-go/internal/observability/metrics"
	"github.com/dealshub/dealshub-go/internal/observability/statsd"
)

// StateReader is the read side of an identity store.
type StateReader interface {
	State() domainauth.AuthState
}

// Guard decides whether a navigation may proceed. Every call reads the
// current state; nothing is cached between navigations.
type Guard struct {
	reader  StateReader
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewGuard constructs a Guard. A nil reader behaves as a signed-out session.
func NewGuard(reader StateReader, logger *slog.Logger, sink statsd.Sink) *Guard {
	if reader == nil {
		reader = identity.Anonymous{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{reader: reader, logger: logger, metrics: sink}
}

// CheckAccess evaluates the current state against required. It fails closed:
// a panic while reading or evaluating the state redirects to the login page.
func (g *Guard) CheckAccess(required domainauth.RequiredRole) (decision domainauth.Decision) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("access check panicked", "required", required, "panic", r)
			decision = domainauth.Redirect(domainauth.LoginPath)
		}
		metrics.EmitGuardDecision(g.metrics, string(required), decision.Allowed, decision.RedirectTo)
	}()

	return Evaluate(g.reader.State(), required)
}

// Evaluate is the pure access rule:
//
//	not authenticated             -> /auth
//	malformed profile             -> /auth
//	admin required, not an admin  -> /
//	unknown requirement           -> /auth
func Evaluate(state domainauth.AuthState, required domainauth.RequiredRole) domainauth.Decision {
	if !state.IsAuthenticated {
		return domainauth.Redirect(domainauth.LoginPath)
	}
	if err := state.CurrentUser.Validate(); err != nil {
		return domainauth.Redirect(domainauth.LoginPath)
	}

	switch required {
	case domainauth.RequireAdmin:
		if !state.IsAdmin() {
			return domainauth.Redirect(domainauth.HomePath)
		}
		return domainauth.Allow()
	case domainauth.RequireAuthenticated:
		return domainauth.Allow()
	default:
		return domainauth.Redirect(domainauth.LoginPath)
	}
}
