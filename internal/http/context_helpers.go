package httpx

import (
	"context"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	"github.com/dealshub/dealshub-go/internal/service"
)

// Context keys are centralized here so all handlers/middleware use the same ones.
type (
	runtimeKey struct{}
	profileKey struct{}
)

// SetRuntimeInContext returns a child context that carries the browser session runtime.
// If rt is nil, the original ctx is returned unchanged.
func SetRuntimeInContext(ctx context.Context, rt *service.SessionRuntime) context.Context {
	if rt == nil {
		return ctx
	}
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// RuntimeFromContext returns the browser session runtime and whether one is present.
func RuntimeFromContext(ctx context.Context) (*service.SessionRuntime, bool) {
	rt, ok := ctx.Value(runtimeKey{}).(*service.SessionRuntime)
	return rt, ok && rt != nil
}

// SetProfileInContext stores the profile of a bearer-authenticated request.
func SetProfileInContext(ctx context.Context, p domainauth.UserProfile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

// ProfileFromContext returns the bearer-authenticated profile.
func ProfileFromContext(ctx context.Context) (domainauth.UserProfile, bool) {
	p, ok := ctx.Value(profileKey{}).(domainauth.UserProfile)
	return p, ok
}
