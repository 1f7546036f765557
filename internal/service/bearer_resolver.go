package service

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
)

// BearerResolver resolves callers of token-authenticated routes. Every lookup
// reads the caller's rows with the caller's own access token, so row-level
// security sees the same user a browser session would. A missing row falls
// back at once: stateless calls do not poll.
type BearerResolver struct {
	profiles ProfilesFunc
	opts     ProfileResolverOptions
}

// NewBearerResolver constructs a BearerResolver. opts.Profiles and opts.Retry
// are ignored.
func NewBearerResolver(profiles ProfilesFunc, opts ProfileResolverOptions) (*BearerResolver, error) {
	if profiles == nil {
		return nil, errProfilesRequired
	}
	opts.Profiles = nil
	opts.Retry = RetryPolicy{
		MaxAttempts: 1,
		Delay:       func(int) time.Duration { return 0 },
		Sleep:       ContextSleep,
	}
	return &BearerResolver{profiles: profiles, opts: opts}, nil
}

// Resolve returns the profile of the principal the token was issued to.
func (b *BearerResolver) Resolve(ctx context.Context, accessToken string, p domainauth.Principal) (domainauth.UserProfile, ResolveOutcome) {
	opts := b.opts
	opts.Profiles = b.profiles(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	resolver, err := NewProfileResolver(opts)
	if err != nil {
		return domainauth.FallbackProfile(p, opts.DisplayName.Extract(p)), ResolveOutcome{Fallback: true, Reason: err}
	}
	return resolver.Resolve(ctx, p)
}
