package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
)

// AuthBackend is the one-shot session surface of the hosted auth backend.
type AuthBackend interface {
	// GetSession returns the current session, or nil when nobody is signed in.
	GetSession(ctx context.Context) (*domainauth.Session, error)
	// SignOut ends the backend session. The signed-out notification arrives on the event stream.
	SignOut(ctx context.Context) error
}

// AuthEventSource delivers auth-change notifications serially.
type AuthEventSource interface {
	// Subscribe registers a persistent subscription. The channel is closed when ctx ends.
	Subscribe(ctx context.Context) (<-chan domainauth.AuthEvent, error)
}

// ProfileRepository reads profile rows and role memberships.
type ProfileRepository interface {
	// FetchProfileByID returns an apperrors NotFound error when the row does not exist.
	FetchProfileByID(ctx context.Context, id string) (domainauth.ProfileRow, error)
	FetchRolesByUserID(ctx context.Context, id string) ([]domainauth.RoleRow, error)
}

// ProfileWriter updates editable profile fields.
type ProfileWriter interface {
	UpdateProfile(ctx context.Context, id string, upd domainauth.ProfileUpdate) (domainauth.ProfileRow, error)
}

// RoleMapper maps role membership rows to a normalized role set.
type RoleMapper interface {
	Map(rows []domainauth.RoleRow) domainauth.RoleSet
}

// SessionStore persists and retrieves browser sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.BrowserSession) error
	Get(ctx context.Context, id string) (domainauth.BrowserSession, error)
	Delete(ctx context.Context, id string) error
}

// SessionLister enumerates persisted browser sessions (operator tooling).
type SessionLister interface {
	List(ctx context.Context) ([]domainauth.BrowserSession, error)
}

// TokenVerifier validates a backend access token and returns its principal and expiry.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (domainauth.Principal, time.Time, error)
}

// SignUpInput groups parameters for creating an account.
type SignUpInput struct {
	Email    string
	Password string
	FullName string
}

// AuthorizeInput groups parameters for starting an OAuth sign-in.
type AuthorizeInput struct {
	Provider    string
	RedirectURL string
}

// AuthorizeResult carries the provider URL and the PKCE verifier to keep until the callback.
type AuthorizeResult struct {
	URL      string
	Verifier string
}

// Authenticator runs credential flows against the auth backend.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domainauth.Session, error)
	// SignUp returns a nil session when the backend requires email confirmation.
	SignUp(ctx context.Context, in SignUpInput) (*domainauth.Session, error)
	AuthorizeURL(ctx context.Context, in AuthorizeInput) (AuthorizeResult, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*domainauth.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*domainauth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	UpdateUser(ctx context.Context, accessToken string, data map[string]any) (domainauth.Principal, error)
}

// ContextTokenSource is an oauth2.TokenSource that can honor a caller's
// context, e.g. when producing the token requires a refresh round trip.
type ContextTokenSource interface {
	TokenContext(ctx context.Context) (*oauth2.Token, error)
}

// RemoteAuthEvent is an auth event exchanged between gateway instances.
type RemoteAuthEvent struct {
	Origin           string               `json:"origin"`
	BrowserSessionID string               `json:"browser_session_id,omitempty"`
	UserID           string               `json:"user_id"`
	Event            domainauth.EventType `json:"event"`
	OccurredAt       time.Time            `json:"occurred_at"`
}

// EventPublisher announces auth events to other gateway instances.
type EventPublisher interface {
	Publish(ctx context.Context, ev RemoteAuthEvent) error
}

// EventBus publishes and receives cross-instance auth events.
type EventBus interface {
	EventPublisher
	// Listen blocks, invoking handle for every event, until ctx ends.
	Listen(ctx context.Context, handle func(context.Context, RemoteAuthEvent)) error
}
