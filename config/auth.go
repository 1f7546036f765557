package config

import (
	"fmt"
	"strings"
)

// AuthMode represents the authentication backend used by the gateway.
type AuthMode string

const (
	// AuthModeSupabase talks to a hosted Supabase project (GoTrue + PostgREST).
	AuthModeSupabase AuthMode = "supabase"
	// AuthModeMock uses an in-memory dev backend (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "supabase", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: supabase, mock)", v)
	}
}

// ProfileSource selects where profile rows and role memberships are read from.
type ProfileSource string

const (
	// ProfileSourceREST reads profiles through PostgREST with the user's access token.
	ProfileSourceREST ProfileSource = "rest"
	// ProfileSourcePostgres reads profiles directly from Postgres with a service connection.
	ProfileSourcePostgres ProfileSource = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for ProfileSource.
func (p *ProfileSource) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "rest", "postgres":
		*p = ProfileSource(v)
		return nil
	default:
		return fmt.Errorf("invalid ProfileSource: %q (valid options: rest, postgres)", v)
	}
}

// SupabaseConfig contains the hosted backend project settings.
type SupabaseConfig struct {
	URL            string `env:"URL"              envDefault:"http://localhost:54321"`
	AnonKey        string `env:"ANON_KEY"`
	ServiceRoleKey string `env:"SERVICE_ROLE_KEY"`
	// JWTSecret verifies HS256 access tokens locally. Leave empty to use JWKSURL.
	JWTSecret string `env:"JWT_SECRET"`
	// JWKSURL verifies asymmetric access tokens against the project's key set.
	JWKSURL string `env:"JWKS_URL"`
	// OAuthRedirectURL is where the provider sends the browser after OAuth sign-in.
	OAuthRedirectURL string `env:"OAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID   string   `env:"USER_ID"   envDefault:"dev-user"`
	Email    string   `env:"EMAIL"     envDefault:"dev@example.com"`
	FullName string   `env:"FULL_NAME" envDefault:"Dev User"`
	Password string   `env:"PASSWORD"  envDefault:"dev"`
	Roles    []string `env:"ROLES"     envDefault:"admin"    envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication backend to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"supabase"`

	// ProfileSource selects the profile repository.
	ProfileSource ProfileSource `env:"PROFILE_SOURCE" envDefault:"rest"`

	// Supabase configuration (used when Mode=supabase).
	Supabase SupabaseConfig `envPrefix:"SUPABASE_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// RoleAliases renames backend roles after normalization, e.g.
	// AUTH_ROLE_ALIASES="platform-admins:admin,mods:moderator".
	RoleAliases map[string]string `env:"AUTH_ROLE_ALIASES"`
}

// Sanitize trims backend settings.
func (c *AuthConfig) Sanitize() {
	c.Supabase.URL = strings.TrimRight(strings.TrimSpace(c.Supabase.URL), "/")
	c.Supabase.AnonKey = strings.TrimSpace(c.Supabase.AnonKey)
	c.Supabase.ServiceRoleKey = strings.TrimSpace(c.Supabase.ServiceRoleKey)
	c.Supabase.JWKSURL = strings.TrimSpace(c.Supabase.JWKSURL)
	if c.Supabase.JWKSURL == "" && c.Supabase.JWTSecret == "" && c.Supabase.URL != "" {
		c.Supabase.JWKSURL = c.Supabase.URL + "/auth/v1/.well-known/jwks.json"
	}
}

// Validate reports settings the selected mode cannot start without.
func (c *AuthConfig) Validate() error {
	if c.Mode != AuthModeSupabase {
		return nil
	}
	if c.Supabase.URL == "" {
		return fmt.Errorf("SUPABASE_URL is required when AUTH_MODE=%s", c.Mode)
	}
	if c.Supabase.AnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY is required when AUTH_MODE=%s", c.Mode)
	}
	return nil
}
