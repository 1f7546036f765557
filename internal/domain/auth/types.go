package auth

// Package auth contains domain-level types for authentication, identity and
// authorization decisions. It is free of framework/adapter concerns.

import (
	"maps"
	"time"

	"golang.org/x/oauth2"
)

// Principal is the backend-issued authentication identity.
// The gateway only ever holds a read-only copy.
type Principal struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// Clone returns a copy that does not share the metadata map.
func (p Principal) Clone() Principal {
	p.Metadata = maps.Clone(p.Metadata)
	return p
}

// UserProfile is the application-level identity resolved from a Principal.
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Roles       RoleSet   `json:"roles"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
	// Degraded marks a profile built from Principal fields because the
	// profile row could not be read.
	Degraded bool `json:"degraded,omitempty"`
}

// Clone returns a deep copy of the profile.
func (u UserProfile) Clone() UserProfile {
	u.Roles = u.Roles.Clone()
	return u
}

// Validate reports a profile that cannot be used for authorization.
func (u *UserProfile) Validate() error {
	if u == nil {
		return ErrMalformedProfile
	}
	if u.ID == "" {
		return ErrMalformedProfile
	}
	if u.Roles == nil {
		return ErrMalformedProfile
	}
	return nil
}

// FallbackProfile builds the degraded profile used when the profile row is
// unavailable: display name from the principal, roles {"user"}.
func FallbackProfile(p Principal, displayName string) UserProfile {
	if displayName == "" {
		displayName = p.Email
	}
	if displayName == "" {
		displayName = p.ID
	}
	return UserProfile{
		ID:          p.ID,
		DisplayName: displayName,
		Email:       p.Email,
		Roles:       DefaultRoles(),
		Degraded:    true,
	}
}

// ProfileRow is a row of the users table.
type ProfileRow struct {
	ID        string    `json:"id"         db:"id"`
	FullName  string    `json:"full_name"  db:"full_name"`
	Email     string    `json:"email"      db:"email"`
	AvatarURL string    `json:"avatar_url" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RoleRow is one role membership of a user.
type RoleRow struct {
	Name        string         `json:"name"`
	Permissions map[string]any `json:"permissions,omitempty"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool { return u.FullName == nil && u.AvatarURL == nil }

// Session is the backend session: tokens plus the principal they belong to.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Principal `json:"user"`
}

// HasPrincipal reports whether the session carries an identity.
func (s *Session) HasPrincipal() bool { return s != nil && s.User.ID != "" }

// Expired reports whether the access token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

// NeedsRefresh reports whether the access token expires within leeway of now.
func (s *Session) NeedsRefresh(now time.Time, leeway time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}

// Clone returns a copy that does not share the principal metadata.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = s.User.Clone()
	return &c
}

// BrowserSession is the gateway-side record persisted per browser cookie.
// ID is an opaque identifier stored in the session cookie.
type BrowserSession struct {
	ID      string   `json:"id"`
	Backend *Session `json:"backend,omitempty"`
	// PKCEVerifier holds the code verifier of a pending OAuth sign-in.
	PKCEVerifier string    `json:"pkce_verifier,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// UserID returns the signed-in principal id or "".
func (b BrowserSession) UserID() string {
	if b.Backend == nil {
		return ""
	}
	return b.Backend.User.ID
}

// Token converts the session into an OAuth2 bearer token.
func (s *Session) Token() *oauth2.Token {
	if s == nil {
		return nil
	}
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    tokenType,
		Expiry:       s.ExpiresAt,
	}
}
