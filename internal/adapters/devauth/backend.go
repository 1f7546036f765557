package devauth

// Package devauth provides a config-driven, in-memory auth backend for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/ports"
)

// Config controls the dev backend behavior.
// UserID and Email are required. An empty Password accepts any password.
type Config struct {
	UserID          string
	Email           string
	FullName        string
	Password        string
	Roles           []string
	SessionDuration time.Duration // default 1h when zero
}

type devUser struct {
	principal domainauth.Principal
	password  string
	profile   domainauth.ProfileRow
	roles     []string
}

type devToken struct {
	userID    string
	expiresAt time.Time
}

// Backend implements ports.Authenticator and the profile ports in memory.
// Sign-up creates the profile row immediately, like the database trigger does.
type Backend struct {
	sessionDuration time.Duration
	defaultID       string

	mu      sync.Mutex
	users   map[string]*devUser // by id
	byEmail map[string]string
	access  map[string]devToken
	refresh map[string]string // refresh token -> user id
}

var (
	_ ports.Authenticator     = (*Backend)(nil)
	_ ports.ProfileRepository = (*Backend)(nil)
	_ ports.ProfileWriter     = (*Backend)(nil)
)

// NewBackend constructs a dev backend seeded with the configured user.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = time.Hour
	}

	b := &Backend{
		sessionDuration: dur,
		defaultID:       cfg.UserID,
		users:           make(map[string]*devUser),
		byEmail:         make(map[string]string),
		access:          make(map[string]devToken),
		refresh:         make(map[string]string),
	}
	b.addUserLocked(cfg.UserID, cfg.Email, cfg.Password, cfg.FullName, cfg.Roles)
	return b, nil
}

func (b *Backend) SignInWithPassword(_ context.Context, email, password string) (*domainauth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, apperrors.AuthBackend("invalid login credentials")
	}
	u := b.users[id]
	if u.password != "" && u.password != password {
		return nil, apperrors.AuthBackend("invalid login credentials")
	}
	return b.issueLocked(u)
}

func (b *Backend) SignUp(_ context.Context, in ports.SignUpInput) (*domainauth.Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, apperrors.ValidationField("email", "email is required")
	}
	if len(in.Password) < 6 {
		return nil, apperrors.ValidationField("password", "password must be at least 6 characters")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byEmail[email]; exists {
		return nil, apperrors.AuthBackend("user already registered")
	}
	u := b.addUserLocked(uuid.NewString(), email, in.Password, in.FullName, nil)
	return b.issueLocked(u)
}

// AuthorizeURL skips the provider and points straight back at the callback.
func (b *Backend) AuthorizeURL(_ context.Context, in ports.AuthorizeInput) (ports.AuthorizeResult, error) {
	if in.Provider == "" {
		return ports.AuthorizeResult{}, apperrors.ValidationField("provider", "provider is required")
	}
	target := in.RedirectURL
	if target == "" {
		target = "/auth/callback"
	}
	u, err := url.Parse(target)
	if err != nil {
		return ports.AuthorizeResult{}, apperrors.ValidationField("redirect_url", "invalid redirect url")
	}
	q := u.Query()
	q.Set("code", "dev-"+in.Provider)
	u.RawQuery = q.Encode()

	return ports.AuthorizeResult{URL: u.String(), Verifier: oauth2.GenerateVerifier()}, nil
}

// ExchangeCode signs in the configured user for any dev code.
func (b *Backend) ExchangeCode(_ context.Context, code, verifier string) (*domainauth.Session, error) {
	if !strings.HasPrefix(code, "dev-") || verifier == "" {
		return nil, apperrors.AuthBackend("invalid flow state, no valid flow state found")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.issueLocked(b.users[b.defaultID])
}

func (b *Backend) RefreshSession(_ context.Context, refreshToken string) (*domainauth.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, ok := b.refresh[refreshToken]
	if !ok {
		return nil, apperrors.AuthBackend("invalid refresh token: refresh token not found")
	}
	delete(b.refresh, refreshToken)
	return b.issueLocked(b.users[id])
}

func (b *Backend) SignOut(_ context.Context, accessToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tok, ok := b.access[accessToken]
	if !ok {
		return nil
	}
	for rt, id := range b.refresh {
		if id == tok.userID {
			delete(b.refresh, rt)
		}
	}
	for at, t := range b.access {
		if t.userID == tok.userID {
			delete(b.access, at)
		}
	}
	return nil
}

func (b *Backend) UpdateUser(_ context.Context, accessToken string, data map[string]any) (domainauth.Principal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.userForTokenLocked(accessToken)
	if err != nil {
		return domainauth.Principal{}, err
	}
	if u.principal.Metadata == nil {
		u.principal.Metadata = map[string]any{}
	}
	maps.Copy(u.principal.Metadata, data)
	return u.principal.Clone(), nil
}

func (b *Backend) FetchProfileByID(_ context.Context, id string) (domainauth.ProfileRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[id]
	if !ok {
		return domainauth.ProfileRow{}, apperrors.NotFoundf("profile %s not found", id)
	}
	return u.profile, nil
}

func (b *Backend) FetchRolesByUserID(_ context.Context, id string) ([]domainauth.RoleRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[id]
	if !ok {
		return nil, nil
	}
	out := make([]domainauth.RoleRow, 0, len(u.roles))
	for _, r := range u.roles {
		out = append(out, domainauth.RoleRow{Name: r})
	}
	return out, nil
}

func (b *Backend) UpdateProfile(_ context.Context, id string, upd domainauth.ProfileUpdate) (domainauth.ProfileRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[id]
	if !ok {
		return domainauth.ProfileRow{}, apperrors.NotFoundf("profile %s not found", id)
	}
	if upd.FullName != nil {
		u.profile.FullName = *upd.FullName
	}
	if upd.AvatarURL != nil {
		u.profile.AvatarURL = *upd.AvatarURL
	}
	u.profile.UpdatedAt = time.Now().UTC()
	return u.profile, nil
}

// GrantRole adds a role to a user. Used by tests and the dev seed.
func (b *Backend) GrantRole(id, role string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[id]
	if !ok {
		return apperrors.NotFoundf("user %s not found", id)
	}
	if !slices.Contains(u.roles, role) {
		u.roles = append(u.roles, role)
	}
	return nil
}

func (b *Backend) addUserLocked(id, email, password, fullName string, roles []string) *devUser {
	now := time.Now().UTC()
	meta := map[string]any{}
	if fullName != "" {
		meta["full_name"] = fullName
	}
	u := &devUser{
		principal: domainauth.Principal{ID: id, Email: normalizeEmail(email), Metadata: meta},
		password:  password,
		profile: domainauth.ProfileRow{
			ID:        id,
			FullName:  fullName,
			Email:     normalizeEmail(email),
			CreatedAt: now,
			UpdatedAt: now,
		},
		roles: slices.Clone(roles),
	}
	b.users[id] = u
	b.byEmail[u.principal.Email] = id
	return u
}

func (b *Backend) issueLocked(u *devUser) (*domainauth.Session, error) {
	access, err := randomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := randomString(24)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	expires := time.Now().Add(b.sessionDuration)
	b.access[access] = devToken{userID: u.principal.ID, expiresAt: expires}
	b.refresh[refresh] = u.principal.ID

	return &domainauth.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expires,
		User:         u.principal.Clone(),
	}, nil
}

func (b *Backend) userForTokenLocked(accessToken string) (*devUser, error) {
	tok, ok := b.access[accessToken]
	if !ok || time.Now().After(tok.expiresAt) {
		return nil, apperrors.AuthBackend("invalid JWT: token is expired or unknown")
	}
	return b.users[tok.userID], nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < n {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:n], nil
}
