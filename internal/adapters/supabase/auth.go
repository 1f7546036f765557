package supabase

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/oauth2"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/ports"
)

var _ ports.Authenticator = (*Client)(nil)

// sessionBody is the GoTrue token response.
type sessionBody struct {
	AccessToken  string         `json:"access_token"  mapstructure:"access_token"`
	TokenType    string         `json:"token_type"    mapstructure:"token_type"`
	ExpiresIn    int64          `json:"expires_in"    mapstructure:"expires_in"`
	ExpiresAt    int64          `json:"expires_at"    mapstructure:"expires_at"`
	RefreshToken string         `json:"refresh_token" mapstructure:"refresh_token"`
	User         map[string]any `json:"user"          mapstructure:"user"`
}

// userBody is the subset of the GoTrue user object the gateway keeps.
type userBody struct {
	ID           string         `mapstructure:"id"`
	Email        string         `mapstructure:"email"`
	UserMetadata map[string]any `mapstructure:"user_metadata"`
}

func decodePrincipal(raw map[string]any) (domainauth.Principal, error) {
	var u userBody
	if err := mapstructure.Decode(raw, &u); err != nil {
		return domainauth.Principal{}, apperrors.Wrap(err, apperrors.ErrCodeAuthBackend, "decode user")
	}
	if u.ID == "" {
		return domainauth.Principal{}, apperrors.AuthBackend("user object has no id")
	}
	return domainauth.Principal{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}, nil
}

func (c *Client) toSession(b sessionBody) (*domainauth.Session, error) {
	if b.AccessToken == "" {
		return nil, apperrors.AuthBackend("token response has no access token")
	}
	p, err := decodePrincipal(b.User)
	if err != nil {
		return nil, err
	}
	var exp time.Time
	switch {
	case b.ExpiresAt > 0:
		exp = time.Unix(b.ExpiresAt, 0).UTC()
	case b.ExpiresIn > 0:
		exp = c.now().Add(time.Duration(b.ExpiresIn) * time.Second).UTC()
	}
	return &domainauth.Session{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		TokenType:    b.TokenType,
		ExpiresAt:    exp,
		User:         p,
	}, nil
}

func (c *Client) grant(ctx context.Context, grantType string, body any) (*domainauth.Session, error) {
	var out sessionBody
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return c.toSession(out)
}

// SignInWithPassword signs in with email and password.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domainauth.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.Validation("email and password are required")
	}
	return c.grant(ctx, "password", map[string]string{"email": email, "password": password})
}

// SignUp creates an account. It returns a nil session when the project
// requires email confirmation.
func (c *Client) SignUp(ctx context.Context, in ports.SignUpInput) (*domainauth.Session, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperrors.Validation("email and password are required")
	}
	payload := map[string]any{"email": email, "password": in.Password}
	if name := strings.TrimSpace(in.FullName); name != "" {
		payload["data"] = map[string]any{"full_name": name}
	}

	// The response is a session when auto-confirm is on, otherwise the bare user.
	var out map[string]any
	if err := c.do(ctx, request{method: http.MethodPost, path: authPath + "/signup", body: payload, out: &out}); err != nil {
		return nil, err
	}
	if _, ok := out["access_token"]; !ok {
		return nil, nil
	}
	var sb sessionBody
	if err := mapstructure.Decode(out, &sb); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeAuthBackend, "decode sign-up session")
	}
	return c.toSession(sb)
}

// AuthorizeURL builds the provider redirect for a PKCE OAuth sign-in.
func (c *Client) AuthorizeURL(_ context.Context, in ports.AuthorizeInput) (ports.AuthorizeResult, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return ports.AuthorizeResult{}, apperrors.ValidationField("provider", "provider is required")
	}
	verifier := oauth2.GenerateVerifier()
	q := url.Values{
		"provider":              {provider},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"s256"},
	}
	if in.RedirectURL != "" {
		q.Set("redirect_to", in.RedirectURL)
	}
	return ports.AuthorizeResult{
		URL:      c.endpoint(authPath+"/authorize", q),
		Verifier: verifier,
	}, nil
}

// ExchangeCode completes a PKCE OAuth sign-in.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*domainauth.Session, error) {
	if code == "" || verifier == "" {
		return nil, apperrors.Validation("authorization code and verifier are required")
	}
	return c.grant(ctx, "pkce", map[string]string{"auth_code": code, "code_verifier": verifier})
}

// RefreshSession trades a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*domainauth.Session, error) {
	if refreshToken == "" {
		return nil, apperrors.Unauthorized("no refresh token")
	}
	return c.grant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/logout",
		bearer: accessToken,
	})
}

// GetUser returns the principal behind accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (domainauth.Principal, error) {
	var out map[string]any
	if err := c.do(ctx, request{method: http.MethodGet, path: authPath + "/user", bearer: accessToken, out: &out}); err != nil {
		return domainauth.Principal{}, err
	}
	return decodePrincipal(out)
}

// UpdateUser merges data into the user's metadata.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, data map[string]any) (domainauth.Principal, error) {
	var out map[string]any
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   authPath + "/user",
		bearer: accessToken,
		body:   map[string]any{"data": data},
		out:    &out,
	})
	if err != nil {
		return domainauth.Principal{}, err
	}
	return decodePrincipal(out)
}
