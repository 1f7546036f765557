package oidc

// Package oidc verifies backend-issued access tokens. Tokens signed with a
// shared secret are checked locally with golang-jwt; asymmetric tokens are
// checked against the project's JWKS with go-oidc.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
)

// DefaultAudience is the audience the backend stamps on user access tokens.
const DefaultAudience = "authenticated"

// VerifierConfig holds configuration for the access-token verifier.
type VerifierConfig struct {
	// Issuer is the token issuer, usually <project-url>/auth/v1.
	Issuer string
	// Audience defaults to DefaultAudience.
	Audience string
	// Secret enables HS256 verification. Takes precedence over JWKSURL.
	Secret string
	// JWKSURL is the remote key set used when Secret is empty.
	JWKSURL string
	// Leeway tolerated on exp/nbf checks.
	Leeway time.Duration
	Now    func() time.Time
}

// Verifier implements ports.TokenVerifier.
type Verifier struct {
	issuer   string
	audience string
	secret   []byte
	leeway   time.Duration
	now      func() time.Time

	jwks *gooidc.IDTokenVerifier
}

// tokenClaims is the subset of access-token claims the gateway reads.
type tokenClaims struct {
	Subject      string         `mapstructure:"sub"`
	Email        string         `mapstructure:"email"`
	Role         string         `mapstructure:"role"`
	UserMetadata map[string]any `mapstructure:"user_metadata"`
}

// NewVerifier creates a verifier. ctx bounds the lifetime of the remote key set.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.Secret == "" && cfg.JWKSURL == "" {
		return nil, errors.New("either a JWT secret or a JWKS URL is required")
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	v := &Verifier{
		issuer:   strings.TrimRight(cfg.Issuer, "/"),
		audience: cfg.Audience,
		leeway:   cfg.Leeway,
		now:      cfg.Now,
	}
	if cfg.Secret != "" {
		v.secret = []byte(cfg.Secret)
		return v, nil
	}

	keySet := gooidc.NewRemoteKeySet(ctx, cfg.JWKSURL)
	v.jwks = gooidc.NewVerifier(v.issuer, keySet, &gooidc.Config{
		ClientID:             v.audience,
		SupportedSigningAlgs: []string{gooidc.RS256, gooidc.ES256},
		SkipIssuerCheck:      v.issuer == "",
		Now:                  v.now,
	})
	return v, nil
}

// Verify validates accessToken and returns its principal and expiry.
// Every rejection is reported as an Unauthorized error.
func (v *Verifier) Verify(ctx context.Context, accessToken string) (domainauth.Principal, time.Time, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return domainauth.Principal{}, time.Time{}, apperrors.Unauthorized("missing access token")
	}

	var (
		raw    map[string]any
		expiry time.Time
		err    error
	)
	if v.secret != nil {
		raw, expiry, err = v.verifyHMAC(accessToken)
	} else {
		raw, expiry, err = v.verifyJWKS(ctx, accessToken)
	}
	if err != nil {
		return domainauth.Principal{}, time.Time{}, err
	}

	var claims tokenClaims
	if err := mapstructure.Decode(raw, &claims); err != nil {
		return domainauth.Principal{}, time.Time{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "malformed token claims")
	}
	if claims.Subject == "" {
		return domainauth.Principal{}, time.Time{}, apperrors.Unauthorized("token has no subject")
	}
	return domainauth.Principal{
		ID:       claims.Subject,
		Email:    claims.Email,
		Metadata: claims.UserMetadata,
	}, expiry, nil
}

func (v *Verifier) verifyHMAC(accessToken string) (map[string]any, time.Time, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, time.Time{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "invalid access token")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, time.Time{}, apperrors.Unauthorized("invalid access token expiry")
	}
	return claims, exp.Time, nil
}

func (v *Verifier) verifyJWKS(ctx context.Context, accessToken string) (map[string]any, time.Time, error) {
	tok, err := v.jwks.Verify(ctx, accessToken)
	if err != nil {
		var expired *gooidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, time.Time{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "access token expired")
		}
		return nil, time.Time{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "invalid access token")
	}
	var raw map[string]any
	if err := tok.Claims(&raw); err != nil {
		return nil, time.Time{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, fmt.Sprintf("decode claims for %s", tok.Subject))
	}
	return raw, tok.Expiry, nil
}
