package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dealshub/dealshub-go/internal/errors"
)

const (
	testSecret = "super-secret-jwt-token-with-at-least-32-characters"
	testIssuer = "http://localhost:54321/auth/v1"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func claimsFor(sub string, exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   sub,
		"email": "shopper@example.com",
		"aud":   DefaultAudience,
		"iss":   testIssuer,
		"role":  "authenticated",
		"exp":   exp.Unix(),
		"iat":   fixedNow.Add(-time.Minute).Unix(),
		"user_metadata": map[string]any{
			"full_name": "Sam Shopper",
		},
	}
}

func signHS256(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func newHMACVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(context.Background(), VerifierConfig{
		Issuer: testIssuer,
		Secret: testSecret,
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return v
}

func TestNewVerifier_RequiresKeyMaterial(t *testing.T) {
	_, err := NewVerifier(context.Background(), VerifierConfig{Issuer: testIssuer})
	require.Error(t, err)
}

func TestVerifier_HMAC(t *testing.T) {
	v := newHMACVerifier(t)
	exp := fixedNow.Add(time.Hour)

	p, gotExp, err := v.Verify(context.Background(), signHS256(t, claimsFor("u1", exp), testSecret))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "shopper@example.com", p.Email)
	assert.Equal(t, "Sam Shopper", p.Metadata["full_name"])
	assert.Equal(t, exp.Unix(), gotExp.Unix())
}

func TestVerifier_HMACRejects(t *testing.T) {
	v := newHMACVerifier(t)

	wrongAud := claimsFor("u1", fixedNow.Add(time.Hour))
	wrongAud["aud"] = "anon"
	wrongIss := claimsFor("u1", fixedNow.Add(time.Hour))
	wrongIss["iss"] = "https://elsewhere.example.com/auth/v1"
	noExp := claimsFor("u1", fixedNow)
	delete(noExp, "exp")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signHS256(t, claimsFor("u1", fixedNow.Add(time.Hour)), "another-secret")},
		{"expired", signHS256(t, claimsFor("u1", fixedNow.Add(-time.Minute)), testSecret)},
		{"wrong audience", signHS256(t, wrongAud, testSecret)},
		{"wrong issuer", signHS256(t, wrongIss, testSecret)},
		{"missing expiry", signHS256(t, noExp, testSecret)},
		{"missing subject", signHS256(t, claimsFor("", fixedNow.Add(time.Hour)), testSecret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := v.Verify(context.Background(), tt.token)
			require.Error(t, err)
			assert.True(t, apperrors.IsUnauthorized(err), "got %v", err)
		})
	}
}

func TestVerifier_HMACRejectsAlgNone(t *testing.T) {
	v := newHMACVerifier(t)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claimsFor("u1", fixedNow.Add(time.Hour))).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = v.Verify(context.Background(), tok)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func jwksServer(t *testing.T, key *rsa.PublicKey, kid string) *httptest.Server {
	t.Helper()
	enc := base64.RawURLEncoding
	body := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   enc.EncodeToString(key.N.Bytes()),
			"e":   enc.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerifier_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := jwksServer(t, &key.PublicKey, "k1")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	v, err := NewVerifier(ctx, VerifierConfig{
		Issuer:  testIssuer,
		JWKSURL: srv.URL,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		exp := fixedNow.Add(time.Hour)
		p, gotExp, err := v.Verify(ctx, signRS256(t, key, "k1", claimsFor("u2", exp)))
		require.NoError(t, err)
		assert.Equal(t, "u2", p.ID)
		assert.Equal(t, "shopper@example.com", p.Email)
		assert.Equal(t, exp.Unix(), gotExp.Unix())
	})

	t.Run("unknown signer", func(t *testing.T) {
		_, _, err := v.Verify(ctx, signRS256(t, other, "k1", claimsFor("u2", fixedNow.Add(time.Hour))))
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("expired", func(t *testing.T) {
		_, _, err := v.Verify(ctx, signRS256(t, key, "k1", claimsFor("u2", fixedNow.Add(-time.Hour))))
		assert.True(t, apperrors.IsUnauthorized(err))
	})

	t.Run("hmac token is refused", func(t *testing.T) {
		_, _, err := v.Verify(ctx, signHS256(t, claimsFor("u2", fixedNow.Add(time.Hour)), testSecret))
		assert.True(t, apperrors.IsUnauthorized(err))
	})
}
