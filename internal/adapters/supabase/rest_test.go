package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
)

type failingSource struct{ err error }

func (f failingSource) Token() (*oauth2.Token, error) { return nil, f.err }

func userToken(tok string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
}

func TestProfiles_FetchProfileByID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/users", r.URL.Path)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("id"))
		assert.Equal(t, pgrstObject, r.Header.Get("Accept"))
		assert.Equal(t, "Bearer at-u1", r.Header.Get("Authorization"))
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":         "u1",
			"full_name":  "Sam Shopper",
			"email":      "shopper@example.com",
			"avatar_url": nil,
			"created_at": "2025-01-02T03:04:05.123456+00:00",
			"updated_at": "2025-01-02T03:04:05.123456+00:00",
		})
	})

	row, err := c.Profiles(userToken("at-u1")).FetchProfileByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Sam Shopper", row.FullName)
	assert.Empty(t, row.AvatarURL)
	assert.Equal(t, 2025, row.CreatedAt.Year())
}

func TestProfiles_FetchProfileNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotAcceptable, map[string]any{
			"code":    "PGRST116",
			"message": "JSON object requested, multiple (or no) rows returned",
		})
	})

	_, err := c.Profiles(userToken("at")).FetchProfileByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProfiles_FetchProfileServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusInternalServerError, map[string]any{"code": "XX000", "message": "boom"})
	})

	_, err := c.Profiles(userToken("at")).FetchProfileByID(context.Background(), "u1")
	assert.True(t, apperrors.IsAuthBackend(err))
}

type ctxKey struct{}

// ctxSource records the context it was asked for a token under.
type ctxSource struct{ seen any }

func (c *ctxSource) Token() (*oauth2.Token, error) { return c.TokenContext(context.Background()) }

func (c *ctxSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	c.seen = ctx.Value(ctxKey{})
	return &oauth2.Token{AccessToken: "at-u1"}, nil
}

func TestProfiles_PassesRequestContextToTokenSource(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-u1", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, []any{})
	})

	src := &ctxSource{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "resolve-u1")
	_, err := c.Profiles(src).FetchRolesByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "resolve-u1", src.seen)
}

func TestProfiles_TokenSourceError(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.Profiles(failingSource{apperrors.Unauthorized("not signed in")}).
		FetchProfileByID(context.Background(), "u1")
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestProfiles_ServiceRoleWhenNoSource(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, []any{})
	})

	roles, err := c.Profiles(nil).FetchRolesByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestProfiles_FetchRolesByUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/user_roles", r.URL.Path)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("user_id"))
		assert.Equal(t, rolesSelect, r.URL.Query().Get("select"))
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"roles": map[string]any{"name": "Admin", "permissions": map[string]any{"all": true}}},
			{"roles": map[string]any{"name": "user"}},
		})
	})

	roles, err := c.Profiles(userToken("at")).FetchRolesByUserID(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "Admin", roles[0].Name)
	assert.Equal(t, true, roles[0].Permissions["all"])
	assert.Equal(t, "user", roles[1].Name)
}

func TestProfiles_UpdateProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.u1", r.URL.Query().Get("id"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"full_name": "New Name"}, body)
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "u1", "full_name": "New Name"})
	})

	name := "New Name"
	row, err := c.Profiles(userToken("at")).UpdateProfile(context.Background(), "u1",
		domainauth.ProfileUpdate{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "New Name", row.FullName)

	_, err = c.Profiles(userToken("at")).UpdateProfile(context.Background(), "u1", domainauth.ProfileUpdate{})
	assert.True(t, apperrors.IsValidation(err))
}
