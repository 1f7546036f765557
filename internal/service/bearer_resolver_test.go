package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	mocks "github.com/dealshub/dealshub-go/internal/mocks/auth"
)

func TestBearerResolver_UsesCallerToken(t *testing.T) {
	repo := mocks.NewMemoryProfiles()
	repo.Put(domainauth.ProfileRow{ID: "u1", FullName: "Ada"}, "Admin")

	var tokens []string
	profiles := func(ts oauth2.TokenSource) ProfileStore {
		require.NotNil(t, ts)
		tok, err := ts.Token()
		require.NoError(t, err)
		tokens = append(tokens, tok.AccessToken)
		return repo
	}

	r, err := NewBearerResolver(profiles, ProfileResolverOptions{})
	require.NoError(t, err)

	profile, outcome := r.Resolve(context.Background(), "at-u1", domainauth.Principal{ID: "u1"})
	assert.True(t, outcome.Found)
	assert.True(t, profile.Roles.IsAdmin())
	assert.Equal(t, []string{"at-u1"}, tokens)
}

func TestBearerResolver_MissingRowFallsBackAtOnce(t *testing.T) {
	repo := mocks.NewMemoryProfiles()
	r, err := NewBearerResolver(SharedProfiles(repo), ProfileResolverOptions{
		// Ignored: bearer calls never poll.
		Retry: DefaultProfileRetryPolicy(),
	})
	require.NoError(t, err)

	start := time.Now()
	profile, outcome := r.Resolve(context.Background(), "tok", domainauth.Principal{ID: "ghost", Email: "ghost@x.io"})
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, repo.FetchCalls("ghost"))
	assert.True(t, outcome.Fallback)
	assert.Equal(t, "ghost@x.io", profile.DisplayName)
	assert.Equal(t, domainauth.DefaultRoles(), profile.Roles)
}

func TestNewBearerResolver_RequiresProfiles(t *testing.T) {
	_, err := NewBearerResolver(nil, ProfileResolverOptions{})
	require.Error(t, err)
}
