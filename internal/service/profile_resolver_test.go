package service

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	mocks "github.com/dealshub/dealshub-go/internal/mocks/auth"
	"github.com/dealshub/dealshub-go/internal/observability/statsd"
)

// sleepRecorder replaces real waits and remembers the requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestResolver(t *testing.T, repo *mocks.MemoryProfiles, sleeper *sleepRecorder, sink statsd.Sink) *ProfileResolver {
	t.Helper()
	policy := DefaultProfileRetryPolicy()
	policy.Sleep = sleeper.Sleep
	r, err := NewProfileResolver(ProfileResolverOptions{
		Profiles: repo,
		Retry:    policy,
		Metrics:  sink,
	})
	require.NoError(t, err)
	return r
}

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, 0, len(v))
	for _, n := range v {
		out = append(out, time.Duration(n)*time.Millisecond)
	}
	return out
}

func TestNewProfileResolver_RequiresRepository(t *testing.T) {
	_, err := NewProfileResolver(ProfileResolverOptions{})
	assert.ErrorIs(t, err, ErrProfileRepositoryRequired)
}

func TestProfileResolver_Found(t *testing.T) {
	repo := mocks.NewMemoryProfiles()
	repo.Put(domainauth.ProfileRow{ID: "u2", FullName: "Ann", Email: "ann@x.io"}, " Admin ", "user")
	sleeper := &sleepRecorder{}
	rec := &statsd.Recorder{}

	profile, outcome := newTestResolver(t, repo, sleeper, rec).
		Resolve(context.Background(), domainauth.Principal{ID: "u2", Email: "ann@x.io"})

	assert.True(t, outcome.Found)
	assert.False(t, outcome.Fallback)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "Ann", profile.DisplayName)
	assert.Equal(t, domainauth.RoleSet{"admin", "user"}, profile.Roles)
	assert.False(t, profile.Degraded)
	assert.Empty(t, sleeper.Delays())

	got := rec.Named("identity.resolve")
	require.Len(t, got, 1)
	assert.Equal(t, "success", got[0].Tags["result"])
}

func TestProfileResolver_PollsUntilRowAppears(t *testing.T) {
	repo := mocks.NewMemoryProfiles()
	repo.Put(domainauth.ProfileRow{ID: "u3", FullName: "New User"})
	repo.AppearAfter("u3", 3)
	sleeper := &sleepRecorder{}

	profile, outcome := newTestResolver(t, repo, sleeper, nil).
		Resolve(context.Background(), domainauth.Principal{ID: "u3", Email: "new@x.io"})

	assert.True(t, outcome.Found)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, ms(500, 1000), sleeper.Delays())
	assert.Equal(t, "New User", profile.DisplayName)
	assert.Equal(t, "new@x.io", profile.Email)
	assert.Equal(t, domainauth.RoleSet{"user"}, profile.Roles, "no role rows defaults to user")
}

func TestProfileResolver_NeverAppears(t *testing.T) {
	repo := mocks.NewMemoryProfiles()
	sleeper := &sleepRecorder{}
	rec := &statsd.Recorder{}

	profile, outcome := newTestResolver(t, repo, sleeper, rec).
		Resolve(context.Background(), domainauth.Principal{ID: "u4", Email: "ghost@x.io"})

	assert.True(t, outcome.Fallback)
	assert.Equal(t, 5, outcome.Attempts)
	assert.Equal(t, 5, repo.FetchCalls("u4"))
	assert.Equal(t, ms(500, 1000, 1500, 2000, 2500), sleeper.Delays())
	assert.True(t, apperrors.IsNotFound(outcome.Reason))

	assert.Equal(t, "u4", profile.ID)
	assert.Equal(t, "ghost@x.io", profile.DisplayName)
	assert.Equal(t, domainauth.RoleSet{"user"}, profile.Roles)
	assert.True(t, profile.Degraded)

	got := rec.Named("identity.resolve")
	require.Len(t, got, 1)
	assert.Equal(t, "fallback", got[0].Tags["result"])
}

func TestProfileResolver_NetworkErrorFallsBackImmediately(t *testing.T) {
	repo := mocks.NewMemoryProfiles()
	repo.FetchErr = apperrors.Network(&net.OpError{Op: "dial", Err: errors.New("connection refused")}, "fetch profile")
	sleeper := &sleepRecorder{}

	profile, outcome := newTestResolver(t, repo, sleeper, nil).
		Resolve(context.Background(), domainauth.Principal{ID: "u1", Email: "a@b.com"})

	assert.True(t, outcome.Fallback)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Empty(t, sleeper.Delays())
	assert.Equal(t, apperrors.ErrCodeNetwork, apperrors.Kind(outcome.Reason))

	assert.Equal(t, domainauth.UserProfile{
		ID:          "u1",
		DisplayName: "a@b.com",
		Email:       "a@b.com",
		Roles:       domainauth.RoleSet{"user"},
		Degraded:    true,
	}, profile)
	state := domainauth.AuthenticatedState(profile)
	assert.True(t, state.IsAuthenticated)
	assert.False(t, state.IsAdmin())
}

func TestProfileResolver_FallbackUsesMetadataName(t *testing.T) {
	repo := mocks.NewMemoryProfiles()
	repo.FetchErr = errors.New("boom")
	extractor, err := NewDisplayNameExtractor("", nil)
	require.NoError(t, err)

	r, err := NewProfileResolver(ProfileResolverOptions{
		Profiles:    repo,
		DisplayName: extractor,
		Retry:       RetryPolicy{MaxAttempts: 1, Sleep: (&sleepRecorder{}).Sleep},
	})
	require.NoError(t, err)

	profile, outcome := r.Resolve(context.Background(), domainauth.Principal{
		ID: "u5", Email: "e@x.io", Metadata: map[string]any{"full_name": "Eve"},
	})
	assert.True(t, outcome.Fallback)
	assert.Equal(t, "Eve", profile.DisplayName)
}

func TestProfileResolver_RoleFetchFailureDefaultsToUser(t *testing.T) {
	repo := mocks.NewMemoryProfiles()
	repo.Put(domainauth.ProfileRow{ID: "u6", FullName: "Rita"}, "admin")
	repo.RolesErr = apperrors.Network(errors.New("reset"), "fetch roles")

	profile, outcome := newTestResolver(t, repo, &sleepRecorder{}, nil).
		Resolve(context.Background(), domainauth.Principal{ID: "u6"})

	assert.True(t, outcome.Found)
	assert.Equal(t, domainauth.RoleSet{"user"}, profile.Roles)
}

func TestProfileResolver_CanceledContextStopsPolling(t *testing.T) {
	repo := mocks.NewMemoryProfiles()
	sleeper := &sleepRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, outcome := newTestResolver(t, repo, sleeper, nil).Resolve(ctx, domainauth.Principal{ID: "u7"})

	assert.True(t, outcome.Fallback)
	assert.Equal(t, 1, outcome.Attempts)
	assert.ErrorIs(t, outcome.Reason, context.Canceled)
}
