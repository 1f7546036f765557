package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/identity"
	"github.com/dealshub/dealshub-go/internal/mocks"
	authmocks "github.com/dealshub/dealshub-go/internal/mocks/auth"
	"github.com/dealshub/dealshub-go/internal/ports"
)

var backendNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type backendHarness struct {
	backend  *SessionBackend
	authn    *mocks.MockAuthenticator
	sessions *authmocks.MemorySessionStore
	profiles *authmocks.MemoryProfiles
	bus      *authmocks.MemoryEventBus
	events   <-chan domainauth.AuthEvent
}

func newBackendHarness(t *testing.T) *backendHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &backendHarness{
		authn:    mocks.NewMockAuthenticator(ctrl),
		sessions: authmocks.NewMemorySessionStore(),
		profiles: authmocks.NewMemoryProfiles(),
		bus:      authmocks.NewMemoryEventBus(),
	}

	b, err := NewSessionBackend(SessionBackendOptions{
		ID:        "browser-session-1",
		Auth:      h.authn,
		Sessions:  h.sessions,
		Profiles:  h.profiles,
		Publisher: h.bus,
		Origin:    "instance-a",
		Clock:     func() time.Time { return backendNow },
	})
	require.NoError(t, err)
	h.backend = b

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.events, err = b.Subscribe(ctx)
	require.NoError(t, err)
	return h
}

func (h *backendHarness) seed(t *testing.T, sess *domainauth.Session) {
	t.Helper()
	require.NoError(t, h.sessions.Save(context.Background(), domainauth.BrowserSession{
		ID:      "browser-session-1",
		Backend: sess,
	}))
}

func (h *backendHarness) next(t *testing.T) domainauth.AuthEvent {
	t.Helper()
	select {
	case ev := <-h.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no auth event emitted")
		return domainauth.AuthEvent{}
	}
}

func (h *backendHarness) assertNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

func validSession(id string) *domainauth.Session {
	return &domainauth.Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    backendNow.Add(time.Hour),
		User:         domainauth.Principal{ID: id, Email: id + "@x.io"},
	}
}

func TestNewSessionBackend_Validation(t *testing.T) {
	store := authmocks.NewMemorySessionStore()
	authn := mocks.NewMockAuthenticator(gomock.NewController(t))

	_, err := NewSessionBackend(SessionBackendOptions{Auth: authn, Sessions: store})
	require.Error(t, err)
	_, err = NewSessionBackend(SessionBackendOptions{ID: "x", Sessions: store})
	require.Error(t, err)
	_, err = NewSessionBackend(SessionBackendOptions{ID: "x", Auth: authn})
	require.Error(t, err)
}

func TestSessionBackend_GetSessionEmpty(t *testing.T) {
	h := newBackendHarness(t)
	sess, err := h.backend.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSessionBackend_SignInWithPassword(t *testing.T) {
	h := newBackendHarness(t)
	ctx := context.Background()
	h.authn.EXPECT().SignInWithPassword(gomock.Any(), "u1@x.io", "pw").Return(validSession("u1"), nil)

	sess, err := h.backend.SignInWithPassword(ctx, "u1@x.io", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.User.ID)

	ev := h.next(t)
	assert.Equal(t, domainauth.EventSignedIn, ev.Type)
	assert.Equal(t, "u1", ev.Session.User.ID)

	stored, err := h.sessions.Get(ctx, "browser-session-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID())
	assert.Equal(t, backendNow.Add(defaultSessionTTL), stored.ExpiresAt)
}

func TestSessionBackend_SignInFailure(t *testing.T) {
	h := newBackendHarness(t)
	h.authn.EXPECT().SignInWithPassword(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, apperrors.AuthBackend("invalid login credentials"))

	_, err := h.backend.SignInWithPassword(context.Background(), "u1@x.io", "bad")
	assert.True(t, apperrors.IsAuthBackend(err))
	h.assertNoEvent(t)
}

func TestSessionBackend_GetSessionRefreshesNearExpiry(t *testing.T) {
	h := newBackendHarness(t)
	old := validSession("u1")
	old.ExpiresAt = backendNow.Add(30 * time.Second)
	h.seed(t, old)

	fresh := validSession("u1")
	fresh.AccessToken = "access-2"
	h.authn.EXPECT().RefreshSession(gomock.Any(), "refresh-u1").Return(fresh, nil)

	sess, err := h.backend.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", sess.AccessToken)

	ev := h.next(t)
	assert.Equal(t, domainauth.EventTokenRefreshed, ev.Type)
}

func TestSessionBackend_RejectedRefreshSignsOut(t *testing.T) {
	h := newBackendHarness(t)
	old := validSession("u1")
	old.ExpiresAt = backendNow.Add(-time.Minute)
	h.seed(t, old)
	h.authn.EXPECT().RefreshSession(gomock.Any(), "refresh-u1").
		Return(nil, apperrors.AuthBackend("refresh token not found"))

	sess, err := h.backend.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, domainauth.EventSignedOut, h.next(t).Type)

	stored, err := h.sessions.Get(context.Background(), "browser-session-1")
	require.NoError(t, err)
	assert.Nil(t, stored.Backend)
}

func TestSessionBackend_RefreshNetworkErrorKeepsSession(t *testing.T) {
	h := newBackendHarness(t)
	old := validSession("u1")
	old.ExpiresAt = backendNow.Add(10 * time.Second)
	h.seed(t, old)
	h.authn.EXPECT().RefreshSession(gomock.Any(), gomock.Any()).
		Return(nil, apperrors.Network(errors.New("i/o timeout"), "refresh session"))

	_, err := h.backend.GetSession(context.Background())
	assert.True(t, apperrors.IsNetwork(err))
	h.assertNoEvent(t)

	stored, err := h.sessions.Get(context.Background(), "browser-session-1")
	require.NoError(t, err)
	assert.NotNil(t, stored.Backend)
}

func TestSessionBackend_SignOut(t *testing.T) {
	tests := []struct {
		name        string
		remote      error
		wantCleared bool
		wantEvent   bool
	}{
		{name: "success", wantCleared: true, wantEvent: true},
		{name: "backend rejection", remote: apperrors.AuthBackend("session_not_found"), wantCleared: true, wantEvent: true},
		{name: "network failure", remote: apperrors.Network(errors.New("refused"), "logout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newBackendHarness(t)
			h.seed(t, validSession("u1"))
			h.authn.EXPECT().SignOut(gomock.Any(), "access-u1").Return(tt.remote)

			err := h.backend.SignOut(context.Background())
			if tt.remote != nil {
				assert.ErrorIs(t, err, tt.remote)
			} else {
				assert.NoError(t, err)
			}

			stored, getErr := h.sessions.Get(context.Background(), "browser-session-1")
			require.NoError(t, getErr)
			assert.Equal(t, tt.wantCleared, stored.Backend == nil)

			if tt.wantEvent {
				assert.Equal(t, domainauth.EventSignedOut, h.next(t).Type)
				published := h.bus.Published()
				require.Len(t, published, 1)
				assert.Equal(t, ports.RemoteAuthEvent{
					Origin:           "instance-a",
					BrowserSessionID: "browser-session-1",
					UserID:           "u1",
					Event:            domainauth.EventSignedOut,
					OccurredAt:       backendNow,
				}, published[0])
			} else {
				h.assertNoEvent(t)
				assert.Empty(t, h.bus.Published())
			}
		})
	}
}

func TestSessionBackend_OAuthFlow(t *testing.T) {
	h := newBackendHarness(t)
	ctx := context.Background()

	h.authn.EXPECT().
		AuthorizeURL(gomock.Any(), ports.AuthorizeInput{Provider: "google", RedirectURL: "https://deals.example/auth/callback"}).
		Return(ports.AuthorizeResult{URL: "https://idp.example/authorize", Verifier: "verifier-1"}, nil)
	h.authn.EXPECT().ExchangeCode(gomock.Any(), "code-1", "verifier-1").Return(validSession("u9"), nil)

	url, err := h.backend.BeginOAuth(ctx, "google", "https://deals.example/auth/callback")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example/authorize", url)

	sess, err := h.backend.CompleteOAuth(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "u9", sess.User.ID)
	assert.Equal(t, domainauth.EventSignedIn, h.next(t).Type)

	stored, err := h.sessions.Get(ctx, "browser-session-1")
	require.NoError(t, err)
	assert.Empty(t, stored.PKCEVerifier)
}

func TestSessionBackend_CompleteOAuthWithoutPendingSignIn(t *testing.T) {
	h := newBackendHarness(t)

	_, err := h.backend.CompleteOAuth(context.Background(), "code-1")
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.backend.CompleteOAuth(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestSessionBackend_UpdateProfile(t *testing.T) {
	h := newBackendHarness(t)
	ctx := context.Background()
	h.seed(t, validSession("u1"))
	h.profiles.Put(domainauth.ProfileRow{ID: "u1", FullName: "Old"})
	h.authn.EXPECT().
		UpdateUser(gomock.Any(), "access-u1", map[string]any{"full_name": "New"}).
		Return(domainauth.Principal{}, apperrors.Network(errors.New("reset"), "update user"))

	name := "New"
	row, err := h.backend.UpdateProfile(ctx, domainauth.ProfileUpdate{FullName: &name})
	require.NoError(t, err, "metadata update failures are tolerated")
	assert.Equal(t, "New", row.FullName)

	ev := h.next(t)
	assert.Equal(t, domainauth.EventUserUpdated, ev.Type)
	assert.Equal(t, "u1", ev.Session.User.ID)
	require.Len(t, h.bus.Published(), 1)
	assert.Equal(t, domainauth.EventUserUpdated, h.bus.Published()[0].Event)
}

func TestSessionBackend_UpdateProfileRequiresSession(t *testing.T) {
	h := newBackendHarness(t)
	name := "New"

	_, err := h.backend.UpdateProfile(context.Background(), domainauth.ProfileUpdate{FullName: &name})
	assert.True(t, apperrors.IsUnauthorized(err))

	_, err = h.backend.UpdateProfile(context.Background(), domainauth.ProfileUpdate{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestSessionBackend_Token(t *testing.T) {
	h := newBackendHarness(t)

	_, err := h.backend.Token()
	assert.True(t, apperrors.IsUnauthorized(err))

	h.seed(t, validSession("u1"))
	tok, err := h.backend.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-u1", tok.AccessToken)
}

type ctxMarker struct{}

func TestSessionBackend_TokenContextRefreshesWithCallerContext(t *testing.T) {
	h := newBackendHarness(t)
	old := validSession("u1")
	old.ExpiresAt = backendNow.Add(5 * time.Second)
	h.seed(t, old)

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxMarker{}, "resolution"))
	h.authn.EXPECT().RefreshSession(gomock.Any(), "refresh-u1").
		DoAndReturn(func(ctx context.Context, _ string) (*domainauth.Session, error) {
			assert.Equal(t, "resolution", ctx.Value(ctxMarker{}))
			cancel()
			return nil, apperrors.Network(ctx.Err(), "refresh session")
		})

	_, err := h.backend.TokenContext(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	h.assertNoEvent(t)
}

func TestSessionBackend_ApplyRemoteSignOut(t *testing.T) {
	h := newBackendHarness(t)
	h.seed(t, validSession("u1"))

	h.backend.ApplyRemote(context.Background(), ports.RemoteAuthEvent{UserID: "u1", Event: domainauth.EventSignedOut})

	assert.Equal(t, domainauth.EventSignedOut, h.next(t).Type)
	sess, err := h.backend.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Empty(t, h.bus.Published(), "remote events are not re-announced")
}

func TestSessionBackend_CloseEndsSubscriptions(t *testing.T) {
	h := newBackendHarness(t)
	h.backend.Close()

	_, ok := <-h.events
	assert.False(t, ok)

	late, err := h.backend.Subscribe(context.Background())
	require.NoError(t, err)
	_, ok = <-late
	assert.False(t, ok)
}

func TestSessionBackend_DrivesSynchronizer(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	profiles := authmocks.NewMemoryProfiles()
	profiles.Put(domainauth.ProfileRow{ID: "u2", FullName: "Ann"}, "admin")

	backend, err := NewSessionBackend(SessionBackendOptions{
		ID:       "browser-session-2",
		Auth:     authn,
		Sessions: authmocks.NewMemorySessionStore(),
	})
	require.NoError(t, err)
	resolver, err := NewProfileResolver(ProfileResolverOptions{Profiles: profiles})
	require.NoError(t, err)

	sync, err := NewSynchronizer(SynchronizerOptions{
		Backend:  backend,
		Events:   backend,
		Resolver: resolver,
		Store:    identity.NewStore(nil),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sync.Start(ctx))
	require.NoError(t, sync.Ready(ctx))
	assert.False(t, sync.State().IsAuthenticated)

	sess := validSession("u2")
	sess.ExpiresAt = time.Now().Add(time.Hour)
	authn.EXPECT().SignInWithPassword(gomock.Any(), "ann@x.io", "pw").Return(sess, nil)
	authn.EXPECT().SignOut(gomock.Any(), "access-u2").Return(nil)

	_, err = backend.SignInWithPassword(ctx, "ann@x.io", "pw")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sync.State().IsAdmin() }, eventually, 5*time.Millisecond)

	require.NoError(t, sync.SignOut(ctx))
	require.Eventually(t, func() bool { return !sync.State().IsAuthenticated }, eventually, 5*time.Millisecond)
}
