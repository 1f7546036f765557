package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthState_Invariant(t *testing.T) {
	anon := AnonymousState()
	assert.True(t, anon.Valid())
	assert.False(t, anon.IsAuthenticated)
	assert.Nil(t, anon.CurrentUser)
	assert.False(t, anon.IsAdmin())

	signedIn := AuthenticatedState(UserProfile{ID: "u1", Roles: RoleSet{"admin"}})
	assert.True(t, signedIn.Valid())
	assert.True(t, signedIn.IsAdmin())
	assert.Equal(t, "u1", signedIn.UserID())

	assert.False(t, AuthState{IsAuthenticated: true}.Valid())
	assert.False(t, AuthState{CurrentUser: &UserProfile{ID: "u1"}}.Valid())
}

func TestAuthenticatedState_CopiesProfile(t *testing.T) {
	profile := UserProfile{ID: "u1", Roles: RoleSet{"admin"}}
	state := AuthenticatedState(profile)
	profile.Roles[0] = "user"

	assert.Equal(t, RoleSet{"admin"}, state.CurrentUser.Roles)

	clone := state.Clone()
	clone.CurrentUser.DisplayName = "changed"
	assert.Empty(t, state.CurrentUser.DisplayName)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SyncState
		want     bool
	}{
		{SyncUninitialized, SyncChecking, true},
		{SyncUninitialized, SyncAuthenticated, false},
		{SyncChecking, SyncAuthenticated, true},
		{SyncChecking, SyncAnonymous, true},
		{SyncAuthenticated, SyncAnonymous, true},
		{SyncAuthenticated, SyncAuthenticated, true},
		{SyncAnonymous, SyncAuthenticated, true},
		{SyncAnonymous, SyncChecking, false},
		{SyncAuthenticated, SyncUninitialized, false},
		{SyncState("bogus"), SyncAnonymous, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestSyncStateFor(t *testing.T) {
	assert.Equal(t, SyncAnonymous, SyncStateFor(AnonymousState()))
	assert.Equal(t, SyncAuthenticated, SyncStateFor(AuthenticatedState(UserProfile{ID: "u1"})))
}

func TestEventType_SignsIn(t *testing.T) {
	assert.True(t, EventSignedIn.SignsIn())
	assert.True(t, EventTokenRefreshed.SignsIn())
	assert.True(t, EventUserUpdated.SignsIn())
	assert.True(t, EventInitialSession.SignsIn())
	assert.False(t, EventSignedOut.SignsIn())
}

func TestAuthEvent_Principal(t *testing.T) {
	_, ok := AuthEvent{Type: EventSignedIn}.Principal()
	assert.False(t, ok)

	p, ok := AuthEvent{Type: EventSignedIn, Session: &Session{User: Principal{ID: "u1"}}}.Principal()
	assert.True(t, ok)
	assert.Equal(t, "u1", p.ID)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "Allow", Allow().String())
	assert.Equal(t, `Redirect("/auth")`, Redirect(LoginPath).String())
}
