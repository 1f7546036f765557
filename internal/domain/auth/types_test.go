package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoleSet_Normalizes(t *testing.T) {
	set := NewRoleSet(" Admin ", "USER", "", "  ", "user", "Super_Admin")
	assert.Equal(t, RoleSet{"admin", "super_admin", "user"}, set)
}

func TestRoleSet_IsAdmin(t *testing.T) {
	tests := []struct {
		name  string
		roles RoleSet
		want  bool
	}{
		{name: "admin", roles: RoleSet{"admin"}, want: true},
		{name: "super admin with space", roles: RoleSet{"super admin"}, want: true},
		{name: "superadmin", roles: RoleSet{"superadmin"}, want: true},
		{name: "super_admin", roles: RoleSet{"super_admin"}, want: true},
		{name: "unnormalized members", roles: RoleSet{"  ADMIN "}, want: true},
		{name: "user only", roles: RoleSet{"user"}, want: false},
		{name: "moderator", roles: RoleSet{"moderator", "super-admin"}, want: false},
		{name: "empty", roles: RoleSet{}, want: false},
		{name: "nil", roles: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.roles.IsAdmin())
		})
	}
}

func TestRoleSet_HasAndClone(t *testing.T) {
	set := NewRoleSet("user", "moderator")
	assert.True(t, set.Has(" Moderator"))
	assert.False(t, set.Has("admin"))

	clone := set.Clone()
	clone[0] = "changed"
	assert.Equal(t, "moderator", set[0])
	assert.Nil(t, RoleSet(nil).Clone())
}

func TestFallbackProfile(t *testing.T) {
	p := Principal{ID: "u1", Email: "a@b.com"}

	profile := FallbackProfile(p, "")
	assert.Equal(t, UserProfile{
		ID:          "u1",
		DisplayName: "a@b.com",
		Email:       "a@b.com",
		Roles:       RoleSet{"user"},
		Degraded:    true,
	}, profile)

	assert.Equal(t, "Ada", FallbackProfile(p, "Ada").DisplayName)
	assert.Equal(t, "u2", FallbackProfile(Principal{ID: "u2"}, "").DisplayName)
}

func TestUserProfile_Validate(t *testing.T) {
	var nilProfile *UserProfile
	require.ErrorIs(t, nilProfile.Validate(), ErrMalformedProfile)
	require.ErrorIs(t, (&UserProfile{Roles: DefaultRoles()}).Validate(), ErrMalformedProfile)
	require.ErrorIs(t, (&UserProfile{ID: "u1"}).Validate(), ErrMalformedProfile)
	require.NoError(t, (&UserProfile{ID: "u1", Roles: RoleSet{}}).Validate())
}

func TestSession_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))
	assert.False(t, s.NeedsRefresh(now, 30*time.Second))
	assert.True(t, s.NeedsRefresh(now, time.Minute))

	var none *Session
	assert.True(t, none.Expired(now))
	assert.False(t, none.NeedsRefresh(now, time.Hour))
	assert.False(t, none.HasPrincipal())
}

func TestSession_CloneDoesNotShareMetadata(t *testing.T) {
	s := &Session{User: Principal{ID: "u1", Metadata: map[string]any{"full_name": "Ada"}}}
	c := s.Clone()
	c.User.Metadata["full_name"] = "Grace"

	assert.Equal(t, "Ada", s.User.Metadata["full_name"])
}

func TestBrowserSession_UserID(t *testing.T) {
	assert.Empty(t, BrowserSession{ID: "b1"}.UserID())
	assert.Equal(t, "u1", BrowserSession{Backend: &Session{User: Principal{ID: "u1"}}}.UserID())
}

func TestProfileUpdate_Empty(t *testing.T) {
	name := "Ada"
	assert.True(t, ProfileUpdate{}.Empty())
	assert.False(t, ProfileUpdate{FullName: &name}.Empty())
}

func TestSession_Token(t *testing.T) {
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := (&Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: exp}).Token()

	require.NotNil(t, tok)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, exp, tok.Expiry)

	var none *Session
	assert.Nil(t, none.Token())
}
