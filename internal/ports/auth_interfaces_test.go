package ports_test

import (
	"testing"

	"github.com/dealshub/dealshub-go/internal/adapters/authroles"
	"github.com/dealshub/dealshub-go/internal/adapters/devauth"
	"github.com/dealshub/dealshub-go/internal/data"
	mocks "github.com/dealshub/dealshub-go/internal/mocks/auth"
	"github.com/dealshub/dealshub-go/internal/ports"
)

// This test only verifies that our doubles and adapters conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthBackend = (*mocks.FakeBackend)(nil)
	var _ ports.AuthEventSource = (*mocks.FakeBackend)(nil)
	var _ ports.ProfileRepository = (*mocks.MemoryProfiles)(nil)
	var _ ports.ProfileWriter = (*mocks.MemoryProfiles)(nil)
	var _ ports.SessionStore = (*mocks.MemorySessionStore)(nil)
	var _ ports.SessionLister = (*mocks.MemorySessionStore)(nil)
	var _ ports.EventBus = (*mocks.MemoryEventBus)(nil)
	var _ ports.RoleMapper = authroles.NormalizingRoleMapper{}
	var _ ports.Authenticator = (*devauth.Backend)(nil)
	var _ ports.ProfileRepository = (*devauth.Backend)(nil)
	var _ ports.ProfileRepository = (*data.ProfileRepo)(nil)
	var _ ports.ProfileWriter = (*data.ProfileRepo)(nil)
}
