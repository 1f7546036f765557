// Package mocks provides mock implementations of the auth ports for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
// Stateful in-memory doubles live in the auth subpackage.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	authn := mocks.NewMockAuthenticator(ctrl)
//	authn.EXPECT().SignOut(gomock.Any(), "token").Return(nil)
package mocks

// Generate mock for Authenticator interface from internal/ports package.
// This creates MockAuthenticator with methods for all Authenticator interface methods:
// SignInWithPassword, SignUp, AuthorizeURL, ExchangeCode, RefreshSession, SignOut, UpdateUser
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=authenticator_mock.go github.com/dealshub/dealshub-go/internal/ports Authenticator

// Generate mock for ProfileRepository interface from internal/ports package.
// This creates MockProfileRepository with methods for all ProfileRepository interface methods:
// FetchProfileByID, FetchRolesByUserID
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_repository_mock.go github.com/dealshub/dealshub-go/internal/ports ProfileRepository

// Generate mock for TokenVerifier interface from internal/ports package.
// This creates MockTokenVerifier with methods for all TokenVerifier interface methods:
// Verify
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_verifier_mock.go github.com/dealshub/dealshub-go/internal/ports TokenVerifier

// Generate mock for EventPublisher interface from internal/ports package.
// This creates MockEventPublisher with methods for all EventPublisher interface methods:
// Publish
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=event_publisher_mock.go github.com/dealshub/dealshub-go/internal/ports EventPublisher
