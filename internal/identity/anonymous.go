package identity

import domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"

// Anonymous is a read-only state source for requests without a browser session.
type Anonymous struct{}

// State always returns {false, nil}.
func (Anonymous) State() domainauth.AuthState { return domainauth.AnonymousState() }
