package auth

import (
	"errors"
	"fmt"
)

// ErrMalformedProfile indicates an authenticated state whose profile cannot be evaluated.
var ErrMalformedProfile = errors.New("malformed user profile")

// AuthState is the locally cached, observable identity state.
// Invariant: IsAuthenticated == (CurrentUser != nil).
type AuthState struct {
	IsAuthenticated bool         `json:"is_authenticated"`
	CurrentUser     *UserProfile `json:"current_user"`
}

// AnonymousState is the initial and signed-out state.
func AnonymousState() AuthState { return AuthState{} }

// AuthenticatedState publishes profile as the signed-in user.
func AuthenticatedState(profile UserProfile) AuthState {
	p := profile.Clone()
	return AuthState{IsAuthenticated: true, CurrentUser: &p}
}

// Valid reports whether the flag and the user agree.
func (s AuthState) Valid() bool { return s.IsAuthenticated == (s.CurrentUser != nil) }

// IsAdmin reports whether the current user holds an admin role. False for no user.
func (s AuthState) IsAdmin() bool {
	if s.CurrentUser == nil {
		return false
	}
	return s.CurrentUser.Roles.IsAdmin()
}

// Clone returns a copy that does not share the profile.
func (s AuthState) Clone() AuthState {
	if s.CurrentUser == nil {
		return AuthState{IsAuthenticated: s.IsAuthenticated}
	}
	p := s.CurrentUser.Clone()
	return AuthState{IsAuthenticated: s.IsAuthenticated, CurrentUser: &p}
}

// UserID returns the current user's id or "".
func (s AuthState) UserID() string {
	if s.CurrentUser == nil {
		return ""
	}
	return s.CurrentUser.ID
}

// SyncState is the synchronizer lifecycle state of one browser session.
type SyncState string

const (
	SyncUninitialized SyncState = "UNINITIALIZED"
	SyncChecking      SyncState = "CHECKING"
	SyncAuthenticated SyncState = "AUTHENTICATED"
	SyncAnonymous     SyncState = "ANONYMOUS"
)

var syncTransitions = map[SyncState]map[SyncState]struct{}{
	SyncUninitialized: {SyncChecking: {}},
	SyncChecking:      {SyncAuthenticated: {}, SyncAnonymous: {}},
	SyncAuthenticated: {SyncAuthenticated: {}, SyncAnonymous: {}},
	SyncAnonymous:     {SyncAuthenticated: {}, SyncAnonymous: {}},
}

// CanTransition reports whether from -> to is a legal synchronizer transition.
func CanTransition(from, to SyncState) bool {
	allowed, ok := syncTransitions[from]
	if !ok {
		return false
	}
	_, exists := allowed[to]
	return exists
}

// ErrInvalidTransition is returned for an illegal synchronizer transition.
type ErrInvalidTransition struct {
	From, To SyncState
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid sync state transition %s -> %s", e.From, e.To)
}

// SyncStateFor returns the settled state matching an AuthState.
func SyncStateFor(s AuthState) SyncState {
	if s.IsAuthenticated {
		return SyncAuthenticated
	}
	return SyncAnonymous
}
