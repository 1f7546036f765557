// Package identity holds the observable per-session identity state.
package identity

import (
	"log/slog"
	"sync"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
)

// Store holds one browser session's AuthState and notifies subscribers of changes.
//
// Writes (BeginCheck, Publish, Reset) belong to the synchronizer that owns the
// store; any number of readers may call State or Subscribe concurrently.
type Store struct {
	logger *slog.Logger

	mu     sync.RWMutex
	state  domainauth.AuthState
	sync   domainauth.SyncState
	subs   map[chan domainauth.AuthState]struct{}
	closed bool
}

// NewStore returns a store in the UNINITIALIZED state holding {false, nil}.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger: logger,
		state:  domainauth.AnonymousState(),
		sync:   domainauth.SyncUninitialized,
		subs:   make(map[chan domainauth.AuthState]struct{}),
	}
}

// State returns a copy of the current state.
func (s *Store) State() domainauth.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// SyncState returns the synchronizer lifecycle state.
func (s *Store) SyncState() domainauth.SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sync
}

// IsAuthenticated reports whether a user is signed in.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAuthenticated
}

// CurrentUser returns a copy of the signed-in profile, or nil.
func (s *Store) CurrentUser() *domainauth.UserProfile {
	return s.State().CurrentUser
}

// IsAdmin reports whether the signed-in user holds an admin role.
func (s *Store) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAdmin()
}

// BeginCheck moves an uninitialized store into CHECKING.
func (s *Store) BeginCheck() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(domainauth.SyncChecking)
}

// Publish replaces the current state and notifies subscribers.
// A state whose flag and user disagree is coerced to anonymous.
func (s *Store) Publish(state domainauth.AuthState) error {
	if !state.Valid() {
		s.logger.Warn("coercing inconsistent auth state to anonymous",
			"is_authenticated", state.IsAuthenticated,
			"has_user", state.CurrentUser != nil,
		)
		state = domainauth.AnonymousState()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if err := s.transitionLocked(domainauth.SyncStateFor(state)); err != nil {
		return err
	}
	s.state = state.Clone()
	s.broadcastLocked()
	return nil
}

// Subscribe returns a change feed that immediately yields the current state.
// Only the newest state is buffered: a slow reader skips intermediate states
// and never blocks the writer. Call unsubscribe to release the feed.
func (s *Store) Subscribe() (func(), <-chan domainauth.AuthState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domainauth.AuthState, 1)
	if s.closed {
		close(ch)
		return func() {}, ch
	}
	ch <- s.state.Clone()
	s.subs[ch] = struct{}{}

	unsub := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; !ok {
			return
		}
		delete(s.subs, ch)
		drainAndClose(ch)
	}
	return unsub, ch
}

// Close resets the state and closes every change feed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.state = domainauth.AnonymousState()
	s.sync = domainauth.SyncUninitialized
	for ch := range s.subs {
		drainAndClose(ch)
		delete(s.subs, ch)
	}
}

func (s *Store) transitionLocked(to domainauth.SyncState) error {
	if !domainauth.CanTransition(s.sync, to) {
		return domainauth.ErrInvalidTransition{From: s.sync, To: to}
	}
	s.sync = to
	return nil
}

func (s *Store) broadcastLocked() {
	for ch := range s.subs {
		// Replace an unread older state with the newest one. Only the writer
		// sends, under s.mu, so the send after draining cannot block.
		select {
		case <-ch:
		default:
		}
		ch <- s.state.Clone()
	}
}

// drainAndClose removes any buffered state before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan domainauth.AuthState) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
