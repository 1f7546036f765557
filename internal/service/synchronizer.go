package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/identity"
	"github.com/dealshub/dealshub-go/internal/observability/metrics"
	"github.com/dealshub/dealshub-go/internal/observability/statsd"
	"github.com/dealshub/dealshub-go/internal/ports"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("synchronizer already started")

	errSyncBackendRequired  = errors.New("auth backend is required")
	errSyncEventsRequired   = errors.New("auth event source is required")
	errSyncResolverRequired = errors.New("principal resolver is required")
	errSyncStoreRequired    = errors.New("identity store is required")
)

// PrincipalResolver turns a principal into a profile. It never fails; the
// outcome describes fallbacks.
type PrincipalResolver interface {
	Resolve(ctx context.Context, p domainauth.Principal) (domainauth.UserProfile, ResolveOutcome)
}

// SignOutError is returned when the backend rejects or cannot be reached for a sign-out.
// Kind is apperrors.ErrCodeNetwork, ErrCodeAuthBackend or ErrCodeUnexpected.
type SignOutError struct {
	Kind apperrors.ErrorCode
	Err  error
}

func (e *SignOutError) Error() string {
	return fmt.Sprintf("sign out failed (%s): %v", e.Kind, e.Err)
}

func (e *SignOutError) Unwrap() error { return e.Err }

// SynchronizerOptions groups dependencies for Synchronizer.
type SynchronizerOptions struct {
	Backend  ports.AuthBackend
	Events   ports.AuthEventSource
	Resolver PrincipalResolver
	Store    *identity.Store
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// Synchronizer keeps one Store in step with the backend session.
//
// Every sign-in event starts a resolution in its own goroutine. A newer event
// cancels the previous resolution and bumps the generation; a resolution
// publishes only while its generation is current, so the last event wins.
// SIGNED_OUT publishes the anonymous state synchronously.
type Synchronizer struct {
	backend  ports.AuthBackend
	events   ports.AuthEventSource
	resolver PrincipalResolver
	store    *identity.Store
	logger   *slog.Logger
	metrics  statsd.Sink

	mu       sync.Mutex
	started  bool
	baseCtx  context.Context
	gen      uint64
	cancel   context.CancelFunc
	inflight string
	active   bool
	cached   string
	degraded bool
	pending  int
	idle     chan struct{}
	handled  uint64
	progress chan struct{}

	settled    chan struct{}
	settleOnce sync.Once
	done       chan struct{}
}

// NewSynchronizer constructs a Synchronizer. The store must be in the UNINITIALIZED state.
func NewSynchronizer(opts SynchronizerOptions) (*Synchronizer, error) {
	switch {
	case opts.Backend == nil:
		return nil, errSyncBackendRequired
	case opts.Events == nil:
		return nil, errSyncEventsRequired
	case opts.Resolver == nil:
		return nil, errSyncResolverRequired
	case opts.Store == nil:
		return nil, errSyncStoreRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	idle := make(chan struct{})
	close(idle)

	return &Synchronizer{
		backend:  opts.Backend,
		events:   opts.Events,
		resolver: opts.Resolver,
		store:    opts.Store,
		logger:   logger.With("component", "identity_synchronizer"),
		metrics:  opts.Metrics,
		baseCtx:  context.Background(),
		idle:     idle,
		progress: make(chan struct{}),
		settled:  make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Store returns the store this synchronizer writes.
func (s *Synchronizer) Store() *identity.Store { return s.store }

// State returns the current auth state.
func (s *Synchronizer) State() domainauth.AuthState { return s.store.State() }

// SyncState returns the lifecycle state of the store.
func (s *Synchronizer) SyncState() domainauth.SyncState { return s.store.SyncState() }

// Done is closed when the event loop has stopped.
func (s *Synchronizer) Done() <-chan struct{} { return s.done }

// Start subscribes to auth events, moves the store to CHECKING and checks the
// existing session in the background. The event loop runs until ctx ends.
// A failing session check publishes the anonymous state; only a failed
// subscription is returned as an error.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.baseCtx = ctx
	s.mu.Unlock()

	events, err := s.events.Subscribe(ctx)
	if err != nil {
		close(s.done)
		return fmt.Errorf("subscribe to auth events: %w", err)
	}
	if err := s.store.BeginCheck(); err != nil {
		close(s.done)
		return fmt.Errorf("begin session check: %w", err)
	}

	s.mu.Lock()
	gen, jobCtx := s.beginJobLocked("")
	s.mu.Unlock()

	go func() {
		defer s.finishJob(gen)
		s.checkSession(jobCtx, gen)
	}()
	go s.loop(ctx, events)
	return nil
}

// HandleEvent applies one auth-change notification.
func (s *Synchronizer) HandleEvent(ev domainauth.AuthEvent) {
	if ev.Type == domainauth.EventSignedOut {
		s.signedOut()
		metrics.EmitAuthEvent(s.metrics, string(ev.Type), metrics.ResultSuccess)
		return
	}
	if !ev.Type.SignsIn() {
		s.logger.Debug("ignoring unknown auth event", "event", ev.Type)
		metrics.EmitAuthEvent(s.metrics, string(ev.Type), metrics.ResultNoop)
		return
	}

	p, ok := ev.Principal()
	if !ok {
		s.logger.Debug("ignoring auth event without principal", "event", ev.Type)
		metrics.EmitAuthEvent(s.metrics, string(ev.Type), metrics.ResultNoop)
		return
	}

	s.mu.Lock()
	if ev.Type != domainauth.EventUserUpdated && s.sameIdentityLocked(p.ID) {
		s.mu.Unlock()
		s.logger.Debug("principal already resolved", "event", ev.Type, "user_id", p.ID)
		metrics.EmitAuthEvent(s.metrics, string(ev.Type), metrics.ResultNoop)
		return
	}
	gen, jobCtx := s.beginJobLocked(p.ID)
	s.mu.Unlock()

	metrics.EmitAuthEvent(s.metrics, string(ev.Type), metrics.ResultSuccess)
	go func() {
		defer s.finishJob(gen)
		s.resolveAndPublish(jobCtx, gen, p)
	}()
}

// SignOut asks the backend to end the session. The store is not touched here:
// the anonymous state arrives with the SIGNED_OUT event.
func (s *Synchronizer) SignOut(ctx context.Context) error {
	err := s.backend.SignOut(ctx)
	metrics.EmitSignOut(s.metrics, err)
	if err == nil {
		return nil
	}

	kind := apperrors.Kind(err)
	switch kind {
	case apperrors.ErrCodeNetwork, apperrors.ErrCodeAuthBackend:
	default:
		kind = apperrors.ErrCodeUnexpected
	}
	s.logger.WarnContext(ctx, "sign out failed", "error_kind", kind, "error", err)
	return &SignOutError{Kind: kind, Err: err}
}

// Wait blocks until no session check or resolution is in flight.
func (s *Synchronizer) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready blocks until the first state has been published after Start.
func (s *Synchronizer) Ready(ctx context.Context) error {
	select {
	case <-s.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) loop(ctx context.Context, events <-chan domainauth.AuthEvent) {
	defer close(s.done)
	defer s.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Info("auth event subscription closed")
				return
			}
			s.HandleEvent(ev)
			s.markHandled()
		}
	}
}

func (s *Synchronizer) markHandled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handled++
	close(s.progress)
	s.progress = make(chan struct{})
}

// CatchUp blocks until the event loop has taken in at least n events. It
// returns early when the loop stops.
func (s *Synchronizer) CatchUp(ctx context.Context, n uint64) error {
	for {
		s.mu.Lock()
		handled, progress := s.handled, s.progress
		s.mu.Unlock()
		if handled >= n {
			return nil
		}
		select {
		case <-progress:
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Synchronizer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.active = false
}

func (s *Synchronizer) checkSession(ctx context.Context, gen uint64) {
	sess, err := s.backend.GetSession(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "session check failed, treating as signed out",
			"error_kind", apperrors.Kind(err),
			"error", err,
		)
		s.publish(gen, domainauth.AnonymousState(), false)
		return
	}
	if !sess.HasPrincipal() {
		s.publish(gen, domainauth.AnonymousState(), false)
		return
	}

	p := sess.User.Clone()
	s.mu.Lock()
	if gen == s.gen {
		s.inflight = p.ID
	}
	s.mu.Unlock()

	s.resolveAndPublish(ctx, gen, p)
}

func (s *Synchronizer) resolveAndPublish(ctx context.Context, gen uint64, p domainauth.Principal) {
	profile, outcome := s.resolver.Resolve(ctx, p)
	if ctx.Err() != nil {
		s.logger.Debug("discarding superseded resolution", "user_id", p.ID)
		return
	}
	if s.publish(gen, domainauth.AuthenticatedState(profile), outcome.Fallback) {
		s.logger.InfoContext(ctx, "identity resolved",
			"user_id", profile.ID,
			"attempts", outcome.Attempts,
			"fallback", outcome.Fallback,
			"admin", profile.Roles.IsAdmin(),
		)
	}
}

// publish writes state when gen is still current and reports whether it did.
func (s *Synchronizer) publish(gen uint64, state domainauth.AuthState, degraded bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return false
	}
	if err := s.store.Publish(state); err != nil {
		if !errors.Is(err, identity.ErrStoreClosed) {
			s.logger.Error("publish auth state failed", "error", err)
		}
		return false
	}
	s.cached = state.UserID()
	s.degraded = degraded
	s.active = false
	s.inflight = ""
	s.settleLocked()
	return true
}

func (s *Synchronizer) signedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.active = false
	s.inflight = ""
	s.cached = ""
	s.degraded = false

	if err := s.store.Publish(domainauth.AnonymousState()); err != nil {
		s.logger.Error("publish signed-out state failed", "error", err)
		return
	}
	s.settleLocked()
}

// sameIdentityLocked reports whether id is already being resolved or is the
// cached, fully resolved user. Degraded profiles are always re-resolved.
func (s *Synchronizer) sameIdentityLocked(id string) bool {
	if s.active {
		return s.inflight == id
	}
	return s.cached == id && !s.degraded
}

func (s *Synchronizer) beginJobLocked(principalID string) (uint64, context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancel = cancel
	s.inflight = principalID
	s.active = true

	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	return s.gen, ctx
}

func (s *Synchronizer) finishJob(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen == s.gen {
		s.active = false
		s.inflight = ""
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
	}
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
}

func (s *Synchronizer) settleLocked() {
	s.settleOnce.Do(func() { close(s.settled) })
}
