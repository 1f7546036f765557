package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/oauth2"

	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/identity"
	"github.com/dealshub/dealshub-go/internal/observability/metrics"
	"github.com/dealshub/dealshub-go/internal/observability/statsd"
	"github.com/dealshub/dealshub-go/internal/ports"
)

const defaultMaxSessions = 10000

var (
	// ErrRegistryClosed is returned by Acquire after Close.
	ErrRegistryClosed = errors.New("session registry closed")

	errProfilesRequired = errors.New("profile source is required")
)

// ProfileStore reads and writes profiles.
type ProfileStore interface {
	ports.ProfileRepository
	ports.ProfileWriter
}

// ProfilesFunc returns the profile store a browser session uses. The token
// source carries the session's access token for backends that enforce
// row-level security; direct database stores ignore it.
type ProfilesFunc func(ts oauth2.TokenSource) ProfileStore

// SharedProfiles returns a ProfilesFunc that hands every session the same store.
func SharedProfiles(store ProfileStore) ProfilesFunc {
	return func(oauth2.TokenSource) ProfileStore { return store }
}

// SessionRuntime is the live identity machinery of one browser session.
type SessionRuntime struct {
	ID      string
	Backend *SessionBackend
	Store   *identity.Store
	Sync    *Synchronizer
	Guard   *Guard

	cancel   context.CancelFunc
	lastUsed atomic.Int64
	once     sync.Once
}

// UserID returns the id of the signed-in user or "".
func (r *SessionRuntime) UserID() string { return r.Store.State().UserID() }

// Settle waits until the synchronizer has taken in every event the backend
// emitted so far and finished the resolutions they started.
func (r *SessionRuntime) Settle(ctx context.Context) error {
	if err := r.Sync.CatchUp(ctx, r.Backend.Emitted()); err != nil {
		return err
	}
	return r.Sync.Wait(ctx)
}

// LastUsed returns when the session last served a request.
func (r *SessionRuntime) LastUsed() time.Time { return time.Unix(0, r.lastUsed.Load()) }

func (r *SessionRuntime) touch(now time.Time) { r.lastUsed.Store(now.UnixNano()) }

// close stops the synchronizer and refresh loop and ends all change feeds.
func (r *SessionRuntime) close() {
	r.once.Do(func() {
		r.cancel()
		r.Backend.Close()
		r.Store.Close()
	})
}

// SessionRegistryOptions groups dependencies for SessionRegistry.
type SessionRegistryOptions struct {
	Auth          ports.Authenticator
	Sessions      ports.SessionStore
	Profiles      ProfilesFunc
	Roles         ports.RoleMapper
	Publisher     ports.EventPublisher
	Origin        string
	Retry         RetryPolicy
	DisplayName   *DisplayNameExtractor
	MaxSessions   int
	RefreshLeeway time.Duration
	SessionTTL    time.Duration
	Logger        *slog.Logger
	Metrics       statsd.Sink
	Clock         func() time.Time
}

// SessionRegistry owns one SessionRuntime per live browser session. The least
// recently used runtime is stopped when the registry is full; its persisted
// session survives and is restored on the next request.
type SessionRegistry struct {
	opts   SessionRegistryOptions
	logger *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	cache  *lru.Cache[string, *SessionRuntime]
}

// NewSessionRegistry constructs a SessionRegistry.
func NewSessionRegistry(opts SessionRegistryOptions) (*SessionRegistry, error) {
	switch {
	case opts.Auth == nil:
		return nil, errAuthenticatorRequired
	case opts.Sessions == nil:
		return nil, errSessionStoreRequired
	case opts.Profiles == nil:
		return nil, errProfilesRequired
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg := &SessionRegistry{
		opts:   opts,
		logger: logger.With("component", "session_registry"),
		now:    now,
		ctx:    ctx,
		cancel: cancel,
	}

	cache, err := lru.NewWithEvict[string, *SessionRuntime](opts.MaxSessions, reg.onEvict)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	reg.cache = cache
	return reg, nil
}

// Origin identifies this gateway instance on the event bus.
func (g *SessionRegistry) Origin() string { return g.opts.Origin }

// Acquire returns the runtime of browser session id, restoring it from the
// session store when it is not live. An empty or unknown id mints a new
// session; callers must send the returned runtime's ID back to the browser.
func (g *SessionRegistry) Acquire(ctx context.Context, id string) (*SessionRuntime, error) {
	rt, _, err := g.acquire(ctx, id, true)
	return rt, err
}

// Restore returns the runtime of browser session id when it is live or
// persisted. Unlike Acquire it never mints: an empty or unknown id reports
// false and starts nothing.
func (g *SessionRegistry) Restore(ctx context.Context, id string) (*SessionRuntime, bool, error) {
	if id == "" {
		return nil, false, nil
	}
	return g.acquire(ctx, id, false)
}

func (g *SessionRegistry) acquire(ctx context.Context, id string, mint bool) (*SessionRuntime, bool, error) {
	if rt, ok := g.lookup(id); ok {
		return rt, true, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, false, ErrRegistryClosed
	}
	if rt, ok := g.lookup(id); ok {
		return rt, true, nil
	}

	known, err := g.known(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !known {
		if !mint {
			return nil, false, nil
		}
		id = uuid.NewString()
	}

	rt, err := g.start(id)
	if err != nil {
		return nil, false, err
	}
	g.cache.Add(id, rt)
	metrics.EmitSessions(g.opts.Metrics, g.cache.Len())
	return rt, true, nil
}

// Peek returns the live runtime of id without restoring or creating one.
func (g *SessionRegistry) Peek(id string) (*SessionRuntime, bool) {
	return g.cache.Peek(id)
}

// ForUser returns the live runtimes signed in as userID.
func (g *SessionRegistry) ForUser(userID string) []*SessionRuntime {
	if userID == "" {
		return nil
	}
	var out []*SessionRuntime
	for _, rt := range g.cache.Values() {
		if rt.UserID() == userID {
			out = append(out, rt)
		}
	}
	return out
}

// Len returns the number of live runtimes.
func (g *SessionRegistry) Len() int { return g.cache.Len() }

// Release stops the runtime of id. The persisted session is kept.
func (g *SessionRegistry) Release(id string) bool {
	return g.cache.Remove(id)
}

// Forget stops the runtime of id and deletes its persisted session.
func (g *SessionRegistry) Forget(ctx context.Context, id string) error {
	g.cache.Remove(id)
	return g.opts.Sessions.Delete(ctx, id)
}

// ReleaseIdle stops runtimes unused for longer than maxIdle and returns how many were stopped.
func (g *SessionRegistry) ReleaseIdle(maxIdle time.Duration) int {
	cutoff := g.now().Add(-maxIdle)
	released := 0
	for _, id := range g.cache.Keys() {
		rt, ok := g.cache.Peek(id)
		if !ok || rt.LastUsed().After(cutoff) {
			continue
		}
		if g.cache.Remove(id) {
			released++
		}
	}
	if released > 0 {
		g.logger.Info("released idle sessions", "count", released, "live", g.cache.Len())
		metrics.EmitSessions(g.opts.Metrics, g.cache.Len())
	}
	return released
}

// Close stops every runtime.
func (g *SessionRegistry) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cache.Purge()
	g.cancel()
}

func (g *SessionRegistry) lookup(id string) (*SessionRuntime, bool) {
	if id == "" {
		return nil, false
	}
	rt, ok := g.cache.Get(id)
	if ok {
		rt.touch(g.now())
	}
	return rt, ok
}

// known reports whether id names a persisted browser session. Ids the
// gateway never issued are replaced rather than adopted.
func (g *SessionRegistry) known(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	_, err := g.opts.Sessions.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case apperrors.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("load browser session: %w", err)
	}
}

func (g *SessionRegistry) start(id string) (*SessionRuntime, error) {
	backend, err := NewSessionBackend(SessionBackendOptions{
		ID:            id,
		Auth:          g.opts.Auth,
		Sessions:      g.opts.Sessions,
		Publisher:     g.opts.Publisher,
		Origin:        g.opts.Origin,
		RefreshLeeway: g.opts.RefreshLeeway,
		SessionTTL:    g.opts.SessionTTL,
		Logger:        g.opts.Logger,
		Clock:         g.opts.Clock,
	})
	if err != nil {
		return nil, err
	}

	profiles := g.opts.Profiles(backend)
	backend.profiles = profiles

	resolver, err := NewProfileResolver(ProfileResolverOptions{
		Profiles:    profiles,
		Roles:       g.opts.Roles,
		Retry:       g.opts.Retry,
		DisplayName: g.opts.DisplayName,
		Logger:      g.opts.Logger,
		Metrics:     g.opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	store := identity.NewStore(g.opts.Logger)
	syncer, err := NewSynchronizer(SynchronizerOptions{
		Backend:  backend,
		Events:   backend,
		Resolver: resolver,
		Store:    store,
		Logger:   g.opts.Logger,
		Metrics:  g.opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(g.ctx)
	rt := &SessionRuntime{
		ID:      id,
		Backend: backend,
		Store:   store,
		Sync:    syncer,
		Guard:   NewGuard(store, g.opts.Logger, g.opts.Metrics),
		cancel:  cancel,
	}
	rt.touch(g.now())

	if err := syncer.Start(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("start synchronizer: %w", err)
	}
	go backend.Run(ctx)
	return rt, nil
}

func (g *SessionRegistry) onEvict(id string, rt *SessionRuntime) {
	rt.close()
	g.logger.Debug("session runtime stopped", "browser_session", shortID(id))
}
