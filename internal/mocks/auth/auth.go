package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthBackend       = (*FakeBackend)(nil)
	_ ports.AuthEventSource   = (*FakeBackend)(nil)
	_ ports.ProfileRepository = (*MemoryProfiles)(nil)
	_ ports.ProfileWriter     = (*MemoryProfiles)(nil)
	_ ports.SessionStore      = (*MemorySessionStore)(nil)
	_ ports.SessionLister     = (*MemorySessionStore)(nil)
	_ ports.EventBus          = (*MemoryEventBus)(nil)
)

// FakeBackend simulates the hosted auth backend's session surface and its
// auth-change subscription. Tests drive events with Emit.
type FakeBackend struct {
	GetSessionFunc func(ctx context.Context) (*domainauth.Session, error)
	SignOutErr     error
	SubscribeErr   error

	mu       sync.Mutex
	session  *domainauth.Session
	subs     map[chan domainauth.AuthEvent]struct{}
	signOuts int
}

// NewFakeBackend creates a backend whose current session is sess (may be nil).
func NewFakeBackend(sess *domainauth.Session) *FakeBackend {
	return &FakeBackend{
		session: sess.Clone(),
		subs:    make(map[chan domainauth.AuthEvent]struct{}),
	}
}

func (f *FakeBackend) GetSession(ctx context.Context) (*domainauth.Session, error) {
	if f.GetSessionFunc != nil {
		return f.GetSessionFunc(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Clone(), nil
}

// SignOut clears the session and emits SIGNED_OUT, or returns SignOutErr untouched.
func (f *FakeBackend) SignOut(_ context.Context) error {
	f.mu.Lock()
	f.signOuts++
	if f.SignOutErr != nil {
		f.mu.Unlock()
		return f.SignOutErr
	}
	f.session = nil
	f.mu.Unlock()

	f.Emit(domainauth.AuthEvent{Type: domainauth.EventSignedOut, OccurredAt: time.Now()})
	return nil
}

// SignOutCalls returns how many times SignOut was invoked.
func (f *FakeBackend) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOuts
}

func (f *FakeBackend) Subscribe(ctx context.Context) (<-chan domainauth.AuthEvent, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	ch := make(chan domainauth.AuthEvent, 16)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, ch)
		close(ch)
	}()
	return ch, nil
}

// Subscribers returns the number of live subscriptions.
func (f *FakeBackend) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Emit delivers ev to every subscriber and updates the current session for sign-in events.
func (f *FakeBackend) Emit(ev domainauth.AuthEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ev.Type.SignsIn() && ev.Session != nil {
		f.session = ev.Session.Clone()
	}
	for ch := range f.subs {
		ch <- ev
	}
}

// SignIn is shorthand for emitting SIGNED_IN for a principal.
func (f *FakeBackend) SignIn(p domainauth.Principal) {
	f.Emit(domainauth.AuthEvent{
		Type:       domainauth.EventSignedIn,
		Session:    &domainauth.Session{AccessToken: "token-" + p.ID, User: p, ExpiresAt: time.Now().Add(time.Hour)},
		OccurredAt: time.Now(),
	})
}

// MemoryProfiles is an in-memory profile repository with scriptable failures.
type MemoryProfiles struct {
	// FetchErr, when set, is returned by every FetchProfileByID call.
	FetchErr error
	// RolesErr, when set, is returned by every FetchRolesByUserID call.
	RolesErr error
	// FetchFunc overrides FetchProfileByID entirely.
	FetchFunc func(ctx context.Context, id string) (domainauth.ProfileRow, error)

	mu          sync.Mutex
	rows        map[string]domainauth.ProfileRow
	roles       map[string][]domainauth.RoleRow
	appearAfter map[string]int
	calls       map[string]int
}

// NewMemoryProfiles creates an empty repository.
func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{
		rows:        make(map[string]domainauth.ProfileRow),
		roles:       make(map[string][]domainauth.RoleRow),
		appearAfter: make(map[string]int),
		calls:       make(map[string]int),
	}
}

// Put stores a profile row with the given role names.
func (m *MemoryProfiles) Put(row domainauth.ProfileRow, roles ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.ID] = row
	rr := make([]domainauth.RoleRow, 0, len(roles))
	for _, r := range roles {
		rr = append(rr, domainauth.RoleRow{Name: r})
	}
	m.roles[row.ID] = rr
}

// SetRoles replaces the role rows of a user.
func (m *MemoryProfiles) SetRoles(id string, roles ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rr := make([]domainauth.RoleRow, 0, len(roles))
	for _, r := range roles {
		rr = append(rr, domainauth.RoleRow{Name: r})
	}
	m.roles[id] = rr
}

// AppearAfter hides the row of id until the nth fetch, simulating a slow sign-up trigger.
func (m *MemoryProfiles) AppearAfter(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appearAfter[id] = n
}

// FetchCalls returns how many times the row of id was fetched.
func (m *MemoryProfiles) FetchCalls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func (m *MemoryProfiles) FetchProfileByID(ctx context.Context, id string) (domainauth.ProfileRow, error) {
	m.mu.Lock()
	m.calls[id]++
	n := m.calls[id]
	row, ok := m.rows[id]
	hideUntil := m.appearAfter[id]
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, id)
	}
	if m.FetchErr != nil {
		return domainauth.ProfileRow{}, m.FetchErr
	}
	if !ok || n < hideUntil {
		return domainauth.ProfileRow{}, apperrors.NotFoundf("profile %s not found", id)
	}
	return row, nil
}

func (m *MemoryProfiles) FetchRolesByUserID(_ context.Context, id string) ([]domainauth.RoleRow, error) {
	if m.RolesErr != nil {
		return nil, m.RolesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.roles[id]), nil
}

func (m *MemoryProfiles) UpdateProfile(_ context.Context, id string, upd domainauth.ProfileUpdate) (domainauth.ProfileRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return domainauth.ProfileRow{}, apperrors.NotFoundf("profile %s not found", id)
	}
	if upd.FullName != nil {
		row.FullName = *upd.FullName
	}
	if upd.AvatarURL != nil {
		row.AvatarURL = *upd.AvatarURL
	}
	row.UpdatedAt = time.Now().UTC()
	m.rows[id] = row
	return row, nil
}

// MemorySessionStore is an in-memory browser session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.BrowserSession
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.BrowserSession),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.BrowserSession) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.Backend = sess.Backend.Clone()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.BrowserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok || id == "" {
		return domainauth.BrowserSession{}, ErrNotFound
	}
	sess.Backend = sess.Backend.Clone()
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) List(_ context.Context) ([]domainauth.BrowserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := slices.Sorted(maps.Keys(m.sessions))
	out := make([]domainauth.BrowserSession, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.sessions[id])
	}
	return out, nil
}

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound error = apperrors.NotFound("not found")

// MemoryEventBus fans published events out to in-process listeners.
type MemoryEventBus struct {
	mu        sync.Mutex
	published []ports.RemoteAuthEvent
	listeners map[int]func(context.Context, ports.RemoteAuthEvent)
	nextID    int
	ready     chan struct{}
}

// NewMemoryEventBus creates an empty bus.
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{
		listeners: make(map[int]func(context.Context, ports.RemoteAuthEvent)),
		ready:     make(chan struct{}),
	}
}

func (b *MemoryEventBus) Publish(ctx context.Context, ev ports.RemoteAuthEvent) error {
	b.mu.Lock()
	b.published = append(b.published, ev)
	handlers := slices.Collect(maps.Values(b.listeners))
	b.mu.Unlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
	return nil
}

func (b *MemoryEventBus) Listen(ctx context.Context, handle func(context.Context, ports.RemoteAuthEvent)) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = handle
	select {
	case <-b.ready:
	default:
		close(b.ready)
	}
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.listeners, id)
	b.mu.Unlock()
	return nil
}

// Ready is closed once the first listener is registered.
func (b *MemoryEventBus) Ready() <-chan struct{} { return b.ready }

// Published returns every event published so far.
func (b *MemoryEventBus) Published() []ports.RemoteAuthEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published)
}
