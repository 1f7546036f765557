package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/ports"
)

const (
	defaultRefreshLeeway = time.Minute
	defaultSessionTTL    = 7 * 24 * time.Hour
	refreshRetryDelay    = 10 * time.Second
)

var (
	errSessionIDRequired     = errors.New("browser session id is required")
	errAuthenticatorRequired = errors.New("authenticator is required")
	errSessionStoreRequired  = errors.New("session store is required")
)

// Ensure SessionBackend satisfies the ports the synchronizer consumes.
var (
	_ ports.AuthBackend        = (*SessionBackend)(nil)
	_ ports.AuthEventSource    = (*SessionBackend)(nil)
	_ ports.ContextTokenSource = (*SessionBackend)(nil)
	_ oauth2.TokenSource       = (*SessionBackend)(nil)
)

// SessionBackendOptions groups dependencies for SessionBackend.
type SessionBackendOptions struct {
	ID        string
	Auth      ports.Authenticator
	Sessions  ports.SessionStore
	Profiles  ports.ProfileWriter
	Publisher ports.EventPublisher
	// Origin identifies this gateway instance on the event bus.
	Origin        string
	RefreshLeeway time.Duration
	SessionTTL    time.Duration
	Logger        *slog.Logger
	Clock         func() time.Time
}

// SessionBackend is the auth client of one browser session. It persists the
// backend session, refreshes it before expiry and emits auth-change events
// for the session's synchronizer.
type SessionBackend struct {
	id        string
	auth      ports.Authenticator
	sessions  ports.SessionStore
	profiles  ports.ProfileWriter
	publisher ports.EventPublisher
	origin    string
	leeway    time.Duration
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time

	refreshMu sync.Mutex
	kick      chan struct{}

	subsMu  sync.Mutex
	subs    map[chan domainauth.AuthEvent]<-chan struct{}
	closed  bool
	emitted atomic.Uint64
}

// NewSessionBackend constructs a SessionBackend.
func NewSessionBackend(opts SessionBackendOptions) (*SessionBackend, error) {
	switch {
	case opts.ID == "":
		return nil, errSessionIDRequired
	case opts.Auth == nil:
		return nil, errAuthenticatorRequired
	case opts.Sessions == nil:
		return nil, errSessionStoreRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	leeway := opts.RefreshLeeway
	if leeway <= 0 {
		leeway = defaultRefreshLeeway
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	return &SessionBackend{
		id:        opts.ID,
		auth:      opts.Auth,
		sessions:  opts.Sessions,
		profiles:  opts.Profiles,
		publisher: opts.Publisher,
		origin:    opts.Origin,
		leeway:    leeway,
		ttl:       ttl,
		logger:    logger.With("component", "session_backend", "browser_session", shortID(opts.ID)),
		now:       now,
		kick:      make(chan struct{}, 1),
		subs:      make(map[chan domainauth.AuthEvent]<-chan struct{}),
	}, nil
}

// Emitted returns how many events have been delivered to subscribers.
func (b *SessionBackend) Emitted() uint64 { return b.emitted.Load() }

// ID returns the browser session id.
func (b *SessionBackend) ID() string { return b.id }

// GetSession returns the current backend session, refreshing it when it is
// about to expire. A session the backend refuses to refresh is cleared and
// reported as absent.
func (b *SessionBackend) GetSession(ctx context.Context) (*domainauth.Session, error) {
	bs, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if bs.Backend == nil {
		return nil, nil
	}
	if !bs.Backend.NeedsRefresh(b.now(), b.leeway) {
		return bs.Backend.Clone(), nil
	}

	sess, err := b.refresh(ctx)
	if err != nil {
		if apperrors.IsNetwork(err) {
			return nil, err
		}
		return nil, nil
	}
	return sess, nil
}

// Token implements oauth2.TokenSource with the session's access token.
func (b *SessionBackend) Token() (*oauth2.Token, error) {
	return b.TokenContext(context.Background())
}

// TokenContext is Token bound to ctx: a refresh it triggers ends with ctx.
func (b *SessionBackend) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	sess, err := b.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperrors.Unauthorized("not signed in")
	}
	return sess.Token(), nil
}

// Subscribe registers an auth-change subscription that ends with ctx.
func (b *SessionBackend) Subscribe(ctx context.Context) (<-chan domainauth.AuthEvent, error) {
	ch := make(chan domainauth.AuthEvent, 8)

	b.subsMu.Lock()
	if b.closed {
		b.subsMu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subs[ch] = ctx.Done()
	b.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		b.subsMu.Lock()
		defer b.subsMu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

// SignInWithPassword signs in with email credentials and emits SIGNED_IN.
func (b *SessionBackend) SignInWithPassword(ctx context.Context, email, password string) (*domainauth.Session, error) {
	sess, err := b.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := b.signedIn(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// SignUp creates an account. When the backend returns a session the user is
// signed in immediately; otherwise email confirmation is pending and nil is returned.
func (b *SessionBackend) SignUp(ctx context.Context, in ports.SignUpInput) (*domainauth.Session, error) {
	sess, err := b.auth.SignUp(ctx, in)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if err := b.signedIn(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// BeginOAuth returns the provider authorization URL and remembers the PKCE
// verifier until CompleteOAuth.
func (b *SessionBackend) BeginOAuth(ctx context.Context, provider, redirectURL string) (string, error) {
	res, err := b.auth.AuthorizeURL(ctx, ports.AuthorizeInput{Provider: provider, RedirectURL: redirectURL})
	if err != nil {
		return "", err
	}

	bs, err := b.load(ctx)
	if err != nil {
		return "", err
	}
	bs.PKCEVerifier = res.Verifier
	if err := b.save(ctx, bs); err != nil {
		return "", err
	}
	return res.URL, nil
}

// CompleteOAuth exchanges the callback code for a session and emits SIGNED_IN.
func (b *SessionBackend) CompleteOAuth(ctx context.Context, code string) (*domainauth.Session, error) {
	if code == "" {
		return nil, apperrors.ValidationField("code", "authorization code is required")
	}
	bs, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if bs.PKCEVerifier == "" {
		return nil, apperrors.Validation("no pending sign-in for this session")
	}

	sess, err := b.auth.ExchangeCode(ctx, code, bs.PKCEVerifier)
	if err != nil {
		return nil, err
	}
	if err := b.signedIn(ctx, sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// UpdateProfile writes the profile row, mirrors the change into the auth
// user's metadata on a best-effort basis and emits USER_UPDATED.
func (b *SessionBackend) UpdateProfile(ctx context.Context, upd domainauth.ProfileUpdate) (domainauth.ProfileRow, error) {
	if b.profiles == nil {
		return domainauth.ProfileRow{}, apperrors.Internal("profile updates are not configured")
	}
	if upd.Empty() {
		return domainauth.ProfileRow{}, apperrors.Validation("nothing to update")
	}

	sess, err := b.GetSession(ctx)
	if err != nil {
		return domainauth.ProfileRow{}, err
	}
	if sess == nil {
		return domainauth.ProfileRow{}, apperrors.Unauthorized("not signed in")
	}

	row, err := b.profiles.UpdateProfile(ctx, sess.User.ID, upd)
	if err != nil {
		return domainauth.ProfileRow{}, err
	}

	attrs := map[string]any{}
	if upd.FullName != nil {
		attrs["full_name"] = *upd.FullName
	}
	if upd.AvatarURL != nil {
		attrs["avatar_url"] = *upd.AvatarURL
	}
	if user, err := b.auth.UpdateUser(ctx, sess.AccessToken, attrs); err != nil {
		b.logger.WarnContext(ctx, "update auth metadata failed",
			"user_id", sess.User.ID,
			"error_kind", apperrors.Kind(err),
			"error", err,
		)
	} else if user.ID != "" {
		sess.User = user
		if err := b.persist(ctx, sess); err != nil {
			b.logger.WarnContext(ctx, "persist updated session failed", "error", err)
		}
	}

	b.emit(domainauth.AuthEvent{Type: domainauth.EventUserUpdated, Session: sess, OccurredAt: b.now()})
	b.announce(ctx, domainauth.EventUserUpdated, sess.User.ID)
	return row, nil
}

// SignOut ends the backend session. A network failure leaves the session in
// place and is returned. Otherwise the local session is cleared and
// SIGNED_OUT is emitted, even when the backend rejected the call.
func (b *SessionBackend) SignOut(ctx context.Context) error {
	bs, err := b.load(ctx)
	if err != nil {
		return err
	}
	if bs.Backend == nil {
		b.emit(domainauth.AuthEvent{Type: domainauth.EventSignedOut, OccurredAt: b.now()})
		return nil
	}

	remoteErr := b.auth.SignOut(ctx, bs.Backend.AccessToken)
	if remoteErr != nil && apperrors.Kind(remoteErr) == apperrors.ErrCodeNetwork {
		return remoteErr
	}

	userID := bs.UserID()
	if err := b.clear(ctx); err != nil {
		return err
	}
	b.emit(domainauth.AuthEvent{Type: domainauth.EventSignedOut, OccurredAt: b.now()})
	b.announce(ctx, domainauth.EventSignedOut, userID)
	return remoteErr
}

// ApplyRemote applies an event announced by another gateway instance or
// browser session of the same user.
func (b *SessionBackend) ApplyRemote(ctx context.Context, ev ports.RemoteAuthEvent) {
	switch ev.Event {
	case domainauth.EventSignedOut:
		if err := b.clear(ctx); err != nil {
			b.logger.WarnContext(ctx, "clear session after remote sign out failed", "error", err)
		}
		b.emit(domainauth.AuthEvent{Type: domainauth.EventSignedOut, OccurredAt: ev.OccurredAt})
	case domainauth.EventUserUpdated:
		sess, err := b.GetSession(ctx)
		if err != nil || sess == nil {
			return
		}
		b.emit(domainauth.AuthEvent{Type: domainauth.EventUserUpdated, Session: sess, OccurredAt: ev.OccurredAt})
	}
}

// Run refreshes the session shortly before it expires until ctx ends.
func (b *SessionBackend) Run(ctx context.Context) {
	for {
		wait, ok := b.nextRefresh(ctx)

		var timer *time.Timer
		var fire <-chan time.Time
		if ok {
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-b.kick:
			stopTimer(timer)
			continue
		case <-fire:
		}

		if _, err := b.refresh(ctx); err != nil && apperrors.IsNetwork(err) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(refreshRetryDelay):
			}
		}
	}
}

// Close ends all subscriptions. Later events are dropped.
func (b *SessionBackend) Close() {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func (b *SessionBackend) nextRefresh(ctx context.Context) (time.Duration, bool) {
	bs, err := b.load(ctx)
	if err != nil || bs.Backend == nil || bs.Backend.RefreshToken == "" || bs.Backend.ExpiresAt.IsZero() {
		return 0, false
	}
	wait := bs.Backend.ExpiresAt.Add(-b.leeway).Sub(b.now())
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// refresh exchanges the refresh token. A rejected refresh token clears the
// session and emits SIGNED_OUT.
func (b *SessionBackend) refresh(ctx context.Context) (*domainauth.Session, error) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	bs, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	if bs.Backend == nil {
		return nil, nil
	}
	if !bs.Backend.NeedsRefresh(b.now(), b.leeway) {
		return bs.Backend.Clone(), nil
	}

	sess, err := b.auth.RefreshSession(ctx, bs.Backend.RefreshToken)
	if err != nil {
		if apperrors.Kind(err) == apperrors.ErrCodeNetwork {
			b.logger.WarnContext(ctx, "session refresh failed", "error", err)
			return nil, err
		}
		b.logger.InfoContext(ctx, "refresh token rejected, signing out", "user_id", bs.UserID(), "error", err)
		if clearErr := b.clear(ctx); clearErr != nil {
			b.logger.WarnContext(ctx, "clear session failed", "error", clearErr)
		}
		b.emit(domainauth.AuthEvent{Type: domainauth.EventSignedOut, OccurredAt: b.now()})
		return nil, err
	}

	if err := b.persist(ctx, sess); err != nil {
		return nil, err
	}
	b.emit(domainauth.AuthEvent{Type: domainauth.EventTokenRefreshed, Session: sess.Clone(), OccurredAt: b.now()})
	return sess.Clone(), nil
}

func (b *SessionBackend) signedIn(ctx context.Context, sess *domainauth.Session) error {
	if !sess.HasPrincipal() {
		return apperrors.AuthBackend("backend returned a session without a user")
	}
	if err := b.persist(ctx, sess); err != nil {
		return err
	}
	b.emit(domainauth.AuthEvent{Type: domainauth.EventSignedIn, Session: sess.Clone(), OccurredAt: b.now()})
	b.wake()
	return nil
}

func (b *SessionBackend) load(ctx context.Context) (domainauth.BrowserSession, error) {
	bs, err := b.sessions.Get(ctx, b.id)
	if err == nil {
		return bs, nil
	}
	if apperrors.IsNotFound(err) {
		return domainauth.BrowserSession{ID: b.id, CreatedAt: b.now().UTC()}, nil
	}
	return domainauth.BrowserSession{}, err
}

func (b *SessionBackend) save(ctx context.Context, bs domainauth.BrowserSession) error {
	bs.ID = b.id
	bs.ExpiresAt = b.now().Add(b.ttl).UTC()
	return b.sessions.Save(ctx, bs)
}

func (b *SessionBackend) persist(ctx context.Context, sess *domainauth.Session) error {
	bs, err := b.load(ctx)
	if err != nil {
		return err
	}
	bs.Backend = sess.Clone()
	bs.PKCEVerifier = ""
	return b.save(ctx, bs)
}

func (b *SessionBackend) clear(ctx context.Context) error {
	bs, err := b.load(ctx)
	if err != nil {
		return err
	}
	if bs.Backend == nil && bs.PKCEVerifier == "" {
		return nil
	}
	bs.Backend = nil
	bs.PKCEVerifier = ""
	return b.save(ctx, bs)
}

// emit delivers ev to every subscriber in order. A subscriber whose context
// has ended is skipped.
func (b *SessionBackend) emit(ev domainauth.AuthEvent) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	if b.closed {
		return
	}
	if len(b.subs) > 0 {
		b.emitted.Add(1)
	}
	for ch, done := range b.subs {
		select {
		case ch <- ev:
		case <-done:
		}
	}
}

func (b *SessionBackend) announce(ctx context.Context, event domainauth.EventType, userID string) {
	if b.publisher == nil || userID == "" {
		return
	}
	err := b.publisher.Publish(ctx, ports.RemoteAuthEvent{
		Origin:           b.origin,
		BrowserSessionID: b.id,
		UserID:           userID,
		Event:            event,
		OccurredAt:       b.now().UTC(),
	})
	if err != nil {
		b.logger.WarnContext(ctx, "announce auth event failed", "event", event, "error", err)
	}
}

func (b *SessionBackend) wake() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// shortID keeps log lines from carrying full session identifiers.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
