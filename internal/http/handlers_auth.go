package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/ports"
	"github.com/dealshub/dealshub-go/internal/service"
)

const (
	postLoginCookie = "post_login_redirect"
	oauthCookieTTL  = 10 * time.Minute
)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Sessions         SessionAcquirer
	Cookie           CookieConfig
	OAuthRedirectURL string
	// SettleTimeout bounds how long a handler waits for the synchronizer to
	// publish the state caused by its own action.
	SettleTimeout time.Duration
	Logger        *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// stateResponse is the SPA-facing view of a session's identity.
type stateResponse struct {
	SyncState       domainauth.SyncState    `json:"sync_state"`
	IsAuthenticated bool                    `json:"is_authenticated"`
	IsAdmin         bool                    `json:"is_admin"`
	CurrentUser     *domainauth.UserProfile `json:"current_user"`
}

func snapshot(rt *service.SessionRuntime) stateResponse {
	st := rt.Store.State()
	return stateResponse{
		SyncState:       rt.Store.SyncState(),
		IsAuthenticated: st.IsAuthenticated,
		IsAdmin:         st.IsAdmin(),
		CurrentUser:     st.CurrentUser,
	}
}

// settle waits for the synchronizer to publish the state caused by an action.
func (h *AuthHandlers) settle(ctx context.Context, rt *service.SessionRuntime) {
	timeout := h.SettleTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rt.Settle(ctx); err != nil {
		h.logger().WarnContext(ctx, "identity not settled before response", "session", rt.ID, "error", err)
	}
}

// anonymousState is reported to browsers that hold no session.
var anonymousState = stateResponse{SyncState: domainauth.SyncAnonymous}

// runtime returns the session runtime, minting a session when the browser has none.
func (h *AuthHandlers) runtime(w http.ResponseWriter, r *http.Request) (*service.SessionRuntime, bool) {
	return ensureRuntime(w, r, h.Sessions, h.Cookie, h.logger())
}

func runtimeOrFail(w http.ResponseWriter, r *http.Request) (*service.SessionRuntime, bool) {
	rt, ok := RuntimeFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "session_missing",
			Err:     errors.New("no session attached to request"),
		})
	}
	return rt, ok
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// readCredentials accepts JSON bodies from the SPA and form posts from plain HTML.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var c credentials
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		c.Email = r.FormValue("email")
		c.Password = r.FormValue("password")
		c.FullName = r.FormValue("full_name")
		c.RedirectURI = r.FormValue("redirect_uri")
		return c, true
	}
	if !DecodeJSON(w, r, &c) {
		return credentials{}, false
	}
	return c, true
}

// Login signs the browser session in with email credentials.
// POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	c, ok := readCredentials(w, r)
	if !ok {
		return
	}

	if _, err := rt.Backend.SignInWithPassword(r.Context(), c.Email, c.Password); err != nil {
		h.logger().InfoContext(r.Context(), "sign-in failed", "session", rt.ID, "error_kind", apperrors.Kind(err))
		WriteAppError(w, err)
		return
	}
	h.settle(r.Context(), rt)
	h.respondSignedIn(w, r, rt, c.RedirectURI)
}

// Signup creates an account. Without email confirmation the session is signed
// in right away; otherwise the response reports that confirmation is pending.
// POST /auth/signup.
func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	c, ok := readCredentials(w, r)
	if !ok {
		return
	}

	sess, err := rt.Backend.SignUp(r.Context(), ports.SignUpInput{
		Email:    c.Email,
		Password: c.Password,
		FullName: c.FullName,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if sess == nil {
		WriteJSON(w, http.StatusAccepted, map[string]any{
			"confirmation_required": true,
			"state":                 snapshot(rt),
		})
		return
	}
	h.settle(r.Context(), rt)
	WriteJSON(w, http.StatusCreated, map[string]any{
		"confirmation_required": false,
		"state":                 snapshot(rt),
	})
}

// OAuth starts a provider sign-in and redirects the browser to the provider.
// GET /auth/oauth/{provider}?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) OAuth(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}
	provider := chi.URLParam(r, "provider")

	authURL, err := rt.Backend.BeginOAuth(r.Context(), provider, h.OAuthRedirectURL)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     postLoginCookie,
		Value:    safeRedirectPath(r.URL.Query().Get("redirect_uri")),
		Path:     "/",
		Domain:   h.Cookie.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthCookieTTL.Seconds()),
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes a provider sign-in.
// GET /auth/callback?code=<code>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if desc := q.Get("error_description"); desc != "" || q.Get("error") != "" {
		if desc == "" {
			desc = q.Get("error")
		}
		h.logger().InfoContext(r.Context(), "provider sign-in denied", "reason", desc)
		http.Redirect(w, r, loginWithError(desc), http.StatusFound)
		return
	}
	rt, ok := h.runtime(w, r)
	if !ok {
		return
	}

	if _, err := rt.Backend.CompleteOAuth(r.Context(), q.Get("code")); err != nil {
		h.logger().WarnContext(r.Context(), "oauth exchange failed",
			"session", rt.ID,
			"error_kind", apperrors.Kind(err),
			"error", err,
		)
		http.Redirect(w, r, loginWithError("sign-in could not be completed"), http.StatusFound)
		return
	}
	h.settle(r.Context(), rt)

	redirectURI := "/"
	if c, err := r.Cookie(postLoginCookie); err == nil {
		redirectURI = safeRedirectPath(c.Value)
		clearCookie(w, r, postLoginCookie, h.Cookie.Domain)
	}
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

func loginWithError(msg string) string {
	q := url.Values{}
	q.Set("error", msg)
	return domainauth.LoginPath + "?" + q.Encode()
}

// Logout signs the browser session out.
// A sign-out the backend could not be reached for keeps the session and
// answers 503. A backend rejection still signs out locally and answers 502.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	rt, ok := RuntimeFromContext(r.Context())
	if !ok {
		clearCookie(w, r, h.Cookie.Name, h.Cookie.Domain)
		h.respondSignedOut(w, r)
		return
	}

	err := rt.Sync.SignOut(r.Context())
	var soe *service.SignOutError
	if errors.As(err, &soe) && soe.Kind == apperrors.ErrCodeNetwork {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":      "sign_out_failed",
			"kind":       soe.Kind,
			"message":    "the auth backend could not be reached; you are still signed in",
			"signed_out": false,
		})
		return
	}

	h.settle(r.Context(), rt)
	if forgetErr := h.Sessions.Forget(r.Context(), rt.ID); forgetErr != nil {
		h.logger().WarnContext(r.Context(), "forget session failed", "session", rt.ID, "error", forgetErr)
	}
	clearCookie(w, r, h.Cookie.Name, h.Cookie.Domain)

	if err != nil {
		kind := apperrors.ErrCodeUnexpected
		if soe != nil {
			kind = soe.Kind
		}
		h.logger().WarnContext(r.Context(), "backend sign-out failed", "session", rt.ID, "kind", kind, "error", err)
		WriteJSON(w, http.StatusBadGateway, map[string]any{
			"error":      "sign_out_failed",
			"kind":       kind,
			"message":    "signed out locally; the auth backend reported an error",
			"signed_out": true,
		})
		return
	}

	h.respondSignedOut(w, r)
}

func (h *AuthHandlers) respondSignedOut(w http.ResponseWriter, r *http.Request) {
	if IsBrowserRequest(r) {
		http.Redirect(w, r, domainauth.LoginPath, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"signed_out": true})
}

func (h *AuthHandlers) respondSignedIn(w http.ResponseWriter, r *http.Request, rt *service.SessionRuntime, redirectURI string) {
	if IsBrowserRequest(r) {
		http.Redirect(w, r, safeRedirectPath(redirectURI), http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusOK, snapshot(rt))
}

// State returns the session's identity snapshot.
// GET /api/auth/state.
func (h *AuthHandlers) State(w http.ResponseWriter, r *http.Request) {
	rt, ok := RuntimeFromContext(r.Context())
	if !ok {
		WriteJSON(w, http.StatusOK, anonymousState)
		return
	}
	awaitSettled(r.Context(), rt, h.SettleTimeout)
	WriteJSON(w, http.StatusOK, snapshot(rt))
}

// Admin reports whether the signed-in user holds an admin role.
// GET /api/auth/admin.
func (h *AuthHandlers) Admin(w http.ResponseWriter, r *http.Request) {
	rt, ok := RuntimeFromContext(r.Context())
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]bool{"is_admin": false})
		return
	}
	awaitSettled(r.Context(), rt, h.SettleTimeout)
	WriteJSON(w, http.StatusOK, map[string]bool{"is_admin": rt.Store.IsAdmin()})
}

// UpdateProfile edits the signed-in user's profile.
// PATCH /api/auth/profile.
func (h *AuthHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	rt, ok := runtimeOrFail(w, r)
	if !ok {
		return
	}
	var upd domainauth.ProfileUpdate
	if !DecodeJSON(w, r, &upd) {
		return
	}

	row, err := rt.Backend.UpdateProfile(r.Context(), upd)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	h.settle(r.Context(), rt)
	WriteJSON(w, http.StatusOK, map[string]any{"profile": row, "state": snapshot(rt)})
}
