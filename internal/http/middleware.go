package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	"github.com/dealshub/dealshub-go/internal/service"
)

type browserRequestKey struct{}

// BrowserDetection records once per request whether the caller is a browser
// navigation, so denials can choose between a redirect and a JSON error.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest reports the value BrowserDetection stored, classifying the
// request directly when the middleware did not run.
func IsBrowserRequest(r *http.Request) bool {
	if v, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return v
	}
	return isBrowserRequest(r)
}

// isBrowserRequest: /api/ paths, XHR, fetch() in cors mode and clients that
// do not accept HTML are API callers. A missing Accept header on a page path
// counts as a browser.
func isBrowserRequest(r *http.Request) bool {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		return false
	case strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest"):
		return false
	case strings.EqualFold(r.Header.Get("Sec-Fetch-Mode"), "cors"):
		return false
	}
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html")
}

// SessionAcquirer hands out the runtime of a browser session.
type SessionAcquirer interface {
	Acquire(ctx context.Context, id string) (*service.SessionRuntime, error)
	Restore(ctx context.Context, id string) (*service.SessionRuntime, bool, error)
	Forget(ctx context.Context, id string) error
}

// CookieConfig controls the browser session cookie.
type CookieConfig struct {
	Name   string
	Domain string
	MaxAge time.Duration
}

// DefaultSessionCookieName is the browser session cookie name.
const DefaultSessionCookieName = "dh_session"

// Sessions attaches the runtime of the browser's session to the request when
// the cookie names a live or persisted session. Requests without one carry no
// runtime; handlers that change identity mint a session on demand.
func Sessions(acq SessionAcquirer, cookie CookieConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if cookie.Name == "" {
		cookie.Name = DefaultSessionCookieName
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookie.Name)
			if err != nil || c.Value == "" || acq == nil {
				next.ServeHTTP(w, r)
				return
			}

			rt, ok, err := acq.Restore(r.Context(), c.Value)
			if err != nil {
				logger.ErrorContext(r.Context(), "restore session failed", "error", err)
				writeSessionUnavailable(w)
				return
			}
			if !ok {
				clearCookie(w, r, cookie.Name, cookie.Domain)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetRuntimeInContext(r.Context(), rt)))
		})
	}
}

// ensureRuntime returns the request's session runtime, minting a session and
// setting its cookie when the browser has none.
func ensureRuntime(w http.ResponseWriter, r *http.Request, acq SessionAcquirer, cookie CookieConfig, logger *slog.Logger) (*service.SessionRuntime, bool) {
	if rt, ok := RuntimeFromContext(r.Context()); ok {
		return rt, true
	}
	if acq == nil {
		writeSessionUnavailable(w)
		return nil, false
	}
	if cookie.Name == "" {
		cookie.Name = DefaultSessionCookieName
	}
	rt, err := acq.Acquire(r.Context(), "")
	if err != nil {
		logger.ErrorContext(r.Context(), "mint session failed", "error", err)
		writeSessionUnavailable(w)
		return nil, false
	}
	setSessionCookie(w, r, cookie, rt.ID)
	return rt, true
}

func writeSessionUnavailable(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusServiceUnavailable,
		ErrCode: "session_unavailable",
		Err:     errors.New("session store unavailable"),
	})
}

// awaitSettled gives the session's initial check up to timeout to finish so
// decisions are made on the restored identity rather than the CHECKING state.
func awaitSettled(ctx context.Context, rt *service.SessionRuntime, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_ = rt.Sync.Ready(ctx)
}

// RequireRole returns a middleware that runs the session's guard for every request.
// For browser requests a denial redirects (303) to the guard's target.
// For API requests it returns 401 when the target is the login page and 403 otherwise.
func RequireRole(required domainauth.RequiredRole, readyTimeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rt, ok := RuntimeFromContext(r.Context())
			if !ok {
				deny(w, r, domainauth.Redirect(domainauth.LoginPath))
				return
			}
			awaitSettled(r.Context(), rt, readyTimeout)

			decision := rt.Guard.CheckAccess(required)
			if !decision.Allowed {
				deny(w, r, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, d domainauth.Decision) {
	target := d.RedirectTo
	if target == "" {
		target = domainauth.LoginPath
	}
	if IsBrowserRequest(r) {
		if target == domainauth.LoginPath {
			target = loginRedirect(r)
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	if target == domainauth.LoginPath {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusForbidden,
		ErrCode: "insufficient_permissions",
		Err:     errors.New("insufficient permissions"),
	})
}

// loginRedirect builds the login URL carrying the current path as redirect_uri.
func loginRedirect(r *http.Request) string {
	q := url.Values{}
	q.Set("redirect_uri", safeRedirectPath(r.URL.RequestURI()))
	return domainauth.LoginPath + "?" + q.Encode()
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" || strings.ContainsRune(candidate, '\\') {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return candidate
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || isForwardedHTTPS(r)
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, cfg CookieConfig, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    id,
		Path:     "/",
		Domain:   cfg.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(cfg.MaxAge.Seconds()),
	})
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors the attributes used when setting cookies so browsers drop it.
func clearCookie(w http.ResponseWriter, r *http.Request, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
