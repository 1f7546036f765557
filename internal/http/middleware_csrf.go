package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultCSRFCookieName also serves as the form field name.
	DefaultCSRFCookieName = "csrf_token"
	// DefaultCSRFHeaderName is the header the SPA echoes the token in.
	DefaultCSRFHeaderName = "X-Csrf-Token"

	csrfTokenBytes  = 32
	csrfCookieTTL   = 12 * time.Hour
	csrfFailMessage = "CSRF token validation failed"
)

// CSRFConfig configures CSRFProtection. Zero values take the defaults above.
type CSRFConfig struct {
	CookieName   string
	HeaderName   string
	CookieDomain string
	// Exempt skips validation for requests that do not ride on the session
	// cookie, such as bearer-authenticated API calls.
	Exempt func(*http.Request) bool
}

// CSRFProtection guards cookie-authenticated login, logout and profile
// writes with a double-submit cookie. The token is issued on first contact,
// exposed on GET /api/auth/csrf, and must come back in the header (or the
// csrf_token form field) on every unsafe method.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCSRFCookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultCSRFHeaderName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				token = c.Value
			}
			if token == "" {
				buf := make([]byte, csrfTokenBytes)
				if _, err := rand.Read(buf); err != nil {
					http.Error(w, "unable to issue CSRF token", http.StatusInternalServerError)
					return
				}
				token = base64.RawURLEncoding.EncodeToString(buf)
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    token,
					Path:     "/",
					Domain:   cfg.CookieDomain,
					Secure:   isSecureRequest(r),
					SameSite: http.SameSiteLaxMode,
					MaxAge:   int(csrfCookieTTL / time.Second),
				})
			}
			r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token))

			if isUnsafeMethod(r.Method) && (cfg.Exempt == nil || !cfg.Exempt(r)) {
				if !tokensMatch(submittedCSRFToken(r, cfg), token) {
					http.Error(w, csrfFailMessage, http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// submittedCSRFToken prefers the header. Form bodies are only parsed for
// form content types so JSON bodies stay untouched for the handler.
func submittedCSRFToken(r *http.Request, cfg CSRFConfig) string {
	if v := r.Header.Get(cfg.HeaderName); v != "" {
		return v
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	if mediaType != "application/x-www-form-urlencoded" && mediaType != "multipart/form-data" {
		return ""
	}
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.PostFormValue(cfg.CookieName)
}

func tokensMatch(submitted, expected string) bool {
	if submitted == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) == 1
}

// isForwardedHTTPS honors a proxy's X-Forwarded-Proto, which may be a list.
func isForwardedHTTPS(r *http.Request) bool {
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

type csrfTokenKey struct{}

// GetCSRFToken returns the token CSRFProtection attached to the request.
func GetCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}

// HasBearerToken exempts requests authenticated by an Authorization header.
func HasBearerToken(r *http.Request) bool {
	_, ok := bearerToken(r)
	return ok
}

// GET /api/auth/csrf.
func csrfTokenHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"csrf_token": GetCSRFToken(r)})
}
