package config

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the gateway (e.g., "https://deals.example.com").
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain. Public suffixes are rejected.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// AllowedOrigins lists SPA origins allowed to call the gateway with credentials.
	AllowedOrigins []string `env:"APP_ALLOWED_ORIGINS" envDefault:"http://localhost:4200" envSeparator:","`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	h.CookieDomain = sanitizeCookieDomain(h.CookieDomain)

	origins := h.AllowedOrigins[:0]
	for _, o := range h.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	h.AllowedOrigins = origins
}

// sanitizeCookieDomain drops domains a browser would refuse or that would leak
// the cookie to unrelated sites (e.g. "com" or "github.io").
func sanitizeCookieDomain(domain string) string {
	d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	if d == "" {
		return ""
	}
	if suffix, _ := publicsuffix.PublicSuffix(d); suffix == d {
		return ""
	}
	return d
}
