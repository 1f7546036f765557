package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Sessions SessionAcquirer
	Cookie   CookieConfig
	// Bearer enables /api/v1 token-authenticated routes when its verifier is set.
	Bearer           BearerConfig
	AllowedOrigins   []string
	OAuthRedirectURL string
	// ReadyTimeout bounds how long a request waits for a restoring session
	// before the guard decides.
	ReadyTimeout time.Duration
	Readiness    map[string]ReadinessCheck
	// Closing is closed when the server starts shutting down.
	Closing <-chan struct{}
	Logger  *slog.Logger
}

// DefaultCORSOptions returns the CORS policy for the SPA origins.
func DefaultCORSOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization", DefaultCSRFHeaderName, "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter assembles the chi router: shared middleware, cookie-session routes
// for the SPA and bearer-token routes for API clients.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if services.Cookie.Name == "" {
		services.Cookie.Name = DefaultSessionCookieName
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Recover(logger))
	r.Use(Logging(logger))
	r.Use(BrowserDetection())
	if len(services.AllowedOrigins) > 0 {
		r.Use(cors.Handler(DefaultCORSOptions(services.AllowedOrigins)))
	}

	r.Get("/healthz", healthHandler)
	r.Head("/healthz", healthHandler)
	readyz := readinessHandler(services.Readiness)
	r.Get("/readyz", readyz)
	r.Head("/readyz", readyz)

	auth := &AuthHandlers{
		Sessions:         services.Sessions,
		Cookie:           services.Cookie,
		OAuthRedirectURL: services.OAuthRedirectURL,
		SettleTimeout:    services.ReadyTimeout,
		Logger:           logger,
	}
	events := &StateEvents{
		Sessions: services.Sessions,
		Cookie:   services.Cookie,
		Closing:  services.Closing,
		Logger:   logger,
	}

	r.Group(func(r chi.Router) {
		r.Use(CSRFProtection(CSRFConfig{
			CookieDomain: services.Cookie.Domain,
			Exempt:       HasBearerToken,
		}))
		r.Use(Sessions(services.Sessions, services.Cookie, logger))

		r.Get("/api/auth/csrf", csrfTokenHandler)
		r.Get("/api/auth/state", auth.State)
		r.Get("/api/auth/admin", auth.Admin)
		r.Get("/api/auth/events", events.ServeHTTP)

		r.Post("/auth/login", auth.Login)
		r.Post("/auth/signup", auth.Signup)
		r.Post("/auth/logout", auth.Logout)
		r.Get("/auth/oauth/{provider}", auth.OAuth)
		r.Get("/auth/callback", auth.Callback)

		r.With(RequireRole(domainauth.RequireAuthenticated, services.ReadyTimeout)).
			Patch("/api/auth/profile", auth.UpdateProfile)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(domainauth.RequireAdmin, services.ReadyTimeout))
			r.Get("/", adminPage)
			r.Get("/{section}", adminPage)
		})
	})

	if services.Bearer.Verifier != nil && services.Bearer.Resolver != nil {
		if services.Bearer.Logger == nil {
			services.Bearer.Logger = logger
		}
		r.Route("/api/v1", func(r chi.Router) {
			r.With(RequireBearer(services.Bearer, domainauth.RequireAuthenticated)).Get("/me", me)
			r.With(RequireBearer(services.Bearer, domainauth.RequireAdmin)).Get("/admin/ping", adminPing)
		})
	}

	return r
}
