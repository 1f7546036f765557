package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
	apperrors "github.com/dealshub/dealshub-go/internal/errors"
	"github.com/dealshub/dealshub-go/internal/mocks"
	authmocks "github.com/dealshub/dealshub-go/internal/mocks/auth"
	"github.com/dealshub/dealshub-go/internal/service"
)

func TestSafeRedirectPath(t *testing.T) {
	tests := map[string]string{
		"":                          "/",
		"/admin":                    "/admin",
		"/admin?tab=metrics":        "/admin?tab=metrics",
		"//evil.example":            "/",
		"https://evil.example/x":    "/",
		"admin":                     "/",
		"/\\evil":                   "/",
		"javascript:alert(1)":       "/",
		"/deals/42#comments":        "/deals/42#comments",
		"http://localhost/redirect": "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeRedirectPath(in), "input %q", in)
	}
}

func TestIsBrowserRequest(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   bool
	}{
		{name: "html navigation", path: "/admin", header: map[string]string{"Accept": "text/html"}, want: true},
		{name: "no accept header", path: "/admin", want: true},
		{name: "api path", path: "/api/auth/state", header: map[string]string{"Accept": "text/html"}, want: false},
		{name: "xhr", path: "/admin", header: map[string]string{"X-Requested-With": "XMLHttpRequest"}, want: false},
		{name: "fetch cors", path: "/admin", header: map[string]string{"Sec-Fetch-Mode": "cors", "Accept": "text/html"}, want: false},
		{name: "json client", path: "/admin", header: map[string]string{"Accept": "application/json"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, isBrowserRequest(req))
		})
	}
}

func TestDeny(t *testing.T) {
	tests := []struct {
		name     string
		accept   string
		decision domainauth.Decision
		status   int
		location string
	}{
		{name: "browser to login", accept: "text/html", decision: domainauth.Redirect(domainauth.LoginPath), status: http.StatusSeeOther, location: "/auth?redirect_uri=%2Fadmin%2Fmetrics"},
		{name: "browser to home", accept: "text/html", decision: domainauth.Redirect(domainauth.HomePath), status: http.StatusSeeOther, location: "/"},
		{name: "api to login", accept: "application/json", decision: domainauth.Redirect(domainauth.LoginPath), status: http.StatusUnauthorized},
		{name: "api to home", accept: "application/json", decision: domainauth.Redirect(domainauth.HomePath), status: http.StatusForbidden},
		{name: "empty target", accept: "application/json", decision: domainauth.Decision{}, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/metrics", nil)
			req.Header.Set("Accept", tt.accept)
			rec := httptest.NewRecorder()

			deny(rec, req, tt.decision)

			assert.Equal(t, tt.status, rec.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestRequireRole_WithoutSession(t *testing.T) {
	called := false
	h := RequireRole(domainauth.RequireAdmin, time.Second)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.Validation("bad"), http.StatusBadRequest},
		{apperrors.Unauthorized("who"), http.StatusUnauthorized},
		{apperrors.NotFound("gone"), http.StatusNotFound},
		{apperrors.AuthBackend("rejected"), http.StatusBadGateway},
		{apperrors.Network(context.DeadlineExceeded, "unreachable"), http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteAppError(rec, tt.err)
		assert.Equal(t, tt.status, rec.Code, "error %v", tt.err)
	}
}

func newBearerHandler(t *testing.T, verifier *mocks.MockTokenVerifier, required domainauth.RequiredRole) (http.Handler, *authmocks.MemoryProfiles) {
	t.Helper()
	profiles := authmocks.NewMemoryProfiles()
	resolver, err := service.NewBearerResolver(service.SharedProfiles(profiles), service.ProfileResolverOptions{})
	require.NoError(t, err)

	mw := RequireBearer(BearerConfig{Verifier: verifier, Resolver: resolver}, required)
	return mw(http.HandlerFunc(me)), profiles
}

func TestRequireBearer(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockTokenVerifier(ctrl)
	exp := time.Now().Add(time.Hour)

	adminOnly, profiles := newBearerHandler(t, verifier, domainauth.RequireAdmin)
	profiles.Put(domainauth.ProfileRow{ID: "u-admin", FullName: "Ann"}, " SuperAdmin ")
	profiles.Put(domainauth.ProfileRow{ID: "u-user", FullName: "Bo"}, "user")

	verifier.EXPECT().Verify(gomock.Any(), "admin-token").
		Return(domainauth.Principal{ID: "u-admin", Email: "ann@x.io"}, exp, nil)
	verifier.EXPECT().Verify(gomock.Any(), "user-token").
		Return(domainauth.Principal{ID: "u-user", Email: "bo@x.io"}, exp, nil)
	verifier.EXPECT().Verify(gomock.Any(), "bad-token").
		Return(domainauth.Principal{}, time.Time{}, apperrors.Unauthorized("token expired"))

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		adminOnly.ServeHTTP(rec, req)
		return rec
	}

	rec := call("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	rec = call("Bearer bad-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")

	rec = call("Bearer user-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call("bearer admin-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_admin":true`)
	assert.Contains(t, rec.Body.String(), `"display_name":"Ann"`)
}

func TestRequireBearer_FallbackProfileIsAuthenticated(t *testing.T) {
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockTokenVerifier(ctrl)
	handler, _ := newBearerHandler(t, verifier, domainauth.RequireAuthenticated)

	verifier.EXPECT().Verify(gomock.Any(), "tok").
		Return(domainauth.Principal{ID: "ghost", Email: "ghost@x.io"}, time.Now().Add(time.Hour), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display_name":"ghost@x.io"`)
	assert.Contains(t, rec.Body.String(), `"is_admin":false`)
}
