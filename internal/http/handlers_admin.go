package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// adminSections are the admin views served behind the admin guard.
var adminSections = map[string]string{
	"":           "Overview",
	"dashboard":  "Dashboard",
	"moderation": "Deal moderation",
	"metrics":    "Metrics",
}

// adminPage describes an admin section to the SPA. The content itself is
// rendered client-side; the server only decides whether the caller may see it.
func adminPage(w http.ResponseWriter, r *http.Request) {
	section := chi.URLParam(r, "section")
	title, ok := adminSections[section]
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
		return
	}

	body := map[string]any{"section": section, "title": title}
	if rt, ok := RuntimeFromContext(r.Context()); ok {
		body["user"] = rt.Store.CurrentUser()
	}
	WriteJSON(w, http.StatusOK, body)
}

// me returns the bearer-authenticated caller's profile.
// GET /api/v1/me.
func me(w http.ResponseWriter, r *http.Request) {
	profile, ok := ProfileFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "authentication_required", Err: errNoProfile})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"user":     profile,
		"is_admin": profile.Roles.IsAdmin(),
	})
}

// adminPing confirms admin access for bearer-authenticated callers.
// GET /api/v1/admin/ping.
func adminPing(w http.ResponseWriter, r *http.Request) {
	profile, _ := ProfileFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "user_id": profile.ID})
}
