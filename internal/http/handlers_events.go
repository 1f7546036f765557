// Package httpx exposes the Deals Hub auth core over HTTP: cookie sessions for
// the SPA, bearer-token access for API clients and the admin route guard.
package httpx

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/dealshub/dealshub-go/internal/domain/auth"
)

const defaultHeartbeat = 25 * time.Second

// StateEvents streams the session's identity changes as server-sent events.
type StateEvents struct {
	// Sessions mints a session for browsers that subscribe without one.
	Sessions  SessionAcquirer
	Cookie    CookieConfig
	Heartbeat time.Duration
	// Closing, when closed, ends every open stream so server shutdown does
	// not wait out the drain timeout on idle tabs.
	Closing <-chan struct{}
	Logger  *slog.Logger
}

func (h *StateEvents) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// ServeHTTP streams "auth-state" events until the client goes away or the
// session is closed. The first event carries the current state. A closed
// session ends the stream with a "session-ended" event so the client
// re-reads its state.
// GET /api/auth/events.
func (h *StateEvents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt, ok := ensureRuntime(w, r, h.Sessions, h.Cookie, h.logger())
	if !ok {
		return
	}
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger().WarnContext(r.Context(), "event stream unsupported", "error", err)
		return
	}

	unsubscribe, states := rt.Store.Subscribe()
	defer unsubscribe()

	interval := h.Heartbeat
	if interval <= 0 {
		interval = defaultHeartbeat
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.Closing:
			_, _ = fmt.Fprint(w, "event: server-closing\ndata: {}\n\n")
			_ = rc.Flush()
			return
		case st, open := <-states:
			if !open {
				_, _ = fmt.Fprint(w, "event: session-ended\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			if err := writeStateEvent(w, st, rt.Store.SyncState()); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeStateEvent(w http.ResponseWriter, st domainauth.AuthState, sync domainauth.SyncState) error {
	payload, err := json.Marshal(stateResponse{
		SyncState:       sync,
		IsAuthenticated: st.IsAuthenticated,
		IsAdmin:         st.IsAdmin(),
		CurrentUser:     st.CurrentUser,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: auth-state\ndata: %s\n\n", payload)
	return err
}
