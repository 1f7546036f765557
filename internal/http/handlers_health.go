package httpx

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthResponse = `{"status":"ok"}`

// healthHandler is the liveness probe. It never touches dependencies.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, healthResponse)
	}
}

// ReadinessCheck probes one dependency.
type ReadinessCheck func(ctx context.Context) error

const readinessTimeout = 3 * time.Second

// readinessHandler runs every check concurrently and reports 503 if any fails.
func readinessHandler(checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		results := make([]string, len(names))
		var g errgroup.Group
		for i, name := range names {
			check := checks[name]
			g.Go(func() error {
				if err := check(ctx); err != nil {
					results[i] = "unavailable"
					return err
				}
				results[i] = "ok"
				return nil
			})
		}
		failed := g.Wait() != nil

		body := map[string]any{"status": "ok"}
		deps := make(map[string]string, len(names))
		for i, name := range names {
			deps[name] = results[i]
		}
		body["checks"] = deps

		status := http.StatusOK
		if failed {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			return
		}
		WriteJSON(w, status, body)
	}
}
