package httpserver

import (
	"context"
	"net/http"
)

// Check probes one backing dependency.
type Check func(ctx context.Context) error

// Readiness serves the probe endpoint. Every registered check must pass;
// the first failure yields 503 naming the dependency so operators can tell
// which backend is down without reading logs.
func Readiness(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
