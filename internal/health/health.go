// Package health serves the liveness and readiness probes.
package health

import (
	"fmt"
	"io"
	"net/http"
)

// Check returns nil when its dependency is usable, or the reason it is not.
type Check func() error

// Healthz reports liveness: 200 "ok" as long as the process serves HTTP.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

// Readyz runs every check in order and answers 503 with the first failure,
// or 200 "ready" when all pass.
func Readyz(checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, check := range checks {
			if err := check(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "not ready: %v\n", err)
				return
			}
		}
		io.WriteString(w, "ready\n")
	}
}
