package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/3dfirelab/satOverpass/internal/httputil"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// publicPaths never require a token: probes, metrics, the live page and the
// dataset and cache summaries.
var publicPaths = map[string]bool{
	"/":                    true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/tle/metadata": true,
	"/api/v1/cache/stats":  true,
}

// queryTokenPaths also accept the token as ?access_token=. Browser
// EventSource clients cannot set an Authorization header.
var queryTokenPaths = map[string]bool{
	"/api/v1/stream/look": true,
}

// requestToken extracts the bearer token from the request.
func requestToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	if queryTokenPaths[r.URL.Path] {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func (c Config) accepts(token string) bool {
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(c.Token)) == 1
}

// Middleware returns an HTTP middleware that enforces bearer token auth on
// every non-public path when auth is enabled. Prediction, streaming and
// refresh endpoints always require the token.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || cfg.accepts(requestToken(r)) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="satoverpass"`)
			httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}
