package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/3dfirelab/satOverpass/internal/auth"
	"github.com/3dfirelab/satOverpass/internal/cache"
	"github.com/3dfirelab/satOverpass/internal/health"
	"github.com/3dfirelab/satOverpass/internal/httputil"
	"github.com/3dfirelab/satOverpass/internal/metrics"
	"github.com/3dfirelab/satOverpass/internal/passes"
	"github.com/3dfirelab/satOverpass/internal/propagation"
	"github.com/3dfirelab/satOverpass/internal/stream"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
	"github.com/3dfirelab/satOverpass/web"
)

// Deps are the components the handlers serve from.
type Deps struct {
	Store     *tle.Store
	Acquirer  *tle.Acquirer // nil disables POST /api/v1/tle/fetch
	Predictor *passes.Predictor
	Cache     *cache.ReportCache
	Registry  *propagation.Registry
	Pool      *propagation.WorkerPool
	Stream    *stream.Handler // nil disables GET /api/v1/stream/look

	// Request defaults.
	Observer   transform.Observer
	Satellites []string
	Threshold  float64
	Horizon    time.Duration

	TrustProxy bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// route binds a method and path pattern to a handler.
type route struct {
	pattern string
	handler http.Handler
}

func (h *handlers) routes() []route {
	d := h.deps
	rs := []route{
		{"GET /healthz", http.HandlerFunc(health.Healthz)},
		{"GET /readyz", health.Readyz(d.datasetLoaded)},
		{"GET /metrics", metrics.Handler()},
		{"GET /api/v1/passes", http.HandlerFunc(h.passes)},
		{"GET /api/v1/passes/{norad_id}", http.HandlerFunc(h.passesSingle)},
		{"GET /api/v1/look", http.HandlerFunc(h.look)},
		{"GET /api/v1/propagate/{norad_id}", http.HandlerFunc(h.propagate)},
		{"GET /api/v1/tle/metadata", http.HandlerFunc(h.tleMetadata)},
		{"POST /api/v1/tle/fetch", http.HandlerFunc(h.tleFetch)},
		{"GET /api/v1/cache/stats", http.HandlerFunc(h.cacheStats)},
	}
	if d.Stream != nil {
		rs = append(rs,
			route{"GET /api/v1/stream/look", http.HandlerFunc(d.Stream.HandleLook)},
			route{"GET /{$}", http.FileServerFS(web.Content)},
		)
	}
	return rs
}

func (d Deps) datasetLoaded() error {
	if d.Store.Get() == nil {
		return errors.New("no TLE dataset loaded")
	}
	return nil
}

// NewServer creates a configured HTTP server. Requests pass through metrics,
// then access logging, then auth before reaching a route.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	h := &handlers{deps: deps, logger: logger.With("component", "api")}
	mux := http.NewServeMux()
	for _, r := range h.routes() {
		mux.Handle(r.pattern, r.handler)
	}

	handler := metrics.Middleware(
		accessLog(logger, deps.TrustProxy)(
			auth.Middleware(authCfg)(mux)))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      60 * time.Second, // cleared per connection by streams
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server, for shutdown.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// quietPaths are polled by probes and scrapers and log at debug level.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

func accessLog(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if quietPaths[r.URL.Path] {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sr.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
