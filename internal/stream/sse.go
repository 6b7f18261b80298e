// Package stream serves live look angles over Server-Sent Events (SSE).
// Clients connect via GET /api/v1/stream/look and receive, every step
// seconds, the azimuth and elevation of the requested satellites as seen
// from one observer.
//
// SSE message format:
//
//	data: {"type":"look_batch","t":"2025-02-14T12:00:00Z","sat":[{"id":41335,"az":12.3,"el":41.7,...}]}\n\n
//
// First message is always metadata, and it is sent again whenever the
// active TLE dataset is replaced:
//
//	data: {"type":"metadata","dataset_fetched_at":"...","tle_age_seconds":1800,"observer":{...}}\n\n
//
// A crossing message is sent when a satellite's elevation passes the
// min_elevation threshold between two consecutive batches:
//
//	data: {"type":"crossing","t":"...","id":41335,"name":"SENTINEL-3A","kind":"rise","el":0.4,"az":187.2}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
package stream

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/3dfirelab/satOverpass/internal/httputil"
	"github.com/3dfirelab/satOverpass/internal/metrics"
	"github.com/3dfirelab/satOverpass/internal/propagation"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

const maxStreamSatellites = 64

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxStreams         int           // Max concurrent streams overall (default: 1000).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool
	Observer           transform.Observer // used when the request has no lat/lon
}

// Handler manages SSE streaming connections.
type Handler struct {
	store    *tle.Store
	registry *propagation.Registry
	pool     *propagation.WorkerPool
	config   Config
	limiter  *streamLimiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a new streaming handler.
func NewHandler(store *tle.Store, registry *propagation.Registry, pool *propagation.WorkerPool, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		store:    store,
		registry: registry,
		pool:     pool,
		config:   config,
		limiter:  newStreamLimiter(config.MaxConcurrentPerIP, config.MaxStreams),
		logger:   logger.With("component", "stream"),
		now:      time.Now,
	}
}

// streamRequest is a parsed and validated stream query.
type streamRequest struct {
	step      time.Duration
	observer  transform.Observer
	threshold float64
	keys      []string // empty streams every satellite in the dataset
}

func (h *Handler) parseRequest(r *http.Request) (streamRequest, error) {
	q := r.URL.Query()
	req := streamRequest{step: 5 * time.Second, observer: h.config.Observer}

	if v := q.Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			return req, fmt.Errorf("invalid step parameter, must be 1-60")
		}
		req.step = time.Duration(n) * time.Second
	}

	if v := q.Get("min_elevation"); v != "" {
		el, err := strconv.ParseFloat(v, 64)
		if err != nil || el < -90 || el >= 90 {
			return req, fmt.Errorf("invalid min_elevation parameter, must be in [-90, 90)")
		}
		req.threshold = el
	}

	lat, lon := q.Get("lat"), q.Get("lon")
	if lat != "" || lon != "" {
		latDeg, err1 := strconv.ParseFloat(lat, 64)
		lonDeg, err2 := strconv.ParseFloat(lon, 64)
		if err1 != nil || err2 != nil {
			return req, fmt.Errorf("lat and lon must both be numbers")
		}
		var alt float64
		if v := q.Get("alt"); v != "" {
			var err error
			if alt, err = strconv.ParseFloat(v, 64); err != nil {
				return req, fmt.Errorf("invalid alt parameter")
			}
		}
		obs, err := transform.NewObserver(latDeg, lonDeg, alt)
		if err != nil {
			return req, err
		}
		req.observer = obs
	}

	for _, v := range q["sat"] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				req.keys = append(req.keys, s)
			}
		}
	}
	if len(req.keys) > maxStreamSatellites {
		return req, fmt.Errorf("at most %d satellites per stream", maxStreamSatellites)
	}
	return req, nil
}

// HandleLook serves the SSE look-angle stream.
// GET /api/v1/stream/look?sat=25544&step=5&lat=43.6&lon=1.44&min_elevation=10
func (h *Handler) HandleLook(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.store.Get() == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no TLE dataset loaded")
		return
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, ok := h.limiter.acquire(ip)
	if !ok {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
			"active_streams", h.limiter.active(),
		)
		w.Header().Set("Retry-After", "30")
		httputil.WriteError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", req.step.String(),
		"observer", req.observer.String(),
		"satellites", len(req.keys),
	)

	defer func() {
		release()
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)

	// Middleware wrappers expose the connection through Unwrap.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		metrics.IncStreamErrors("flush_unsupported")
		h.logger.Error("stream cannot flush", "remote_ip", ip, "error", err)
		return
	}
	// Clear the server's default WriteTimeout for this connection.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{w: w, rc: rc, ip: ip, logger: h.logger}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	if err := c.sendRetry(retryMs); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	s := &session{h: h, req: req, c: c, prev: make(map[int]float64)}
	ctx := r.Context()
	changed := h.store.Changed()

	ticker := time.NewTicker(req.step)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	send := func() bool {
		if err := s.tick(ctx, h.now()); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return false
		}
		keepaliveTicker.Reset(h.config.KeepaliveInterval)
		return true
	}

	// The first batch goes out immediately; later ones follow the ticker.
	if !send() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-changed:
			// A new dataset goes out at once with its metadata.
			changed = h.store.Changed()
			ticker.Reset(req.step)
			if !send() {
				return
			}

		case <-ticker.C:
			if !send() {
				return
			}

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}
