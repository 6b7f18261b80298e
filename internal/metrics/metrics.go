package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satoverpass_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "satoverpass_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	tleFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satoverpass_tle_fetch_total",
			Help: "TLE source fetches by result.",
		},
		[]string{"result"},
	)

	tleDatasetCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satoverpass_tle_dataset_satellites",
		Help: "Number of valid records in the active TLE dataset.",
	})

	tleDatasetAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satoverpass_tle_dataset_age_seconds",
		Help: "Seconds since the active TLE dataset was fetched.",
	})

	propagationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satoverpass_propagation_failures_total",
			Help: "SGP4 propagation failures by kind.",
		},
		[]string{"kind"},
	)

	passesPredictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satoverpass_passes_predicted_total",
		Help: "Passes reported by the event detector.",
	})

	skippedSamplesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satoverpass_skipped_samples_total",
		Help: "Elevation samples skipped because propagation failed.",
	})

	predictionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satoverpass_prediction_failures_total",
			Help: "Per-satellite pass prediction failures by kind.",
		},
		[]string{"kind"},
	)

	batchDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "satoverpass_batch_duration_seconds",
		Help:    "Wall time of a pass prediction batch.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	reportCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satoverpass_report_cache_hits_total",
		Help: "Pass report cache hits.",
	})

	reportCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satoverpass_report_cache_misses_total",
		Help: "Pass report cache misses.",
	})

	reportCacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satoverpass_report_cache_entries",
		Help: "Pass reports currently cached.",
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satoverpass_stream_connections_total",
			Help: "Look-angle stream connects and disconnects.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satoverpass_streams_active",
		Help: "Open look-angle streams.",
	})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satoverpass_stream_messages_total",
		Help: "SSE data messages sent.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "satoverpass_stream_bytes_total",
		Help: "Bytes written to SSE clients.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "satoverpass_stream_errors_total",
			Help: "Look-angle stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		tleFetchTotal,
		tleDatasetCount,
		tleDatasetAge,
		propagationFailuresTotal,
		passesPredictedTotal,
		skippedSamplesTotal,
		predictionFailuresTotal,
		batchDurationSeconds,
		reportCacheHits,
		reportCacheMisses,
		reportCacheEntries,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTLEFetch counts one fetch attempt; result is "ok" or "error".
func RecordTLEFetch(result string) { tleFetchTotal.WithLabelValues(result).Inc() }

// SetTLEDatasetCount sets the number of records in the active dataset.
func SetTLEDatasetCount(n int) { tleDatasetCount.Set(float64(n)) }

// SetTLEDatasetAge sets the active dataset age in seconds.
func SetTLEDatasetAge(sec float64) { tleDatasetAge.Set(sec) }

// RecordPropagationFailure counts one failed SGP4 evaluation.
func RecordPropagationFailure(kind string) { propagationFailuresTotal.WithLabelValues(kind).Inc() }

// RecordPassesPredicted adds n detected passes.
func RecordPassesPredicted(n int) { passesPredictedTotal.Add(float64(n)) }

// RecordSkippedSamples adds n skipped elevation samples.
func RecordSkippedSamples(n int) {
	if n > 0 {
		skippedSamplesTotal.Add(float64(n))
	}
}

// RecordPredictionFailure counts one satellite that failed in a batch.
func RecordPredictionFailure(kind string) { predictionFailuresTotal.WithLabelValues(kind).Inc() }

// ObserveBatchDuration records the wall time of one batch.
func ObserveBatchDuration(d time.Duration) { batchDurationSeconds.Observe(d.Seconds()) }

func RecordReportCacheHit()       { reportCacheHits.Inc() }
func RecordReportCacheMiss()      { reportCacheMisses.Inc() }
func SetReportCacheEntries(n int) { reportCacheEntries.Set(float64(n)) }

// IncStreamConnections counts a stream event; event is "connect" or "disconnect".
func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }

func IncStreamsActive()  { streamsActive.Inc() }
func DecStreamsActive()  { streamsActive.Dec() }
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes adds n bytes written to stream clients.
func AddStreamBytes(n int) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// knownRoutes are the exact paths served; anything else is "other".
var knownRoutes = map[string]bool{
	"/":                    true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/passes":       true,
	"/api/v1/look":         true,
	"/api/v1/tle/metadata": true,
	"/api/v1/tle/fetch":    true,
	"/api/v1/cache/stats":  true,
	"/api/v1/stream/look":  true,
}

// paramRoutes end in a catalog number.
var paramRoutes = []string{
	"/api/v1/passes/",
	"/api/v1/propagate/",
}

// normalizeRoute maps a request path to a bounded label set.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	for _, prefix := range paramRoutes {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return prefix + "{norad_id}"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the connection for flushing.
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
