package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overrides c from SATOVERPASS_* variables. An invalid value is
// logged and the current setting kept. Call Validate afterwards.
func (c *Config) ApplyEnv(logger *slog.Logger) {
	e := envReader{logger: logger, lookup: os.LookupEnv}

	e.float("SATOVERPASS_LAT", &c.Observer.Lat)
	e.float("SATOVERPASS_LON", &c.Observer.Lon)
	e.float("SATOVERPASS_ALT", &c.Observer.AltM)
	e.list("SATOVERPASS_SATELLITES", &c.Satellites)

	e.list("SATOVERPASS_TLE_SOURCES", &c.TLE.Sources)
	e.str("SATOVERPASS_TLE_FILE", &c.TLE.File)
	e.str("SATOVERPASS_TLE_CACHE_DIR", &c.TLE.CacheDir)
	e.positive("SATOVERPASS_TLE_MAX_FILES", &c.TLE.MaxFiles)
	e.positive("SATOVERPASS_TLE_MAX_AGE", &c.TLE.MaxAgeSec)
	e.boolean("SATOVERPASS_OFFLINE", &c.TLE.Offline)

	e.float("SATOVERPASS_HORIZON_HOURS", &c.Prediction.HorizonHours)
	e.float("SATOVERPASS_MIN_ELEVATION", &c.Prediction.MinElevation)
	e.positive("SATOVERPASS_STEP", &c.Prediction.StepSec)
	e.positive("SATOVERPASS_WORKERS", &c.Prediction.Workers)

	e.str("SATOVERPASS_FORMAT", &c.Output.Format)
	e.str("SATOVERPASS_POSTGRES_DSN", &c.Sink.Postgres.DSN)
	e.str("SATOVERPASS_POSTGRES_TABLE", &c.Sink.Postgres.Table)

	e.str("SATOVERPASS_HTTP_ADDR", &c.Server.Addr)
	e.boolean("SATOVERPASS_AUTH_ENABLED", &c.Server.Auth.Enabled)
	e.str("SATOVERPASS_AUTH_TOKEN", &c.Server.Auth.Token)
	e.boolean("SATOVERPASS_TRUST_PROXY", &c.Server.TrustProxy)
	e.boolean("SATOVERPASS_ENABLE_TLE_FETCH", &c.Server.EnableFetch)
	e.positive("SATOVERPASS_REFRESH", &c.Server.RefreshSec)
	e.positive("SATOVERPASS_STREAM_MAX_PER_IP", &c.Server.StreamMaxPerIP)
	e.positive("SATOVERPASS_STREAM_KEEPALIVE", &c.Server.StreamKeepaliveSec)

	e.str("SATOVERPASS_LOG_LEVEL", &c.Log.Level)
	c.Output.Format = strings.ToLower(c.Output.Format)
	c.Log.Level = strings.ToLower(c.Log.Level)
}

type envReader struct {
	logger *slog.Logger
	lookup func(string) (string, bool)
}

func (e envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func (e envReader) float(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = f
}

func (e envReader) positive(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		e.logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = n
}

func (e envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.logger.Warn("invalid "+key+" value, using default", "value", v, "default", *dst)
		return
	}
	*dst = b
}
