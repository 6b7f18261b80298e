// Package config loads satOverpass settings from a YAML file and SATOVERPASS_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/3dfirelab/satOverpass/internal/tle"
)

// Config is the complete configuration of the CLI and the server.
type Config struct {
	Observer   ObserverConfig   `yaml:"observer"`
	Satellites []string         `yaml:"satellites"`
	TLE        TLEConfig        `yaml:"tle"`
	Prediction PredictionConfig `yaml:"prediction"`
	Output     OutputConfig     `yaml:"output"`
	Sink       SinkConfig       `yaml:"sink"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// ObserverConfig is the ground site. Altitude is metres above the WGS-84
// ellipsoid.
type ObserverConfig struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
	AltM float64 `yaml:"alt_m"`
}

type TLEConfig struct {
	Sources    []string `yaml:"sources"`
	File       string   `yaml:"file"` // local TLE file, read instead of the network
	CacheDir   string   `yaml:"cache_dir"`
	MaxFiles   int      `yaml:"max_files"`
	MaxAgeSec  int      `yaml:"max_age"`
	Offline    bool     `yaml:"offline"`
	RatePerSec float64  `yaml:"rate"`
	RateBurst  int      `yaml:"burst"`
}

// MaxAge is the cache freshness limit.
func (c TLEConfig) MaxAge() time.Duration { return time.Duration(c.MaxAgeSec) * time.Second }

type PredictionConfig struct {
	HorizonHours   float64 `yaml:"horizon_hours"`
	MinElevation   float64 `yaml:"min_elevation"`
	StepSec        int     `yaml:"step_seconds"`
	ToleranceMS    int     `yaml:"tolerance_ms"`
	Workers        int     `yaml:"workers"`
	GroundTrackSec int     `yaml:"ground_track_seconds"`
}

func (c PredictionConfig) Horizon() time.Duration {
	return time.Duration(c.HorizonHours * float64(time.Hour))
}

func (c PredictionConfig) Step() time.Duration { return time.Duration(c.StepSec) * time.Second }

func (c PredictionConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceMS) * time.Millisecond
}

func (c PredictionConfig) GroundTrackStep() time.Duration {
	return time.Duration(c.GroundTrackSec) * time.Second
}

type OutputConfig struct {
	Format string `yaml:"format"` // table, csv or json
}

type SinkConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type ServerConfig struct {
	Addr        string     `yaml:"addr"`
	Auth        AuthConfig `yaml:"auth"`
	TrustProxy  bool       `yaml:"trust_proxy"`
	EnableFetch bool       `yaml:"enable_fetch"`
	RefreshSec  int        `yaml:"refresh_seconds"`
	CacheSize   int        `yaml:"report_cache_entries"`
	CacheTTLSec int        `yaml:"report_cache_ttl_seconds"`

	StreamMaxPerIP     int `yaml:"stream_max_per_ip"`
	StreamKeepaliveSec int `yaml:"stream_keepalive_seconds"`
}

func (c ServerConfig) Refresh() time.Duration { return time.Duration(c.RefreshSec) * time.Second }

func (c ServerConfig) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSec) * time.Second }

func (c ServerConfig) StreamKeepalive() time.Duration {
	return time.Duration(c.StreamKeepaliveSec) * time.Second
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default satellites tracked when none are configured.
var DefaultSatellites = []string{
	"SENTINEL-3A",
	"SENTINEL-3B",
	"METOP-B",
	"METOP-C",
	"EARTHCARE",
	"FOREST-2",
}

// Default returns the built-in configuration: a Toulouse observer, the default
// satellites and a 24 hour horizon at 5 degrees.
func Default() *Config {
	return &Config{
		Observer: ObserverConfig{
			Name: "toulouse",
			Lat:  43.6043,
			Lon:  1.44384,
			AltM: 100,
		},
		Satellites: append([]string(nil), DefaultSatellites...),
		TLE: TLEConfig{
			Sources:    append([]string(nil), tle.DefaultSources...),
			CacheDir:   defaultCacheDir(),
			MaxFiles:   5,
			MaxAgeSec:  int(tle.DefaultMaxAge / time.Second),
			RatePerSec: 2,
			RateBurst:  4,
		},
		Prediction: PredictionConfig{
			HorizonHours: 24,
			MinElevation: 5,
			StepSec:      30,
			ToleranceMS:  100,
			Workers:      runtime.NumCPU(),
		},
		Output: OutputConfig{Format: "table"},
		Sink:   SinkConfig{Postgres: PostgresConfig{Table: "satellite_passes"}},
		Server: ServerConfig{
			Addr:        ":8080",
			EnableFetch: true,
			RefreshSec:  3600,
			CacheSize:   256,
			CacheTTLSec: 600,

			StreamMaxPerIP:     10,
			StreamKeepaliveSec: 30,
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/satoverpass/tle"
	}
	return "/tmp/satoverpass/tle"
}

// Load reads path over the defaults. An empty path loads the defaults only.
// Environment overrides are applied separately by ApplyEnv.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills fields whose zero value is not usable.
func (c *Config) applyDefaults() {
	d := Default()
	if len(c.TLE.Sources) == 0 && c.TLE.File == "" {
		c.TLE.Sources = d.TLE.Sources
	}
	if c.TLE.CacheDir == "" {
		c.TLE.CacheDir = d.TLE.CacheDir
	}
	if c.TLE.MaxFiles <= 0 {
		c.TLE.MaxFiles = d.TLE.MaxFiles
	}
	if c.TLE.MaxAgeSec <= 0 {
		c.TLE.MaxAgeSec = d.TLE.MaxAgeSec
	}
	if c.Prediction.HorizonHours <= 0 {
		c.Prediction.HorizonHours = d.Prediction.HorizonHours
	}
	if c.Prediction.StepSec <= 0 {
		c.Prediction.StepSec = d.Prediction.StepSec
	}
	if c.Prediction.ToleranceMS <= 0 {
		c.Prediction.ToleranceMS = d.Prediction.ToleranceMS
	}
	if c.Prediction.Workers <= 0 {
		c.Prediction.Workers = d.Prediction.Workers
	}
	if c.Output.Format == "" {
		c.Output.Format = d.Output.Format
	}
	if c.Sink.Postgres.Table == "" {
		c.Sink.Postgres.Table = d.Sink.Postgres.Table
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.RefreshSec <= 0 {
		c.Server.RefreshSec = d.Server.RefreshSec
	}
	if c.Server.CacheSize <= 0 {
		c.Server.CacheSize = d.Server.CacheSize
	}
	if c.Server.CacheTTLSec <= 0 {
		c.Server.CacheTTLSec = d.Server.CacheTTLSec
	}
	if c.Server.StreamMaxPerIP <= 0 {
		c.Server.StreamMaxPerIP = d.Server.StreamMaxPerIP
	}
	if c.Server.StreamKeepaliveSec <= 0 {
		c.Server.StreamKeepaliveSec = d.Server.StreamKeepaliveSec
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	c.Output.Format = strings.ToLower(c.Output.Format)
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// Validate reports the first setting out of range.
func (c *Config) Validate() error {
	if c.Observer.Lat < -90 || c.Observer.Lat > 90 {
		return fmt.Errorf("observer.lat %v outside [-90, 90]", c.Observer.Lat)
	}
	if c.Observer.Lon < -180 || c.Observer.Lon > 360 {
		return fmt.Errorf("observer.lon %v outside [-180, 360]", c.Observer.Lon)
	}
	if c.Prediction.MinElevation < -90 || c.Prediction.MinElevation >= 90 {
		return fmt.Errorf("prediction.min_elevation %v outside [-90, 90)", c.Prediction.MinElevation)
	}
	switch c.Output.Format {
	case "table", "csv", "json":
	default:
		return fmt.Errorf("output.format %q must be table, csv or json", c.Output.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Server.Auth.Enabled && c.Server.Auth.Token == "" {
		return errors.New("server.auth.token is required when auth is enabled")
	}
	return nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q must be debug, info, warn or error", s)
	}
	return l, nil
}

// Logger returns the JSON logger for the configured level, writing to stdout.
func (c *Config) Logger() *slog.Logger {
	return c.LoggerTo(os.Stdout)
}

// LoggerTo is Logger writing to w. The CLI logs to stderr so reports can be
// piped.
func (c *Config) LoggerTo(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
