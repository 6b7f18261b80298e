package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, 43.6043, cfg.Observer.Lat, 1e-9)
	assert.InDelta(t, 1.44384, cfg.Observer.Lon, 1e-9)
	assert.Equal(t, DefaultSatellites, cfg.Satellites)
	assert.Equal(t, 3*time.Hour, cfg.TLE.MaxAge())
	assert.Equal(t, 24*time.Hour, cfg.Prediction.Horizon())
	assert.Equal(t, 30*time.Second, cfg.Prediction.Step())
	assert.Equal(t, 100*time.Millisecond, cfg.Prediction.Tolerance())
	assert.InDelta(t, 5.0, cfg.Prediction.MinElevation, 0)
	assert.Equal(t, "table", cfg.Output.Format)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
observer:
  lat: 48.85
  lon: 2.35
  alt_m: 35
satellites: [ISS (ZARYA), "25544"]
prediction:
  min_elevation: 0
  step_seconds: 0
output:
  format: JSON
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ISS (ZARYA)", "25544"}, cfg.Satellites)
	assert.InDelta(t, 48.85, cfg.Observer.Lat, 1e-9)
	assert.InDelta(t, 0.0, cfg.Prediction.MinElevation, 0, "zero threshold is the geometric horizon")
	assert.Equal(t, 30, cfg.Prediction.StepSec)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, "satellite_passes", cfg.Sink.Postgres.Table)
	assert.NotEmpty(t, cfg.TLE.Sources)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"latitude":     "observer: {lat: 91}",
		"longitude":    "observer: {lon: -181}",
		"elevation":    "prediction: {min_elevation: 90}",
		"format":       "output: {format: xml}",
		"log level":    "log: {level: loud}",
		"auth token":   "server: {auth: {enabled: true}}",
		"invalid yaml": "observer: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, data))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SATOVERPASS_LAT", "-33.9")
	t.Setenv("SATOVERPASS_SATELLITES", "METOP-B, ,METOP-C")
	t.Setenv("SATOVERPASS_STEP", "10")
	t.Setenv("SATOVERPASS_WORKERS", "zero")
	t.Setenv("SATOVERPASS_OFFLINE", "true")
	t.Setenv("SATOVERPASS_FORMAT", "CSV")

	cfg := Default()
	workers := cfg.Prediction.Workers
	cfg.ApplyEnv(testLogger())

	assert.InDelta(t, -33.9, cfg.Observer.Lat, 1e-9)
	assert.Equal(t, []string{"METOP-B", "METOP-C"}, cfg.Satellites)
	assert.Equal(t, 10, cfg.Prediction.StepSec)
	assert.Equal(t, workers, cfg.Prediction.Workers, "invalid value keeps the default")
	assert.True(t, cfg.TLE.Offline)
	assert.Equal(t, "csv", cfg.Output.Format)
	require.NoError(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
