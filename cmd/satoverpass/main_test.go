package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/3dfirelab/satOverpass/internal/config"
)

const catalogText = `SENTINEL-3A
1 41335U 16011A   25045.50000000  .00000040  00000-0  33000-4 0  9990
2 41335  98.6200 120.0000 0001100  90.0000 270.0000 14.26740000463216
METOP-B
1 38771U 12049A   25045.25000000 -.00000123  00000-0 -11606-4 0  9991
2 38771  98.7000 100.5000 0002000  80.0000 280.0000 14.21500000642250
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestFlagsOverrideConfig(t *testing.T) {
	var o options
	fs := newFlagSet(&o)
	err := fs.Parse([]string{"-lat", "48.85", "-lon", "2.35", "-sat", "SENTINEL-3A,METOP-B", "-sat", "41335", "-format", "CSV", "-offline"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg := config.Default()
	o.apply(fs, cfg)

	if cfg.Observer.Lat != 48.85 || cfg.Observer.Lon != 2.35 {
		t.Errorf("observer = %+v", cfg.Observer)
	}
	if cfg.Observer.AltM != 100 {
		t.Errorf("altitude changed without -alt: %v", cfg.Observer.AltM)
	}
	want := []string{"SENTINEL-3A", "METOP-B", "41335"}
	if len(cfg.Satellites) != len(want) {
		t.Fatalf("satellites = %v, want %v", cfg.Satellites, want)
	}
	for i := range want {
		if cfg.Satellites[i] != want[i] {
			t.Errorf("satellites[%d] = %q, want %q", i, cfg.Satellites[i], want[i])
		}
	}
	if cfg.Output.Format != "csv" || !cfg.TLE.Offline {
		t.Errorf("format = %q offline = %v", cfg.Output.Format, cfg.TLE.Offline)
	}
	if cfg.Prediction.MinElevation != 5 {
		t.Errorf("min elevation changed without flag: %v", cfg.Prediction.MinElevation)
	}
}

func testConfig(t *testing.T, sats ...string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.tle")
	if err := os.WriteFile(path, []byte(catalogText), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.TLE.File = path
	cfg.Satellites = sats
	cfg.Output.Format = "json"
	cfg.Prediction.Workers = 2
	return cfg
}

func TestRun(t *testing.T) {
	cfg := testConfig(t, "SENTINEL-3A", "38771", "NOSUCH")
	var out bytes.Buffer

	if code := run(context.Background(), cfg, testLogger(), &out); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	type failure struct {
		Satellite string `json:"satellite"`
		Kind      string `json:"kind"`
	}
	var summary struct {
		RunID    string            `json:"run_id"`
		Reports  []json.RawMessage `json:"reports"`
		Failures []failure         `json:"failures"`
	}
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if summary.RunID == "" {
		t.Error("missing run_id")
	}
	if len(summary.Reports) != 2 {
		t.Errorf("reports = %d, want 2", len(summary.Reports))
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Kind != "not_found" {
		t.Errorf("failures = %+v", summary.Failures)
	}
}

func TestRunTotalFailure(t *testing.T) {
	cfg := testConfig(t, "NOSUCH", "ALSO MISSING")
	var out bytes.Buffer

	if code := run(context.Background(), cfg, testLogger(), &out); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRunMissingTLEFile(t *testing.T) {
	cfg := testConfig(t, "SENTINEL-3A")
	cfg.TLE.File = filepath.Join(t.TempDir(), "missing.tle")

	if code := run(context.Background(), cfg, testLogger(), io.Discard); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
