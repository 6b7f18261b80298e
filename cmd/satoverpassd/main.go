package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/3dfirelab/satOverpass/internal/api"
	"github.com/3dfirelab/satOverpass/internal/auth"
	"github.com/3dfirelab/satOverpass/internal/cache"
	"github.com/3dfirelab/satOverpass/internal/config"
	"github.com/3dfirelab/satOverpass/internal/metrics"
	"github.com/3dfirelab/satOverpass/internal/passes"
	"github.com/3dfirelab/satOverpass/internal/propagation"
	"github.com/3dfirelab/satOverpass/internal/stream"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

func main() {
	configPath := flag.String("config", os.Getenv("SATOVERPASS_CONFIG"), "YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	cfg.ApplyEnv(slog.Default())
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	obs, err := transform.NewObserver(cfg.Observer.Lat, cfg.Observer.Lon, cfg.Observer.AltM)
	if err != nil {
		logger.Error("invalid observer", "error", err)
		os.Exit(1)
	}
	authCfg := auth.Config{Enabled: cfg.Server.Auth.Enabled, Token: cfg.Server.Auth.Token}
	if authCfg.Enabled {
		logger.Info("auth enabled")
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := tle.NewStore()
	acquirer := loadTLE(ctx, cfg, store, logger)

	registry := propagation.NewRegistry(logger)
	pool := propagation.NewWorkerPool(cfg.Prediction.Workers, logger)
	predictor := passes.NewPredictor(passes.Options{
		Step:            cfg.Prediction.Step(),
		Tolerance:       cfg.Prediction.Tolerance(),
		Workers:         cfg.Prediction.Workers,
		GroundTrackStep: cfg.Prediction.GroundTrackStep(),
	}, logger)
	reportCache := cache.NewReportCache(cache.Config{
		TTL:        cfg.Server.CacheTTL(),
		MaxEntries: cfg.Server.CacheSize,
	}, predictor, store, logger)

	deps := api.Deps{
		Store:      store,
		Predictor:  predictor,
		Cache:      reportCache,
		Registry:   registry,
		Pool:       pool,
		Observer:   obs,
		Satellites: cfg.Satellites,
		Threshold:  cfg.Prediction.MinElevation,
		Horizon:    cfg.Prediction.Horizon(),
		TrustProxy: cfg.Server.TrustProxy,
	}
	deps.Stream = stream.NewHandler(store, registry, pool, stream.Config{
		MaxConcurrentPerIP: cfg.Server.StreamMaxPerIP,
		KeepaliveInterval:  cfg.Server.StreamKeepalive(),
		TrustProxy:         cfg.Server.TrustProxy,
		Observer:           obs,
	}, logger)
	if cfg.Server.EnableFetch {
		deps.Acquirer = acquirer
	}
	srv := api.NewServer(cfg.Server.Addr, logger, authCfg, deps)

	// Start cache background worker.
	go reportCache.Start(ctx)

	if acquirer != nil && cfg.Server.Refresh() > 0 {
		go acquirer.Keep(ctx, store, cfg.Server.Refresh())
	}

	// Background goroutine to update TLE dataset age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				age := store.AgeSeconds()
				if age >= 0 {
					metrics.SetTLEDatasetAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("starting server",
			"addr", cfg.Server.Addr,
			"observer", obs.String(),
			"satellites", len(cfg.Satellites),
			"auth_enabled", authCfg.Enabled,
			"tle_fetch_enabled", deps.Acquirer != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadTLE publishes the initial dataset and returns the acquirer used for
// refreshes, or nil when elements come from a fixed file. The server starts
// without data when nothing can be loaded; /readyz reports it.
func loadTLE(ctx context.Context, cfg *config.Config, store *tle.Store, logger *slog.Logger) *tle.Acquirer {
	if cfg.TLE.File != "" {
		ds, err := tle.LoadFile(cfg.TLE.File, logger)
		if err != nil {
			logger.Error("loading TLE file", "path", cfg.TLE.File, "error", err)
			return nil
		}
		store.Set(ds)
		logger.Info("loaded TLE file", "path", cfg.TLE.File, "count", ds.Catalog.Len())
		return nil
	}

	var source tle.Source
	if !cfg.TLE.Offline {
		var primary string
		var extra []string
		if len(cfg.TLE.Sources) > 0 {
			primary, extra = cfg.TLE.Sources[0], cfg.TLE.Sources[1:]
		}
		fetcher := tle.NewFetcher(primary, logger, extra...)
		fetcher.SetRateLimit(cfg.TLE.RatePerSec, cfg.TLE.RateBurst)
		source = fetcher
	}
	acquirer := tle.NewAcquirer(source, tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles), cfg.TLE.MaxAge(), logger)

	ds, err := acquirer.Acquire(ctx)
	if err != nil {
		logger.Warn("starting without TLE data", "error", err)
	} else {
		store.Set(ds)
		logger.Info("loaded TLE data",
			"source", ds.Source,
			"count", ds.Catalog.Len(),
			"fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
		)
	}
	if source == nil {
		return nil
	}
	return acquirer
}
