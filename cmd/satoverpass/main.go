// Command satoverpass prints the upcoming passes of satellites over one
// ground observer.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/3dfirelab/satOverpass/internal/config"
	"github.com/3dfirelab/satOverpass/internal/passes"
	"github.com/3dfirelab/satOverpass/internal/report"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

func main() {
	var o options
	fs := newFlagSet(&o)
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(o.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "satoverpass:", err)
		os.Exit(2)
	}
	cfg.ApplyEnv(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	o.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "satoverpass:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, cfg.LoggerTo(os.Stderr), os.Stdout))
}

// run predicts and writes one summary. It returns 1 when no satellite could
// be predicted or a sink failed; partial failures are listed in the output.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) int {
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	obs, err := transform.NewObserver(cfg.Observer.Lat, cfg.Observer.Lon, cfg.Observer.AltM)
	if err != nil {
		logger.Error("invalid observer", "error", err)
		return 1
	}
	ds, err := loadDataset(ctx, cfg, logger)
	if err != nil {
		logger.Error("no TLE data", "error", err)
		return 1
	}
	w, err := passes.NewWindow(time.Now(), cfg.Prediction.Horizon())
	if err != nil {
		logger.Error("invalid window", "error", err)
		return 1
	}

	sink, closeSink, err := openSinks(ctx, cfg, stdout)
	if err != nil {
		logger.Error("opening output", "error", err)
		return 1
	}
	defer closeSink()

	pred := passes.NewPredictor(passes.Options{
		Step:            cfg.Prediction.Step(),
		Tolerance:       cfg.Prediction.Tolerance(),
		Workers:         cfg.Prediction.Workers,
		GroundTrackStep: cfg.Prediction.GroundTrackStep(),
	}, logger)
	threshold := cfg.Prediction.MinElevation
	results := pred.FindPassesBatch(ctx, passes.Resolve(ds.Catalog, cfg.Satellites), obs, w, threshold)

	b := report.NewBuilder(runID, obs, w, threshold)
	b.AddAll(results)
	summary := b.Build()

	if err := sink.Write(ctx, summary); err != nil {
		logger.Error("writing report", "error", err)
		return 1
	}
	logger.Info("prediction complete",
		"satellites", len(cfg.Satellites),
		"passes", summary.PassCount(),
		"failures", len(summary.Failures),
		"tle_source", ds.Source,
	)
	if len(summary.Reports) == 0 && len(summary.Failures) > 0 {
		return 1
	}
	return 0
}

func loadDataset(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tle.Dataset, error) {
	if cfg.TLE.File != "" {
		return tle.LoadFile(cfg.TLE.File, logger)
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
	cache := tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles)
	return tle.NewAcquirer(source, cache, cfg.TLE.MaxAge(), logger).Acquire(ctx)
}

// openSinks returns the stdout sink, followed by PostgreSQL when a DSN is
// configured.
func openSinks(ctx context.Context, cfg *config.Config, stdout io.Writer) (report.Sink, func(), error) {
	out, err := report.NewWriterSink(cfg.Output.Format, stdout)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Sink.Postgres.DSN == "" {
		return out, func() {}, nil
	}
	pg, err := report.OpenPostgres(cfg.Sink.Postgres.DSN, cfg.Sink.Postgres.Table)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureTable(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return report.Multi{out, pg}, func() { pg.Close() }, nil
}
