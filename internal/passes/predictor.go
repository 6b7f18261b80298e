package passes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/3dfirelab/satOverpass/internal/metrics"
	"github.com/3dfirelab/satOverpass/internal/propagation"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

// Options configures a Predictor. Zero values take the package defaults.
type Options struct {
	Step      time.Duration
	Tolerance time.Duration
	Workers   int // default runtime.NumCPU()

	// GroundTrackStep samples the sub-satellite track between rise and set.
	// Zero disables the track.
	GroundTrackStep time.Duration
}

// Predictor finds passes of catalog satellites over an observer.
type Predictor struct {
	detector  Detector
	workers   int
	trackStep time.Duration
	logger    *slog.Logger
}

// NewPredictor creates a Predictor.
func NewPredictor(opts Options, logger *slog.Logger) *Predictor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Predictor{
		detector:  Detector{Step: opts.Step, Tolerance: opts.Tolerance}.withDefaults(),
		workers:   workers,
		trackStep: opts.GroundTrackStep,
		logger:    logger,
	}
}

// Step returns the coarse sampling interval in use.
func (p *Predictor) Step() time.Duration { return p.detector.Step }

// FindPasses predicts the passes of rec above threshold degrees within w.
//
// If the satellite decays inside w, the report holds the passes completed
// before decay and the error matches propagation.ErrDecayed.
func (p *Predictor) FindPasses(ctx context.Context, rec *tle.Record, obs transform.Observer, w Window, threshold float64) (*Report, error) {
	sat, err := propagation.New(rec)
	if err != nil {
		return nil, err
	}
	return p.findPasses(ctx, sat, rec, obs, w, threshold)
}

func (p *Predictor) findPasses(ctx context.Context, sat Propagator, rec *tle.Record, obs transform.Observer, w Window, threshold float64) (*Report, error) {
	look := newLookFunc(sat, obs)
	det := p.detector
	det.Threshold = threshold

	spans, skipped, err := det.Detect(ctx, look.elevation, w)
	if err != nil && !errors.Is(err, propagation.ErrDecayed) {
		return nil, err
	}

	rep := &Report{
		CatalogNumber:  rec.CatalogNumber,
		Name:           rec.Name,
		Observer:       obs,
		Window:         w,
		Threshold:      threshold,
		Step:           det.Step,
		Passes:         make([]Pass, 0, len(spans)),
		SkippedSamples: skipped,
	}
	for _, sp := range spans {
		pass, perr := p.buildPass(rec, look, sp)
		if perr != nil {
			p.logger.Debug("pass dropped",
				"norad_id", rec.CatalogNumber,
				"rise", sp.Rise,
				"error", perr,
			)
			rep.SkippedSamples++
			continue
		}
		rep.Passes = append(rep.Passes, pass)
	}

	metrics.RecordPassesPredicted(len(rep.Passes))
	metrics.RecordSkippedSamples(rep.SkippedSamples)
	if rep.SkippedSamples > 0 {
		p.logger.Warn("elevation samples skipped; narrow passes may be missed",
			"norad_id", rec.CatalogNumber,
			"skipped", rep.SkippedSamples,
			"step_s", det.Step.Seconds(),
		)
	}
	return rep, err
}

// buildPass evaluates the full observation at the three event times.
func (p *Predictor) buildPass(rec *tle.Record, look lookFunc, sp Span) (Pass, error) {
	var pass Pass
	for _, ev := range []struct {
		kind EventKind
		t    time.Time
		dst  *Event
	}{
		{Rise, sp.Rise, &pass.Rise},
		{Culminate, sp.Culmination, &pass.Culminate},
		{Set, sp.Set, &pass.Set},
	} {
		la, ecef, err := look(ev.t)
		if err != nil {
			return Pass{}, fmt.Errorf("%s at %s: %w", ev.kind, ev.t.Format(time.RFC3339), err)
		}
		*ev.dst = Event{
			CatalogNumber: rec.CatalogNumber,
			Name:          rec.Name,
			Kind:          ev.kind,
			Time:          ev.t,
			Elevation:     la.ElevationDeg,
			Azimuth:       la.AzimuthDeg,
			RangeKm:       la.RangeKm,
			RangeRateKmS:  la.RangeRateKmS,
			ViewAngle:     90 - la.ElevationDeg,
		}
		if ev.kind == Culminate {
			pass.SubPoint = transform.SubPoint(ecef)
		}
	}

	if p.trackStep > 0 {
		for t := sp.Rise; !t.After(sp.Set); t = t.Add(p.trackStep) {
			la, ecef, err := look(t)
			if err != nil {
				continue
			}
			geo := transform.SubPoint(ecef)
			pass.GroundTrack = append(pass.GroundTrack, GroundTrackPoint{
				Time:      t,
				Latitude:  geo.LatDeg,
				Longitude: geo.LonDeg,
				Altitude:  geo.AltM,
				Elevation: la.ElevationDeg,
			})
		}
	}
	return pass, nil
}

// Target is one satellite requested for a batch, resolved from a catalog.
type Target struct {
	Key    string // name or catalog number as requested
	Record *tle.Record
	Err    error // set instead of Record when resolution failed
}

// Resolve looks every key up in cat. Unknown names and rejected entries
// become targets carrying the lookup error.
func Resolve(cat *tle.Catalog, keys []string) []Target {
	out := make([]Target, len(keys))
	for i, key := range keys {
		rec, err := cat.Resolve(key)
		out[i] = Target{Key: key, Record: rec, Err: err}
	}
	return out
}

// RecordTargets wraps already-parsed records.
func RecordTargets(recs []*tle.Record) []Target {
	out := make([]Target, len(recs))
	for i, rec := range recs {
		out[i] = Target{Key: tle.FormatCatalogNumber(rec.CatalogNumber), Record: rec}
	}
	return out
}

// Result is one satellite's outcome in a batch. Report and Err may both be
// set when the satellite decayed inside the window.
type Result struct {
	Key           string
	CatalogNumber int
	Name          string
	Report        *Report
	Err           error
}

// FindPassesBatch runs FindPasses for every target, bounded by the worker
// count, and returns results in target order. A failing satellite never
// stops the others. Targets not started before ctx is cancelled carry
// ctx.Err().
func (p *Predictor) FindPassesBatch(ctx context.Context, targets []Target, obs transform.Observer, w Window, threshold float64) []Result {
	start := time.Now()
	results := make([]Result, len(targets))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, target := range targets {
		results[i] = Result{Key: target.Key}
		if target.Record != nil {
			results[i].CatalogNumber = target.Record.CatalogNumber
			results[i].Name = target.Record.Name
		}
		if target.Err != nil || target.Record == nil {
			results[i].Err = target.Err
			if results[i].Err == nil {
				results[i].Err = fmt.Errorf("%q: %w", target.Key, tle.ErrNotFound)
			}
			continue
		}

		wg.Add(1)
		go func(idx int, rec *tle.Record) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx].Err = ctx.Err()
				return
			}
			if err := ctx.Err(); err != nil {
				results[idx].Err = err
				return
			}

			rep, err := p.FindPasses(ctx, rec, obs, w, threshold)
			results[idx].Report = rep
			results[idx].Err = err
		}(i, target.Record)
	}

	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			metrics.RecordPredictionFailure(FailureKind(r.Err))
			p.logger.Warn("pass prediction failed",
				"satellite", r.Key,
				"norad_id", r.CatalogNumber,
				"kind", FailureKind(r.Err),
				"error", r.Err,
			)
		}
	}
	metrics.ObserveBatchDuration(time.Since(start))
	p.logger.Info("pass prediction batch complete",
		"satellites", len(targets),
		"failed", failed,
		"observer", obs.String(),
		"window_start", w.Start.Format(time.RFC3339),
		"window_end", w.End.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results
}

// FailureKind classifies a batch failure for reports, logs and metrics.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tle.ErrMalformedRecord):
		return "malformed"
	case errors.Is(err, tle.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return propagation.Kind(err)
	}
}
