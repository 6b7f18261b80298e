// Package report assembles per-satellite pass predictions into a summary and
// writes it to tables, CSV, JSON or PostgreSQL.
package report

import (
	"slices"
	"sort"
	"time"

	"github.com/3dfirelab/satOverpass/internal/passes"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

// Failure is a satellite of the batch that produced no complete report.
type Failure struct {
	Key           string `json:"satellite"`
	CatalogNumber int    `json:"norad_id,omitempty"`
	Name          string `json:"name,omitempty"`
	Kind          string `json:"kind"`
	Err           error  `json:"-"`
	Message       string `json:"error"`
}

// Observer is the ground site as printed in summaries.
type Observer struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	AltM float64 `json:"alt_m"`
}

// Summary is the outcome of one batch run.
type Summary struct {
	RunID       string           `json:"run_id,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	Observer    Observer         `json:"observer"`
	Window      passes.Window    `json:"window"`
	Threshold   float64          `json:"min_elevation"`
	Reports     []*passes.Report `json:"reports"`
	Failures    []Failure        `json:"failures"`
}

// Builder collects batch results in the order they are added.
type Builder struct {
	runID     string
	observer  transform.Observer
	window    passes.Window
	threshold float64
	reports   []*passes.Report
	failures  []Failure
	now       func() time.Time
}

// NewBuilder starts a summary for one observer, window and threshold.
func NewBuilder(runID string, obs transform.Observer, w passes.Window, threshold float64) *Builder {
	return &Builder{
		runID:     runID,
		observer:  obs,
		window:    w,
		threshold: threshold,
		now:       time.Now,
	}
}

// Add records one satellite. A decayed satellite contributes both its partial
// report and a failure.
func (b *Builder) Add(r passes.Result) {
	if r.Report != nil {
		b.reports = append(b.reports, r.Report)
	}
	if r.Err != nil {
		b.failures = append(b.failures, Failure{
			Key:           r.Key,
			CatalogNumber: r.CatalogNumber,
			Name:          r.Name,
			Kind:          passes.FailureKind(r.Err),
			Err:           r.Err,
			Message:       r.Err.Error(),
		})
	}
}

// AddAll records every result of a batch.
func (b *Builder) AddAll(results []passes.Result) {
	for _, r := range results {
		b.Add(r)
	}
}

// Build returns the summary. Passes inside each report are chronological.
// Added reports may be shared, for instance by a report cache, and are never
// modified: an out-of-order report is replaced by a sorted copy.
func (b *Builder) Build() *Summary {
	reports := make([]*passes.Report, len(b.reports))
	for i, r := range b.reports {
		reports[i] = chronological(r)
	}
	failures := make([]Failure, len(b.failures))
	copy(failures, b.failures)

	return &Summary{
		RunID:       b.runID,
		GeneratedAt: b.now().UTC(),
		Observer: Observer{
			Lat:  b.observer.LatDeg,
			Lon:  b.observer.LonDeg,
			AltM: b.observer.AltM,
		},
		Window:    b.window,
		Threshold: b.threshold,
		Reports:   reports,
		Failures:  failures,
	}
}

func byRise(a, b passes.Pass) int { return a.Rise.Time.Compare(b.Rise.Time) }

// chronological returns r itself when its passes are ordered by rise time,
// and otherwise a copy with a sorted pass slice.
func chronological(r *passes.Report) *passes.Report {
	if slices.IsSortedFunc(r.Passes, byRise) {
		return r
	}
	sorted := *r
	sorted.Passes = slices.Clone(r.Passes)
	slices.SortStableFunc(sorted.Passes, byRise)
	return &sorted
}

// PassCount is the number of passes over all satellites.
func (s *Summary) PassCount() int {
	n := 0
	for _, r := range s.Reports {
		n += len(r.Passes)
	}
	return n
}

// Timeline merges the events of every satellite into one chronological
// sequence. Simultaneous events are ordered by catalog number, then rise
// before culmination before set.
func (s *Summary) Timeline() []passes.Event {
	var out []passes.Event
	for _, r := range s.Reports {
		out = append(out, r.Events()...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.CatalogNumber != b.CatalogNumber {
			return a.CatalogNumber < b.CatalogNumber
		}
		return a.Kind < b.Kind
	})
	return out
}

// Culmination is one row of the overpass table: the satellite, the time it
// is highest and its angle from the observer's zenith.
type Culmination struct {
	Satellite     string    `json:"satname"`
	CatalogNumber int       `json:"norad_id"`
	Time          time.Time `json:"timeoverpass"`
	ViewAngle     float64   `json:"view_angle"`
	Elevation     float64   `json:"elevation"`
	Azimuth       float64   `json:"azimuth"`
	Rise          time.Time `json:"rise"`
	Set           time.Time `json:"set"`
}

// Culminations lists every pass by its culmination, earliest first.
func (s *Summary) Culminations() []Culmination {
	var out []Culmination
	for _, r := range s.Reports {
		for _, p := range r.Passes {
			name := p.Culminate.Name
			if name == "" {
				name = r.Name
			}
			out = append(out, Culmination{
				Satellite:     name,
				CatalogNumber: r.CatalogNumber,
				Time:          p.Culminate.Time,
				ViewAngle:     p.Culminate.ViewAngle,
				Elevation:     p.Culminate.Elevation,
				Azimuth:       p.Culminate.Azimuth,
				Rise:          p.Rise.Time,
				Set:           p.Set.Time,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].CatalogNumber < out[j].CatalogNumber
	})
	return out
}
