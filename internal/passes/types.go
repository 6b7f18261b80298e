package passes

import (
	"errors"
	"fmt"
	"time"

	"github.com/3dfirelab/satOverpass/internal/transform"
)

// EventKind distinguishes the three events of a pass.
type EventKind int

const (
	Rise EventKind = iota
	Culminate
	Set
)

func (k EventKind) String() string {
	switch k {
	case Rise:
		return "rise"
	case Culminate:
		return "culminate"
	case Set:
		return "set"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name in JSON and CSV output.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one rise, culmination or set of a satellite as seen by an observer.
//
// Elevation is measured at Time. For a rise or set, Time is the bisected
// threshold crossing, so Elevation is within the detector tolerance of the
// report's Threshold rather than equal to it.
type Event struct {
	CatalogNumber int       `json:"norad_id"`
	Name          string    `json:"name,omitempty"`
	Kind          EventKind `json:"kind"`
	Time          time.Time `json:"time"`
	Elevation     float64   `json:"elevation"` // degrees
	Azimuth       float64   `json:"azimuth"`   // degrees clockwise from north
	RangeKm       float64   `json:"range_km"`
	RangeRateKmS  float64   `json:"range_rate_km_s"`
	ViewAngle     float64   `json:"view_angle"` // degrees from zenith, 90 - elevation
}

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`  // meters
	Elevation float64   `json:"elevation"` // degrees above observer's horizon
}

// Pass is one complete visibility window: Rise < Culminate < Set.
type Pass struct {
	Rise      Event                   `json:"rise"`
	Culminate Event                   `json:"culminate"`
	Set       Event                   `json:"set"`
	SubPoint  transform.GeodeticPoint `json:"sub_point"` // beneath the satellite at culmination

	GroundTrack []GroundTrackPoint `json:"ground_track,omitempty"`
}

// Duration is the time between rise and set.
func (p Pass) Duration() time.Duration {
	return p.Set.Time.Sub(p.Rise.Time)
}

// Report is the result of one (satellite, observer, window) search.
type Report struct {
	CatalogNumber int                `json:"norad_id"`
	Name          string             `json:"name,omitempty"`
	Observer      transform.Observer `json:"-"`
	Window        Window             `json:"window"`
	Threshold     float64            `json:"min_elevation"`
	Step          time.Duration      `json:"-"`
	Passes        []Pass             `json:"passes"`

	// SkippedSamples counts elevation evaluations that failed without
	// ending the search. A pass can hide in the gap they leave.
	SkippedSamples int `json:"skipped_samples,omitempty"`
}

// Events flattens the report into chronological Rise, Culminate, Set triples.
func (r *Report) Events() []Event {
	out := make([]Event, 0, 3*len(r.Passes))
	for _, p := range r.Passes {
		out = append(out, p.Rise, p.Culminate, p.Set)
	}
	return out
}

// Window is the half-open interval [Start, End) searched for passes.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DefaultHorizon is the window length when none is configured.
const DefaultHorizon = 24 * time.Hour

var errEmptyWindow = errors.New("window end must be after start")

// NewWindow returns [start, start+horizon).
func NewWindow(start time.Time, horizon time.Duration) (Window, error) {
	if horizon <= 0 {
		return Window{}, fmt.Errorf("horizon %v: %w", horizon, errEmptyWindow)
	}
	start = start.UTC()
	return Window{Start: start, End: start.Add(horizon)}, nil
}

// Contains reports whether t lies in the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration is the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}
