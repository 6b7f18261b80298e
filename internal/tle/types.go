package tle

import "time"

// Record is one parsed two-line element set. Angles are in degrees as printed
// in the element set; conversion to radians happens in the propagator.
// A Record is never mutated after ParseRecord returns it.
type Record struct {
	CatalogNumber    int
	Name             string
	Classification   byte
	IntlDesignator   string
	Epoch            time.Time
	EpochYear        int     // four-digit year
	EpochDay         float64 // fractional day of year, 1 = Jan 1 00:00 UTC
	MeanMotionDot    float64 // rev/day², first derivative divided by two
	MeanMotionDDot   float64 // rev/day³, second derivative divided by six
	BStar            float64 // drag term, 1/earth radii
	EphemerisType    int
	ElementSetNumber int

	Inclination      float64 // degrees, 0-180
	RAAN             float64 // degrees, 0-360
	Eccentricity     float64 // 0 <= e < 1
	ArgPerigee       float64 // degrees, 0-360
	MeanAnomaly      float64 // degrees, 0-360
	MeanMotion       float64 // rev/day
	RevolutionNumber int

	Line1 string
	Line2 string
}

// Label returns the record name, or the catalog number when the element set
// carried no name line.
func (r *Record) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return FormatCatalogNumber(r.CatalogNumber)
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a parsed catalog together with the provenance of its text.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Catalog    *Catalog
}
