package propagation

import (
	"time"

	"github.com/3dfirelab/satOverpass/internal/transform"
)

// SatellitePosition holds one satellite's state at a snapshot instant.
type SatellitePosition struct {
	CatalogNumber int
	Name          string
	TEME          transform.PositionTEME // km, km/s
	ECEF          transform.PositionECEF // m, m/s
}

// Failure records a satellite that could not be propagated.
type Failure struct {
	CatalogNumber int
	Err           error
}

// Snapshot holds the positions of many satellites at a single instant.
type Snapshot struct {
	Time       time.Time
	Satellites []SatellitePosition
	Failures   []Failure
}
