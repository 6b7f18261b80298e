package passes

import (
	"time"

	"github.com/3dfirelab/satOverpass/internal/transform"
)

// ElevationFunc returns a satellite's elevation in degrees above an
// observer's horizon at t. It is continuous wherever it succeeds.
type ElevationFunc func(t time.Time) (float64, error)

// Propagator produces a TEME state for an instant. *propagation.SGP4
// satisfies it.
type Propagator interface {
	Propagate(t time.Time) (transform.PositionTEME, error)
}

// lookFunc is the full observation behind an ElevationFunc.
type lookFunc func(t time.Time) (transform.LookAngles, transform.PositionECEF, error)

func newLookFunc(sat Propagator, obs transform.Observer) lookFunc {
	return func(t time.Time) (transform.LookAngles, transform.PositionECEF, error) {
		teme, err := sat.Propagate(t)
		if err != nil {
			return transform.LookAngles{}, transform.PositionECEF{}, err
		}
		ecef := transform.TEMEToECEF(teme, t)
		return transform.LookAt(obs, ecef), ecef, nil
	}
}

// NewElevationFunc composes propagation and the topocentric transform.
func NewElevationFunc(sat Propagator, obs transform.Observer) ElevationFunc {
	return newLookFunc(sat, obs).elevation
}

func (f lookFunc) elevation(t time.Time) (float64, error) {
	la, _, err := f(t)
	return la.ElevationDeg, err
}
