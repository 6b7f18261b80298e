package propagation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidElements: the element set is physically inconsistent, or the
	// mean elements left the model's domain during propagation.
	ErrInvalidElements = errors.New("invalid orbital elements")

	// ErrDeepSpace: the orbit needs the deep-space model, which is not
	// implemented. Matches ErrInvalidElements as well.
	ErrDeepSpace = fmt.Errorf("deep-space orbit (period >= %.0f min): %w", DeepSpacePeriod, ErrInvalidElements)

	// ErrConvergence: Kepler's equation did not converge for this instant.
	// Other instants may still succeed.
	ErrConvergence = errors.New("kepler solver did not converge")

	// ErrDecayed: the satellite has re-entered. Terminal for this instant and
	// every later one.
	ErrDecayed = errors.New("satellite decayed")
)

// Error is a propagation failure for one satellite at one instant.
type Error struct {
	CatalogNumber int
	Minutes       float64 // minutes since epoch
	Err           error
	Detail        string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("sgp4 %d at %+.3f min: %v", e.CatalogNumber, e.Minutes, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Kind classifies a propagation error for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDecayed):
		return "decayed"
	case errors.Is(err, ErrConvergence):
		return "convergence"
	case errors.Is(err, ErrDeepSpace):
		return "deep_space"
	case errors.Is(err, ErrInvalidElements):
		return "invalid_elements"
	default:
		return "other"
	}
}
