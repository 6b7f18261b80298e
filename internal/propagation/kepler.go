package propagation

import (
	"errors"
	"math"
)

const (
	keplerTolerance     = 1e-12
	keplerMaxIterations = 10

	// keplerConvergence is the largest final correction accepted once the
	// iteration cap is reached.
	keplerConvergence = 1e-8

	// keplerMaxStep bounds a single Newton correction.
	keplerMaxStep = 0.95
)

var errNotConverged = errors.New("not converged")

// solveKepler solves E - axn*sin(E) + ayn*cos(E) = u for the eccentric
// longitude E with Newton-Raphson, the form SGP4 uses with the eccentricity
// vector (axn, ayn). It returns sin(E) and cos(E).
func solveKepler(u, axn, ayn float64, maxIter int) (sinE, cosE float64, err error) {
	e := u
	step := math.Inf(1)
	for i := 0; i < maxIter && math.Abs(step) >= keplerTolerance; i++ {
		sinE, cosE = math.Sincos(e)
		step = (u - ayn*cosE + axn*sinE - e) / (1 - cosE*axn - sinE*ayn)
		if math.Abs(step) >= keplerMaxStep {
			step = math.Copysign(keplerMaxStep, step)
		}
		e += step
	}
	if math.Abs(step) >= keplerConvergence {
		return 0, 0, errNotConverged
	}
	return sinE, cosE, nil
}
