// Package transform converts SGP4 output into what a ground observer sees.
//
// SGP4 positions are in TEME (True Equator Mean Equinox). They are rotated to
// Earth-fixed coordinates by Greenwich Mean Sidereal Time alone (TEME to PEF,
// taken as ECEF), then projected into the observer's South-East-Zenith frame.
// Polar motion and the equation of the equinoxes are ignored; the resulting
// error of a few tens of meters is far below the accuracy of the elements.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3-4.
package transform

import (
	"math"
	"time"
)

// PositionTEME represents a satellite position and velocity in the TEME frame.
type PositionTEME struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// PositionECEF represents a satellite position and velocity in the ECEF frame.
type PositionECEF struct {
	X, Y, Z    float64 // meters
	VX, VY, VZ float64 // m/s
}

// TEMEToECEF rotates a TEME state (km, km/s) into ECEF (m, m/s) at t.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST is TEMEToECEF with a precomputed GMST angle in radians,
// for batches of satellites at one instant.
//
//	r_ECEF = R3(θ) r_TEME
//	v_ECEF = R3(θ) v_TEME - ω × r_ECEF,  ω = (0, 0, OmegaEarth)
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	sinG, cosG := math.Sincos(gmst)

	x := teme.X*cosG + teme.Y*sinG
	y := -teme.X*sinG + teme.Y*cosG

	// ω × r = (-ω y, ω x, 0)
	vx := teme.VX*cosG + teme.VY*sinG + OmegaEarth*y
	vy := -teme.VX*sinG + teme.VY*cosG - OmegaEarth*x

	const m = 1000.0
	return PositionECEF{
		X:  x * m,
		Y:  y * m,
		Z:  teme.Z * m,
		VX: vx * m,
		VY: vy * m,
		VZ: teme.VZ * m,
	}
}

// Radius bounds of a position SGP4 can produce for a live near-earth or
// shallow deep-space orbit.
const (
	minOrbitRadiusM = 6200e3
	maxOrbitRadiusM = 50000e3
)

// ValidateECEF reports whether an ECEF position is plausible for a satellite:
// finite, and between 6200 km and 50000 km from the geocenter.
func ValidateECEF(pos PositionECEF) bool {
	r := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	// NaN fails both comparisons and an infinite component makes r infinite.
	return r >= minOrbitRadiusM && r <= maxOrbitRadiusM
}
