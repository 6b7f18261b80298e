package transform

import (
	"math"
	"time"
)

const (
	j2000         = 2451545.0 // Julian Date of 2000-01-01 12:00
	unixEpochJD   = 2440587.5 // Julian Date of 1970-01-01 00:00
	secondsPerDay = 86400.0
)

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// JulianDate returns the Julian Date of t on the UTC scale. Leap seconds are
// not counted, as in Unix time.
func JulianDate(t time.Time) float64 {
	days := float64(t.Unix()) / secondsPerDay
	frac := float64(t.Nanosecond()) / 1e9 / secondsPerDay
	return unixEpochJD + days + frac
}

// GMST returns Greenwich Mean Sidereal Time in radians, in [0, 2π), using the
// IAU-82 model (Vallado Eq 3-47) with UTC standing in for UT1:
//
//	θ = 67310.54841 + (876600h + 8640184.812866) T + 0.093104 T² - 6.2e-6 T³  [s]
//
// where T is Julian centuries from J2000.0.
func GMST(t time.Time) float64 {
	T := (JulianDate(t) - j2000) / 36525.0
	sec := 67310.54841 + T*((876600.0*3600.0+8640184.812866)+T*(0.093104-T*6.2e-6))

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return 2 * math.Pi * sec / secondsPerDay
}
