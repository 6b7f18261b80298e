package transform

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

const degPerRad = 180 / math.Pi

// Observer elevation bounds in meters: Dead Sea shore to stratospheric balloon.
const (
	minObserverAltM = -500.0
	maxObserverAltM = 50000.0
)

// ErrInvalidObserver reports geodetic coordinates outside their valid ranges.
var ErrInvalidObserver = errors.New("invalid observer")

// Observer is a ground observer's location in both geodetic and ECEF frames.
// ECEF coordinates and the local-frame trigonometry are computed once so an
// Observer can be reused across many satellite lookups and goroutines.
type Observer struct {
	LatDeg, LonDeg      float64 // longitude normalized to [-180, 180]
	AltM                float64 // meters above the WGS-84 ellipsoid
	LatRad, LonRad      float64
	ECEFx, ECEFy, ECEFz float64 // meters

	sinLat, cosLat, sinLon, cosLon float64
}

// LookAngles holds azimuth, elevation, range and range rate from observer to satellite.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
	RangeRateKmS float64 // positive when receding
}

// NewObserver validates geodetic coordinates and precomputes the observer's
// ECEF position. Latitude is in [-90, 90] degrees; longitude may be given in
// [-180, 180] or [0, 360]; altitude is meters above the WGS-84 ellipsoid.
func NewObserver(latDeg, lonDeg, altM float64) (Observer, error) {
	switch {
	case math.IsNaN(latDeg) || latDeg < -90 || latDeg > 90:
		return Observer{}, fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidObserver, latDeg)
	case math.IsNaN(lonDeg) || lonDeg < -180 || lonDeg > 360:
		return Observer{}, fmt.Errorf("%w: longitude %v outside [-180, 360]", ErrInvalidObserver, lonDeg)
	case math.IsNaN(altM) || altM < minObserverAltM || altM > maxObserverAltM:
		return Observer{}, fmt.Errorf("%w: altitude %v m outside [%.0f, %.0f]", ErrInvalidObserver, altM, minObserverAltM, maxObserverAltM)
	}
	if lonDeg > 180 {
		lonDeg -= 360
	}

	lat := latDeg / degPerRad
	lon := lonDeg / degPerRad
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	N := primeVertical(sinLat)

	return Observer{
		LatDeg: latDeg,
		LonDeg: lonDeg,
		AltM:   altM,
		LatRad: lat,
		LonRad: lon,
		ECEFx:  (N + altM) * cosLat * cosLon,
		ECEFy:  (N + altM) * cosLat * sinLon,
		ECEFz:  (N*(1-wgs84E2) + altM) * sinLat,
		sinLat: sinLat,
		cosLat: cosLat,
		sinLon: sinLon,
		cosLon: cosLon,
	}, nil
}

// String formats the observer for logs, e.g. "43.6043,1.4438@100m".
func (o Observer) String() string {
	return fmt.Sprintf("%.4f,%.4f@%.0fm", o.LatDeg, o.LonDeg, o.AltM)
}

// Topocentric returns the look angles from obs to a satellite at the TEME
// state teme, valid at t.
func Topocentric(teme PositionTEME, obs Observer, t time.Time) LookAngles {
	return LookAt(obs, TEMEToECEF(teme, t))
}

// sez rotates an ECEF vector into the observer's South-East-Zenith frame
// (Vallado Section 4.4).
func (o Observer) sez(dx, dy, dz float64) (south, east, zenith float64) {
	horiz := o.cosLon*dx + o.sinLon*dy
	south = o.sinLat*horiz - o.cosLat*dz
	east = o.cosLon*dy - o.sinLon*dx
	zenith = o.cosLat*horiz + o.sinLat*dz
	return south, east, zenith
}

// LookAt computes azimuth, elevation, range and range rate from an observer
// to a satellite given in ECEF meters and m/s.
func LookAt(obs Observer, sat PositionECEF) LookAngles {
	dx, dy, dz := sat.X-obs.ECEFx, sat.Y-obs.ECEFy, sat.Z-obs.ECEFz
	south, east, zenith := obs.sez(dx, dy, dz)

	r := math.Sqrt(south*south + east*east + zenith*zenith)
	if r == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	// North is -south; azimuth grows towards east.
	az := math.Atan2(east, -south) * degPerRad
	if az < 0 {
		az += 360
	}
	// The observer is fixed in ECEF, so the satellite's ECEF velocity is the
	// relative velocity.
	rate := (dx*sat.VX + dy*sat.VY + dz*sat.VZ) / r

	return LookAngles{
		AzimuthDeg:   az,
		ElevationDeg: math.Asin(zenith/r) * degPerRad,
		RangeKm:      r / 1000,
		RangeRateKmS: rate / 1000,
	}
}

// GeodeticPoint holds a geodetic position (latitude/longitude in degrees, altitude in meters).
type GeodeticPoint struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
	AltM   float64 `json:"alt_m"`
}

// SubPoint returns the point on the ellipsoid directly below sat, with the
// satellite's height above it.
func SubPoint(sat PositionECEF) GeodeticPoint {
	return ECEFToGeodetic(sat.X, sat.Y, sat.Z)
}

// ECEFToGeodetic converts ECEF coordinates (meters) to geodetic coordinates
// using the iterative Bowring method. Converges in 2-3 iterations for Earth orbits.
func ECEFToGeodetic(x, y, z float64) GeodeticPoint {
	lon := math.Atan2(y, x)
	p := math.Sqrt(x*x + y*y)

	lat := math.Atan2(z, p*(1-wgs84E2))
	for range 5 {
		sinLat := math.Sin(lat)
		lat = math.Atan2(z+wgs84E2*primeVertical(sinLat)*sinLat, p)
	}

	sinLat, cosLat := math.Sincos(lat)
	N := primeVertical(sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - N
	} else {
		alt = math.Abs(z)/math.Abs(sinLat) - N*(1-wgs84E2)
	}

	return GeodeticPoint{
		LatDeg: lat * degPerRad,
		LonDeg: lon * degPerRad,
		AltM:   alt,
	}
}

// primeVertical is the ellipsoid's radius of curvature in the prime vertical.
func primeVertical(sinLat float64) float64 {
	return wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
}
