package transform

import (
	"errors"
	"math"
	"testing"
	"time"
)

func mustObserver(t *testing.T, lat, lon, alt float64) Observer {
	t.Helper()
	obs, err := NewObserver(lat, lon, alt)
	if err != nil {
		t.Fatalf("NewObserver(%v, %v, %v): %v", lat, lon, alt, err)
	}
	return obs
}

// geodeticECEF places a point at any height, including orbital ones that
// NewObserver rejects.
func geodeticECEF(latDeg, lonDeg, altM float64) PositionECEF {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	n := wgs84A / math.Sqrt(1-wgs84E2*math.Sin(lat)*math.Sin(lat))
	return PositionECEF{
		X: (n + altM) * math.Cos(lat) * math.Cos(lon),
		Y: (n + altM) * math.Cos(lat) * math.Sin(lon),
		Z: (n*(1-wgs84E2) + altM) * math.Sin(lat),
	}
}

func ecefMag(o Observer) float64 {
	return math.Sqrt(o.ECEFx*o.ECEFx + o.ECEFy*o.ECEFy + o.ECEFz*o.ECEFz)
}

func TestNewObserver_ECEFMagnitude(t *testing.T) {
	// WGS-84 equatorial radius is 6378137 m.
	if mag := ecefMag(mustObserver(t, 0, 0, 0)); math.Abs(mag-6378137.0) > 1.0 {
		t.Errorf("equatorial observer ECEF magnitude = %.1f m, want ~6378137 m", mag)
	}
	// Polar radius is 6356752.3 m.
	if mag := ecefMag(mustObserver(t, 90, 0, 0)); math.Abs(mag-6356752.3) > 1.0 {
		t.Errorf("polar observer ECEF magnitude = %.1f m, want ~6356752 m", mag)
	}
}

func TestNewObserver_Altitude(t *testing.T) {
	diff := ecefMag(mustObserver(t, 0, 0, 100)) - ecefMag(mustObserver(t, 0, 0, 0))
	if math.Abs(diff-100.0) > 0.01 {
		t.Errorf("altitude difference = %.3f m, want 100 m", diff)
	}
}

func TestNewObserver_LongitudeNormalized(t *testing.T) {
	east := mustObserver(t, 43.6043, 358.56, 100)
	west := mustObserver(t, 43.6043, -1.44, 100)

	if math.Abs(east.LonDeg-(-1.44)) > 1e-9 {
		t.Errorf("LonDeg = %v, want -1.44", east.LonDeg)
	}
	if math.Abs(east.ECEFx-west.ECEFx) > 1e-6 || math.Abs(east.ECEFy-west.ECEFy) > 1e-6 {
		t.Errorf("0..360 and -180..180 longitudes give different ECEF: %+v vs %+v", east, west)
	}
}

func TestNewObserver_Invalid(t *testing.T) {
	tests := []struct {
		name          string
		lat, lon, alt float64
	}{
		{"latitude above 90", 90.5, 0, 0},
		{"latitude below -90", -91, 0, 0},
		{"longitude below -180", 0, -180.1, 0},
		{"longitude above 360", 0, 360.1, 0},
		{"nan latitude", math.NaN(), 0, 0},
		{"altitude too high", 0, 0, 1e6},
		{"altitude too low", 0, 0, -1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewObserver(tt.lat, tt.lon, tt.alt)
			if !errors.Is(err, ErrInvalidObserver) {
				t.Errorf("NewObserver error = %v, want ErrInvalidObserver", err)
			}
		})
	}
}

func TestLookAt_DirectlyOverhead(t *testing.T) {
	obs := mustObserver(t, 0, 0, 0)

	// 400 km straight up from the equator at the prime meridian.
	la := LookAt(obs, PositionECEF{X: obs.ECEFx + 400000, Y: obs.ECEFy, Z: obs.ECEFz})

	if math.Abs(la.ElevationDeg-90.0) > 0.1 {
		t.Errorf("overhead elevation = %.2f deg, want ~90", la.ElevationDeg)
	}
	if math.Abs(la.RangeKm-400.0) > 1.0 {
		t.Errorf("overhead range = %.2f km, want ~400", la.RangeKm)
	}
}

func TestLookAt_HorizonElevation(t *testing.T) {
	obs := mustObserver(t, 0, 0, 0)

	// 90 degrees east along the equator, far below the local horizon.
	la := LookAt(obs, PositionECEF{X: 0, Y: 6778000.0})
	if la.ElevationDeg > 0 {
		t.Errorf("satellite 90 deg away should be below horizon, got elevation %.2f", la.ElevationDeg)
	}
}

func TestLookAt_AzimuthCardinal(t *testing.T) {
	obs := mustObserver(t, 0, 0, 0)

	tests := []struct {
		name     string
		lat, lon float64
		want     float64
	}{
		{"north", 10, 0, 0},
		{"east", 0, 10, 90},
		{"south", -10, 0, 180},
		{"west", 0, -10, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			la := LookAt(obs, geodeticECEF(tt.lat, tt.lon, 400000))
			d := math.Abs(la.AzimuthDeg - tt.want)
			if d > 180 {
				d = 360 - d
			}
			if d > 1 {
				t.Errorf("azimuth = %.2f deg, want %.0f", la.AzimuthDeg, tt.want)
			}
		})
	}
}

func TestLookAt_RangeRate(t *testing.T) {
	obs := mustObserver(t, 0, 0, 0)
	sat := PositionECEF{X: obs.ECEFx + 1000000, VX: 2000, VY: 5000}

	la := LookAt(obs, sat)
	// Only the radial component (along +X) contributes.
	if math.Abs(la.RangeRateKmS-2.0) > 1e-9 {
		t.Errorf("range rate = %.6f km/s, want 2.0", la.RangeRateKmS)
	}

	sat.VX = -3000
	if la := LookAt(obs, sat); math.Abs(la.RangeRateKmS+3.0) > 1e-9 {
		t.Errorf("approaching range rate = %.6f km/s, want -3.0", la.RangeRateKmS)
	}
}

func TestLookAt_ZeroRange(t *testing.T) {
	obs := mustObserver(t, 10, 20, 0)
	la := LookAt(obs, PositionECEF{X: obs.ECEFx, Y: obs.ECEFy, Z: obs.ECEFz})
	if math.IsNaN(la.ElevationDeg) || math.IsNaN(la.AzimuthDeg) {
		t.Errorf("zero range produced NaN: %+v", la)
	}
}

func TestTopocentric_MatchesLookAt(t *testing.T) {
	obs := mustObserver(t, 43.6043, 1.44384, 100)
	at := time.Date(2025, 2, 14, 4, 19, 40, 0, time.UTC)
	teme := PositionTEME{X: 4500, Y: 1200, Z: 5000, VX: -5.1, VY: 4.2, VZ: 3.3}

	got := Topocentric(teme, obs, at)
	want := LookAt(obs, TEMEToECEF(teme, at))
	if got != want {
		t.Errorf("Topocentric = %+v, LookAt = %+v", got, want)
	}
	if got.AzimuthDeg < 0 || got.AzimuthDeg >= 360 {
		t.Errorf("azimuth %.3f outside [0, 360)", got.AzimuthDeg)
	}
	if got.ElevationDeg < -90 || got.ElevationDeg > 90 {
		t.Errorf("elevation %.3f outside [-90, 90]", got.ElevationDeg)
	}
}

func TestECEFToGeodetic_RoundTrip(t *testing.T) {
	tests := []struct {
		lat, lon, alt float64
	}{
		{0, 0, 0},
		{43.6043, 1.44384, 100},
		{-33.9, 151.2, 700000},
		{78.2, -15.6, 810000},
	}
	for _, tt := range tests {
		p := geodeticECEF(tt.lat, tt.lon, tt.alt)
		got := ECEFToGeodetic(p.X, p.Y, p.Z)
		if math.Abs(got.LatDeg-tt.lat) > 1e-6 || math.Abs(got.LonDeg-tt.lon) > 1e-6 || math.Abs(got.AltM-tt.alt) > 1e-3 {
			t.Errorf("ECEFToGeodetic(%v) = %+v", tt, got)
		}
	}
}

func TestSubPoint(t *testing.T) {
	got := SubPoint(geodeticECEF(51.6, -0.1, 420000))
	if math.Abs(got.LatDeg-51.6) > 1e-6 || math.Abs(got.AltM-420000) > 1e-3 {
		t.Errorf("SubPoint = %+v", got)
	}
}
