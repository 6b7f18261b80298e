package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// Sentinel-3A elements; go-satellite propagates them to give TEME states
// that are independent of this module's SGP4.
const (
	s3aLine1 = "1 41335U 16011A   25045.50000000  .00000040  00000-0  33000-4 0  9990"
	s3aLine2 = "2 41335  98.6200 120.0000 0001100  90.0000 270.0000 14.26740000463216"
)

// passInstants are whole-second instants around the element epoch, the
// resolution go-satellite accepts.
var passInstants = []time.Time{
	time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC),
	time.Date(2025, 2, 14, 18, 37, 12, 0, time.UTC),
	time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
	time.Date(2025, 2, 15, 9, 41, 59, 0, time.UTC),
}

func clockFields(t time.Time) (year, month, day, hour, minute, sec int) {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return y, int(m), d, hh, mm, ss
}

func TestJulianDateMatchesGoSatellite(t *testing.T) {
	for _, at := range append(passInstants,
		time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
	) {
		got := JulianDate(at)
		want := satellite.JDay(clockFields(at))
		if diff := math.Abs(got - want); diff > 1e-7 {
			t.Errorf("JulianDate(%v) = %.9f, go-satellite %.9f (diff=%.2e)", at, got, want, diff)
		}
	}
}

// TestGMSTMatchesGoSatellite compares IAU-82 sidereal time; both use UTC for UT1.
func TestGMSTMatchesGoSatellite(t *testing.T) {
	for _, at := range passInstants {
		got := GMST(at)
		if got < 0 || got >= 2*math.Pi {
			t.Errorf("GMST(%v) = %v outside [0, 2π)", at, got)
		}
		want := satellite.GSTimeFromDate(clockFields(at))
		// 1e-8 rad is about 6 cm along the equator.
		if diff := math.Abs(got - want); diff > 1e-8 {
			t.Errorf("GMST(%v) = %.12f rad, go-satellite %.12f rad (diff=%.2e)", at, got, want, diff)
		}
	}
}

// TestSentinelGroundChain rotates go-satellite TEME states into ECEF, compares
// against go-satellite's own rotation and checks the sub-satellite altitude.
func TestSentinelGroundChain(t *testing.T) {
	ref := satellite.TLEToSat(s3aLine1, s3aLine2, satellite.GravityWGS72)
	toulouse, err := NewObserver(43.6043, 1.44384, 100)
	if err != nil {
		t.Fatal(err)
	}

	for _, at := range passInstants {
		year, month, day, hour, minute, sec := clockFields(at)
		pos, vel := satellite.Propagate(ref, year, month, day, hour, minute, sec)
		teme := PositionTEME{X: pos.X, Y: pos.Y, Z: pos.Z, VX: vel.X, VY: vel.Y, VZ: vel.Z}

		gmst := GMST(at)
		ecef := TEMEToECEFWithGMST(teme, gmst)
		refECEF := satellite.ECIToECEF(pos, gmst)
		for _, d := range []float64{ecef.X - refECEF.X*1000, ecef.Y - refECEF.Y*1000, ecef.Z - refECEF.Z*1000} {
			if math.Abs(d) > 1 {
				t.Fatalf("%v: ECEF differs from go-satellite by %.3f m", at, d)
			}
		}
		if !ValidateECEF(ecef) {
			t.Errorf("%v: implausible ECEF %+v", at, ecef)
		}

		sub := SubPoint(ecef)
		if sub.AltM < 770e3 || sub.AltM > 840e3 {
			t.Errorf("%v: sub-point altitude %.0f m, want Sentinel-3 orbit height", at, sub.AltM)
		}
		// A sun-synchronous orbit at 98.6° stays below about 81.4° latitude.
		if math.Abs(sub.LatDeg) > 82 {
			t.Errorf("%v: sub-point latitude %.2f beyond orbit inclination", at, sub.LatDeg)
		}

		la := Topocentric(teme, toulouse, at)
		if la.ElevationDeg < -90 || la.ElevationDeg > 90 || la.AzimuthDeg < 0 || la.AzimuthDeg >= 360 {
			t.Errorf("%v: look angles out of range: %+v", at, la)
		}
		// Range can never be below the orbit height nor beyond the far limb.
		if la.RangeKm < 770 || la.RangeKm > 2*7200 {
			t.Errorf("%v: range %.0f km implausible", at, la.RangeKm)
		}
	}
}

// TestTEMEToECEFVelocity checks the Earth-rotation term on a prograde
// equatorial state at GMST 0, where TEME and ECEF axes coincide.
func TestTEMEToECEFVelocity(t *testing.T) {
	teme := PositionTEME{X: 7178.0, VY: 7.45}
	ecef := TEMEToECEFWithGMST(teme, 0)

	if math.Abs(ecef.X-7178000.0) > 0.1 || ecef.Y != 0 {
		t.Errorf("position = (%.1f, %.1f), want (7178000, 0)", ecef.X, ecef.Y)
	}
	wantVY := (7.45 - OmegaEarth*7178.0) * 1000.0
	if math.Abs(ecef.VY-wantVY) > 0.1 {
		t.Errorf("VY = %.1f m/s, want %.1f m/s", ecef.VY, wantVY)
	}
}

func TestValidateECEF(t *testing.T) {
	tests := []struct {
		name  string
		pos   PositionECEF
		valid bool
	}{
		{"sentinel altitude", geodeticECEF(45, 10, 800e3), true},
		{"polar LEO", PositionECEF{Z: 7178000}, true},
		{"medium orbit", PositionECEF{Y: -26560000}, true},
		{"geostationary", PositionECEF{X: 42164000}, true},
		{"below crust after decay", geodeticECEF(0, 0, -300e3), false},
		{"beyond near-earth range", PositionECEF{X: 60000000}, false},
		{"NaN", PositionECEF{X: math.NaN()}, false},
		{"Inf", PositionECEF{Y: math.Inf(-1)}, false},
		{"origin", PositionECEF{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateECEF(tt.pos); got != tt.valid {
				t.Errorf("ValidateECEF(%+v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}
