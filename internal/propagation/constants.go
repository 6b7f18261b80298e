package propagation

import "math"

// WGS-72 gravity model, the constants SGP4 element sets are fitted against.
const (
	earthRadiusKm = 6378.135
	muKm3PerSec2  = 398600.8
	j2            = 0.001082616
	j3            = -0.00000253881
	j4            = -0.00000165597
	j3oj2         = j3 / j2
)

const (
	twoPi         = 2 * math.Pi
	degToRad      = math.Pi / 180
	x2o3          = 2.0 / 3.0
	minutesPerDay = 1440.0

	// DeepSpacePeriod is the orbital period, in minutes, at and above which
	// the SDP4 deep-space corrections would be required.
	DeepSpacePeriod = 225.0
)

var (
	// xke is sqrt(GM) in earth radii^1.5 per minute.
	xke = 60.0 / math.Sqrt(earthRadiusKm*earthRadiusKm*earthRadiusKm/muKm3PerSec2)

	// kmPerSec converts earth radii per minute to km/s.
	kmPerSec = earthRadiusKm * xke / 60.0
)
