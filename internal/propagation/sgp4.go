// Package propagation implements the near-earth SGP4 orbit model.
//
// The model follows the revised formulation of Vallado, Crawford, Hujsak and
// Kelso, "Revisiting Spacetrack Report #3" (AIAA 2006-6753), with WGS-72
// constants. Orbits with a period of 225 minutes or more need the deep-space
// (SDP4) terms and are rejected with ErrDeepSpace.
package propagation

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

// SGP4 holds the initialized model for one element set. Everything derived at
// initialization is read-only, so one SGP4 may be shared by goroutines; the
// only mutable state is the decay marker, which is updated atomically.
type SGP4 struct {
	catalogNumber int
	name          string
	epoch         time.Time

	// Mean elements at epoch, radians and radians per minute.
	ecco, inclo, nodeo, argpo, mo float64
	bstar                         float64
	no                            float64 // Brouwer mean motion
	ao                            float64 // semi-major axis, earth radii

	// Secular rates and drag coefficients.
	mdot, argpdot, nodedot    float64
	cc1, cc4, cc5             float64
	d2, d3, d4                float64
	t2cof, t3cof, t4cof, t5cof float64
	omgcof, xmcof, nodecf     float64
	eta, delmo, sinmao        float64

	// Periodic coefficients.
	con41, x1mth2, x7thm1 float64
	xlcof, aycof          float64

	// isimp selects the truncated drag model for perigees below 220 km.
	isimp bool

	// decayedAt holds math.Float64bits of the earliest minute at which decay
	// was observed, +Inf until then.
	decayedAt atomic.Uint64
}

// New initializes SGP4 for rec.
func New(rec *tle.Record) (*SGP4, error) {
	p := &SGP4{
		catalogNumber: rec.CatalogNumber,
		name:          rec.Name,
		epoch:         rec.Epoch,
		ecco:          rec.Eccentricity,
		inclo:         rec.Inclination * degToRad,
		nodeo:         rec.RAAN * degToRad,
		argpo:         rec.ArgPerigee * degToRad,
		mo:            rec.MeanAnomaly * degToRad,
		bstar:         rec.BStar,
		no:            rec.MeanMotion * twoPi / minutesPerDay,
	}
	p.decayedAt.Store(math.Float64bits(math.Inf(1)))

	switch {
	case p.ecco < 0 || p.ecco >= 1 || math.IsNaN(p.ecco):
		return nil, p.fail(0, ErrInvalidElements, fmt.Sprintf("eccentricity %g", p.ecco))
	case p.inclo < 0 || p.inclo > math.Pi || math.IsNaN(p.inclo):
		return nil, p.fail(0, ErrInvalidElements, fmt.Sprintf("inclination %g deg", rec.Inclination))
	case !(p.no > 0) || math.IsInf(p.no, 0):
		return nil, p.fail(0, ErrInvalidElements, fmt.Sprintf("mean motion %g rev/day", rec.MeanMotion))
	case math.IsNaN(p.bstar) || math.IsInf(p.bstar, 0):
		return nil, p.fail(0, ErrInvalidElements, "bstar not finite")
	}

	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

// init derives the model coefficients from the mean elements.
func (p *SGP4) init() error {
	ss := 78.0/earthRadiusKm + 1.0
	qzms2t := math.Pow((120.0-78.0)/earthRadiusKm, 4)

	eccsq := p.ecco * p.ecco
	omeosq := 1 - eccsq
	rteosq := math.Sqrt(omeosq)
	cosio := math.Cos(p.inclo)
	cosio2 := cosio * cosio

	// Recover the Brouwer mean motion from the Kozai value in the element set.
	ak := math.Pow(xke/p.no, x2o3)
	d1 := 0.75 * j2 * (3*cosio2 - 1) / (rteosq * omeosq)
	del := d1 / (ak * ak)
	adel := ak * (1 - del*del - del*(1.0/3.0+134*del*del/81.0))
	del = d1 / (adel * adel)
	p.no = p.no / (1 + del)

	p.ao = math.Pow(xke/p.no, x2o3)
	sinio := math.Sin(p.inclo)
	po := p.ao * omeosq
	con42 := 1 - 5*cosio2
	p.con41 = -con42 - cosio2 - cosio2
	posq := po * po
	rp := p.ao * (1 - p.ecco)

	if period := twoPi / p.no; period >= DeepSpacePeriod {
		return p.fail(0, ErrDeepSpace, fmt.Sprintf("period %.1f min", period))
	}
	if rp < 1 {
		return p.fail(0, ErrDecayed, fmt.Sprintf("perigee %.1f km below the surface", (1-rp)*earthRadiusKm))
	}

	p.isimp = rp < 220.0/earthRadiusKm+1.0

	// Atmospheric density parameters for low perigees.
	sfour := ss
	qzms24 := qzms2t
	perigee := (rp - 1) * earthRadiusKm
	if perigee < 156 {
		sfour = perigee - 78
		if perigee < 98 {
			sfour = 20
		}
		qzms24 = math.Pow((120-sfour)/earthRadiusKm, 4)
		sfour = sfour/earthRadiusKm + 1
	}

	pinvsq := 1 / posq
	tsi := 1 / (p.ao - sfour)
	p.eta = p.ao * p.ecco * tsi
	etasq := p.eta * p.eta
	eeta := p.ecco * p.eta
	psisq := math.Abs(1 - etasq)
	coef := qzms24 * math.Pow(tsi, 4)
	coef1 := coef / math.Pow(psisq, 3.5)

	cc2 := coef1 * p.no * (p.ao*(1+1.5*etasq+eeta*(4+etasq)) +
		0.375*j2*tsi/psisq*p.con41*(8+3*etasq*(8+etasq)))
	p.cc1 = p.bstar * cc2
	var cc3 float64
	if p.ecco > 1e-4 {
		cc3 = -2 * coef * tsi * j3oj2 * p.no * sinio / p.ecco
	}
	p.x1mth2 = 1 - cosio2
	p.cc4 = 2 * p.no * coef1 * p.ao * omeosq *
		(p.eta*(2+0.5*etasq) + p.ecco*(0.5+2*etasq) -
			j2*tsi/(p.ao*psisq)*
				(-3*p.con41*(1-2*eeta+etasq*(1.5-0.5*eeta))+
					0.75*p.x1mth2*(2*etasq-eeta*(1+etasq))*math.Cos(2*p.argpo)))
	p.cc5 = 2 * coef1 * p.ao * omeosq * (1 + 2.75*(etasq+eeta) + eeta*etasq)

	// Secular rates from J2 and J4.
	cosio4 := cosio2 * cosio2
	temp1 := 1.5 * j2 * pinvsq * p.no
	temp2 := 0.5 * temp1 * j2 * pinvsq
	temp3 := -0.46875 * j4 * pinvsq * pinvsq * p.no
	p.mdot = p.no + 0.5*temp1*rteosq*p.con41 + 0.0625*temp2*rteosq*(13-78*cosio2+137*cosio4)
	p.argpdot = -0.5*temp1*con42 + 0.0625*temp2*(7-114*cosio2+395*cosio4) +
		temp3*(3-36*cosio2+49*cosio4)
	xhdot1 := -temp1 * cosio
	p.nodedot = xhdot1 + (0.5*temp2*(4-19*cosio2)+2*temp3*(3-7*cosio2))*cosio

	p.omgcof = p.bstar * cc3 * math.Cos(p.argpo)
	if p.ecco > 1e-4 {
		p.xmcof = -x2o3 * coef * p.bstar / eeta
	}
	p.nodecf = 3.5 * omeosq * xhdot1 * p.cc1
	p.t2cof = 1.5 * p.cc1

	// Long-period J3 coefficients; guard the 1/(1+cos i) singularity at i = 180.
	den := 1 + cosio
	if math.Abs(den) <= 1.5e-12 {
		den = 1.5e-12
	}
	p.xlcof = -0.25 * j3oj2 * sinio * (3 + 5*cosio) / den
	p.aycof = -0.5 * j3oj2 * sinio

	p.delmo = math.Pow(1+p.eta*math.Cos(p.mo), 3)
	p.sinmao = math.Sin(p.mo)
	p.x7thm1 = 7*cosio2 - 1

	if !p.isimp {
		cc1sq := p.cc1 * p.cc1
		p.d2 = 4 * p.ao * tsi * cc1sq
		temp := p.d2 * tsi * p.cc1 / 3
		p.d3 = (17*p.ao + sfour) * temp
		p.d4 = 0.5 * temp * p.ao * tsi * (221*p.ao + 31*sfour) * p.cc1
		p.t3cof = p.d2 + 2*cc1sq
		p.t4cof = 0.25 * (3*p.d3 + p.cc1*(12*p.d2+10*cc1sq))
		p.t5cof = 0.2 * (3*p.d4 + 12*p.cc1*p.d3 + 6*p.d2*p.d2 + 15*cc1sq*(2*p.d2+cc1sq))
	}
	return nil
}

// CatalogNumber returns the satellite catalog number.
func (p *SGP4) CatalogNumber() int { return p.catalogNumber }

// Name returns the satellite name from the element set, possibly empty.
func (p *SGP4) Name() string { return p.name }

// Epoch returns the element set epoch.
func (p *SGP4) Epoch() time.Time { return p.epoch }

// Period returns the anomalistic period implied by the recovered mean motion.
func (p *SGP4) Period() time.Duration {
	return time.Duration(twoPi / p.no * float64(time.Minute))
}

// SemiMajorAxisKm returns the recovered mean semi-major axis at epoch.
func (p *SGP4) SemiMajorAxisKm() float64 {
	return p.ao * earthRadiusKm
}

// Propagate returns the TEME state at t.
func (p *SGP4) Propagate(t time.Time) (transform.PositionTEME, error) {
	return p.PropagateMinutes(float64(t.Sub(p.epoch)) / float64(time.Minute))
}

// PropagateMinutes returns the TEME state tsince minutes after epoch;
// tsince may be negative.
func (p *SGP4) PropagateMinutes(tsince float64) (transform.PositionTEME, error) {
	if tsince >= math.Float64frombits(p.decayedAt.Load()) {
		return transform.PositionTEME{}, p.fail(tsince, ErrDecayed, "after observed decay")
	}

	// Secular gravity and drag.
	t := tsince
	xmdf := p.mo + p.mdot*t
	argpdf := p.argpo + p.argpdot*t
	nodedf := p.nodeo + p.nodedot*t
	argpm := argpdf
	mm := xmdf
	t2 := t * t
	nodem := nodedf + p.nodecf*t2
	tempa := 1 - p.cc1*t
	tempe := p.bstar * p.cc4 * t
	templ := p.t2cof * t2

	if !p.isimp {
		delomg := p.omgcof * t
		delm := p.xmcof * (math.Pow(1+p.eta*math.Cos(xmdf), 3) - p.delmo)
		temp := delomg + delm
		mm = xmdf + temp
		argpm = argpdf - temp
		t3 := t2 * t
		t4 := t3 * t
		tempa = tempa - p.d2*t2 - p.d3*t3 - p.d4*t4
		tempe = tempe + p.bstar*p.cc5*(math.Sin(mm)-p.sinmao)
		templ = templ + p.t3cof*t3 + t4*(p.t4cof+t*p.t5cof)
	}

	if tempa <= 0 {
		return transform.PositionTEME{}, p.decayed(tsince, "drag exhausted the semi-major axis")
	}
	am := math.Pow(xke/p.no, x2o3) * tempa * tempa
	nm := xke / math.Pow(am, 1.5)
	em := p.ecco - tempe
	if am < 0.95 {
		return transform.PositionTEME{}, p.decayed(tsince, fmt.Sprintf("semi-major axis %.1f km", am*earthRadiusKm))
	}
	if em >= 1 || em < -0.001 {
		return transform.PositionTEME{}, p.fail(tsince, ErrInvalidElements, fmt.Sprintf("mean eccentricity %g", em))
	}
	if em < 1e-6 {
		em = 1e-6
	}

	mm += p.no * templ
	xlm := mm + argpm + nodem
	nodem = math.Mod(nodem, twoPi)
	argpm = math.Mod(argpm, twoPi)
	xlm = math.Mod(xlm, twoPi)
	mm = math.Mod(xlm-argpm-nodem, twoPi)

	sinim, cosim := math.Sincos(p.inclo)

	// Long-period periodics.
	axnl := em * math.Cos(argpm)
	temp := 1 / (am * (1 - em*em))
	aynl := em*math.Sin(argpm) + temp*p.aycof
	xl := mm + argpm + nodem + temp*p.xlcof*axnl

	u := math.Mod(xl-nodem, twoPi)
	sineo1, coseo1, err := solveKepler(u, axnl, aynl, keplerMaxIterations)
	if err != nil {
		return transform.PositionTEME{}, p.fail(tsince, ErrConvergence, fmt.Sprintf("%d iterations", keplerMaxIterations))
	}

	// Short-period preliminary quantities.
	ecose := axnl*coseo1 + aynl*sineo1
	esine := axnl*sineo1 - aynl*coseo1
	el2 := axnl*axnl + aynl*aynl
	pl := am * (1 - el2)
	if pl < 0 {
		return transform.PositionTEME{}, p.fail(tsince, ErrInvalidElements, "semi-latus rectum negative")
	}
	rl := am * (1 - ecose)
	rdotl := math.Sqrt(am) * esine / rl
	rvdotl := math.Sqrt(pl) / rl
	betal := math.Sqrt(1 - el2)
	temp = esine / (1 + betal)
	sinu := am / rl * (sineo1 - aynl - axnl*temp)
	cosu := am / rl * (coseo1 - axnl + aynl*temp)
	su := math.Atan2(sinu, cosu)
	sin2u := (cosu + cosu) * sinu
	cos2u := 1 - 2*sinu*sinu
	temp = 1 / pl
	temp1 := 0.5 * j2 * temp
	temp2 := temp1 * temp

	// Short-period periodics.
	mrt := rl*(1-1.5*temp2*betal*p.con41) + 0.5*temp1*p.x1mth2*cos2u
	su -= 0.25 * temp2 * p.x7thm1 * sin2u
	xnode := nodem + 1.5*temp2*cosim*sin2u
	xinc := p.inclo + 1.5*temp2*cosim*sinim*cos2u
	mvt := rdotl - nm*temp1*p.x1mth2*sin2u/xke
	rvdot := rvdotl + nm*temp1*(p.x1mth2*cos2u+1.5*p.con41)/xke

	if mrt < 1 {
		return transform.PositionTEME{}, p.decayed(tsince, fmt.Sprintf("radius %.1f km", mrt*earthRadiusKm))
	}

	// Orientation vectors.
	sinsu, cossu := math.Sincos(su)
	snod, cnod := math.Sincos(xnode)
	sini, cosi := math.Sincos(xinc)
	xmx := -snod * cosi
	xmy := cnod * cosi
	ux := xmx*sinsu + cnod*cossu
	uy := xmy*sinsu + snod*cossu
	uz := sini * sinsu
	vx := xmx*cossu - cnod*sinsu
	vy := xmy*cossu - snod*sinsu
	vz := sini * cossu

	return transform.PositionTEME{
		X:  mrt * ux * earthRadiusKm,
		Y:  mrt * uy * earthRadiusKm,
		Z:  mrt * uz * earthRadiusKm,
		VX: (mvt*ux + rvdot*vx) * kmPerSec,
		VY: (mvt*uy + rvdot*vy) * kmPerSec,
		VZ: (mvt*uz + rvdot*vz) * kmPerSec,
	}, nil
}

func (p *SGP4) fail(tsince float64, kind error, detail string) error {
	return &Error{CatalogNumber: p.catalogNumber, Minutes: tsince, Err: kind, Detail: detail}
}

func (p *SGP4) decayed(tsince float64, detail string) error {
	if tsince >= 0 {
		p.markDecayed(tsince)
	}
	return p.fail(tsince, ErrDecayed, detail)
}

// markDecayed lowers the decay marker to tsince if it is earlier.
func (p *SGP4) markDecayed(tsince float64) {
	for {
		cur := p.decayedAt.Load()
		if tsince >= math.Float64frombits(cur) {
			return
		}
		if p.decayedAt.CompareAndSwap(cur, math.Float64bits(tsince)) {
			return
		}
	}
}
