package passes

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/3dfirelab/satOverpass/internal/propagation"
)

const (
	// DefaultStep is the coarse sampling interval.
	DefaultStep = 30 * time.Second

	// DefaultTolerance is the precision of rise, set and culmination times.
	DefaultTolerance = 100 * time.Millisecond

	// DefaultThreshold is the minimum elevation of a pass, in degrees.
	DefaultThreshold = 5.0

	maxTolerance  = time.Second
	ctxCheckEvery = 64

	invPhi = 0.6180339887498949 // 1/golden ratio
)

// Detector locates passes of an elevation function above a threshold.
// Zero Step and Tolerance take their defaults; a zero Threshold is the
// geometric horizon.
type Detector struct {
	Step      time.Duration
	Tolerance time.Duration
	Threshold float64
}

// Span is one detected pass: Rise < Culmination < Set.
type Span struct {
	Rise         time.Time
	Culmination  time.Time
	Set          time.Time
	MaxElevation float64
}

// Detect samples f every Step across w, brackets each threshold crossing
// between adjacent samples and refines it by bisection, then maximizes f
// between rise and set by golden-section search.
//
// Only passes that rise and set inside w are returned. Each bracket is
// refined on its own, so passes closer together than Step stay separate.
// Local sample maxima below the threshold and local minima above it are
// probed, which recovers passes and gaps narrower than Step when they
// straddle a sample; see SampleGapMiss for what remains.
//
// Evaluation errors other than propagation.ErrDecayed skip the sample and are
// counted. ErrDecayed ends the scan; passes completed before it are returned
// together with the error. A cancelled ctx returns ctx.Err() and no spans.
func (d Detector) Detect(ctx context.Context, f ElevationFunc, w Window) ([]Span, int, error) {
	d = d.withDefaults()
	s := &scan{f: f, threshold: d.Threshold, tol: d.Tolerance, step: d.Step}

	if !w.End.After(w.Start) {
		return nil, 0, errEmptyWindow
	}

	samples, err := s.sampleWindow(ctx, w)
	if err != nil {
		return nil, s.skipped, err
	}
	spans := s.pair(s.crossings(samples), samples)
	if s.decayed != nil {
		return spans, s.skipped, s.decayed
	}
	return spans, s.skipped, nil
}

func (d Detector) withDefaults() Detector {
	if d.Step <= 0 {
		d.Step = DefaultStep
	}
	if d.Tolerance <= 0 {
		d.Tolerance = DefaultTolerance
	}
	if d.Tolerance > maxTolerance {
		d.Tolerance = maxTolerance
	}
	return d
}

type sample struct {
	t  time.Time
	el float64
}

type crossing struct {
	t      time.Time
	rising bool
}

// scan carries the evaluation state of one Detect call.
type scan struct {
	f         ElevationFunc
	threshold float64
	tol       time.Duration
	step      time.Duration

	skipped int
	decayed error
	decayAt time.Time
}

func (s *scan) up(el float64) bool { return el >= s.threshold }

// eval returns f(t), or false if it failed. Decay is recorded, and
// evaluations at or after the earliest decayed instant fail without calling f.
func (s *scan) eval(t time.Time) (float64, bool) {
	if s.decayed != nil && !t.Before(s.decayAt) {
		return 0, false
	}
	el, err := s.f(t)
	if err != nil {
		if errors.Is(err, propagation.ErrDecayed) {
			if s.decayed == nil || t.Before(s.decayAt) {
				s.decayed, s.decayAt = err, t
			}
		} else {
			s.skipped++
		}
		return 0, false
	}
	if math.IsNaN(el) {
		s.skipped++
		return 0, false
	}
	return el, true
}

// sampleWindow evaluates f at Start, Start+Step, ... and finally at End.
func (s *scan) sampleWindow(ctx context.Context, w Window) ([]sample, error) {
	out := make([]sample, 0, int(w.Duration()/s.step)+2)
	for i := 0; ; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		t := w.Start.Add(time.Duration(i) * s.step)
		last := !t.Before(w.End)
		if last {
			t = w.End
		}
		if el, ok := s.eval(t); ok {
			out = append(out, sample{t: t, el: el})
		} else if s.decayed != nil {
			break
		}
		if last {
			break
		}
	}
	return out, nil
}

// crossings refines every threshold crossing between adjacent samples and
// adds the pairs found by probing sample extrema.
func (s *scan) crossings(samples []sample) []crossing {
	var out []crossing
	for i := 1; i < len(samples); i++ {
		a, b := samples[i-1], samples[i]
		aUp, bUp := s.up(a.el), s.up(b.el)
		if aUp != bUp {
			out = append(out, crossing{t: s.bisect(a, b), rising: bUp})
		}

		if i+1 >= len(samples) {
			continue
		}
		c := samples[i+1]
		cUp := s.up(c.el)
		switch {
		case !aUp && !bUp && !cUp && b.el > a.el && b.el >= c.el:
			// A pass may peak between a and c without reaching a sample.
			if m, ok := s.extremum(a.t, c.t, 1); ok && s.up(m.el) {
				out = append(out,
					crossing{t: s.bisect(a, m), rising: true},
					crossing{t: s.bisect(m, c), rising: false})
			}
		case aUp && bUp && cUp && b.el < a.el && b.el <= c.el:
			// Two passes may be separated by a dip no sample caught.
			if m, ok := s.extremum(a.t, c.t, -1); ok && !s.up(m.el) {
				out = append(out,
					crossing{t: s.bisect(a, m), rising: false},
					crossing{t: s.bisect(m, c), rising: true})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].t.Before(out[j].t) })
	return out
}

// bisect narrows a bracket whose ends lie on opposite sides of the threshold
// and returns the end that is above it.
func (s *scan) bisect(a, b sample) time.Time {
	aUp := s.up(a.el)
	lo, hi := a.t, b.t
	for hi.Sub(lo) > s.tol {
		mid := lo.Add(hi.Sub(lo) / 2)
		el, ok := s.eval(mid)
		if !ok {
			break
		}
		if s.up(el) == aUp {
			lo = mid
		} else {
			hi = mid
		}
	}
	if aUp {
		return lo
	}
	return hi
}

// extremum runs a golden-section search for the maximum (sign 1) or minimum
// (sign -1) of f on (a, b). The result lies strictly inside the interval.
func (s *scan) extremum(a, b time.Time, sign float64) (sample, bool) {
	g := func(t time.Time) float64 {
		el, ok := s.eval(t)
		if !ok {
			return math.Inf(-1)
		}
		return sign * el
	}

	lo, hi := a, b
	x1 := hi.Add(-time.Duration(float64(hi.Sub(lo)) * invPhi))
	x2 := lo.Add(time.Duration(float64(hi.Sub(lo)) * invPhi))
	f1, f2 := g(x1), g(x2)
	for hi.Sub(lo) > s.tol {
		if f1 < f2 {
			lo = x1
			x1, f1 = x2, f2
			x2 = lo.Add(time.Duration(float64(hi.Sub(lo)) * invPhi))
			f2 = g(x2)
		} else {
			hi = x2
			x2, f2 = x1, f1
			x1 = hi.Add(-time.Duration(float64(hi.Sub(lo)) * invPhi))
			f1 = g(x1)
		}
	}

	best := sample{t: x1, el: f1}
	if f2 > f1 {
		best = sample{t: x2, el: f2}
	}
	if math.IsInf(best.el, -1) {
		return sample{}, false
	}
	best.el *= sign
	return best, true
}

// pair matches each rise with the following set. A set with no rise before
// it belongs to a pass already up at Start; a rise with no set, to one still
// up at End or cut short by decay. Both are dropped.
func (s *scan) pair(cs []crossing, samples []sample) []Span {
	var out []Span
	var rise time.Time
	rising := false
	for _, c := range cs {
		if c.rising {
			rise, rising = c.t, true
			continue
		}
		if !rising {
			continue
		}
		rising = false
		if sp, ok := s.culminate(rise, c.t, samples); ok {
			out = append(out, sp)
		}
	}
	return out
}

// culminate finds the maximum between rise and set, starting from the
// highest sample inside the pass.
func (s *scan) culminate(rise, set time.Time, samples []sample) (Span, bool) {
	if !rise.Before(set) {
		return Span{}, false
	}

	first := sort.Search(len(samples), func(i int) bool { return samples[i].t.After(rise) })
	seed := sample{el: math.Inf(-1)}
	for i := first; i < len(samples) && samples[i].t.Before(set); i++ {
		if samples[i].el > seed.el {
			seed = samples[i]
		}
	}

	lo, hi := rise, set
	if !math.IsInf(seed.el, -1) {
		if t := seed.t.Add(-s.step); t.After(lo) {
			lo = t
		}
		if t := seed.t.Add(s.step); t.Before(hi) {
			hi = t
		}
	}

	peak, ok := s.extremum(lo, hi, 1)
	if !ok || (!math.IsInf(seed.el, -1) && seed.el > peak.el) {
		peak, ok = seed, !math.IsInf(seed.el, -1)
	}
	if !ok || !peak.t.After(rise) || !peak.t.Before(set) {
		mid := rise.Add(set.Sub(rise) / 2)
		el, evalOK := s.eval(mid)
		if !evalOK || !mid.After(rise) {
			return Span{}, false
		}
		peak = sample{t: mid, el: el}
	}

	return Span{Rise: rise, Culmination: peak.t, Set: set, MaxElevation: peak.el}, true
}
