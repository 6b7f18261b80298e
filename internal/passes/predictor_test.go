package passes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/3dfirelab/satOverpass/internal/propagation"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

const catalogText = `ISS (ZARYA)
1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996
2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057
SENTINEL-3A
1 41335U 16011A   25045.50000000  .00000040  00000-0  33000-4 0  9990
2 41335  98.6200 120.0000 0001100  90.0000 270.0000 14.26740000463216
BROKEN SAT
1 25545U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9990
2 25545  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057
REENTRY TEST
1 99001U 24001A   25045.00000000  .05000000  00000-0  10000+0 0  9997
2 99001  51.6000  10.0000 0010000  90.0000 270.0000 15.90000000    19
GEO TEST
1 99002U 24002A   25045.00000000  .00000010  00000-0  00000-0 0  9995
2 99002   0.0500 100.0000 0002000  90.0000 270.0000  1.00270000    19
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testCatalog(t *testing.T) *tle.Catalog {
	t.Helper()
	cat, err := tle.Parse(strings.NewReader(catalogText), testLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cat
}

func toulouse(t *testing.T) transform.Observer {
	t.Helper()
	obs, err := transform.NewObserver(43.6043, 1.44384, 100)
	if err != nil {
		t.Fatalf("NewObserver: %v", err)
	}
	return obs
}

func lookup(t *testing.T, cat *tle.Catalog, name string) *tle.Record {
	t.Helper()
	rec, err := cat.Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	return rec
}

func TestFindPassesISS(t *testing.T) {
	cat := testCatalog(t)
	iss := lookup(t, cat, "ISS (ZARYA)")
	obs := toulouse(t)
	w := mustWindow(t, time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC), 24*time.Hour)

	p := NewPredictor(Options{}, testLogger())
	rep, err := p.FindPasses(context.Background(), iss, obs, w, DefaultThreshold)
	if err != nil {
		t.Fatalf("FindPasses: %v", err)
	}
	if rep.CatalogNumber != 25544 || rep.Name != "ISS (ZARYA)" {
		t.Errorf("report identity = %d %q", rep.CatalogNumber, rep.Name)
	}
	if len(rep.Passes) == 0 {
		t.Fatal("expected at least one ISS pass over Toulouse in 24h")
	}

	var prevSet time.Time
	for i, pass := range rep.Passes {
		r, c, s := pass.Rise, pass.Culminate, pass.Set
		if !r.Time.Before(c.Time) || !c.Time.Before(s.Time) {
			t.Errorf("pass %d: events out of order %v %v %v", i, r.Time, c.Time, s.Time)
		}
		if !w.Contains(r.Time) || !w.Contains(s.Time) {
			t.Errorf("pass %d: not contained in window", i)
		}
		if !r.Time.After(prevSet) {
			t.Errorf("pass %d: rises at %v before previous set %v", i, r.Time, prevSet)
		}
		prevSet = s.Time

		for _, ev := range []Event{r, s} {
			if ev.Elevation < DefaultThreshold-1e-9 || ev.Elevation > DefaultThreshold+0.1 {
				t.Errorf("pass %d %s elevation = %.4f, want %.1f", i, ev.Kind, ev.Elevation, DefaultThreshold)
			}
		}
		if c.Elevation < r.Elevation || c.Elevation < s.Elevation {
			t.Errorf("pass %d: culmination %.3f below rise %.3f or set %.3f", i, c.Elevation, r.Elevation, s.Elevation)
		}
		if math.Abs(c.ViewAngle-(90-c.Elevation)) > 1e-12 {
			t.Errorf("pass %d: view angle %.3f, elevation %.3f", i, c.ViewAngle, c.Elevation)
		}
		if d := pass.Duration(); d <= 0 || d > 15*time.Minute {
			t.Errorf("pass %d: duration %v", i, d)
		}
		if c.RangeKm < 400 || c.RangeKm > 2500 {
			t.Errorf("pass %d: culmination range %.1f km", i, c.RangeKm)
		}
		if r.RangeRateKmS >= 0 || s.RangeRateKmS <= 0 {
			t.Errorf("pass %d: range rate at rise %.3f, at set %.3f", i, r.RangeRateKmS, s.RangeRateKmS)
		}
		if math.Abs(pass.SubPoint.LatDeg) > 52 {
			t.Errorf("pass %d: sub-point latitude %.2f beyond inclination", i, pass.SubPoint.LatDeg)
		}
	}

	events := rep.Events()
	if len(events) != 3*len(rep.Passes) {
		t.Fatalf("Events() returned %d events for %d passes", len(events), len(rep.Passes))
	}
	for i := 1; i < len(events); i++ {
		if !events[i-1].Time.Before(events[i].Time) {
			t.Errorf("events %d and %d out of order", i-1, i)
		}
	}
}

// TestFindPassesMatchesBruteForce compares against a one-second scan.
func TestFindPassesMatchesBruteForce(t *testing.T) {
	cat := testCatalog(t)
	iss := lookup(t, cat, "ISS (ZARYA)")
	obs := toulouse(t)
	w := mustWindow(t, time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC), 24*time.Hour)

	sat, err := propagation.New(iss)
	if err != nil {
		t.Fatalf("propagation.New: %v", err)
	}
	f := NewElevationFunc(sat, obs)

	type window struct{ rise, set time.Time }
	var want []window
	prev, err := f(w.Start)
	if err != nil {
		t.Fatal(err)
	}
	var rise time.Time
	for tm := w.Start.Add(time.Second); tm.Before(w.End); tm = tm.Add(time.Second) {
		el, err := f(tm)
		if err != nil {
			t.Fatal(err)
		}
		switch {
		case prev < DefaultThreshold && el >= DefaultThreshold:
			rise = tm
		case prev >= DefaultThreshold && el < DefaultThreshold && !rise.IsZero():
			want = append(want, window{rise, tm})
			rise = time.Time{}
		}
		prev = el
	}

	rep, err := NewPredictor(Options{}, testLogger()).FindPasses(context.Background(), iss, obs, w, DefaultThreshold)
	if err != nil {
		t.Fatalf("FindPasses: %v", err)
	}
	if len(rep.Passes) != len(want) {
		t.Fatalf("got %d passes, brute force found %d", len(rep.Passes), len(want))
	}
	for i, pass := range rep.Passes {
		if d := pass.Rise.Time.Sub(want[i].rise); d < -time.Second || d > time.Second {
			t.Errorf("pass %d rise %v, brute force %v", i, pass.Rise.Time, want[i].rise)
		}
		if d := pass.Set.Time.Sub(want[i].set); d < -time.Second || d > time.Second {
			t.Errorf("pass %d set %v, brute force %v", i, pass.Set.Time, want[i].set)
		}
	}
}

func TestFindPassesDecay(t *testing.T) {
	cat := testCatalog(t)
	rec := lookup(t, cat, "REENTRY TEST")
	obs := toulouse(t)
	w := mustWindow(t, rec.Epoch, 24*time.Hour)

	rep, err := NewPredictor(Options{}, testLogger()).FindPasses(context.Background(), rec, obs, w, 0)
	if !errors.Is(err, propagation.ErrDecayed) {
		t.Fatalf("FindPasses error = %v, want ErrDecayed", err)
	}
	if rep == nil {
		t.Fatal("decayed satellite must still return the report before decay")
	}
	decayAt := rec.Epoch.Add(699 * time.Minute)
	for i, pass := range rep.Passes {
		if !pass.Set.Time.Before(decayAt) {
			t.Errorf("pass %d sets at %v, after decay", i, pass.Set.Time)
		}
	}
}

func TestFindPassesGroundTrack(t *testing.T) {
	cat := testCatalog(t)
	iss := lookup(t, cat, "ISS (ZARYA)")
	w := mustWindow(t, time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC), 24*time.Hour)

	p := NewPredictor(Options{GroundTrackStep: 10 * time.Second}, testLogger())
	rep, err := p.FindPasses(context.Background(), iss, toulouse(t), w, DefaultThreshold)
	if err != nil {
		t.Fatalf("FindPasses: %v", err)
	}
	if len(rep.Passes) == 0 {
		t.Fatal("no passes")
	}
	pass := rep.Passes[0]
	want := int(pass.Duration()/(10*time.Second)) + 1
	if len(pass.GroundTrack) != want {
		t.Errorf("ground track has %d points, want %d", len(pass.GroundTrack), want)
	}
	for _, pt := range pass.GroundTrack {
		if pt.Altitude < 350000 || pt.Altitude > 500000 {
			t.Errorf("ground track altitude %.0f m", pt.Altitude)
		}
	}
}

func TestFindPassesBatch(t *testing.T) {
	cat := testCatalog(t)
	obs := toulouse(t)
	w := mustWindow(t, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), 24*time.Hour)

	keys := []string{"ISS (ZARYA)", "BROKEN SAT", "41335", "NO SUCH SAT", "REENTRY TEST", "GEO TEST"}
	p := NewPredictor(Options{Workers: 2}, testLogger())
	results := p.FindPassesBatch(context.Background(), Resolve(cat, keys), obs, w, DefaultThreshold)

	if len(results) != len(keys) {
		t.Fatalf("got %d results, want %d", len(results), len(keys))
	}
	for i, r := range results {
		if r.Key != keys[i] {
			t.Errorf("result %d key = %q, want %q", i, r.Key, keys[i])
		}
	}

	tests := []struct {
		idx        int
		kind       string
		wantReport bool
	}{
		{0, "", true},
		{1, "malformed", false},
		{2, "", true},
		{3, "not_found", false},
		{4, "decayed", true},
		{5, "deep_space", false},
	}
	for _, tt := range tests {
		r := results[tt.idx]
		if got := FailureKind(r.Err); got != tt.kind {
			t.Errorf("%s: failure kind %q, want %q (err %v)", r.Key, got, tt.kind, r.Err)
		}
		if (r.Report != nil) != tt.wantReport {
			t.Errorf("%s: report present = %v, want %v", r.Key, r.Report != nil, tt.wantReport)
		}
	}
	if results[2].CatalogNumber != 41335 || results[2].Name != "SENTINEL-3A" {
		t.Errorf("catalog-number key resolved to %d %q", results[2].CatalogNumber, results[2].Name)
	}
}

func TestFindPassesBatch_OneMalformed(t *testing.T) {
	cat := testCatalog(t)
	keys := []string{"ISS (ZARYA)", "SENTINEL-3A", "BROKEN SAT"}
	w := mustWindow(t, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), 6*time.Hour)

	results := NewPredictor(Options{}, testLogger()).FindPassesBatch(context.Background(), Resolve(cat, keys), toulouse(t), w, DefaultThreshold)

	ok, failed := 0, 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			if !errors.Is(r.Err, tle.ErrMalformedRecord) {
				t.Errorf("%s: error %v, want ErrMalformedRecord", r.Key, r.Err)
			}
			continue
		}
		ok++
	}
	if ok != 2 || failed != 1 {
		t.Errorf("got %d reports and %d failures, want 2 and 1", ok, failed)
	}
}

func TestFindPassesBatch_Cancelled(t *testing.T) {
	cat := testCatalog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := mustWindow(t, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), 24*time.Hour)
	targets := RecordTargets([]*tle.Record{lookup(t, cat, "ISS (ZARYA)"), lookup(t, cat, "SENTINEL-3A")})
	results := NewPredictor(Options{}, testLogger()).FindPassesBatch(ctx, targets, toulouse(t), w, DefaultThreshold)

	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("%s: error %v, want context.Canceled", r.Key, r.Err)
		}
		if r.Report != nil {
			t.Errorf("%s: cancelled satellite has a partial report", r.Key)
		}
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&tle.MalformedRecordError{Line: 1, Field: "checksum", Err: errors.New("bad")}, "malformed"},
		{tle.ErrNotFound, "not_found"},
		{context.DeadlineExceeded, "cancelled"},
		{&propagation.Error{Err: propagation.ErrConvergence}, "convergence"},
	}
	for _, tt := range tests {
		if got := FailureKind(tt.err); got != tt.want {
			t.Errorf("FailureKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
