package cache

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/3dfirelab/satOverpass/internal/passes"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

const catalogText = `SENTINEL-3A
1 41335U 16011A   25045.50000000  .00000040  00000-0  33000-4 0  9990
2 41335  98.6200 120.0000 0001100  90.0000 270.0000 14.26740000463216
METOP-B
1 38771U 12049A   25045.25000000 -.00000123  00000-0 -11606-4 0  9991
2 38771  98.7000 100.5000 0002000  80.0000 280.0000 14.21500000642250
`

var t0 = time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testDataset(t *testing.T, fetchedAt time.Time) *tle.Dataset {
	t.Helper()
	cat, err := tle.Parse(strings.NewReader(catalogText), testLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return &tle.Dataset{Source: "test", FetchedAt: fetchedAt, EpochRange: cat.EpochRange(), Catalog: cat}
}

func testStore(t *testing.T) *tle.Store {
	store := tle.NewStore()
	store.Set(testDataset(t, t0))
	return store
}

func testObserver(t *testing.T) transform.Observer {
	t.Helper()
	obs, err := transform.NewObserver(43.6043, 1.44384, 100)
	if err != nil {
		t.Fatalf("NewObserver: %v", err)
	}
	return obs
}

// fakeClock advances one second per call so entries never tie.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(time.Second)
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func testCache(t *testing.T, cfg Config) (*ReportCache, *tle.Store, *fakeClock) {
	t.Helper()
	store := testStore(t)
	pred := passes.NewPredictor(passes.Options{Workers: 2}, testLogger())
	c := NewReportCache(cfg, pred, store, testLogger())
	clock := &fakeClock{t: t0}
	c.now = clock.now
	return c, store, clock
}

func TestRoundToStep(t *testing.T) {
	c, _, _ := testCache(t, Config{Step: time.Minute})

	tests := []struct {
		input    time.Time
		expected time.Time
	}{
		{time.Date(2026, 2, 6, 12, 0, 3, 0, time.UTC), time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)},
		{time.Date(2026, 2, 6, 12, 1, 59, 0, time.UTC), time.Date(2026, 2, 6, 12, 1, 0, 0, time.UTC)},
		{time.Date(2026, 2, 6, 14, 2, 0, 0, time.FixedZone("CEST", 7200)), time.Date(2026, 2, 6, 12, 2, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := c.RoundToStep(tt.input)
		if !got.Equal(tt.expected) || got.Location() != time.UTC {
			t.Errorf("RoundToStep(%v) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestGetMissThenHit(t *testing.T) {
	c, _, _ := testCache(t, Config{})
	obs := testObserver(t)
	w, _ := c.Window(t0, time.Hour)
	key := KeyFor(41335, obs, w, 5)

	if c.Get(key) != nil {
		t.Fatal("expected nil for cache miss")
	}
	rep := &passes.Report{CatalogNumber: 41335, Window: w}
	c.put(key, rep, obs)

	if got := c.Get(key); got != rep {
		t.Fatalf("Get returned %v, want the stored report", got)
	}
	if other := c.Get(KeyFor(41335, obs, w, 10)); other != nil {
		t.Error("different threshold must not hit")
	}

	stats := c.Stats()
	if stats.Entries != 1 || stats.Hits != 1 || stats.Misses != 2 {
		t.Errorf("stats = %+v, want 1 entry, 1 hit, 2 misses", stats)
	}
}

func TestEvictExpired(t *testing.T) {
	c, _, clock := testCache(t, Config{TTL: time.Minute})
	obs := testObserver(t)
	w, _ := c.Window(t0, time.Hour)

	old := KeyFor(41335, obs, w, 5)
	c.put(old, &passes.Report{}, obs)
	clock.advance(2 * time.Minute)
	fresh := KeyFor(38771, obs, w, 5)
	c.put(fresh, &passes.Report{}, obs)

	if removed := c.evictExpired(); removed != 1 {
		t.Errorf("expected 1 eviction, got %d", removed)
	}
	if c.Get(old) != nil {
		t.Error("expected expired entry to be evicted")
	}
	if c.Get(fresh) == nil {
		t.Error("expected fresh entry to remain")
	}
}

func TestMaxEntries(t *testing.T) {
	c, _, _ := testCache(t, Config{MaxEntries: 2})
	obs := testObserver(t)
	w, _ := c.Window(t0, time.Hour)

	for _, id := range []int{1, 2, 3} {
		c.put(KeyFor(id, obs, w, 5), &passes.Report{CatalogNumber: id}, obs)
	}
	stats := c.Stats()
	if stats.Entries != 2 || stats.Evictions != 1 {
		t.Errorf("stats = %+v, want 2 entries and 1 eviction", stats)
	}
	if c.Get(KeyFor(1, obs, w, 5)) != nil {
		t.Error("oldest entry should have been evicted")
	}
}

func TestBatchCachesCompleteReports(t *testing.T) {
	c, store, _ := testCache(t, Config{})
	obs := testObserver(t)
	w, err := c.Window(t0.Add(17*time.Second), 6*time.Hour)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	targets := passes.Resolve(store.Get().Catalog, []string{"SENTINEL-3A", "NO SUCH SAT", "38771"})

	first := c.Batch(context.Background(), targets, obs, w, 5)
	if len(first) != 3 {
		t.Fatalf("got %d results, want 3", len(first))
	}
	if first[0].Err != nil || first[2].Err != nil {
		t.Fatalf("unexpected errors: %v, %v", first[0].Err, first[2].Err)
	}
	if first[1].Err == nil {
		t.Fatal("unknown satellite should fail")
	}
	if got := c.Stats().Entries; got != 2 {
		t.Fatalf("entries after first batch = %d, want 2", got)
	}

	hitsBefore := c.Stats().Hits
	second := c.Batch(context.Background(), targets, obs, w, 5)
	if got := c.Stats().Hits - hitsBefore; got != 2 {
		t.Errorf("second batch hits = %d, want 2", got)
	}
	if second[0].Report != first[0].Report {
		t.Error("second batch should return the cached report")
	}
	if second[1].Err == nil || second[1].Key != "NO SUCH SAT" {
		t.Errorf("failure not preserved in order: %+v", second[1])
	}
}

func TestTLECutover(t *testing.T) {
	c, store, _ := testCache(t, Config{})
	obs := testObserver(t)
	w, _ := c.Window(t0, 6*time.Hour)
	targets := passes.Resolve(store.Get().Catalog, []string{"SENTINEL-3A"})

	before := c.Batch(context.Background(), targets, obs, w, 5)
	if before[0].Err != nil {
		t.Fatalf("Batch: %v", before[0].Err)
	}
	if c.tleChanged() {
		t.Fatal("no dataset change yet")
	}

	store.Set(testDataset(t, t0.Add(time.Hour)))
	if !c.tleChanged() {
		t.Fatal("expected tleChanged() to return true after dataset update")
	}

	if !c.syncDataset(context.Background()) {
		t.Fatal("syncDataset() = false, want a cutover")
	}
	if c.syncDataset(context.Background()) {
		t.Error("second syncDataset() should find nothing to do")
	}

	if c.inCutover.Load() {
		t.Error("cutover flag should be cleared")
	}
	if c.tleChanged() {
		t.Error("expected tleChanged() to return false after cutover")
	}
	stats := c.Stats()
	if stats.Cutovers != 1 || stats.Entries != 1 {
		t.Errorf("stats after cutover = %+v, want 1 cutover and 1 entry", stats)
	}
	if !stats.DatasetFetchedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("dataset fetched at = %v", stats.DatasetFetchedAt)
	}

	after := c.Get(KeyFor(41335, obs, w, 5))
	if after == nil || after == before[0].Report {
		t.Error("entry should be recomputed from the new dataset")
	} else if len(after.Passes) != len(before[0].Report.Passes) {
		t.Errorf("recomputed report has %d passes, want %d", len(after.Passes), len(before[0].Report.Passes))
	}
}

// TestStartCutsOverOnPublish uses a step far longer than the test so only the
// store signal can trigger the cutover.
func TestStartCutsOverOnPublish(t *testing.T) {
	c, store, _ := testCache(t, Config{Step: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	store.Set(testDataset(t, t0.Add(2*time.Hour)))

	deadline := time.Now().Add(5 * time.Second)
	for c.Stats().Cutovers == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no cutover after the store published a new dataset")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := c.Stats().DatasetFetchedAt; !got.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("dataset fetched at = %v", got)
	}
}

// TestStartCutsOverEarlierPublish covers a dataset published before the
// maintenance loop subscribes to the store.
func TestStartCutsOverEarlierPublish(t *testing.T) {
	c, store, _ := testCache(t, Config{Step: time.Hour})
	store.Set(testDataset(t, t0.Add(3*time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for c.Stats().Cutovers == 0 {
		if time.Now().After(deadline) {
			t.Fatal("dataset published before Start was never cut over")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := c.Stats().DatasetFetchedAt; !got.Equal(t0.Add(3 * time.Hour)) {
		t.Errorf("dataset fetched at = %v", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, store, _ := testCache(t, Config{Step: 10 * time.Millisecond})
	c.now = time.Now
	obs := testObserver(t)
	w, _ := c.Window(t0, 2*time.Hour)
	targets := passes.Resolve(store.Get().Catalog, []string{"SENTINEL-3A", "METOP-B"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go c.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				c.Batch(ctx, targets, obs, w, 5)
				c.Stats()
			}
		}()
	}
	wg.Wait()

	if c.Stats().Entries != 2 {
		t.Errorf("entries = %d, want 2", c.Stats().Entries)
	}
}
