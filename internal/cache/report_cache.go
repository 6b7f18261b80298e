// Package cache provides an in-memory cache of pass reports.
//
// Reports are keyed by satellite, observer, window and threshold. Window
// starts are rounded down to the cache step so requests made within the same
// step share one computation. When the TLE dataset changes, cached reports
// are recomputed from the new elements and swapped in without interrupting
// reads.
package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3dfirelab/satOverpass/internal/metrics"
	"github.com/3dfirelab/satOverpass/internal/passes"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

// Config holds cache configuration.
type Config struct {
	Step       time.Duration // window start rounding (default: 60s)
	TTL        time.Duration // entry lifetime (default: 10m)
	MaxEntries int           // oldest entries are evicted beyond this (default: 256)
}

func (c Config) withDefaults() Config {
	if c.Step <= 0 {
		c.Step = time.Minute
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 256
	}
	return c
}

// Key identifies one cached report.
type Key struct {
	CatalogNumber int
	Lat, Lon, Alt float64
	Start         int64 // unix seconds, rounded to the step
	Horizon       time.Duration
	Threshold     float64
}

// Entry is a cached report with the request that produced it.
type Entry struct {
	Report      *passes.Report
	Observer    transform.Observer
	GeneratedAt time.Time
}

// ReportCache memoizes Predictor results for the active TLE dataset.
// Safe for concurrent use by multiple goroutines.
type ReportCache struct {
	mu      sync.RWMutex
	entries map[Key]*Entry

	config    Config
	predictor *passes.Predictor
	store     *tle.Store
	logger    *slog.Logger
	now       func() time.Time

	// Dataset the entries were computed from.
	currentFetchedAt time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	cutovers  atomic.Int64

	inCutover atomic.Bool
}

// NewReportCache creates a cache in front of predictor.
func NewReportCache(config Config, predictor *passes.Predictor, store *tle.Store, logger *slog.Logger) *ReportCache {
	config = config.withDefaults()
	logger.Info("report cache initialized",
		"step_seconds", config.Step.Seconds(),
		"ttl_seconds", config.TTL.Seconds(),
		"max_entries", config.MaxEntries,
	)

	c := &ReportCache{
		entries:   make(map[Key]*Entry),
		config:    config,
		predictor: predictor,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
	if ds := store.Get(); ds != nil {
		c.currentFetchedAt = ds.FetchedAt
	}
	return c
}

// RoundToStep rounds a timestamp down to the nearest step boundary, in UTC.
func (c *ReportCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// Window returns the cacheable window starting at the step containing start.
func (c *ReportCache) Window(start time.Time, horizon time.Duration) (passes.Window, error) {
	return passes.NewWindow(c.RoundToStep(start), horizon)
}

// KeyFor builds the key of a request.
func KeyFor(catalogNumber int, obs transform.Observer, w passes.Window, threshold float64) Key {
	return Key{
		CatalogNumber: catalogNumber,
		Lat:           obs.LatDeg,
		Lon:           obs.LonDeg,
		Alt:           obs.AltM,
		Start:         w.Start.Unix(),
		Horizon:       w.Duration(),
		Threshold:     threshold,
	}
}

// Get returns the cached report for key, or nil.
func (c *ReportCache) Get(key Key) *passes.Report {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.GeneratedAt) <= c.config.TTL {
		c.hits.Add(1)
		metrics.RecordReportCacheHit()
		return entry.Report
	}

	c.misses.Add(1)
	metrics.RecordReportCacheMiss()
	return nil
}

// put stores a report. Caller must not hold mu.
func (c *ReportCache) put(key Key, rep *passes.Report, obs transform.Observer) {
	c.mu.Lock()
	c.entries[key] = &Entry{Report: rep, Observer: obs, GeneratedAt: c.now()}
	over := len(c.entries) - c.config.MaxEntries
	c.mu.Unlock()

	if over > 0 {
		c.evictOldest(over)
	}
	c.updateMetrics()
}

// Batch answers every target from the cache where possible and predicts the
// rest in one parallel batch. Results keep target order. Only complete
// reports are cached.
func (c *ReportCache) Batch(ctx context.Context, targets []passes.Target, obs transform.Observer, w passes.Window, threshold float64) []passes.Result {
	results := make([]passes.Result, len(targets))
	var (
		missing []passes.Target
		slots   []int
	)
	for i, t := range targets {
		if t.Record != nil && t.Err == nil {
			if rep := c.Get(KeyFor(t.Record.CatalogNumber, obs, w, threshold)); rep != nil {
				results[i] = passes.Result{
					Key:           t.Key,
					CatalogNumber: t.Record.CatalogNumber,
					Name:          t.Record.Name,
					Report:        rep,
				}
				continue
			}
		}
		missing = append(missing, t)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return results
	}

	computed := c.predictor.FindPassesBatch(ctx, missing, obs, w, threshold)
	for j, r := range computed {
		results[slots[j]] = r
		if r.Err == nil && r.Report != nil {
			c.put(KeyFor(r.CatalogNumber, obs, w, threshold), r.Report, obs)
		}
	}
	return results
}

// evictExpired removes entries older than the TTL.
func (c *ReportCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.TTL)
	var removed int

	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.GeneratedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		c.updateMetrics()
		c.logger.Debug("report cache eviction", "entries_removed", removed)
	}
	return removed
}

// evictOldest removes the n least recently generated entries.
func (c *ReportCache) evictOldest(n int) {
	c.mu.Lock()
	type aged struct {
		key Key
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.GeneratedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
	c.mu.Unlock()

	c.evictions.Add(int64(n))
}

// Stats holds cache statistics for the stats endpoint.
type Stats struct {
	Entries          int       `json:"entries"`
	MaxEntries       int       `json:"max_entries"`
	Passes           int       `json:"passes"`
	Hits             int64     `json:"hits"`
	Misses           int64     `json:"misses"`
	Evictions        int64     `json:"evictions"`
	Cutovers         int64     `json:"cutovers"`
	InCutover        bool      `json:"in_cutover"`
	DatasetFetchedAt time.Time `json:"dataset_fetched_at"`
}

// Stats returns current cache statistics.
func (c *ReportCache) Stats() Stats {
	c.mu.RLock()
	count := len(c.entries)
	var npasses int
	for _, e := range c.entries {
		npasses += len(e.Report.Passes)
	}
	c.mu.RUnlock()

	return Stats{
		Entries:          count,
		MaxEntries:       c.config.MaxEntries,
		Passes:           npasses,
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		Evictions:        c.evictions.Load(),
		Cutovers:         c.cutovers.Load(),
		InCutover:        c.inCutover.Load(),
		DatasetFetchedAt: c.fetchedAt(),
	}
}

// updateMetrics publishes current cache size to Prometheus.
func (c *ReportCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()

	metrics.SetReportCacheEntries(count)
}
