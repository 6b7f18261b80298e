package cache

import (
	"context"
	"errors"
	"time"

	"github.com/3dfirelab/satOverpass/internal/passes"
	"github.com/3dfirelab/satOverpass/internal/propagation"
	"github.com/3dfirelab/satOverpass/internal/tle"
)

func (c *ReportCache) fetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentFetchedAt
}

// tleChanged checks if the TLE dataset has been updated since the cache was last built.
func (c *ReportCache) tleChanged() bool {
	ds := c.store.Get()
	if ds == nil {
		return false
	}
	return !ds.FetchedAt.Equal(c.fetchedAt())
}

// performCutover rebuilds every live entry against the store's dataset. Reads
// keep hitting the old entries until the rebuilt map replaces them in one
// step. Satellites missing from the new dataset, or that fail to propagate,
// are dropped.
func (c *ReportCache) performCutover(ctx context.Context) {
	ds := c.store.Get()
	if ds == nil {
		return
	}
	log := c.logger.With(
		"old_dataset_fetched_at", c.fetchedAt().UTC().Format(time.RFC3339),
		"new_dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	log.Info("TLE cutover starting")

	c.inCutover.Store(true)
	defer c.inCutover.Store(false)
	began := time.Now()

	live := c.liveEntries()
	rebuilt := make(map[Key]*Entry, len(live))
	for key, old := range live {
		if ctx.Err() != nil {
			log.Warn("TLE cutover abandoned", "error", ctx.Err())
			return
		}
		if e := c.rebuild(ctx, ds, key, old); e != nil {
			rebuilt[key] = e
		}
	}

	c.mu.Lock()
	c.entries = rebuilt
	c.currentFetchedAt = ds.FetchedAt
	c.mu.Unlock()
	c.updateMetrics()
	c.cutovers.Add(1)

	log.Info("TLE cutover complete",
		"duration_ms", time.Since(began).Milliseconds(),
		"entries_replaced", len(rebuilt),
		"entries_dropped", len(live)-len(rebuilt),
	)
}

// liveEntries copies the entries still within their TTL.
func (c *ReportCache) liveEntries() map[Key]*Entry {
	cutoff := c.now().Add(-c.config.TTL)
	c.mu.RLock()
	defer c.mu.RUnlock()
	live := make(map[Key]*Entry, len(c.entries))
	for k, e := range c.entries {
		if !e.GeneratedAt.Before(cutoff) {
			live[k] = e
		}
	}
	return live
}

// rebuild recomputes one entry from ds, or returns nil when it cannot be.
func (c *ReportCache) rebuild(ctx context.Context, ds *tle.Dataset, key Key, old *Entry) *Entry {
	rec, err := ds.Catalog.ByID(key.CatalogNumber)
	if err != nil {
		return nil
	}
	start := time.Unix(key.Start, 0).UTC()
	w := passes.Window{Start: start, End: start.Add(key.Horizon)}

	rep, err := c.predictor.FindPasses(ctx, rec, old.Observer, w, key.Threshold)
	if err != nil {
		if !errors.Is(err, propagation.ErrDecayed) {
			c.logger.Warn("cutover recompute failed", "norad_id", key.CatalogNumber, "error", err)
		}
		return nil
	}
	return &Entry{Report: rep, Observer: old.Observer, GeneratedAt: c.now()}
}
