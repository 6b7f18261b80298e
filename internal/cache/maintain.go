package cache

import (
	"context"
	"time"
)

// Start runs maintenance until ctx is cancelled. A dataset published to the
// store is cut over as soon as the store signals it; expired entries are
// evicted once per step.
func (c *ReportCache) Start(ctx context.Context) {
	evict := time.NewTicker(c.config.Step)
	defer evict.Stop()
	changed := c.store.Changed()
	// A dataset published before the subscription above has no signal left.
	c.syncDataset(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("report cache maintenance stopped")
			return
		case <-changed:
			changed = c.store.Changed()
			c.syncDataset(ctx)
		case <-evict.C:
			// A missed signal is caught here too.
			if !c.syncDataset(ctx) {
				if n := c.evictExpired(); n > 0 {
					c.logger.Debug("expired reports evicted", "count", n)
				}
			}
		}
	}
}

// syncDataset cuts over to the store's dataset when it differs from the one
// the entries were computed from, and reports whether it did.
func (c *ReportCache) syncDataset(ctx context.Context) bool {
	if !c.tleChanged() {
		return false
	}
	c.performCutover(ctx)
	return true
}
