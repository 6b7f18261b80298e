package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/3dfirelab/satOverpass/internal/metrics"
)

// DefaultMaxAge is how old cached text may be before it is refetched.
const DefaultMaxAge = 3 * time.Hour

// Source supplies raw TLE text.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// TextCache persists raw TLE text together with its retrieval time.
type TextCache interface {
	LoadLatest() ([]byte, time.Time, error)
	Write(data []byte, ts time.Time) error
}

// Acquirer applies the freshness policy: cached text younger than MaxAge is
// used as is, older text is refetched, and a failed fetch falls back to the
// stale cache.
type Acquirer struct {
	source Source
	cache  TextCache
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewAcquirer wires a source and a cache. Either may be nil: a nil source
// means offline operation, a nil cache disables persistence.
func NewAcquirer(source Source, cache TextCache, maxAge time.Duration, logger *slog.Logger) *Acquirer {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Acquirer{
		source: source,
		cache:  cache,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

// Acquire returns a parsed dataset, fetching only when the cache is missing
// or stale.
func (a *Acquirer) Acquire(ctx context.Context) (*Dataset, error) {
	var (
		cached   []byte
		cachedAt time.Time
		cacheErr error = ErrNoCache
	)
	if a.cache != nil {
		cached, cachedAt, cacheErr = a.cache.LoadLatest()
		if cacheErr != nil && !errors.Is(cacheErr, ErrNoCache) {
			a.logger.Warn("reading TLE cache failed", "error", cacheErr)
		}
	}

	now := a.now()
	fresh := cacheErr == nil && now.Sub(cachedAt) <= a.maxAge
	if fresh || (cacheErr == nil && a.source == nil) {
		a.logger.Info("using cached TLE data",
			"cached_at", cachedAt.UTC().Format(time.RFC3339),
			"age_hours", now.Sub(cachedAt).Hours(),
			"stale", !fresh,
		)
		return a.dataset(cached, "cache", cachedAt)
	}

	if a.source == nil {
		return nil, fmt.Errorf("offline and no cached TLE data: %w", cacheErr)
	}

	data, err := a.source.Fetch(ctx)
	if err != nil {
		metrics.RecordTLEFetch("error")
		if cacheErr == nil {
			a.logger.Warn("TLE fetch failed, using stale cache",
				"error", err,
				"cached_at", cachedAt.UTC().Format(time.RFC3339),
			)
			return a.dataset(cached, "cache", cachedAt)
		}
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	metrics.RecordTLEFetch("ok")

	if a.cache != nil {
		if err := a.cache.Write(data, now); err != nil {
			a.logger.Warn("writing TLE cache failed", "error", err)
		}
	}
	a.logger.Info("fetched TLE data", "bytes", len(data))
	return a.dataset(data, "network", now)
}

// Keep re-acquires every interval and publishes each dataset to store until
// ctx is cancelled.
func (a *Acquirer) Keep(ctx context.Context, store *Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ds, err := a.Acquire(ctx)
			if err != nil {
				a.logger.Warn("TLE refresh failed", "error", err)
				continue
			}
			if cur := store.Get(); cur == nil || !cur.FetchedAt.Equal(ds.FetchedAt) {
				store.Set(ds)
			}
		}
	}
}

func (a *Acquirer) dataset(data []byte, source string, fetchedAt time.Time) (*Dataset, error) {
	return newDataset(data, source, fetchedAt, a.logger)
}

// LoadFile parses a local TLE file. Its modification time stands in for the
// fetch time.
func LoadFile(path string, logger *slog.Logger) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newDataset(data, "file:"+path, info.ModTime(), logger)
}

func newDataset(data []byte, source string, fetchedAt time.Time, logger *slog.Logger) (*Dataset, error) {
	cat, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, err
	}
	if cat.Len() == 0 {
		return nil, fmt.Errorf("no valid TLE records in %s data (%d rejected)", source, len(cat.Rejected))
	}
	if len(cat.Rejected) > 0 {
		logger.Warn("TLE entries rejected", "source", source, "count", len(cat.Rejected))
	}
	return &Dataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		EpochRange: cat.EpochRange(),
		Catalog:    cat,
	}, nil
}
