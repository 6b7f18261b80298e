package propagation

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3dfirelab/satOverpass/internal/tle"
)

// registryEntry holds initialized propagators for one dataset.
// Immutable after construction; safe for concurrent reads.
type registryEntry struct {
	props     map[int]*SGP4
	failures  map[int]error
	fetchedAt time.Time
}

// Registry keeps initialized SGP4 instances for the current dataset so that
// repeated requests skip initialization. It rebuilds when the dataset changes.
type Registry struct {
	logger  *slog.Logger
	current atomic.Pointer[registryEntry]
	mu      sync.Mutex // serializes rebuilds
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Get returns the propagator for catalog number id in ds, or the
// initialization error recorded for it.
func (r *Registry) Get(ds *tle.Dataset, id int) (*SGP4, error) {
	e := r.entry(ds)
	if p, ok := e.props[id]; ok {
		return p, nil
	}
	if err, ok := e.failures[id]; ok {
		return nil, err
	}
	_, err := ds.Catalog.ByID(id)
	return nil, err
}

// All returns every propagator that initialized successfully for ds.
func (r *Registry) All(ds *tle.Dataset) []*SGP4 {
	e := r.entry(ds)
	out := make([]*SGP4, 0, len(e.props))
	for _, rec := range ds.Catalog.Records() {
		if p, ok := e.props[rec.CatalogNumber]; ok {
			out = append(out, p)
		}
	}
	return out
}

// entry rebuilds the cache if the dataset has changed (double-checked locking).
func (r *Registry) entry(ds *tle.Dataset) *registryEntry {
	if e := r.current.Load(); e != nil && e.fetchedAt.Equal(ds.FetchedAt) {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e := r.current.Load(); e != nil && e.fetchedAt.Equal(ds.FetchedAt) {
		return e
	}

	records := ds.Catalog.Records()
	e := &registryEntry{
		props:     make(map[int]*SGP4, len(records)),
		failures:  make(map[int]error),
		fetchedAt: ds.FetchedAt,
	}
	for _, rec := range records {
		p, err := New(rec)
		if err != nil {
			e.failures[rec.CatalogNumber] = err
			continue
		}
		e.props[rec.CatalogNumber] = p
	}

	r.logger.Info("sgp4 propagator cache rebuilt",
		"cached", len(e.props),
		"skipped", len(e.failures),
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	r.current.Store(e)
	return e
}
