package propagation

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/3dfirelab/satOverpass/internal/metrics"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

// slot holds one satellite's outcome within a batch.
type slot struct {
	done bool
	pos  SatellitePosition
	err  error
}

// WorkerPool propagates batches of satellites on a fixed number of goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{workers: max(workers, 1), logger: logger}
}

// PropagateBatch propagates every satellite to t. Failed satellites are
// listed in the snapshot's Failures; satellites not reached before ctx is
// cancelled are absent. Positions are ordered by catalog number.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, sats []*SGP4, t time.Time) *Snapshot {
	snap := &Snapshot{Time: t}
	if len(sats) == 0 {
		return snap
	}
	start := time.Now()
	gmst := transform.GMST(t) // shared by every satellite at t

	slots := make([]slot, len(sats))
	var next atomic.Int64
	var wg sync.WaitGroup
	for range min(wp.workers, len(sats)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				i := int(next.Add(1) - 1)
				if i >= len(sats) {
					return
				}
				slots[i].pos, slots[i].err = propagateOne(sats[i], t, gmst)
				slots[i].done = true
			}
		}()
	}
	wg.Wait()

	for _, s := range slots {
		switch {
		case !s.done:
		case s.err != nil:
			wp.logger.Debug("propagation failed", "norad_id", s.pos.CatalogNumber, "error", s.err)
			metrics.RecordPropagationFailure(Kind(s.err))
			snap.Failures = append(snap.Failures, Failure{CatalogNumber: s.pos.CatalogNumber, Err: s.err})
		default:
			snap.Satellites = append(snap.Satellites, s.pos)
		}
	}
	slices.SortFunc(snap.Satellites, func(a, b SatellitePosition) int {
		return cmp.Compare(a.CatalogNumber, b.CatalogNumber)
	})

	wp.logger.Debug("propagation batch complete",
		"success", len(snap.Satellites),
		"errors", len(snap.Failures),
		"skipped", len(sats)-len(snap.Satellites)-len(snap.Failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap
}

// propagateOne runs SGP4 and rotates the result into ECEF. A position that
// fails the plausibility check is reported as invalid elements.
func propagateOne(sat *SGP4, t time.Time, gmst float64) (SatellitePosition, error) {
	pos := SatellitePosition{CatalogNumber: sat.CatalogNumber(), Name: sat.Name()}
	teme, err := sat.Propagate(t)
	if err != nil {
		return pos, err
	}
	pos.TEME = teme
	pos.ECEF = transform.TEMEToECEFWithGMST(teme, gmst)
	if !transform.ValidateECEF(pos.ECEF) {
		return pos, sat.fail(t.Sub(sat.Epoch()).Minutes(), ErrInvalidElements, "implausible ECEF position")
	}
	return pos, nil
}
