package stream

import (
	"context"
	"time"

	"github.com/3dfirelab/satOverpass/internal/passes"
	"github.com/3dfirelab/satOverpass/internal/propagation"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

// session is the per-connection state of one look-angle stream.
type session struct {
	h   *Handler
	req streamRequest
	c   *client

	ds       *tle.Dataset
	sats     []*propagation.SGP4
	failures []failurePayload
	prev     map[int]float64 // last elevation per catalog number
}

// tick sends one batch at t, preceded by metadata when the dataset changed
// and by crossing messages for satellites that rose or set since the last tick.
func (s *session) tick(ctx context.Context, t time.Time) error {
	if ds := s.h.store.Get(); ds != nil && ds != s.ds {
		s.bind(ds)
		if err := s.c.sendJSON(newMetadataMessage(ds, s.req.observer, t)); err != nil {
			return err
		}
	}

	snap := s.h.pool.PropagateBatch(ctx, s.sats, t)
	if ctx.Err() != nil {
		return nil
	}
	batch, crossings := buildBatch(snap, s.req.observer, s.req.threshold, s.prev)
	batch.Failures = append(batch.Failures, s.failures...)
	for _, f := range snap.Failures {
		batch.Failures = append(batch.Failures, failurePayload{
			Satellite: tle.FormatCatalogNumber(f.CatalogNumber),
			Kind:      passes.FailureKind(f.Err),
		})
	}

	for _, m := range crossings {
		if err := s.c.sendJSON(m); err != nil {
			return err
		}
	}
	return s.c.sendJSON(batch)
}

// bind resolves the requested satellites against a new dataset. Elevation
// history is dropped so a dataset swap never reports a spurious crossing.
func (s *session) bind(ds *tle.Dataset) {
	s.ds = ds
	s.sats = nil
	s.failures = nil
	clear(s.prev)

	if len(s.req.keys) == 0 {
		s.sats = s.h.registry.All(ds)
		return
	}
	for _, key := range s.req.keys {
		rec, err := ds.Catalog.Resolve(key)
		if err == nil {
			var sat *propagation.SGP4
			if sat, err = s.h.registry.Get(ds, rec.CatalogNumber); err == nil {
				s.sats = append(s.sats, sat)
				continue
			}
		}
		s.failures = append(s.failures, failurePayload{Satellite: key, Kind: passes.FailureKind(err)})
	}
}

// buildBatch converts a snapshot into look angles. Satellites below the
// threshold are left out of the batch; prev is updated in place and a
// crossing is reported wherever the threshold lies between the previous
// and the current elevation.
func buildBatch(snap *propagation.Snapshot, obs transform.Observer, threshold float64, prev map[int]float64) (lookBatchMessage, []crossingMessage) {
	ts := snap.Time.UTC().Format(time.RFC3339)
	batch := lookBatchMessage{Type: "look_batch", T: ts, Sat: []satPayload{}}
	var crossings []crossingMessage

	for _, pos := range snap.Satellites {
		la := transform.LookAt(obs, pos.ECEF)
		if last, ok := prev[pos.CatalogNumber]; ok {
			kind := ""
			switch {
			case last < threshold && la.ElevationDeg >= threshold:
				kind = "rise"
			case last >= threshold && la.ElevationDeg < threshold:
				kind = "set"
			}
			if kind != "" {
				crossings = append(crossings, crossingMessage{
					Type: "crossing",
					T:    ts,
					ID:   pos.CatalogNumber,
					Name: pos.Name,
					Kind: kind,
					El:   la.ElevationDeg,
					Az:   la.AzimuthDeg,
				})
			}
		}
		prev[pos.CatalogNumber] = la.ElevationDeg

		if la.ElevationDeg < threshold {
			continue
		}
		batch.Sat = append(batch.Sat, satPayload{
			ID:        pos.CatalogNumber,
			Name:      pos.Name,
			Az:        la.AzimuthDeg,
			El:        la.ElevationDeg,
			RangeKm:   la.RangeKm,
			RangeRate: la.RangeRateKmS,
		})
	}
	return batch, crossings
}

func newMetadataMessage(ds *tle.Dataset, obs transform.Observer, now time.Time) metadataMessage {
	return metadataMessage{
		Type:             "metadata",
		DatasetFetchedAt: ds.FetchedAt.UTC().Format(time.RFC3339),
		TLEAge:           int(now.Sub(ds.FetchedAt).Seconds()),
		Satellites:       ds.Catalog.Len(),
		Observer: transform.GeodeticPoint{
			LatDeg: obs.LatDeg,
			LonDeg: obs.LonDeg,
			AltM:   obs.AltM,
		},
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type             string                  `json:"type"`
	DatasetFetchedAt string                  `json:"dataset_fetched_at"`
	TLEAge           int                     `json:"tle_age_seconds"`
	Satellites       int                     `json:"satellites"`
	Observer         transform.GeodeticPoint `json:"observer"`
}

type lookBatchMessage struct {
	Type     string           `json:"type"`
	T        string           `json:"t"`
	Sat      []satPayload     `json:"sat"`
	Failures []failurePayload `json:"failures,omitempty"`
}

type satPayload struct {
	ID        int     `json:"id"`
	Name      string  `json:"name,omitempty"`
	Az        float64 `json:"az"`
	El        float64 `json:"el"`
	RangeKm   float64 `json:"range_km"`
	RangeRate float64 `json:"range_rate"`
}

type failurePayload struct {
	Satellite string `json:"satellite"`
	Kind      string `json:"kind"`
}

type crossingMessage struct {
	Type string  `json:"type"`
	T    string  `json:"t"`
	ID   int     `json:"id"`
	Name string  `json:"name,omitempty"`
	Kind string  `json:"kind"`
	El   float64 `json:"el"`
	Az   float64 `json:"az"`
}
