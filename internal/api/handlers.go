package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/3dfirelab/satOverpass/internal/httputil"
	"github.com/3dfirelab/satOverpass/internal/passes"
	"github.com/3dfirelab/satOverpass/internal/propagation"
	"github.com/3dfirelab/satOverpass/internal/report"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

func (h *handlers) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

// dataset writes 503 and returns nil when no TLE data is loaded yet.
func (h *handlers) dataset(w http.ResponseWriter) *tle.Dataset {
	ds := h.deps.Store.Get()
	if ds == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no TLE data loaded")
	}
	return ds
}

func (h *handlers) batch(r *http.Request, targets []passes.Target, obs transform.Observer, w passes.Window, threshold float64) []passes.Result {
	if h.deps.Cache != nil {
		return h.deps.Cache.Batch(r.Context(), targets, obs, w, threshold)
	}
	return h.deps.Predictor.FindPassesBatch(r.Context(), targets, obs, w, threshold)
}

// predictRequest is the parsed form of a pass query.
type predictRequest struct {
	obs       transform.Observer
	window    passes.Window
	threshold float64
}

func (h *handlers) parsePredict(r *http.Request) (predictRequest, error) {
	var req predictRequest
	obs, err := observerParam(r, h.deps.Observer)
	if err != nil {
		return req, err
	}
	threshold, err := thresholdParam(r, h.deps.Threshold)
	if err != nil {
		return req, err
	}
	horizon, err := horizonParam(r, h.deps.Horizon)
	if err != nil {
		return req, err
	}
	start, err := startParam(r, h.clock())
	if err != nil {
		return req, err
	}
	if h.deps.Cache != nil {
		start = h.deps.Cache.RoundToStep(start)
	}
	win, err := passes.NewWindow(start, horizon)
	if err != nil {
		return req, err
	}
	return predictRequest{obs: obs, window: win, threshold: threshold}, nil
}

// passes serves GET /api/v1/passes: a pass summary for several satellites.
func (h *handlers) passes(w http.ResponseWriter, r *http.Request) {
	ds := h.dataset(w)
	if ds == nil {
		return
	}
	req, err := h.parsePredict(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sats, err := satellitesParam(r, h.deps.Satellites)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := uuid.NewString()
	results := h.batch(r, passes.Resolve(ds.Catalog, sats), req.obs, req.window, req.threshold)

	b := report.NewBuilder(runID, req.obs, req.window, req.threshold)
	b.AddAll(results)
	summary := b.Build()

	h.logger.Debug("passes served",
		"run_id", runID,
		"satellites", len(sats),
		"passes", summary.PassCount(),
		"failures", len(summary.Failures),
	)
	httputil.WriteJSON(w, http.StatusOK, summary)
}

type singleResponse struct {
	*passes.Report
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

// passesSingle serves GET /api/v1/passes/{norad_id}. A satellite that decays
// inside the window returns its passes before decay together with the error.
func (h *handlers) passesSingle(w http.ResponseWriter, r *http.Request) {
	id, err := noradParam(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	ds := h.dataset(w)
	if ds == nil {
		return
	}
	req, err := h.parsePredict(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := ds.Catalog.ByID(id)
	target := passes.Target{Key: tle.FormatCatalogNumber(id), Record: rec, Err: err}
	res := h.batch(r, []passes.Target{target}, req.obs, req.window, req.threshold)[0]

	if res.Err == nil {
		httputil.WriteJSON(w, http.StatusOK, singleResponse{Report: res.Report})
		return
	}
	kind := passes.FailureKind(res.Err)
	if res.Report != nil {
		httputil.WriteJSON(w, http.StatusOK, singleResponse{Report: res.Report, Kind: kind, Error: res.Err.Error()})
		return
	}
	status := http.StatusUnprocessableEntity
	switch kind {
	case "not_found":
		status = http.StatusNotFound
	case "cancelled":
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]string{"error": res.Err.Error(), "kind": kind})
}

type lookEntry struct {
	CatalogNumber int                     `json:"norad_id"`
	Name          string                  `json:"name,omitempty"`
	Azimuth       float64                 `json:"azimuth"`
	Elevation     float64                 `json:"elevation"`
	RangeKm       float64                 `json:"range_km"`
	RangeRateKmS  float64                 `json:"range_rate_km_s"`
	SubPoint      transform.GeodeticPoint `json:"sub_point"`
}

type lookFailure struct {
	Satellite string `json:"satellite"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

type lookResponse struct {
	Time       time.Time     `json:"time"`
	Satellites []lookEntry   `json:"satellites"`
	Failures   []lookFailure `json:"failures,omitempty"`
}

// look serves GET /api/v1/look: current look angles of the requested
// satellites, or of the whole catalog when sat is absent. With
// min_elevation only satellites at or above it are listed.
func (h *handlers) look(w http.ResponseWriter, r *http.Request) {
	ds := h.dataset(w)
	if ds == nil {
		return
	}
	obs, err := observerParam(r, h.deps.Observer)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	minEl, err := thresholdParam(r, -90)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	keys, err := satellitesParam(r, nil)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := lookResponse{Time: h.clock().UTC(), Satellites: []lookEntry{}}
	var sats []*propagation.SGP4
	if len(keys) == 0 {
		sats = h.deps.Registry.All(ds)
	} else {
		for _, key := range keys {
			rec, err := ds.Catalog.Resolve(key)
			if err == nil {
				var sat *propagation.SGP4
				if sat, err = h.deps.Registry.Get(ds, rec.CatalogNumber); err == nil {
					sats = append(sats, sat)
					continue
				}
			}
			resp.Failures = append(resp.Failures, lookFailure{Satellite: key, Kind: passes.FailureKind(err), Error: err.Error()})
		}
	}

	snap := h.deps.Pool.PropagateBatch(r.Context(), sats, resp.Time)
	for _, pos := range snap.Satellites {
		la := transform.LookAt(obs, pos.ECEF)
		if la.ElevationDeg < minEl {
			continue
		}
		resp.Satellites = append(resp.Satellites, lookEntry{
			CatalogNumber: pos.CatalogNumber,
			Name:          pos.Name,
			Azimuth:       la.AzimuthDeg,
			Elevation:     la.ElevationDeg,
			RangeKm:       la.RangeKm,
			RangeRateKmS:  la.RangeRateKmS,
			SubPoint:      transform.SubPoint(pos.ECEF),
		})
	}
	for _, f := range snap.Failures {
		resp.Failures = append(resp.Failures, lookFailure{
			Satellite: tle.FormatCatalogNumber(f.CatalogNumber),
			Kind:      passes.FailureKind(f.Err),
			Error:     f.Err.Error(),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type vector struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	VZ float64 `json:"vz"`
}

type positionEntry struct {
	Time     time.Time               `json:"time"`
	TEME     vector                  `json:"teme_km"`
	ECEF     vector                  `json:"ecef_m"`
	SubPoint transform.GeodeticPoint `json:"sub_point"`
}

type propagateResponse struct {
	CatalogNumber int             `json:"norad_id"`
	Name          string          `json:"name,omitempty"`
	Epoch         time.Time       `json:"epoch"`
	PeriodMinutes float64         `json:"period_minutes"`
	Positions     []positionEntry `json:"positions"`
	Error         string          `json:"error,omitempty"`
}

// propagate serves GET /api/v1/propagate/{norad_id}?horizon=&step= with
// horizon and step in seconds. Decay ends the series early.
func (h *handlers) propagate(w http.ResponseWriter, r *http.Request) {
	id, err := noradParam(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	horizon, err := intParam(r, "horizon", 600, 0)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	step, err := intParam(r, "step", 10, 1)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if n := horizon/step + 1; n > maxPositions {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"error":         "too many positions requested; increase step or reduce horizon",
			"requested":     n,
			"max_positions": maxPositions,
		})
		return
	}
	start, err := startParam(r, h.clock())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ds := h.dataset(w)
	if ds == nil {
		return
	}
	sat, err := h.deps.Registry.Get(ds, id)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, tle.ErrNotFound) {
			status = http.StatusNotFound
		}
		httputil.WriteError(w, status, err.Error())
		return
	}

	resp := propagateResponse{
		CatalogNumber: sat.CatalogNumber(),
		Name:          sat.Name(),
		Epoch:         sat.Epoch(),
		PeriodMinutes: sat.Period().Minutes(),
		Positions:     make([]positionEntry, 0, horizon/step+1),
	}
	start = start.UTC()
	for s := 0; s <= horizon; s += step {
		t := start.Add(time.Duration(s) * time.Second)
		teme, err := sat.Propagate(t)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		ecef := transform.TEMEToECEF(teme, t)
		resp.Positions = append(resp.Positions, positionEntry{
			Time:     t,
			TEME:     vector{teme.X, teme.Y, teme.Z, teme.VX, teme.VY, teme.VZ},
			ECEF:     vector{ecef.X, ecef.Y, ecef.Z, ecef.VX, ecef.VY, ecef.VZ},
			SubPoint: transform.SubPoint(ecef),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type tleMetadata struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	AgeSeconds float64   `json:"age_seconds"`
	EpochMin   time.Time `json:"epoch_min"`
	EpochMax   time.Time `json:"epoch_max"`
	Satellites int       `json:"satellites"`
	Rejected   int       `json:"rejected"`
}

func (h *handlers) metadata(ds *tle.Dataset) tleMetadata {
	return tleMetadata{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt.UTC(),
		AgeSeconds: h.clock().Sub(ds.FetchedAt).Seconds(),
		EpochMin:   ds.EpochRange.Min,
		EpochMax:   ds.EpochRange.Max,
		Satellites: ds.Catalog.Len(),
		Rejected:   len(ds.Catalog.Rejected),
	}
}

// tleMetadata serves GET /api/v1/tle/metadata.
func (h *handlers) tleMetadata(w http.ResponseWriter, r *http.Request) {
	ds := h.dataset(w)
	if ds == nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.metadata(ds))
}

// tleFetch serves POST /api/v1/tle/fetch: acquire under the freshness policy
// and publish the result.
func (h *handlers) tleFetch(w http.ResponseWriter, r *http.Request) {
	if h.deps.Acquirer == nil {
		httputil.WriteError(w, http.StatusForbidden, "TLE fetch is disabled")
		return
	}
	ds, err := h.deps.Acquirer.Acquire(r.Context())
	if err != nil {
		h.logger.Warn("TLE fetch request failed", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	if cur := h.deps.Store.Get(); cur == nil || !cur.FetchedAt.Equal(ds.FetchedAt) {
		h.deps.Store.Set(ds)
	}
	httputil.WriteJSON(w, http.StatusOK, h.metadata(ds))
}

// cacheStats serves GET /api/v1/cache/stats.
func (h *handlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		httputil.WriteError(w, http.StatusNotFound, "report cache disabled")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.deps.Cache.Stats())
}
