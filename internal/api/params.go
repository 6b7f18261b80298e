package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

const (
	maxHorizon    = 7 * 24 * time.Hour
	maxSatellites = 64
	maxPositions  = 10000 // per propagate request
)

var errBadParam = errors.New("invalid parameter")

func paramError(name, value string, reason string) error {
	return fmt.Errorf("%w %s=%q: %s", errBadParam, name, value, reason)
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, paramError(name, v, "not a number")
	}
	return f, nil
}

func intParam(r *http.Request, name string, def, lo int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo {
		return 0, paramError(name, v, fmt.Sprintf("must be an integer >= %d", lo))
	}
	return n, nil
}

// observerParam reads lat, lon and alt (metres). Without lat and lon the
// default observer is used.
func observerParam(r *http.Request, def transform.Observer) (transform.Observer, error) {
	q := r.URL.Query()
	lat, lon := q.Get("lat"), q.Get("lon")
	if lat == "" && lon == "" {
		return def, nil
	}
	if lat == "" || lon == "" {
		return transform.Observer{}, fmt.Errorf("%w: lat and lon must be given together", errBadParam)
	}
	latDeg, err := floatParam(r, "lat", 0)
	if err != nil {
		return transform.Observer{}, err
	}
	lonDeg, err := floatParam(r, "lon", 0)
	if err != nil {
		return transform.Observer{}, err
	}
	alt, err := floatParam(r, "alt", 0)
	if err != nil {
		return transform.Observer{}, err
	}
	obs, err := transform.NewObserver(latDeg, lonDeg, alt)
	if err != nil {
		return transform.Observer{}, fmt.Errorf("%w: %v", errBadParam, err)
	}
	return obs, nil
}

func thresholdParam(r *http.Request, def float64) (float64, error) {
	el, err := floatParam(r, "min_elevation", def)
	if err != nil {
		return 0, err
	}
	if el < -90 || el >= 90 {
		return 0, paramError("min_elevation", r.URL.Query().Get("min_elevation"), "must be in [-90, 90)")
	}
	return el, nil
}

func horizonParam(r *http.Request, def time.Duration) (time.Duration, error) {
	hours, err := floatParam(r, "hours", def.Hours())
	if err != nil {
		return 0, err
	}
	d := time.Duration(hours * float64(time.Hour))
	if d <= 0 || d > maxHorizon {
		return 0, paramError("hours", r.URL.Query().Get("hours"), fmt.Sprintf("must be in (0, %g]", maxHorizon.Hours()))
	}
	return d, nil
}

func startParam(r *http.Request, now time.Time) (time.Time, error) {
	v := r.URL.Query().Get("start")
	if v == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, paramError("start", v, "must be RFC 3339")
	}
	return t, nil
}

// satellitesParam collects repeated and comma-separated sat values.
func satellitesParam(r *http.Request, def []string) ([]string, error) {
	var out []string
	for _, v := range r.URL.Query()["sat"] {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		out = def
	}
	if len(out) > maxSatellites {
		return nil, fmt.Errorf("%w: at most %d satellites per request", errBadParam, maxSatellites)
	}
	return out, nil
}

func noradParam(r *http.Request) (int, error) {
	v := r.PathValue("norad_id")
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 || id > tle.MaxCatalogNumber {
		return 0, paramError("norad_id", v, fmt.Sprintf("must be a catalog number in [1, %d]", tle.MaxCatalogNumber))
	}
	return id, nil
}
