// Command diag propagates one catalog satellite over a span and prints its
// TEME state, ECEF sanity and look angles from an observer.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/3dfirelab/satOverpass/internal/propagation"
	"github.com/3dfirelab/satOverpass/internal/tle"
	"github.com/3dfirelab/satOverpass/internal/transform"
)

func main() {
	var (
		file     = flag.String("tle", "", "TLE file (default: newest file in -cache-dir)")
		cacheDir = flag.String("cache-dir", "/tmp/satoverpass/tle", "TLE cache directory")
		sat      = flag.String("sat", "SENTINEL-3A", "satellite name or catalog number")
		lat      = flag.Float64("lat", 43.6043, "observer latitude, degrees")
		lon      = flag.Float64("lon", 1.44384, "observer longitude, degrees")
		alt      = flag.Float64("alt", 100, "observer altitude, metres")
		span     = flag.Duration("span", 90*time.Minute, "propagation span")
		step     = flag.Duration("step", time.Minute, "output step")
		start    = flag.String("start", "", "RFC 3339 start (default: now)")
	)
	flag.Parse()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cat, err := loadCatalog(*file, *cacheDir, logger)
	if err != nil {
		fmt.Println("ERROR loading TLE data:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d TLE entries (%d rejected)\n", cat.Len(), len(cat.Rejected))

	rec, err := cat.Resolve(*sat)
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
	prop, err := propagation.New(rec)
	if err != nil {
		fmt.Printf("ERROR initializing %s: %v\n", rec.Label(), err)
		os.Exit(1)
	}
	obs, err := transform.NewObserver(*lat, *lon, *alt)
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}

	t0 := time.Now().UTC()
	if *start != "" {
		if t0, err = time.Parse(time.RFC3339, *start); err != nil {
			fmt.Println("ERROR parsing -start:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("%s (NORAD %d) epoch %v period %.2f min a %.1f km\n",
		rec.Name, rec.CatalogNumber, rec.Epoch.Format(time.RFC3339), prop.Period().Minutes(), prop.SemiMajorAxisKm())
	line1, line2 := tle.Format(rec)
	fmt.Printf("%s\n%s\n", line1, line2)
	fmt.Printf("Observer %s, start %v, age of elements %.1f days\n\n",
		obs, t0.Format(time.RFC3339), t0.Sub(rec.Epoch).Hours()/24)

	invalid := 0
	for t := t0; !t.After(t0.Add(*span)); t = t.Add(*step) {
		teme, err := prop.Propagate(t)
		if err != nil {
			fmt.Printf("%s  ERROR %v\n", t.Format(time.RFC3339), err)
			break
		}
		ecef := transform.TEMEToECEF(teme, t)
		ok := transform.ValidateECEF(ecef)
		if !ok {
			invalid++
		}
		la := transform.LookAt(obs, ecef)
		sub := transform.SubPoint(ecef)
		fmt.Printf("%s  teme=(%10.3f %10.3f %10.3f) km  sub=(%7.3f %8.3f %6.1f km)  az=%6.2f el=%6.2f range=%8.1f km  ecef_ok=%v\n",
			t.Format(time.RFC3339), teme.X, teme.Y, teme.Z,
			sub.LatDeg, sub.LonDeg, sub.AltM/1000,
			la.AzimuthDeg, la.ElevationDeg, la.RangeKm, ok)
	}
	if invalid > 0 {
		fmt.Printf("\n%d positions failed ECEF validation\n", invalid)
		os.Exit(1)
	}
}

func loadCatalog(file, cacheDir string, logger *slog.Logger) (*tle.Catalog, error) {
	if file != "" {
		ds, err := tle.LoadFile(file, logger)
		if err != nil {
			return nil, err
		}
		return ds.Catalog, nil
	}
	data, ts, err := tle.NewCache(cacheDir, 0).LoadLatest()
	if err != nil {
		return nil, err
	}
	fmt.Printf("Using cache file from %v\n", ts.Format(time.RFC3339))
	return tle.Parse(bytes.NewReader(data), logger)
}
