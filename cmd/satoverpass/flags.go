package main

import (
	"flag"
	"strings"

	"github.com/3dfirelab/satOverpass/internal/config"
)

// stringList is a repeatable flag that also splits on commas.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

type options struct {
	configPath   string
	lat          float64
	lon          float64
	alt          float64
	sats         stringList
	horizon      float64
	minElevation float64
	step         int
	workers      int
	format       string
	cacheDir     string
	maxAge       int
	offline      bool
	tleFile      string
	postgres     string
	table        string
	logLevel     string
}

func newFlagSet(o *options) *flag.FlagSet {
	fs := flag.NewFlagSet("satoverpass", flag.ExitOnError)
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.Float64Var(&o.lat, "lat", 0, "observer latitude, degrees")
	fs.Float64Var(&o.lon, "lon", 0, "observer longitude, degrees")
	fs.Float64Var(&o.alt, "alt", 0, "observer altitude above the WGS-84 ellipsoid, metres")
	fs.Var(&o.sats, "sat", "satellite name or catalog number (repeatable, comma-separated)")
	fs.Float64Var(&o.horizon, "horizon", 0, "prediction window, hours")
	fs.Float64Var(&o.minElevation, "min-elevation", 0, "minimum elevation, degrees")
	fs.IntVar(&o.step, "step", 0, "coarse scan step, seconds")
	fs.IntVar(&o.workers, "workers", 0, "satellites predicted in parallel")
	fs.StringVar(&o.format, "format", "", "output format: table, csv or json")
	fs.StringVar(&o.cacheDir, "cache-dir", "", "TLE cache directory")
	fs.IntVar(&o.maxAge, "max-age", 0, "refetch cached TLE text older than this, seconds")
	fs.BoolVar(&o.offline, "offline", false, "never fetch; use the TLE cache only")
	fs.StringVar(&o.tleFile, "tle", "", "read elements from this TLE file instead of the network")
	fs.StringVar(&o.postgres, "postgres", "", "PostgreSQL DSN; also store passes there")
	fs.StringVar(&o.table, "table", "", "PostgreSQL table")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	return fs
}

// apply copies the flags given on the command line over cfg. Flags left
// unset keep the file and environment values.
func (o *options) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "lat":
			cfg.Observer.Lat = o.lat
		case "lon":
			cfg.Observer.Lon = o.lon
		case "alt":
			cfg.Observer.AltM = o.alt
		case "sat":
			cfg.Satellites = o.sats
		case "horizon":
			cfg.Prediction.HorizonHours = o.horizon
		case "min-elevation":
			cfg.Prediction.MinElevation = o.minElevation
		case "step":
			cfg.Prediction.StepSec = o.step
		case "workers":
			cfg.Prediction.Workers = o.workers
		case "format":
			cfg.Output.Format = strings.ToLower(o.format)
		case "cache-dir":
			cfg.TLE.CacheDir = o.cacheDir
		case "max-age":
			cfg.TLE.MaxAgeSec = o.maxAge
		case "offline":
			cfg.TLE.Offline = o.offline
		case "tle":
			cfg.TLE.File = o.tleFile
		case "postgres":
			cfg.Sink.Postgres.DSN = o.postgres
		case "table":
			cfg.Sink.Postgres.Table = o.table
		case "log-level":
			cfg.Log.Level = strings.ToLower(o.logLevel)
		}
	})
}
