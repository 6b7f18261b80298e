package report

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSink stores one row per pass. Rows are keyed by satellite and rise
// time so rerunning an overlapping window inserts only new passes.
type PostgresSink struct {
	db    *sql.DB
	table string
}

// OpenPostgres connects with the lib/pq driver.
func OpenPostgres(dsn, table string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	sink, err := NewPostgresSink(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSink writes to table through db.
func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{db: db, table: table}, nil
}

func (p *PostgresSink) Name() string { return "postgres" }

// Close releases the connection pool.
func (p *PostgresSink) Close() error { return p.db.Close() }

// EnsureTable creates the table when it does not exist.
func (p *PostgresSink) EnsureTable(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+p.table+` (
	run_id text,
	norad_id integer NOT NULL,
	satname text NOT NULL,
	rise timestamptz NOT NULL,
	culmination timestamptz NOT NULL,
	set timestamptz NOT NULL,
	max_elevation double precision NOT NULL,
	azimuth double precision NOT NULL,
	view_angle double precision NOT NULL,
	observer_lat double precision NOT NULL,
	observer_lon double precision NOT NULL,
	observer_alt_m double precision NOT NULL,
	PRIMARY KEY (norad_id, rise, observer_lat, observer_lon)
)`)
	return err
}

const pgColumns = 12

func (p *PostgresSink) Write(ctx context.Context, s *Summary) error {
	rows := s.Culminations()
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.table)
	b.WriteString(" (run_id, norad_id, satname, rise, culmination, set, max_elevation, azimuth, view_angle, observer_lat, observer_lon, observer_alt_m) VALUES ")

	args := make([]any, 0, len(rows)*pgColumns)
	for i, c := range rows {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for j := 1; j <= pgColumns; j++ {
			if j > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+j)
		}
		b.WriteString(")")

		args = append(args,
			s.RunID,
			c.CatalogNumber,
			c.Satellite,
			c.Rise,
			c.Time,
			c.Set,
			c.Elevation,
			c.Azimuth,
			c.ViewAngle,
			s.Observer.Lat,
			s.Observer.Lon,
			s.Observer.AltM,
		)
	}

	b.WriteString(" ON CONFLICT (norad_id, rise, observer_lat, observer_lon) DO NOTHING")

	_, err := p.db.ExecContext(ctx, b.String(), args...)
	return err
}
