package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"
)

// Sink receives a finished summary.
type Sink interface {
	Name() string
	Write(ctx context.Context, s *Summary) error
}

const timeLayout = "2006-01-02 15:04:05"

// NewWriterSink returns the table, csv or json sink writing to w.
func NewWriterSink(format string, w io.Writer) (Sink, error) {
	switch format {
	case "table", "":
		return NewTableSink(w), nil
	case "csv":
		return NewCSVSink(w), nil
	case "json":
		return NewJSONSink(w, true), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// TableSink prints the overpass table followed by any failures.
type TableSink struct {
	w io.Writer
}

func NewTableSink(w io.Writer) *TableSink { return &TableSink{w: w} }

func (t *TableSink) Name() string { return "table" }

func (t *TableSink) Write(_ context.Context, s *Summary) error {
	tw := tabwriter.NewWriter(t.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "observer %.4f, %.4f, %.0f m  window %s .. %s UTC  min elevation %.1f°\n\n",
		s.Observer.Lat, s.Observer.Lon, s.Observer.AltM,
		s.Window.Start.UTC().Format(timeLayout), s.Window.End.UTC().Format(timeLayout), s.Threshold)

	fmt.Fprintln(tw, "SATNAME\tNORAD\tRISE\tTIMEOVERPASS\tSET\tELEVATION\tAZIMUTH\tVIEW_ANGLE")
	rows := s.Culminations()
	for _, c := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%.2f\t%.1f\t%.2f\n",
			c.Satellite, c.CatalogNumber,
			c.Rise.UTC().Format(timeLayout),
			c.Time.UTC().Format(timeLayout),
			c.Set.UTC().Format(timeLayout),
			c.Elevation, c.Azimuth, c.ViewAngle)
	}
	if len(rows) == 0 {
		fmt.Fprintln(tw, "(no passes)")
	}

	if len(s.Failures) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "FAILED\tNORAD\tKIND\tERROR")
		for _, f := range s.Failures {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", f.Key, f.CatalogNumber, f.Kind, f.Message)
		}
	}
	return tw.Flush()
}

// CSVSink writes one row per pass.
type CSVSink struct {
	w io.Writer
}

func NewCSVSink(w io.Writer) *CSVSink { return &CSVSink{w: w} }

func (c *CSVSink) Name() string { return "csv" }

var csvHeader = []string{
	"satname", "norad_id", "rise", "timeoverpass", "set",
	"elevation", "azimuth", "view_angle",
}

func (c *CSVSink) Write(_ context.Context, s *Summary) error {
	cw := csv.NewWriter(c.w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range s.Culminations() {
		rec := []string{
			row.Satellite,
			strconv.Itoa(row.CatalogNumber),
			row.Rise.UTC().Format(time.RFC3339),
			row.Time.UTC().Format(time.RFC3339),
			row.Set.UTC().Format(time.RFC3339),
			strconv.FormatFloat(row.Elevation, 'f', 3, 64),
			strconv.FormatFloat(row.Azimuth, 'f', 3, 64),
			strconv.FormatFloat(row.ViewAngle, 'f', 3, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSONSink encodes the whole summary.
type JSONSink struct {
	w      io.Writer
	indent bool
}

func NewJSONSink(w io.Writer, indent bool) *JSONSink { return &JSONSink{w: w, indent: indent} }

func (j *JSONSink) Name() string { return "json" }

func (j *JSONSink) Write(_ context.Context, s *Summary) error {
	enc := json.NewEncoder(j.w)
	if j.indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(s)
}

// Multi writes to every sink in order and returns the first error.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Write(ctx context.Context, s *Summary) error {
	for _, sink := range m {
		if err := sink.Write(ctx, s); err != nil {
			return fmt.Errorf("%s sink: %w", sink.Name(), err)
		}
	}
	return nil
}
