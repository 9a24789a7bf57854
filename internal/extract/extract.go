// Package extract projects the canonical store into tabular per-station,
// per-variable time series.
package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/guptarohit/asciigraph"

	"github.com/couchcryptid/knmi-obs-sync/internal/dataset"
)

// AllVariables selects every variable in the catalog.
const AllVariables = "all"

// ErrUnknownVariable is returned for a variable absent from the catalog.
var ErrUnknownVariable = errors.New("unknown variable")

// ErrUnknownStation is returned for a station absent from the store.
var ErrUnknownStation = errors.New("unknown station")

// Request selects what to extract. Variable may be AllVariables. A zero
// Start or End widens the range to the full store.
type Request struct {
	Variable string
	Station  string
	Start    time.Time
	End      time.Time
}

// Row is one time-indexed row of the extracted table. Missing values are
// NaN.
type Row struct {
	Time   time.Time
	Values []float64
}

// Table is the extraction result: one column per selected variable.
type Table struct {
	Station string
	Columns []string
	Rows    []Row
}

// FromStore extracts a table from the canonical store. Requesting an
// unknown variable or station fails synchronously without touching any
// state.
func FromStore(ds *dataset.Dataset, req Request) (*Table, error) {
	var columns []string
	if req.Variable == AllVariables {
		columns = ds.VariableNames()
	} else {
		if _, ok := ds.Variables[req.Variable]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, req.Variable)
		}
		columns = []string{req.Variable}
	}

	if _, ok := ds.Stations[req.Station]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStation, req.Station)
	}

	start, end := req.Start, req.End
	if start.IsZero() || end.IsZero() {
		lo, hi, ok := ds.TimeRange()
		if !ok {
			return &Table{Station: req.Station, Columns: columns}, nil
		}
		if start.IsZero() {
			start = lo
		}
		if end.IsZero() {
			end = hi
		}
	}

	t := &Table{Station: req.Station, Columns: columns}
	for _, ts := range ds.TimesFor(req.Station) {
		if ts.Before(start) || ts.After(end) {
			continue
		}
		row := Row{Time: ts, Values: make([]float64, len(columns))}
		for i, name := range columns {
			v, ok := ds.Value(req.Station, ts, name)
			if !ok {
				v = math.NaN()
			}
			row.Values[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes the table with a header row. Missing values render as
// empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{"time"}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range t.Rows {
		record[0] = row.Time.UTC().Format(time.RFC3339)
		for i, v := range row.Values {
			if math.IsNaN(v) {
				record[i+1] = ""
			} else {
				record[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// RenderPlot draws the table's series as a terminal chart. Plotting is
// only defined for a single-variable table; for anything else it reports
// ok=false so callers can downgrade silently while the extraction itself
// still stands.
func (t *Table) RenderPlot(meta map[string]dataset.VariableMeta, height int) (string, bool) {
	if len(t.Columns) != 1 {
		return "", false
	}

	series := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		if !math.IsNaN(row.Values[0]) {
			series = append(series, row.Values[0])
		}
	}
	if len(series) == 0 {
		return "", false
	}

	name := t.Columns[0]
	caption := fmt.Sprintf("%s, station %s", name, t.Station)
	if m, ok := meta[name]; ok && m.Description != "" {
		caption = fmt.Sprintf("%s [%s], station %s", m.Description, m.Unit, t.Station)
	}

	return asciigraph.Plot(series,
		asciigraph.Height(height),
		asciigraph.Caption(caption),
	), true
}
