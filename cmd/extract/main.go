// Command extract reads the canonical store and writes per-station,
// per-variable time series as CSV. It can also list the variable and
// station catalogs derived from the store, report the stored time range,
// and draw a terminal chart for a single-variable extraction.
//
// Usage:
//
//	go run ./cmd/extract -station 260 -variable ta -start 2024-01-01 -end 2024-01-02
//	go run ./cmd/extract -station 260 -variable all
//	go run ./cmd/extract -list-variables
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/knmi-obs-sync/internal/dataset"
	"github.com/couchcryptid/knmi-obs-sync/internal/extract"
)

func main() {
	storePath := flag.String("store", "assets/merged_data/merged_dataset.json.gz", "path to the canonical store")
	station := flag.String("station", "", "station code to extract")
	variable := flag.String("variable", extract.AllVariables, "variable name, or \"all\" for every cataloged variable")
	startStr := flag.String("start", "", "start of the time range (RFC 3339 or YYYY-MM-DD); default: full range")
	endStr := flag.String("end", "", "end of the time range (RFC 3339 or YYYY-MM-DD); default: full range")
	output := flag.String("o", "", "write CSV to this file instead of stdout")
	plot := flag.Bool("plot", false, "draw a terminal chart (single-variable extractions only)")
	plotHeight := flag.Int("plot-height", 15, "chart height in rows")
	listStations := flag.Bool("list-stations", false, "print the station catalog and exit")
	listVariables := flag.Bool("list-variables", false, "print the variable catalog and exit")
	showRange := flag.Bool("range", false, "print the stored time range and exit")
	flag.Parse()

	ds, err := dataset.ReadFile(*storePath)
	if err != nil {
		fatal(err)
	}

	switch {
	case *listStations:
		for _, code := range ds.StationCodes() {
			meta := ds.Stations[code]
			fmt.Printf("%s\t%s\t%.4f\t%.4f\n", code, meta.Name, meta.Lat, meta.Lon)
		}
		return
	case *listVariables:
		for _, name := range ds.VariableNames() {
			meta := ds.Variables[name]
			fmt.Printf("%s\t%s\t[%s]\n", name, meta.Description, meta.Unit)
		}
		return
	case *showRange:
		lo, hi, ok := ds.TimeRange()
		if !ok {
			fatal(fmt.Errorf("store %s holds no observations", *storePath))
		}
		fmt.Printf("%s\t%s\n", lo.Format(time.RFC3339), hi.Format(time.RFC3339))
		return
	}

	if *station == "" {
		fatal(fmt.Errorf("-station is required"))
	}

	req := extract.Request{Variable: *variable, Station: *station}
	if req.Start, err = parseTime(*startStr); err != nil {
		fatal(err)
	}
	if req.End, err = parseTime(*endStr); err != nil {
		fatal(err)
	}

	table, err := extract.FromStore(ds, req)
	if err != nil {
		fatal(err)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		out = f
	}
	if err := table.WriteCSV(out); err != nil {
		fatal(err)
	}

	if *plot {
		// Plotting more than one variable at once is not supported; the
		// request is ignored rather than failing the extraction.
		if chart, ok := table.RenderPlot(ds.Variables, *plotHeight); ok {
			fmt.Fprintln(os.Stderr, chart)
		}
	}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "extract:", err)
	os.Exit(1)
}
