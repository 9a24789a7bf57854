package dataset

import (
	"fmt"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// coordinateVars are the bookkeeping variables of the KNMI ten-minute
// observation files. Everything else that holds numbers is an observation
// variable.
var coordinateVars = map[string]bool{
	"station":     true,
	"stationname": true,
	"time":        true,
	"lat":         true,
	"lon":         true,
}

// DecodeNetCDF reads one raw NetCDF observation file into a Dataset.
// Station metadata and variable attributes (long_name, units) are carried
// over; fill values (NaN) are dropped. Any structural problem is an error:
// a raw file that cannot be decoded must abort the merge pass that found
// it, so the caller never folds a half-read file into the canonical store.
func DecodeNetCDF(path string) (*Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw file %s: %w", path, err)
	}
	defer nc.Close()

	stations, err := stringVariable(nc, "station")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	times, err := observationTimes(nc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Station names and coordinates are optional decoration.
	names, _ := stringVariable(nc, "stationname")
	lats, _ := numericVariable(nc, "lat")
	lons, _ := numericVariable(nc, "lon")

	d := New()
	for i, code := range stations {
		meta := StationMeta{}
		if i < len(names) {
			meta.Name = names[i]
		}
		if i < len(lats) {
			meta.Lat = lats[i]
		}
		if i < len(lons) {
			meta.Lon = lons[i]
		}
		d.SetStation(code, meta)
	}

	for _, name := range nc.ListVariables() {
		if coordinateVars[name] {
			continue
		}
		vr, err := nc.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("%s: read variable %s: %w", path, name, err)
		}
		cells, ok := numericCells(vr.Values)
		if !ok {
			// Text and compound variables carry no observations.
			continue
		}
		if len(cells) != len(stations)*len(times) {
			return nil, fmt.Errorf("%s: variable %s has %d values for %d stations and %d times",
				path, name, len(cells), len(stations), len(times))
		}

		d.SetVariable(name, VariableMeta{
			Description: attrString(vr.Attributes, "long_name"),
			Unit:        attrString(vr.Attributes, "units"),
		})

		stationMajor := len(vr.Dimensions) == 0 || vr.Dimensions[0] != "time"
		for si, code := range stations {
			for ti, t := range times {
				var v float64
				if stationMajor {
					v = cells[si*len(times)+ti]
				} else {
					v = cells[ti*len(stations)+si]
				}
				d.SetValue(code, t, name, v)
			}
		}
	}

	return d, nil
}

// observationTimes decodes the time coordinate, interpreting its CF-style
// units attribute ("<unit> since <epoch>").
func observationTimes(nc api.Group) ([]time.Time, error) {
	vr, err := nc.GetVariable("time")
	if err != nil {
		return nil, fmt.Errorf("read time coordinate: %w", err)
	}
	offsets, ok := numericCells(vr.Values)
	if !ok || len(offsets) == 0 {
		return nil, fmt.Errorf("time coordinate holds no numeric values")
	}

	base, unit, err := parseTimeUnits(attrString(vr.Attributes, "units"))
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, len(offsets))
	for i, off := range offsets {
		times[i] = base.Add(time.Duration(off) * unit).UTC()
	}
	return times, nil
}

// parseTimeUnits parses a CF time-units string such as
// "seconds since 1950-01-01 00:00:00".
func parseTimeUnits(units string) (time.Time, time.Duration, error) {
	unitName, epoch, found := strings.Cut(units, " since ")
	if !found {
		return time.Time{}, 0, fmt.Errorf("unsupported time units %q", units)
	}

	var unit time.Duration
	switch strings.TrimSpace(unitName) {
	case "seconds":
		unit = time.Second
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	default:
		return time.Time{}, 0, fmt.Errorf("unsupported time unit %q", unitName)
	}

	epoch = strings.TrimSpace(epoch)
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if base, err := time.Parse(layout, epoch); err == nil {
			return base.UTC(), unit, nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("unsupported time epoch %q", epoch)
}

func stringVariable(nc api.Group, name string) ([]string, error) {
	vr, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("read variable %s: %w", name, err)
	}
	switch vals := vr.Values.(type) {
	case []string:
		return vals, nil
	case string:
		return []string{vals}, nil
	default:
		return nil, fmt.Errorf("variable %s is not text", name)
	}
}

func numericVariable(nc api.Group, name string) ([]float64, error) {
	vr, err := nc.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("read variable %s: %w", name, err)
	}
	cells, ok := numericCells(vr.Values)
	if !ok {
		return nil, fmt.Errorf("variable %s is not numeric", name)
	}
	return cells, nil
}

// numericCells flattens a variable payload into a row-major []float64.
// NetCDF readers hand back concrete slice types per on-disk type, so this
// is a type switch over the shapes the KNMI files actually use.
func numericCells(v any) ([]float64, bool) {
	switch vals := v.(type) {
	case []float64:
		return vals, true
	case []float32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case []int64:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case []int32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case []int16:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case []int8:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, true
	case float64:
		return []float64{vals}, true
	case float32:
		return []float64{float64(vals)}, true
	case int64:
		return []float64{float64(vals)}, true
	case int32:
		return []float64{float64(vals)}, true
	case [][]float64:
		var out []float64
		for _, row := range vals {
			out = append(out, row...)
		}
		return out, true
	case [][]float32:
		var out []float64
		for _, row := range vals {
			for _, x := range row {
				out = append(out, float64(x))
			}
		}
		return out, true
	case [][]int32:
		var out []float64
		for _, row := range vals {
			for _, x := range row {
				out = append(out, float64(x))
			}
		}
		return out, true
	case [][]int16:
		var out []float64
		for _, row := range vals {
			for _, x := range row {
				out = append(out, float64(x))
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func attrString(attrs api.AttributeMap, key string) string {
	if attrs == nil {
		return ""
	}
	val, has := attrs.Get(key)
	if !has {
		return ""
	}
	switch s := val.(type) {
	case string:
		return s
	case []string:
		if len(s) > 0 {
			return s[0]
		}
	}
	return ""
}
