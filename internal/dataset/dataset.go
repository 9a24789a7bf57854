// Package dataset models the multi-station observation dataset: a set of
// values keyed by (station, time, variable) plus the variable and station
// metadata catalogs derived from the source files. One Dataset instance is
// decoded per raw file and folded into larger ones during merging; the
// combined history is persisted as the canonical store.
package dataset

import (
	"math"
	"sort"
	"time"
)

// timeKey is the serialized form of an observation timestamp. RFC 3339 in
// UTC sorts lexicographically in chronological order, which keeps the
// canonical encoding deterministic.
const timeKey = "2006-01-02T15:04:05Z"

// VariableMeta describes one observation variable, taken from the source
// file attributes.
type VariableMeta struct {
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

// StationMeta describes one measuring station.
type StationMeta struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Dataset holds observations keyed by (station, time). The exported maps
// are the serialized form of the canonical store; use the accessors rather
// than indexing them directly.
type Dataset struct {
	Variables map[string]VariableMeta `json:"variables"`
	Stations  map[string]StationMeta  `json:"stations"`

	// Values is indexed station code, then UTC RFC 3339 timestamp, then
	// variable name.
	Values map[string]map[string]map[string]float64 `json:"values"`
}

// New creates an empty dataset.
func New() *Dataset {
	return &Dataset{
		Variables: make(map[string]VariableMeta),
		Stations:  make(map[string]StationMeta),
		Values:    make(map[string]map[string]map[string]float64),
	}
}

// SetVariable registers or overwrites a variable's metadata.
func (d *Dataset) SetVariable(name string, meta VariableMeta) {
	d.Variables[name] = meta
}

// SetStation registers or overwrites a station's metadata.
func (d *Dataset) SetStation(code string, meta StationMeta) {
	d.Stations[code] = meta
}

// SetValue records one observation. NaN and infinite values are dropped:
// they are the source format's encoding for "not measured" and cannot be
// represented in the canonical store.
func (d *Dataset) SetValue(station string, t time.Time, variable string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	ts := t.UTC().Format(timeKey)
	byTime, ok := d.Values[station]
	if !ok {
		byTime = make(map[string]map[string]float64)
		d.Values[station] = byTime
	}
	byVar, ok := byTime[ts]
	if !ok {
		byVar = make(map[string]float64)
		byTime[ts] = byVar
	}
	byVar[variable] = v
}

// Value returns the observation for (station, time, variable), if present.
func (d *Dataset) Value(station string, t time.Time, variable string) (float64, bool) {
	byTime, ok := d.Values[station]
	if !ok {
		return 0, false
	}
	byVar, ok := byTime[t.UTC().Format(timeKey)]
	if !ok {
		return 0, false
	}
	v, ok := byVar[variable]
	return v, ok
}

// Merge folds other into d. Keys present in both are overwritten with
// other's value; the source data for a given (station, time) is immutable
// once published, so the overwrite carries the same value and merging is
// idempotent and commutative over any grouping of the underlying files.
func (d *Dataset) Merge(other *Dataset) {
	for name, meta := range other.Variables {
		d.Variables[name] = meta
	}
	for code, meta := range other.Stations {
		d.Stations[code] = meta
	}
	for station, byTime := range other.Values {
		for ts, byVar := range byTime {
			dst, ok := d.Values[station]
			if !ok {
				dst = make(map[string]map[string]float64)
				d.Values[station] = dst
			}
			dstVars, ok := dst[ts]
			if !ok {
				dstVars = make(map[string]float64, len(byVar))
				dst[ts] = dstVars
			}
			for variable, v := range byVar {
				dstVars[variable] = v
			}
		}
	}
}

// Empty reports whether the dataset holds no observations.
func (d *Dataset) Empty() bool {
	return len(d.Values) == 0
}

// Observations counts the distinct (station, time) rows.
func (d *Dataset) Observations() int {
	n := 0
	for _, byTime := range d.Values {
		n += len(byTime)
	}
	return n
}

// VariableNames returns the cataloged variable names, sorted.
func (d *Dataset) VariableNames() []string {
	names := make([]string, 0, len(d.Variables))
	for name := range d.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StationCodes returns the cataloged station codes, sorted.
func (d *Dataset) StationCodes() []string {
	codes := make([]string, 0, len(d.Stations))
	for code := range d.Stations {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// TimesFor returns the observation times recorded for one station, sorted.
func (d *Dataset) TimesFor(station string) []time.Time {
	byTime, ok := d.Values[station]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(byTime))
	for ts := range byTime {
		keys = append(keys, ts)
	}
	sort.Strings(keys)

	times := make([]time.Time, 0, len(keys))
	for _, ts := range keys {
		t, err := time.Parse(timeKey, ts)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	return times
}

// TimeRange returns the minimum and maximum observation time across all
// stations. ok is false for an empty dataset.
func (d *Dataset) TimeRange() (min, max time.Time, ok bool) {
	var lo, hi string
	for _, byTime := range d.Values {
		for ts := range byTime {
			if lo == "" || ts < lo {
				lo = ts
			}
			if ts > hi {
				hi = ts
			}
		}
	}
	if lo == "" {
		return time.Time{}, time.Time{}, false
	}
	min, _ = time.Parse(timeKey, lo)
	max, _ = time.Parse(timeKey, hi)
	return min, max, true
}
