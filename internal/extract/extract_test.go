package extract_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/knmi-obs-sync/internal/dataset"
	"github.com/couchcryptid/knmi-obs-sync/internal/extract"
)

func obsTime(minute int) time.Time {
	return time.Date(2024, time.January, 1, 0, minute, 0, 0, time.UTC)
}

func testStore() *dataset.Dataset {
	d := dataset.New()
	d.SetVariable("ta", dataset.VariableMeta{Description: "Air Temperature 1.5m", Unit: "degrees Celsius"})
	d.SetVariable("ff", dataset.VariableMeta{Description: "Wind Speed 10m", Unit: "m s-1"})
	d.SetStation("260", dataset.StationMeta{Name: "De Bilt", Lat: 52.1, Lon: 5.18})
	d.SetStation("310", dataset.StationMeta{Name: "Vlissingen", Lat: 51.44, Lon: 3.6})
	for minute := 0; minute <= 50; minute += 10 {
		d.SetValue("260", obsTime(minute), "ta", 4.0+float64(minute)/100)
		d.SetValue("310", obsTime(minute), "ta", 6.0+float64(minute)/100)
	}
	// ff only has data for the first half hour.
	for minute := 0; minute <= 20; minute += 10 {
		d.SetValue("260", obsTime(minute), "ff", 2.0)
	}
	return d
}

func TestFromStore_AllVariablesFullRange(t *testing.T) {
	table, err := extract.FromStore(testStore(), extract.Request{
		Variable: extract.AllVariables,
		Station:  "260",
	})
	require.NoError(t, err)

	// One column per cataloged variable, rows spanning the full range.
	assert.Equal(t, []string{"ff", "ta"}, table.Columns)
	require.Len(t, table.Rows, 6)
	assert.Equal(t, obsTime(0), table.Rows[0].Time)
	assert.Equal(t, obsTime(50), table.Rows[5].Time)
}

func TestFromStore_SingleVariable(t *testing.T) {
	table, err := extract.FromStore(testStore(), extract.Request{
		Variable: "ta",
		Station:  "310",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ta"}, table.Columns)
	require.Len(t, table.Rows, 6)
	assert.Equal(t, 6.0, table.Rows[0].Values[0])
}

func TestFromStore_TimeBounds(t *testing.T) {
	table, err := extract.FromStore(testStore(), extract.Request{
		Variable: "ta",
		Station:  "260",
		Start:    obsTime(10),
		End:      obsTime(30),
	})
	require.NoError(t, err)

	require.Len(t, table.Rows, 3)
	assert.Equal(t, obsTime(10), table.Rows[0].Time)
	assert.Equal(t, obsTime(30), table.Rows[2].Time)
}

func TestFromStore_UnknownVariable(t *testing.T) {
	_, err := extract.FromStore(testStore(), extract.Request{Variable: "snow_depth", Station: "260"})
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrUnknownVariable)
}

func TestFromStore_UnknownStation(t *testing.T) {
	_, err := extract.FromStore(testStore(), extract.Request{Variable: "ta", Station: "999"})
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrUnknownStation)
}

func TestWriteCSV(t *testing.T) {
	table, err := extract.FromStore(testStore(), extract.Request{
		Variable: extract.AllVariables,
		Station:  "260",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "time,ff,ta", lines[0])
	assert.Equal(t, "2024-01-01T00:00:00Z,2,4", lines[1])

	// ff has no value after minute 20: missing cells are empty.
	assert.Equal(t, "2024-01-01T00:50:00Z,,4.05", lines[6])
}

func TestRenderPlot_SingleVariable(t *testing.T) {
	table, err := extract.FromStore(testStore(), extract.Request{Variable: "ta", Station: "260"})
	require.NoError(t, err)

	chart, ok := table.RenderPlot(testStore().Variables, 10)
	require.True(t, ok)
	assert.Contains(t, chart, "Air Temperature 1.5m")
	assert.Contains(t, chart, "260")
}

func TestRenderPlot_MultiVariableDowngradesSilently(t *testing.T) {
	table, err := extract.FromStore(testStore(), extract.Request{
		Variable: extract.AllVariables,
		Station:  "260",
	})
	require.NoError(t, err)

	// Plotting several variables at once is not supported; the extraction
	// stands and the plot request is simply refused.
	_, ok := table.RenderPlot(testStore().Variables, 10)
	assert.False(t, ok)
	require.Len(t, table.Rows, 6)
}
