package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/knmi-obs-sync/internal/store"
)

func writeRaw(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestNaming_Filename(t *testing.T) {
	n := store.Naming{Prefix: "KMDS__OPER_P___10M_OBS_L2_", Ext: ".nc"}
	ts := time.Date(2024, time.January, 1, 0, 50, 0, 0, time.UTC)
	assert.Equal(t, "KMDS__OPER_P___10M_OBS_L2_202401010050.nc", n.Filename(ts))
}

func TestTimestampFromFilename(t *testing.T) {
	ts, err := store.TimestampFromFilename("KMDS__OPER_P___10M_OBS_L2_202401010050.nc")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 50, 0, 0, time.UTC), ts)
}

func TestTimestampFromFilename_RoundTrip(t *testing.T) {
	n := store.Naming{Prefix: "obs_", Ext: ".nc"}
	ts := time.Date(2023, time.December, 31, 23, 50, 0, 0, time.UTC)

	got, err := store.TimestampFromFilename(n.Filename(ts))
	require.NoError(t, err)
	assert.True(t, got.Equal(ts))
}

func TestTimestampFromFilename_Invalid(t *testing.T) {
	for _, name := range []string{"short.nc", "KMDS__OPER_P___10M_OBS_L2_2024010100XX.nc", "notes.txt"} {
		_, err := store.TimestampFromFilename(name)
		assert.Error(t, err, name)
	}
}

func TestResolveCursor_MaxTimestamp(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "KMDS__OPER_P___10M_OBS_L2_202401010000.nc")
	writeRaw(t, dir, "KMDS__OPER_P___10M_OBS_L2_202401010050.nc")
	writeRaw(t, dir, "KMDS__OPER_P___10M_OBS_L2_202401010030.nc")

	cursor, err := store.ResolveCursor(dir)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 50, 0, 0, time.UTC), cursor)
}

func TestResolveCursor_EmptyStore(t *testing.T) {
	_, err := store.ResolveCursor(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrEmptyStore)
}

func TestResolveCursor_IgnoresStrays(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "KMDS__OPER_P___10M_OBS_L2_202401010010.nc")
	writeRaw(t, dir, "KMDS__OPER_P___10M_OBS_L2_202401010020.nc.partial")
	writeRaw(t, dir, "README.md")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	cursor, err := store.ResolveCursor(dir)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 10, 0, 0, time.UTC), cursor)
}

func TestListRawFiles_SortedChronologically(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "KMDS__OPER_P___10M_OBS_L2_202401010020.nc")
	writeRaw(t, dir, "KMDS__OPER_P___10M_OBS_L2_202401010000.nc")
	writeRaw(t, dir, "KMDS__OPER_P___10M_OBS_L2_202401010010.nc")

	names, err := store.ListRawFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"KMDS__OPER_P___10M_OBS_L2_202401010000.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010010.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010020.nc",
	}, names)
}
