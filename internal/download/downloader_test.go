package download_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/knmi-obs-sync/internal/catalog"
	"github.com/couchcryptid/knmi-obs-sync/internal/download"
	"github.com/couchcryptid/knmi-obs-sync/internal/observability"
)

// fakeResolver hands out URLs until quotaAfter resolutions have happened,
// then signals quota exhaustion.
type fakeResolver struct {
	baseURL    string
	calls      int
	quotaAfter int // 0 means never
	failFor    map[string]bool
}

func (f *fakeResolver) DownloadURL(_ context.Context, filename string) (string, error) {
	f.calls++
	if f.quotaAfter > 0 && f.calls > f.quotaAfter {
		return "", fmt.Errorf("resolve url for %s: %w", filename, catalog.ErrQuotaExceeded)
	}
	if f.failFor[filename] {
		return "", fmt.Errorf("resolve url for %s: status 500", filename)
	}
	return f.baseURL + "/" + filename, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func descriptors(names ...string) []catalog.FileDescriptor {
	files := make([]catalog.FileDescriptor, len(names))
	for i, n := range names {
		files[i] = catalog.FileDescriptor{Filename: n}
	}
	return files
}

// fileServer serves predictable content for any filename path.
func fileServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "netcdf-bytes-for%s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload_AllFilesUnderQuota(t *testing.T) {
	srv := fileServer(t)
	rawDir := t.TempDir()
	d := download.New(&fakeResolver{baseURL: srv.URL}, 5*time.Second, discardLogger(), observability.NewMetricsForTesting())

	files := descriptors(
		"KMDS__OPER_P___10M_OBS_L2_202401010100.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010110.nc",
	)
	downloaded, stopped, err := d.Download(context.Background(), files, 10, rawDir)
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Equal(t, []string{
		"KMDS__OPER_P___10M_OBS_L2_202401010100.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010110.nc",
	}, downloaded)

	content, err := os.ReadFile(filepath.Join(rawDir, files[0].Filename))
	require.NoError(t, err)
	assert.Contains(t, string(content), files[0].Filename)
}

func TestDownload_QuotaBoundsRequests(t *testing.T) {
	// 5 files listed, max_downloads=2: exactly 2 download requests issued.
	srv := fileServer(t)
	rawDir := t.TempDir()
	resolver := &fakeResolver{baseURL: srv.URL}
	d := download.New(resolver, 5*time.Second, discardLogger(), observability.NewMetricsForTesting())

	files := descriptors(
		"KMDS__OPER_P___10M_OBS_L2_202401010100.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010110.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010120.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010130.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010140.nc",
	)
	downloaded, stopped, err := d.Download(context.Background(), files, 2, rawDir)
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Len(t, downloaded, 2)
	assert.Equal(t, 2, resolver.calls)

	entries, err := os.ReadDir(rawDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDownload_StopsOnServerQuota(t *testing.T) {
	srv := fileServer(t)
	rawDir := t.TempDir()
	d := download.New(&fakeResolver{baseURL: srv.URL, quotaAfter: 1}, 5*time.Second, discardLogger(), observability.NewMetricsForTesting())

	files := descriptors(
		"KMDS__OPER_P___10M_OBS_L2_202401010100.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010110.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010120.nc",
	)
	downloaded, stopped, err := d.Download(context.Background(), files, 10, rawDir)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, []string{"KMDS__OPER_P___10M_OBS_L2_202401010100.nc"}, downloaded)

	// The file fetched before the quota hit stays on disk.
	_, err = os.Stat(filepath.Join(rawDir, downloaded[0]))
	assert.NoError(t, err)
}

func TestDownload_SkipsFailedFile(t *testing.T) {
	srv := fileServer(t)
	rawDir := t.TempDir()
	resolver := &fakeResolver{
		baseURL: srv.URL,
		failFor: map[string]bool{"KMDS__OPER_P___10M_OBS_L2_202401010110.nc": true},
	}
	d := download.New(resolver, 5*time.Second, discardLogger(), observability.NewMetricsForTesting())

	files := descriptors(
		"KMDS__OPER_P___10M_OBS_L2_202401010100.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010110.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010120.nc",
	)
	downloaded, stopped, err := d.Download(context.Background(), files, 10, rawDir)
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Equal(t, []string{
		"KMDS__OPER_P___10M_OBS_L2_202401010100.nc",
		"KMDS__OPER_P___10M_OBS_L2_202401010120.nc",
	}, downloaded)

	// The failed file was never written, so it stays after the cursor.
	_, err = os.Stat(filepath.Join(rawDir, "KMDS__OPER_P___10M_OBS_L2_202401010110.nc"))
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_BadTransferLeavesNoPartialFile(t *testing.T) {
	srv := fileServer(t)
	rawDir := t.TempDir()
	d := download.New(&fakeResolver{baseURL: srv.URL}, 5*time.Second, discardLogger(), observability.NewMetricsForTesting())

	files := descriptors("KMDS__OPER_P___10M_OBS_L2_broken_202401010100.nc")
	downloaded, stopped, err := d.Download(context.Background(), files, 10, rawDir)
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Empty(t, downloaded)

	entries, err := os.ReadDir(rawDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_CancelledContext(t *testing.T) {
	srv := fileServer(t)
	d := download.New(&fakeResolver{baseURL: srv.URL}, 5*time.Second, discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := d.Download(ctx, descriptors("KMDS__OPER_P___10M_OBS_L2_202401010100.nc"), 10, t.TempDir())
	assert.Error(t, err)
}
