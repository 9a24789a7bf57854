// Package download drives the catalog client under a per-cycle quota and
// persists raw files into local storage.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/knmi-obs-sync/internal/catalog"
	"github.com/couchcryptid/knmi-obs-sync/internal/observability"
)

// URLResolver resolves a one-time download URL for a remote file.
// Implemented by catalog.Client.
type URLResolver interface {
	DownloadURL(ctx context.Context, filename string) (string, error)
}

// Downloader fetches listed files into the raw folder.
type Downloader struct {
	resolver   URLResolver
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Downloader. The timeout bounds each individual file
// transfer, not the whole batch.
func New(resolver URLResolver, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Downloader {
	return &Downloader{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Download fetches files in listing order into rawDir, issuing at most
// quota download requests. It returns the filenames written, plus
// stoppedEarly=true when the server signalled quota exhaustion mid-batch.
// Files already written stay on disk in that case; there is no rollback.
//
// A per-file failure is logged and skipped: the file was never written
// locally, so it stays after the cursor and is retried next cycle.
func (d *Downloader) Download(ctx context.Context, files []catalog.FileDescriptor, quota int, rawDir string) ([]string, bool, error) {
	downloaded := make([]string, 0, min(len(files), quota))

	requests := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return downloaded, false, err
		}
		if requests >= quota {
			d.logger.Info("download quota for this cycle used up",
				"quota", quota, "remaining", len(files)-requests)
			break
		}
		requests++

		url, err := d.resolver.DownloadURL(ctx, f.Filename)
		if errors.Is(err, catalog.ErrQuotaExceeded) {
			d.metrics.QuotaExhausted.Inc()
			d.logger.Warn("server request quota exhausted, stopping batch",
				"downloaded", len(downloaded), "file", f.Filename)
			return downloaded, true, nil
		}
		if err != nil {
			d.metrics.DownloadErrors.Inc()
			d.logger.Warn("resolve download url failed, skipping file",
				"file", f.Filename, "error", err)
			continue
		}

		if err := d.fetchFile(ctx, url, filepath.Join(rawDir, f.Filename)); err != nil {
			d.metrics.DownloadErrors.Inc()
			d.logger.Warn("download failed, skipping file",
				"file", f.Filename, "error", err)
			continue
		}

		d.metrics.FilesDownloaded.Inc()
		d.logger.Debug("downloaded raw file", "file", f.Filename, "size", f.Size)
		downloaded = append(downloaded, f.Filename)
	}

	return downloaded, false, nil
}

// fetchFile streams the file body to dest. The body is written to a
// temporary name and renamed into place, so a failed transfer never leaves
// a file that the cursor resolver would count as downloaded.
func (d *Downloader) fetchFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize file: %w", err)
	}
	return nil
}
