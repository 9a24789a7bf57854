// Package poller orchestrates the acquisition cycle: resolve the local
// cursor, list the remote catalog after it, download under the quota,
// merge into the canonical store, and optionally announce the new files.
// One Cycle call is deterministic and independently testable; Run wraps it
// in a fixed-interval loop.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/knmi-obs-sync/internal/catalog"
	"github.com/couchcryptid/knmi-obs-sync/internal/observability"
	"github.com/couchcryptid/knmi-obs-sync/internal/store"
)

// Catalog lists remote files after a cursor filename.
type Catalog interface {
	ListFiles(ctx context.Context, startAfter string, maxKeys int) ([]catalog.FileDescriptor, error)
}

// Downloader fetches listed files into the raw folder under a quota.
type Downloader interface {
	Download(ctx context.Context, files []catalog.FileDescriptor, quota int, rawDir string) (downloaded []string, stoppedEarly bool, err error)
}

// Merger folds the raw folder into the canonical store.
type Merger interface {
	Merge(ctx context.Context, rawDir, storePath string) error
}

// Publisher announces newly ingested raw files downstream.
type Publisher interface {
	PublishIngested(ctx context.Context, filenames []string) error
}

// Settings are the storage paths and acquisition limits of one poller.
type Settings struct {
	Naming       store.Naming
	RawDir       string
	StorePath    string
	MaxKeys      int
	MaxDownloads int
	Interval     time.Duration
}

// Poller runs acquisition cycles on a fixed interval.
type Poller struct {
	catalog    Catalog
	downloader Downloader
	merger     Merger
	publisher  Publisher // nil when ingest notifications are disabled
	settings   Settings
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
}

// New creates a Poller. publisher may be nil.
func New(cat Catalog, dl Downloader, m Merger, publisher Publisher, clock clockwork.Clock,
	logger *slog.Logger, metrics *observability.Metrics, settings Settings) *Poller {
	return &Poller{
		catalog:    cat,
		downloader: dl,
		merger:     m,
		publisher:  publisher,
		settings:   settings,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once at least one cycle has completed, or an
// error describing why the service is not yet ready.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no acquisition cycle has completed yet")
	}
	return nil
}

// Cycle runs one list-download-merge pass. Single-threaded and
// sequential: a cycle interrupted by cancellation leaves raw storage and
// the canonical store consistent, just possibly behind.
func (p *Poller) Cycle(ctx context.Context) error {
	start := time.Now()

	startAfter := ""
	cursor, err := store.ResolveCursor(p.settings.RawDir)
	switch {
	case err == nil:
		startAfter = p.settings.Naming.Filename(cursor)
		p.logger.Debug("resolved local cursor", "cursor", cursor, "start_after", startAfter)
	case errors.Is(err, store.ErrEmptyStore):
		// First run: nothing local yet, list from the beginning.
		p.logger.Warn("raw storage is empty, listing from the start of the dataset")
	default:
		return fmt.Errorf("resolve cursor: %w", err)
	}

	files, err := p.catalog.ListFiles(ctx, startAfter, p.settings.MaxKeys)
	if err != nil {
		return fmt.Errorf("list remote files: %w", err)
	}
	p.logger.Info("remote files available after cursor", "count", len(files))

	downloaded, stoppedEarly, err := p.downloader.Download(ctx, files, p.settings.MaxDownloads, p.settings.RawDir)
	if err != nil {
		return fmt.Errorf("download batch: %w", err)
	}
	if stoppedEarly {
		p.logger.Warn("download batch stopped early on server quota",
			"downloaded", len(downloaded))
	}

	// Merging is idempotent, but rewriting an unchanged store every cycle
	// is pointless; only merge when there is something new or no store yet.
	if len(downloaded) > 0 || !fileExists(p.settings.StorePath) {
		if err := p.merger.Merge(ctx, p.settings.RawDir, p.settings.StorePath); err != nil {
			return err
		}
	}

	if p.publisher != nil && len(downloaded) > 0 {
		if err := p.publisher.PublishIngested(ctx, downloaded); err != nil {
			// Notifications are best-effort; the store is already updated.
			p.logger.Warn("publish ingest notifications failed", "error", err)
		} else {
			p.metrics.FilesPublished.Add(float64(len(downloaded)))
		}
	}

	p.ready.Store(true)
	p.metrics.CyclesTotal.Inc()
	p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("cycle complete", "downloaded", len(downloaded), "duration", time.Since(start))
	return nil
}

// Run executes cycles on the configured interval until the context is
// cancelled. A failed cycle is logged and retried on the next tick; the
// re-listing after the cursor is the only retry mechanism.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started",
		"interval", p.settings.Interval,
		"max_downloads", p.settings.MaxDownloads)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for {
		if err := p.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("poller stopping", "reason", ctx.Err())
				return nil
			}
			p.metrics.CycleErrors.Inc()
			p.logger.Error("cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "reason", ctx.Err())
			return nil
		case <-p.clock.After(p.settings.Interval):
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
