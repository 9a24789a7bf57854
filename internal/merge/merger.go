// Package merge folds raw per-timestamp files, together with any existing
// canonical store, into one updated canonical store.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/knmi-obs-sync/internal/dataset"
	"github.com/couchcryptid/knmi-obs-sync/internal/observability"
	"github.com/couchcryptid/knmi-obs-sync/internal/store"
)

// DefaultBatchSize is how many raw files are folded together before the
// intermediate result is combined into the running total. It bounds peak
// memory to one batch's worth of raw data rather than the whole history.
const DefaultBatchSize = 500

// CanonicalFileName is the fixed name of the canonical store inside the
// merged-data directory.
const CanonicalFileName = "merged_dataset.json.gz"

// DecodeFunc reads one raw file into a dataset.
type DecodeFunc func(path string) (*dataset.Dataset, error)

// Merger combines raw files into the canonical store.
type Merger struct {
	batchSize int
	decode    DecodeFunc
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Merger for NetCDF raw files with the default batch size.
func New(logger *slog.Logger, metrics *observability.Metrics) *Merger {
	return NewWithDecoder(dataset.DecodeNetCDF, DefaultBatchSize, logger, metrics)
}

// NewWithDecoder creates a Merger with a custom raw-file decoder and batch
// size.
func NewWithDecoder(decode DecodeFunc, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *Merger {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Merger{
		batchSize: batchSize,
		decode:    decode,
		logger:    logger,
		metrics:   metrics,
	}
}

// Merge folds every raw file in rawDir into the canonical store at
// storePath, creating it if absent and replacing it atomically otherwise.
//
// The pass is idempotent and resumable: file contents for a given
// (station, time) are immutable once published, so re-merging files that
// are already in the store changes nothing. Every raw file is folded
// exactly once per pass, including the remainder group when the file count
// is not a multiple of the batch size.
//
// Any read or decode failure aborts the pass before the store is touched,
// so a corrupt raw file can never produce a partially updated store.
func (m *Merger) Merge(ctx context.Context, rawDir, storePath string) error {
	start := time.Now()

	files, err := store.ListRawFiles(rawDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		m.logger.Info("no raw files to merge", "raw_dir", rawDir)
		return nil
	}

	combined := dataset.New()
	batch := dataset.New()
	inBatch := 0
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := m.decode(filepath.Join(rawDir, name))
		if err != nil {
			return fmt.Errorf("merge aborted: %w", err)
		}
		batch.Merge(d)
		inBatch++
		if inBatch == m.batchSize {
			combined.Merge(batch)
			batch = dataset.New()
			inBatch = 0
		}
	}
	if inBatch > 0 {
		combined.Merge(batch)
	}

	if _, err := os.Stat(storePath); err == nil {
		existing, err := dataset.ReadFile(storePath)
		if err != nil {
			return fmt.Errorf("merge aborted: %w", err)
		}
		existing.Merge(combined)
		combined = existing
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat store %s: %w", storePath, err)
	}

	if err := dataset.WriteFile(storePath, combined); err != nil {
		return err
	}

	m.metrics.MergeDuration.Observe(time.Since(start).Seconds())
	m.metrics.CanonicalObservations.Set(float64(combined.Observations()))
	m.logger.Info("merge pass complete",
		"raw_files", len(files),
		"observations", combined.Observations(),
		"stations", len(combined.Stations),
		"duration", time.Since(start))
	return nil
}
