// Command sync is the unattended poller: every interval it lists the KNMI
// Open Data catalog after the local cursor, downloads new observation
// files under the request quota, and merges them into the canonical store.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/knmi-obs-sync/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/knmi-obs-sync/internal/adapter/kafka"
	"github.com/couchcryptid/knmi-obs-sync/internal/catalog"
	"github.com/couchcryptid/knmi-obs-sync/internal/config"
	"github.com/couchcryptid/knmi-obs-sync/internal/download"
	"github.com/couchcryptid/knmi-obs-sync/internal/merge"
	"github.com/couchcryptid/knmi-obs-sync/internal/observability"
	"github.com/couchcryptid/knmi-obs-sync/internal/poller"
	"github.com/couchcryptid/knmi-obs-sync/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := os.MkdirAll(cfg.RawDir, 0o755); err != nil {
		logger.Error("create raw folder", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.MergedDir, 0o755); err != nil {
		logger.Error("create merged folder", "error", err)
		os.Exit(1)
	}

	client := catalog.NewClient(cfg.APIKey, cfg.DatasetName, cfg.DatasetVersion, cfg.RequestTimeout, logger)
	downloader := download.New(client, cfg.RequestTimeout, logger, metrics)
	merger := merge.New(logger, metrics)

	// Ingest notifications are feature-flagged via KAFKA_BROKERS / KAFKA_ENABLED.
	var publisher poller.Publisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, logger)
		publisher = kafkaPublisher
		logger.Info("kafka ingest notifications enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka ingest notifications disabled")
	}

	p := poller.New(client, downloader, merger, publisher, clockwork.NewRealClock(), logger, metrics, poller.Settings{
		Naming:       store.Naming{Prefix: cfg.FilenamePrefix, Ext: cfg.FilenameExt},
		RawDir:       cfg.RawDir,
		StorePath:    filepath.Join(cfg.MergedDir, merge.CanonicalFileName),
		MaxKeys:      cfg.MaxKeys,
		MaxDownloads: cfg.MaxDownloads,
		Interval:     cfg.PollInterval,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the poll loop.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("poller error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
