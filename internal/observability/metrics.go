package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// acquisition-and-merge pipeline.
type Metrics struct {
	CyclesTotal     prometheus.Counter
	CycleErrors     prometheus.Counter
	PipelineRunning prometheus.Gauge

	FilesDownloaded prometheus.Counter
	DownloadErrors  prometheus.Counter
	QuotaExhausted  prometheus.Counter

	FilesPublished prometheus.Counter

	MergeDuration         prometheus.Histogram
	CycleDuration         prometheus.Histogram
	CanonicalObservations prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_sync",
			Name:      "cycles_total",
			Help:      "Total completed acquisition cycles.",
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_sync",
			Name:      "cycle_errors_total",
			Help:      "Total acquisition cycles that failed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "knmi_sync",
			Name:      "pipeline_running",
			Help:      "1 when the poll loop is active, 0 when shut down.",
		}),
		FilesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_sync",
			Name:      "files_downloaded_total",
			Help:      "Total raw files downloaded to local storage.",
		}),
		DownloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_sync",
			Name:      "download_errors_total",
			Help:      "Total per-file download failures that were skipped.",
		}),
		QuotaExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_sync",
			Name:      "quota_exhausted_total",
			Help:      "Times the server signalled request-quota exhaustion.",
		}),
		FilesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knmi_sync",
			Name:      "files_published_total",
			Help:      "Total ingest notifications published to Kafka.",
		}),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "knmi_sync",
			Name:      "merge_duration_seconds",
			Help:      "Duration of one complete merge pass.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "knmi_sync",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one complete list-download-merge cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		CanonicalObservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "knmi_sync",
			Name:      "canonical_observations",
			Help:      "Distinct (station, time) rows in the canonical store after the last merge.",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleErrors,
		m.PipelineRunning,
		m.FilesDownloaded,
		m.DownloadErrors,
		m.QuotaExhausted,
		m.FilesPublished,
		m.MergeDuration,
		m.CycleDuration,
		m.CanonicalObservations,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		CyclesTotal:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: "knmi_sync", Name: "cycles_total"}),
		CycleErrors:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: "knmi_sync", Name: "cycle_errors_total"}),
		PipelineRunning:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "knmi_sync", Name: "pipeline_running"}),
		FilesDownloaded:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "knmi_sync", Name: "files_downloaded_total"}),
		DownloadErrors:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "knmi_sync", Name: "download_errors_total"}),
		QuotaExhausted:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "knmi_sync", Name: "quota_exhausted_total"}),
		FilesPublished:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "knmi_sync", Name: "files_published_total"}),
		MergeDuration:         prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "knmi_sync", Name: "merge_duration_seconds"}),
		CycleDuration:         prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "knmi_sync", Name: "cycle_duration_seconds"}),
		CanonicalObservations: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "knmi_sync", Name: "canonical_observations"}),
	}
}
