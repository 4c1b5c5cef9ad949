// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	directoriesScanned  prometheus.Counter
	directoriesAdmitted prometheus.Counter
	directoriesExcluded prometheus.Counter
	archivesExtracted   *prometheus.CounterVec
	layersImported      *prometheus.CounterVec
	featuresImported    prometheus.Counter
	tokensMinted        *prometheus.CounterVec
	datasetsProcessed   prometheus.Gauge
	importDuration      prometheus.Histogram
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "strata"
	}

	return &Collector{
		directoriesScanned: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "directories_scanned_total",
				Help:      "Total number of candidate directories found by corpus scans",
			},
		),

		directoriesAdmitted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "directories_admitted_total",
				Help:      "Total number of directories passing the admission filter",
			},
		),

		directoriesExcluded: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "directories_excluded_total",
				Help:      "Total number of directories rejected by the admission filter",
			},
		),

		archivesExtracted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archives_extracted_total",
				Help:      "Total number of archive extractions",
			},
			[]string{"status"},
		),

		layersImported: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "layers_imported_total",
				Help:      "Total number of layer imports",
			},
			[]string{"status"},
		),

		featuresImported: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "features_imported_total",
				Help:      "Total number of imported features",
			},
		),

		tokensMinted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "version_tokens_minted_total",
				Help:      "Total number of newly minted schema version tokens",
			},
			[]string{"kind"},
		),

		datasetsProcessed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "datasets_processed",
				Help:      "Number of datasets processed by the last run",
			},
		),

		importDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "layer_import_duration_seconds",
				Help:      "Layer import duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
	}
}

// AddDirectoriesScanned counts candidate directories found by the scan.
func (c *Collector) AddDirectoriesScanned(n int) {
	c.directoriesScanned.Add(float64(n))
}

// IncDirectoriesAdmitted counts directories passing the admission filter.
func (c *Collector) IncDirectoriesAdmitted() {
	c.directoriesAdmitted.Inc()
}

// IncDirectoriesExcluded counts directories rejected by the admission filter.
func (c *Collector) IncDirectoriesExcluded() {
	c.directoriesExcluded.Inc()
}

// IncArchivesExtracted counts archive extractions.
func (c *Collector) IncArchivesExtracted(success bool) {
	c.archivesExtracted.WithLabelValues(statusLabel(success)).Inc()
}

// IncLayersImported counts per-layer imports.
func (c *Collector) IncLayersImported(success bool) {
	c.layersImported.WithLabelValues(statusLabel(success)).Inc()
}

// AddFeaturesImported counts imported features.
func (c *Collector) AddFeaturesImported(n int64) {
	c.featuresImported.Add(float64(n))
}

// IncTokensMinted counts newly minted version tokens per geometry kind.
func (c *Collector) IncTokensMinted(kind string) {
	c.tokensMinted.WithLabelValues(kind).Inc()
}

// SetDatasetsProcessed sets the processed-dataset gauge for this run.
func (c *Collector) SetDatasetsProcessed(n int) {
	c.datasetsProcessed.Set(float64(n))
}

// ObserveImportDuration records one layer import duration.
func (c *Collector) ObserveImportDuration(d time.Duration) {
	c.importDuration.Observe(d.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
