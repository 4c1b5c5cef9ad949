package output

import "time"

// MetricsCollector defines the secondary port for ingestion metrics.
type MetricsCollector interface {
	// AddDirectoriesScanned counts candidate directories found by the scan.
	AddDirectoriesScanned(n int)

	// IncDirectoriesAdmitted counts directories passing the admission filter.
	IncDirectoriesAdmitted()

	// IncDirectoriesExcluded counts directories rejected by the admission
	// filter.
	IncDirectoriesExcluded()

	// IncArchivesExtracted counts archive extractions.
	IncArchivesExtracted(success bool)

	// IncLayersImported counts per-layer imports.
	IncLayersImported(success bool)

	// AddFeaturesImported counts imported features.
	AddFeaturesImported(n int64)

	// IncTokensMinted counts newly minted version tokens per geometry kind.
	IncTokensMinted(kind string)

	// SetDatasetsProcessed sets the processed-dataset gauge for this run.
	SetDatasetsProcessed(n int)

	// ObserveImportDuration records one layer import duration.
	ObserveImportDuration(d time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// AddDirectoriesScanned implements MetricsCollector.
func (n *NoOpMetrics) AddDirectoriesScanned(_ int) {}

// IncDirectoriesAdmitted implements MetricsCollector.
func (n *NoOpMetrics) IncDirectoriesAdmitted() {}

// IncDirectoriesExcluded implements MetricsCollector.
func (n *NoOpMetrics) IncDirectoriesExcluded() {}

// IncArchivesExtracted implements MetricsCollector.
func (n *NoOpMetrics) IncArchivesExtracted(_ bool) {}

// IncLayersImported implements MetricsCollector.
func (n *NoOpMetrics) IncLayersImported(_ bool) {}

// AddFeaturesImported implements MetricsCollector.
func (n *NoOpMetrics) AddFeaturesImported(_ int64) {}

// IncTokensMinted implements MetricsCollector.
func (n *NoOpMetrics) IncTokensMinted(_ string) {}

// SetDatasetsProcessed implements MetricsCollector.
func (n *NoOpMetrics) SetDatasetsProcessed(_ int) {}

// ObserveImportDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveImportDuration(_ time.Duration) {}
