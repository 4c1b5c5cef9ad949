package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceDirectory is one candidate corpus directory together with its
// discovered resource bundle. Built by the scanner, read-only afterwards.
type SourceDirectory struct {
	Path        string   // Directory path under the corpus root
	ResourceDir string   // Well-known resource sub-folder, if present
	Containers  []string // Dataset containers found directly or in ResourceDir
	Archives    []string // Compressed archives found directly or in ResourceDir
}

// HasResources reports whether the directory carries anything worth staging.
func (d *SourceDirectory) HasResources() bool {
	return d.ResourceDir != "" || len(d.Containers) > 0 || len(d.Archives) > 0
}

// FieldDef describes one attribute field of a layer.
type FieldDef struct {
	Name  string // Field name as reported by the reader
	Type  string // Reader-side type name (Integer, String, TEXT, ...)
	Width int    // Declared width, 0 if none
}

// LayerSchema describes one feature collection inside a dataset container.
type LayerSchema struct {
	Name         string       // Layer name
	Fields       []FieldDef   // Attribute fields including system fields
	GeometryType string       // Normalized geometry type (POLYGON, POINT, ...)
	GeometryKind GeometryKind // Routing kind derived from GeometryType
	SRID         int          // Spatial reference id, 0 if unknown
	FeatureCount int64        // Number of features
}

// Signature returns the layer's column signature.
func (l *LayerSchema) Signature() ColumnSignature {
	return SignatureFromFields(l.Fields)
}

// TableName builds the deterministic versioned table name
// "<prefix>_<kind>_<token>".
func TableName(prefix string, kind GeometryKind, token VersionToken) string {
	return fmt.Sprintf("%s_%s_%s", prefix, kind, token)
}

// SummaryTableName returns the name of the per-dataset header table.
func SummaryTableName(prefix string) string {
	return prefix + "_header"
}

// ParseTableName recovers geometry kind and version token from a versioned
// table name produced by TableName. Used for restart-time reconciliation.
func ParseTableName(prefix, name string) (GeometryKind, VersionToken, error) {
	rest, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return "", 0, fmt.Errorf("table %q: not under prefix %q: %w", name, prefix, ErrInvalidInput)
	}
	kindPart, tokenPart, ok := strings.Cut(rest, "_")
	if !ok {
		return "", 0, fmt.Errorf("table %q: %w", name, ErrInvalidInput)
	}
	kind, err := ParseGeometryKind(kindPart)
	if err != nil {
		return "", 0, fmt.Errorf("table %q: %w", name, err)
	}
	token, err := ParseVersionToken(tokenPart)
	if err != nil {
		return "", 0, fmt.Errorf("table %q: %w", name, err)
	}
	return kind, token, nil
}

// LayerStats aggregates import results for one geometry kind of a dataset.
type LayerStats struct {
	Version      VersionToken
	FeatureCount int64
}

// SummaryRow is the per-dataset header record, upserted by ingestion
// identity after all of the dataset's layers are processed.
type SummaryRow struct {
	IngestionID     int64
	DatasetName     string // Container file/directory name
	SourceDirectory string
	FromCompressed  bool
	Region          string
	CreatedBy       string
	Stats           map[GeometryKind]LayerStats
}

// ImportMeta carries the audit fields stamped on every imported feature row.
type ImportMeta struct {
	IngestionID     int64
	BatchID         int64
	SourceDirectory string
	DatasetName     string
	CreatedBy       string
	Region          string
}

// SkippedDirectory records a directory excluded by the admission filter
// together with its (possibly partial) size estimate.
type SkippedDirectory struct {
	Path        string  `yaml:"path"`
	EstimatedGB float64 `yaml:"estimated_gb"`
}

// RunReport summarizes one ingestion run.
type RunReport struct {
	Started            time.Time
	Finished           time.Time
	DirectoriesScanned int
	DirectoriesSkipped int // Ledger/exclusion-list skips before admission
	Admitted           int
	Excluded           []SkippedDirectory
	DatasetsProcessed  int
	DatasetsFailed     int
	LayersImported     int
	FeaturesImported   int64
	TokensMinted       int
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Phase labels for progress reporting.
const (
	PhaseIdle       = "idle"
	PhaseConnecting = "connecting"
	PhaseScanning   = "scanning"
	PhaseFiltering  = "filtering"
	PhaseIngesting  = "ingesting"
	PhaseCleanup    = "cleanup"
	PhaseDone       = "done"
)

// Progress is a point-in-time snapshot of a running ingestion.
type Progress struct {
	Phase              string `json:"phase"`
	DirectoriesTotal   int    `json:"directories_total"`
	DirectoriesDone    int    `json:"directories_done"`
	CurrentDirectory   string `json:"current_directory,omitempty"`
	DatasetsProcessed  int    `json:"datasets_processed"`
	LayersImported     int    `json:"layers_imported"`
	FeaturesImported   int64  `json:"features_imported"`
	TokensMinted       int    `json:"tokens_minted"`
	DirectoriesSkipped int    `json:"directories_skipped"`
}
