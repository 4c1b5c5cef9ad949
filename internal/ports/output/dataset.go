package output

import (
	"context"

	"github.com/jobrunner/strata/internal/domain"
)

// DatasetReader defines the secondary port for reading spatial dataset
// containers (GeoPackages, file geodatabases).
type DatasetReader interface {
	// ListLayers returns the names of all feature layers in a container.
	ListLayers(ctx context.Context, containerPath string) ([]string, error)

	// DescribeLayer returns a layer's fields, geometry type and count.
	DescribeLayer(ctx context.Context, containerPath, layer string) (*domain.LayerSchema, error)

	// ReadFeatures opens a cursor over a layer's features. The caller owns
	// the cursor and must close it.
	ReadFeatures(ctx context.Context, containerPath, layer string) (FeatureCursor, error)

	// Close releases any open container handles.
	Close() error
}

// FeatureCursor iterates a layer's features. Columns are the normalized
// attribute column names; geometry travels separately as WKB.
type FeatureCursor interface {
	// Columns returns the attribute column names, lower-cased, system and
	// geometry fields excluded.
	Columns() []string

	// Next advances to the next feature.
	Next() bool

	// Row returns the current feature's attribute values (aligned with
	// Columns) and its geometry as WKB, nil when the feature has none.
	Row() ([]any, []byte, error)

	// Err returns the first iteration error, if any.
	Err() error

	// Close releases the cursor.
	Close() error
}

// ArchiveExtractor defines the secondary port for expanding compressed
// archives. Extract is idempotent: an already-expanded archive is success.
type ArchiveExtractor interface {
	// Supported reports whether the archive's format is handled.
	Supported(path string) bool

	// Extract expands the archive into destDir.
	Extract(ctx context.Context, path, destDir string) error
}
