// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"

	"github.com/jobrunner/strata/internal/domain"
)

// Column is one persisted table column.
type Column struct {
	Name string
	Type string
}

// Store defines the secondary port for the backing feature store. Creation
// is idempotent: an "already exists" table is success, not failure.
type Store interface {
	// Ping verifies the store connection. A failure here is fatal for a run.
	Ping(ctx context.Context) error

	// TableExists reports whether a table exists.
	TableExists(ctx context.Context, name string) (bool, error)

	// CreateVersionedTable creates a versioned feature table from the
	// layer's field definitions plus the ingestion audit columns.
	CreateVersionedTable(ctx context.Context, name string, layer *domain.LayerSchema) error

	// ListVersionedTables returns the names of existing tables under the
	// versioned-table prefix.
	ListVersionedTables(ctx context.Context, prefix string) ([]string, error)

	// TableColumns returns a table's columns in ordinal order.
	TableColumns(ctx context.Context, name string) ([]Column, error)

	// ImportFeatures bulk-imports the cursor's features into the target
	// table, stamping each row with the import audit fields. Returns the
	// number of features written.
	ImportFeatures(ctx context.Context, table string, layer *domain.LayerSchema, cursor FeatureCursor, meta domain.ImportMeta) (int64, error)

	// UpsertSummary inserts or updates the dataset's header row, keyed by
	// ingestion identity.
	UpsertSummary(ctx context.Context, row *domain.SummaryRow) error

	// MaxSummaryIdentity returns the highest ingestion identity present in
	// the summary table, 0 when empty.
	MaxSummaryIdentity(ctx context.Context) (int64, error)

	// NextBatchID draws the next run batch id from the store sequence.
	NextBatchID(ctx context.Context) (int64, error)

	// Close releases the store connection.
	Close()
}
