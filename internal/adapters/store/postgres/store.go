// Package postgres implements the feature store on PostgreSQL/PostGIS.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobrunner/strata/internal/domain"
	"github.com/jobrunner/strata/internal/ports/output"
)

// defaultSRID is assumed when a layer does not declare its own spatial
// reference.
const defaultSRID = 2039

// importBatchSize bounds the number of inserts queued per round trip.
const importBatchSize = 500

// Store implements the Store port on a pgx connection pool. The summary
// table and batch-id sequence are created on construction, versioned tables
// on demand.
type Store struct {
	pool   *pgxpool.Pool
	prefix string
	logger *slog.Logger
}

// NewStore connects to the database and prepares the summary table and
// batch sequence.
func NewStore(ctx context.Context, dsn, prefix string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing store DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}

	s := &Store{pool: pool, prefix: prefix, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Ping verifies the store connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ensureSchema creates the summary table and the batch-id sequence.
func (s *Store) ensureSchema(ctx context.Context) error {
	summary := domain.SummaryTableName(s.prefix)
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			ingestion_id BIGINT PRIMARY KEY,
			fgdb_name TEXT NOT NULL,
			source_directory TEXT NOT NULL,
			from_compressed BOOLEAN NOT NULL DEFAULT FALSE,
			region TEXT,
			creation_user TEXT,
			poly_version TEXT,
			poly_count BIGINT,
			line_version TEXT,
			line_count BIGINT,
			point_version TEXT,
			point_count BIGINT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, quoteIdent(summary)) //#nosec G201 -- identifier built from the configured prefix
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating summary table %s: %w", summary, err)
	}

	seq := fmt.Sprintf(`CREATE SEQUENCE IF NOT EXISTS %s`, quoteIdent(s.batchSequence())) //#nosec G201
	if _, err := s.pool.Exec(ctx, seq); err != nil {
		return fmt.Errorf("creating batch sequence: %w", err)
	}
	return nil
}

func (s *Store) batchSequence() string {
	return s.prefix + "_batch_seq"
}

// TableExists reports whether a public table exists.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return exists, nil
}

// CreateVersionedTable creates a versioned feature table from the layer's
// attribute fields plus the ingestion audit columns and a GIST-indexed
// geometry column. Safe to call for an existing table.
func (s *Store) CreateVersionedTable(ctx context.Context, name string, layer *domain.LayerSchema) error {
	var cols []string
	cols = append(cols, "id BIGSERIAL PRIMARY KEY")
	for _, f := range layer.Fields {
		if domain.IsSystemColumn(f.Name) {
			continue
		}
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(strings.ToLower(f.Name)), pgType(f.Type)))
	}
	cols = append(cols,
		"source_directory TEXT",
		"fgdb_name TEXT",
		"ingestion_id BIGINT",
		"ingestion_batch_id BIGINT",
		"ingestion_datetime TIMESTAMPTZ NOT NULL DEFAULT now()",
		"creation_user TEXT",
		"region TEXT",
		fmt.Sprintf("geom GEOMETRY(%s, %d)", geometryColumnType(layer.GeometryType), sridOf(layer)),
	)

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quoteIdent(name), strings.Join(cols, ",\n\t")) //#nosec G201 -- identifiers derived from validated table names
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}

	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
		quoteIdent(name+"_geom_idx"), quoteIdent(name)) //#nosec G201
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("indexing table %s: %w", name, err)
	}

	s.logger.Debug("versioned table ready", "table", name)
	return nil
}

// ListVersionedTables returns the names of public tables under the prefix.
func (s *Store) ListVersionedTables(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name LIKE $1
		ORDER BY table_name`, prefix+"\\_%")
	if err != nil {
		return nil, fmt.Errorf("listing tables under %s: %w", prefix, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableColumns returns a table's columns in ordinal order.
func (s *Store) TableColumns(ctx context.Context, name string) ([]output.Column, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, name)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", name, err)
	}
	defer rows.Close()

	var cols []output.Column
	for rows.Next() {
		var c output.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", name, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: %w", name, domain.ErrNotFound)
	}
	return cols, nil
}

// ImportFeatures bulk-imports the cursor's features, stamping each row with
// the import audit fields. Inserts are queued in batches and sent per
// batch; a failing batch aborts the import with the count so far.
func (s *Store) ImportFeatures(ctx context.Context, table string, layer *domain.LayerSchema, cursor output.FeatureCursor, meta domain.ImportMeta) (int64, error) {
	columns := cursor.Columns()
	insert := s.buildInsert(table, columns, sridOf(layer))

	audit := []any{
		meta.SourceDirectory,
		meta.DatasetName,
		meta.IngestionID,
		meta.BatchID,
		meta.CreatedBy,
		meta.Region,
	}

	var (
		total int64
		batch = &pgx.Batch{}
	)
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		results := s.pool.SendBatch(ctx, batch)
		if err := results.Close(); err != nil {
			return fmt.Errorf("writing batch to %s: %w", table, err)
		}
		total += int64(batch.Len())
		batch = &pgx.Batch{}
		return nil
	}

	for cursor.Next() {
		values, wkb, err := cursor.Row()
		if err != nil {
			return total, fmt.Errorf("reading feature: %w", err)
		}
		if len(values) != len(columns) {
			return total, fmt.Errorf("feature has %d values for %d columns: %w",
				len(values), len(columns), domain.ErrInternal)
		}

		args := make([]any, 0, len(values)+len(audit)+1)
		args = append(args, values...)
		args = append(args, audit...)
		if wkb == nil {
			args = append(args, nil)
		} else {
			args = append(args, wkb)
		}
		batch.Queue(insert, args...)

		if batch.Len() >= importBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return total, fmt.Errorf("iterating features: %w", err)
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// buildInsert assembles the parameterized insert statement for one table.
func (s *Store) buildInsert(table string, columns []string, srid int) string {
	names := make([]string, 0, len(columns)+7)
	for _, c := range columns {
		names = append(names, quoteIdent(c))
	}
	names = append(names,
		"source_directory", "fgdb_name", "ingestion_id",
		"ingestion_batch_id", "creation_user", "region", "geom",
	)

	params := make([]string, len(names))
	for i := range params {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	// The geometry parameter arrives as WKB. ST_Multi lifts single
	// geometries into the table's multi-variant column type.
	params[len(params)-1] = fmt.Sprintf("ST_Multi(ST_GeomFromWKB($%d, %d))", len(params), srid)

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(params, ", ")) //#nosec G201 -- identifiers derived from validated table names
}

// UpsertSummary inserts or updates the dataset's header row.
func (s *Store) UpsertSummary(ctx context.Context, row *domain.SummaryRow) error {
	summary := domain.SummaryTableName(s.prefix)

	version := func(kind domain.GeometryKind) any {
		if st, ok := row.Stats[kind]; ok {
			return st.Version.String()
		}
		return nil
	}
	count := func(kind domain.GeometryKind) any {
		if st, ok := row.Stats[kind]; ok {
			return st.FeatureCount
		}
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			ingestion_id, fgdb_name, source_directory, from_compressed,
			region, creation_user,
			poly_version, poly_count, line_version, line_count,
			point_version, point_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (ingestion_id) DO UPDATE SET
			fgdb_name = EXCLUDED.fgdb_name,
			source_directory = EXCLUDED.source_directory,
			from_compressed = EXCLUDED.from_compressed,
			region = EXCLUDED.region,
			creation_user = EXCLUDED.creation_user,
			poly_version = EXCLUDED.poly_version,
			poly_count = EXCLUDED.poly_count,
			line_version = EXCLUDED.line_version,
			line_count = EXCLUDED.line_count,
			point_version = EXCLUDED.point_version,
			point_count = EXCLUDED.point_count,
			updated_at = now()`, quoteIdent(summary)) //#nosec G201 -- identifier built from the configured prefix

	_, err := s.pool.Exec(ctx, query,
		row.IngestionID, row.DatasetName, row.SourceDirectory, row.FromCompressed,
		row.Region, row.CreatedBy,
		version(domain.GeometryPoly), count(domain.GeometryPoly),
		version(domain.GeometryLine), count(domain.GeometryLine),
		version(domain.GeometryPoint), count(domain.GeometryPoint),
	)
	if err != nil {
		return fmt.Errorf("upserting summary for %d: %w", row.IngestionID, err)
	}
	return nil
}

// MaxSummaryIdentity returns the highest ingestion identity, 0 when the
// summary table is empty.
func (s *Store) MaxSummaryIdentity(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COALESCE(MAX(ingestion_id), 0) FROM %s`,
		quoteIdent(domain.SummaryTableName(s.prefix))) //#nosec G201

	var max int64
	if err := s.pool.QueryRow(ctx, query).Scan(&max); err != nil {
		return 0, fmt.Errorf("reading max ingestion identity: %w", err)
	}
	return max, nil
}

// NextBatchID draws the next run batch id from the store sequence.
func (s *Store) NextBatchID(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT nextval('%s')`, s.batchSequence()) //#nosec G201

	var id int64
	if err := s.pool.QueryRow(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("drawing batch id: %w", err)
	}
	return id, nil
}

// quoteIdent double-quotes an identifier for embedding in DDL.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
