// Package geopackage reads feature layers out of GeoPackage containers and,
// via ogr2ogr conversion, out of file geodatabases.
package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jobrunner/strata/internal/domain"
	"github.com/jobrunner/strata/internal/ports/output"
)

// Reader implements the DatasetReader port over SQLite. GeoPackages are
// opened directly; .gdb containers are first converted to a staged
// GeoPackage sitting next to them.
type Reader struct {
	mu        sync.Mutex
	conns     map[string]*sql.DB
	converter *Converter
	logger    *slog.Logger
}

// NewReader creates a dataset reader.
func NewReader(converter *Converter, logger *slog.Logger) *Reader {
	return &Reader{
		conns:     make(map[string]*sql.DB),
		converter: converter,
		logger:    logger,
	}
}

// ListLayers returns the names of all feature layers in a container.
func (r *Reader) ListLayers(ctx context.Context, containerPath string) ([]string, error) {
	db, err := r.open(ctx, containerPath)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT c.table_name
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON c.table_name = g.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("reading layer catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning layer name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DescribeLayer returns a layer's fields, geometry type, SRID and count.
func (r *Reader) DescribeLayer(ctx context.Context, containerPath, layer string) (*domain.LayerSchema, error) {
	db, err := r.open(ctx, containerPath)
	if err != nil {
		return nil, err
	}

	geomColumn, geomType, srid, err := r.geometryInfo(ctx, db, layer)
	if err != nil {
		return nil, err
	}

	normalized := domain.NormalizeGeometryType(geomType)
	kind, err := domain.KindForGeometryType(normalized)
	if err != nil {
		// Unknown kinds are the caller's skip decision, not a read failure.
		kind = ""
	}

	fields, err := r.tableFields(ctx, db, layer, geomColumn)
	if err != nil {
		return nil, err
	}

	var count int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, layer) //#nosec G201 -- table name from the container's own catalog
	if err := db.QueryRowContext(ctx, countQuery).Scan(&count); err != nil {
		return nil, fmt.Errorf("counting features of %s: %w", layer, err)
	}

	return &domain.LayerSchema{
		Name:         layer,
		Fields:       fields,
		GeometryType: normalized,
		GeometryKind: kind,
		SRID:         srid,
		FeatureCount: count,
	}, nil
}

// ReadFeatures opens a cursor over a layer's features.
func (r *Reader) ReadFeatures(ctx context.Context, containerPath, layer string) (output.FeatureCursor, error) {
	db, err := r.open(ctx, containerPath)
	if err != nil {
		return nil, err
	}

	geomColumn, _, _, err := r.geometryInfo(ctx, db, layer)
	if err != nil {
		return nil, err
	}
	fields, err := r.tableFields(ctx, db, layer, geomColumn)
	if err != nil {
		return nil, err
	}

	columns := make([]string, 0, len(fields))
	quoted := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		if domain.IsSystemColumn(f.Name) {
			continue
		}
		columns = append(columns, strings.ToLower(f.Name))
		quoted = append(quoted, fmt.Sprintf("%q", f.Name))
	}
	quoted = append(quoted, fmt.Sprintf("%q", geomColumn))

	query := fmt.Sprintf(`SELECT %s FROM %q`, strings.Join(quoted, ", "), layer) //#nosec G201 -- identifiers from the container's own catalog
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading features of %s: %w", layer, err)
	}

	return &featureCursor{rows: rows, columns: columns}, nil
}

// Close releases all open container handles.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for path, db := range r.conns {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.conns, path)
	}
	return firstErr
}

// open returns a cached connection for the container, converting .gdb
// containers to a staged GeoPackage first.
func (r *Reader) open(ctx context.Context, containerPath string) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.conns[containerPath]; ok {
		return db, nil
	}

	path := containerPath
	if strings.EqualFold(filepath.Ext(containerPath), ".gdb") {
		if r.converter == nil {
			return nil, fmt.Errorf("container %s: %w", containerPath, domain.ErrUnsupportedContainer)
		}
		converted, err := r.converter.Convert(ctx, containerPath, filepath.Dir(containerPath))
		if err != nil {
			return nil, err
		}
		path = converted
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&cache=shared", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening container %s: %w", containerPath, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("container %s: %w", containerPath, domain.ErrContainerNotFound)
	}

	r.conns[containerPath] = db
	return db, nil
}

// geometryInfo reads a layer's geometry column, type and SRID from the
// GeoPackage catalog.
func (r *Reader) geometryInfo(ctx context.Context, db *sql.DB, layer string) (column, geomType string, srid int, err error) {
	err = db.QueryRowContext(ctx, `
		SELECT column_name, geometry_type_name, srs_id
		FROM gpkg_geometry_columns
		WHERE table_name = ?
	`, layer).Scan(&column, &geomType, &srid)
	if err == sql.ErrNoRows {
		return "", "", 0, fmt.Errorf("layer %s: %w", layer, domain.ErrLayerNotFound)
	}
	if err != nil {
		return "", "", 0, fmt.Errorf("reading geometry info of %s: %w", layer, err)
	}
	return column, geomType, srid, nil
}

// tableFields lists a layer's attribute fields, geometry column excluded.
func (r *Reader) tableFields(ctx context.Context, db *sql.DB, layer, geomColumn string) ([]domain.FieldDef, error) {
	query := fmt.Sprintf(`PRAGMA table_info(%q)`, layer) //#nosec G201 -- table name from the container's own catalog
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading fields of %s: %w", layer, err)
	}
	defer func() { _ = rows.Close() }()

	var fields []domain.FieldDef
	for rows.Next() {
		var (
			cid       int
			name      string
			declType  string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scanning field of %s: %w", layer, err)
		}
		if strings.EqualFold(name, geomColumn) {
			continue
		}
		fields = append(fields, domain.FieldDef{Name: name, Type: declType})
	}
	return fields, rows.Err()
}

// featureCursor streams one layer's rows, translating the trailing
// GeoPackage geometry blob into WKB.
type featureCursor struct {
	rows    *sql.Rows
	columns []string
	err     error
}

func (c *featureCursor) Columns() []string { return c.columns }

func (c *featureCursor) Next() bool {
	return c.rows.Next()
}

func (c *featureCursor) Row() ([]any, []byte, error) {
	values := make([]any, len(c.columns)+1)
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = err
		return nil, nil, err
	}

	var wkb []byte
	if blob, ok := values[len(values)-1].([]byte); ok && len(blob) > 0 {
		converted, err := gpkgToWKB(blob)
		if err != nil {
			c.err = err
			return nil, nil, err
		}
		wkb = converted
	}
	return values[:len(values)-1], wkb, nil
}

func (c *featureCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *featureCursor) Close() error {
	return c.rows.Close()
}
