package postgres

import (
	"strings"

	"github.com/jobrunner/strata/internal/domain"
)

// fieldTypes maps reader-side field type names to PostgreSQL column types.
// Both geodatabase field names (Integer, Single, GlobalID) and SQLite
// declared types (MEDIUMINT, DATETIME) appear here, since .gdb containers
// arrive through a GeoPackage conversion.
var fieldTypes = map[string]string{
	"INTEGER":      "INTEGER",
	"INT":          "INTEGER",
	"MEDIUMINT":    "INTEGER",
	"SMALLINTEGER": "SMALLINT",
	"SMALLINT":     "SMALLINT",
	"TINYINT":      "SMALLINT",
	"BIGINT":       "BIGINT",
	"INT8":         "BIGINT",
	"DOUBLE":       "DOUBLE PRECISION",
	"FLOAT":        "DOUBLE PRECISION",
	"REAL":         "DOUBLE PRECISION",
	"SINGLE":       "REAL",
	"STRING":       "TEXT",
	"TEXT":         "TEXT",
	"VARCHAR":      "TEXT",
	"DATE":         "TIMESTAMP",
	"DATETIME":     "TIMESTAMP",
	"TIMESTAMP":    "TIMESTAMP",
	"BLOB":         "BYTEA",
	"BOOLEAN":      "BOOLEAN",
	"NUMERIC":      "NUMERIC",
	"GUID":         "UUID",
	"GLOBALID":     "UUID",
	"UUID":         "UUID",
}

// pgType maps a reader-side field type to its PostgreSQL column type,
// falling back to TEXT for anything unrecognized. Parameterized declarations
// like VARCHAR(80) match on their base name.
func pgType(readerType string) string {
	key := strings.ToUpper(strings.TrimSpace(readerType))
	if i := strings.IndexByte(key, '('); i > 0 {
		key = strings.TrimSpace(key[:i])
	}
	if t, ok := fieldTypes[key]; ok {
		return t
	}
	return "TEXT"
}

// geometryColumnType picks the PostGIS geometry type for a normalized
// layer geometry type. Multi-variants are used so mixed single/multi
// sources load without promotion errors.
func geometryColumnType(normalized string) string {
	switch normalized {
	case "POINT", "MULTIPOINT":
		return "MULTIPOINT"
	case "LINESTRING", "MULTILINESTRING", "POLYLINE":
		return "MULTILINESTRING"
	case "POLYGON", "MULTIPOLYGON", "MULTIPATCH":
		return "MULTIPOLYGON"
	case "GEOMETRYCOLLECTION":
		return "GEOMETRYCOLLECTION"
	default:
		return "GEOMETRY"
	}
}

// sridOf returns the layer's SRID, falling back to the corpus default.
func sridOf(layer *domain.LayerSchema) int {
	if layer.SRID > 0 {
		return layer.SRID
	}
	return defaultSRID
}
