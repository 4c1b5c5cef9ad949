package domain

import (
	"sort"
	"strings"
)

// systemColumns are reader-side fields that carry no schema information:
// object ids, geometry carriers and derived measures. They never participate
// in signatures or table DDL.
var systemColumns = map[string]struct{}{
	"objectid":     {},
	"oid":          {},
	"fid":          {},
	"shape":        {},
	"geometry":     {},
	"geom":         {},
	"shape_length": {},
	"shape_area":   {},
	"globalid":     {},
}

// auditColumns are columns added by the ingestion itself. They are excluded
// when reading a table's column set back during registry reconciliation.
var auditColumns = map[string]struct{}{
	"id":                 {},
	"source_directory":   {},
	"fgdb_name":          {},
	"ingestion_id":       {},
	"ingestion_batch_id": {},
	"ingestion_datetime": {},
	"creation_user":      {},
	"region":             {},
}

// IsSystemColumn reports whether name is a well-known system/geometry field.
func IsSystemColumn(name string) bool {
	_, ok := systemColumns[strings.ToLower(name)]
	return ok
}

// IsAuditColumn reports whether name is an ingestion-added audit field.
func IsAuditColumn(name string) bool {
	_, ok := auditColumns[strings.ToLower(name)]
	return ok
}

// ColumnSignature is the order-independent, case-normalized set of
// non-system field names of one layer. It is a pure lookup key: two
// signatures are the same schema iff their keys are equal.
type ColumnSignature struct {
	columns []string
}

// NewColumnSignature builds a signature from raw field names. Names are
// lower-cased, system fields dropped, duplicates collapsed, order discarded.
func NewColumnSignature(names []string) ColumnSignature {
	seen := make(map[string]struct{}, len(names))
	cols := make([]string, 0, len(names))
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" || IsSystemColumn(n) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		cols = append(cols, n)
	}
	sort.Strings(cols)
	return ColumnSignature{columns: cols}
}

// SignatureFromFields builds a signature from layer field definitions.
func SignatureFromFields(fields []FieldDef) ColumnSignature {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return NewColumnSignature(names)
}

// SignatureFromTableColumns builds a signature from persisted table columns,
// excluding both system and audit fields. Used during reconciliation.
func SignatureFromTableColumns(columns []string) ColumnSignature {
	kept := make([]string, 0, len(columns))
	for _, c := range columns {
		if IsAuditColumn(c) {
			continue
		}
		kept = append(kept, c)
	}
	return NewColumnSignature(kept)
}

// Key returns the canonical value-equality key.
func (s ColumnSignature) Key() string {
	return strings.Join(s.columns, ",")
}

// Columns returns the sorted, normalized column names.
func (s ColumnSignature) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Empty reports whether no non-system columns remain.
func (s ColumnSignature) Empty() bool {
	return len(s.columns) == 0
}

// Equal reports value equality with another signature.
func (s ColumnSignature) Equal(other ColumnSignature) bool {
	return s.Key() == other.Key()
}
