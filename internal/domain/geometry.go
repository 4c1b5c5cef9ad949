package domain

import (
	"fmt"
	"strings"
)

// GeometryKind is the coarse geometry bucket used for table routing. Each
// kind owns an independent version token sequence.
type GeometryKind string

// Geometry kinds.
const (
	GeometryPoly  GeometryKind = "poly"
	GeometryLine  GeometryKind = "line"
	GeometryPoint GeometryKind = "point"
)

// GeometryKinds lists all kinds in a stable order.
var GeometryKinds = []GeometryKind{GeometryPoly, GeometryLine, GeometryPoint}

// Valid returns true for a known geometry kind.
func (k GeometryKind) Valid() bool {
	switch k {
	case GeometryPoly, GeometryLine, GeometryPoint:
		return true
	}
	return false
}

// ParseGeometryKind parses the serialized kind as it appears in table names.
func ParseGeometryKind(s string) (GeometryKind, error) {
	k := GeometryKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("geometry kind %q: %w", s, ErrInvalidInput)
	}
	return k, nil
}

// NormalizeGeometryType reduces a reader-reported geometry type to its base
// form: dimensional decorations (3D, Z, M, ZM) are stripped and the name is
// upper-cased, e.g. "Polygon Z" -> "POLYGON".
func NormalizeGeometryType(geomType string) string {
	s := strings.ToUpper(strings.TrimSpace(geomType))
	s = strings.ReplaceAll(s, "3D ", "")
	for _, suffix := range []string{"ZM", "Z", "M"} {
		if base, ok := strings.CutSuffix(s, suffix); ok {
			base = strings.TrimSpace(base)
			if isBaseGeometryType(base) {
				return base
			}
		}
	}
	return s
}

func isBaseGeometryType(s string) bool {
	switch s {
	case "POINT", "MULTIPOINT", "LINESTRING", "MULTILINESTRING", "POLYLINE",
		"POLYGON", "MULTIPOLYGON", "MULTIPATCH", "GEOMETRYCOLLECTION":
		return true
	}
	return false
}

// KindForGeometryType maps a normalized geometry type to its routing kind.
// Polygonal and collection types share the poly bucket.
func KindForGeometryType(geomType string) (GeometryKind, error) {
	switch NormalizeGeometryType(geomType) {
	case "POINT", "MULTIPOINT":
		return GeometryPoint, nil
	case "LINESTRING", "MULTILINESTRING", "POLYLINE":
		return GeometryLine, nil
	case "POLYGON", "MULTIPOLYGON", "MULTIPATCH", "GEOMETRYCOLLECTION":
		return GeometryPoly, nil
	}
	return "", fmt.Errorf("geometry type %q: %w", geomType, ErrUnsupported)
}
