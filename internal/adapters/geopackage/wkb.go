package geopackage

import (
	"fmt"

	"github.com/jobrunner/strata/internal/domain"
)

// GeoPackage geometry blobs carry a binary header in front of the WKB
// payload: 2 magic bytes "GP", a version byte, a flags byte, a 4-byte SRID
// and an optional envelope whose size the flags encode.
const gpkgHeaderSize = 8

// envelopeSizes maps the flags' envelope indicator to the envelope's byte
// length. Indicators above 4 are invalid per the GeoPackage spec.
var envelopeSizes = [5]int{0, 32, 48, 48, 64}

// gpkgToWKB strips the GeoPackage binary header and returns the raw WKB
// payload. Empty geometries yield nil.
func gpkgToWKB(blob []byte) ([]byte, error) {
	if len(blob) < gpkgHeaderSize {
		return nil, fmt.Errorf("geometry blob too short (%d bytes): %w", len(blob), domain.ErrInvalidInput)
	}
	if blob[0] != 'G' || blob[1] != 'P' {
		return nil, fmt.Errorf("geometry blob missing GP magic: %w", domain.ErrInvalidInput)
	}

	flags := blob[3]
	if flags&0x10 != 0 {
		// Empty-geometry flag.
		return nil, nil
	}

	indicator := int(flags>>1) & 0x07
	if indicator >= len(envelopeSizes) {
		return nil, fmt.Errorf("geometry blob envelope indicator %d: %w", indicator, domain.ErrInvalidInput)
	}

	offset := gpkgHeaderSize + envelopeSizes[indicator]
	if len(blob) < offset {
		return nil, fmt.Errorf("geometry blob truncated at %d bytes: %w", len(blob), domain.ErrInvalidInput)
	}
	return blob[offset:], nil
}
