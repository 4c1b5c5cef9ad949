package geopackage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jobrunner/strata/internal/domain"
)

// Converter turns file geodatabases into GeoPackages with ogr2ogr, so the
// rest of the reader only ever deals with SQLite. Conversion is idempotent:
// an existing output file is reused.
type Converter struct {
	binary string
	logger *slog.Logger
}

// NewConverter creates a converter using binary, or "ogr2ogr" when empty.
func NewConverter(binary string, logger *slog.Logger) *Converter {
	if binary == "" {
		binary = "ogr2ogr"
	}
	return &Converter{binary: binary, logger: logger}
}

// Available reports whether the conversion binary can be found.
func (c *Converter) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Convert converts a .gdb container into a GeoPackage under destDir and
// returns the output path.
func (c *Converter) Convert(ctx context.Context, gdbPath, destDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(gdbPath), filepath.Ext(gdbPath))
	out := filepath.Join(destDir, base+".gpkg")

	if info, err := os.Stat(out); err == nil && info.Size() > 0 {
		c.logger.Debug("reusing converted geodatabase", "gdb", gdbPath, "gpkg", out)
		return out, nil
	}

	if _, err := exec.LookPath(c.binary); err != nil {
		return "", fmt.Errorf("converting %s: %s not found: %w", gdbPath, c.binary, domain.ErrUnsupportedContainer)
	}

	cmd := exec.CommandContext(ctx, c.binary, "-f", "GPKG", out, gdbPath) //#nosec G204 -- binary from config, paths from the scanner
	if outBytes, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(out) // A partial output would shadow future retries.
		return "", fmt.Errorf("converting %s: %w: %s", gdbPath, err, strings.TrimSpace(string(outBytes)))
	}

	c.logger.Info("converted geodatabase", "gdb", gdbPath, "gpkg", out)
	return out, nil
}
