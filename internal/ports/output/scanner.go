package output

import (
	"context"

	"github.com/jobrunner/strata/internal/domain"
)

// CorpusScanner defines the secondary port for corpus filesystem plumbing:
// candidate enumeration, resource discovery, staging copies and cleanup.
type CorpusScanner interface {
	// ScanRoot returns the direct children of root whose names start with
	// prefix.
	ScanRoot(ctx context.Context, root, prefix string) ([]string, error)

	// Discover locates the resource bundle of one candidate directory.
	// Discovery also runs one level down inside the well-known resource
	// sub-folder, whose findings take precedence.
	Discover(ctx context.Context, dir string) (*domain.SourceDirectory, error)

	// StageContainers copies the bundle's containers into destDir, skipping
	// ones already present.
	StageContainers(ctx context.Context, src *domain.SourceDirectory, destDir string) error

	// FindContainers returns all dataset containers under dir, recursively.
	FindContainers(ctx context.Context, dir string) ([]string, error)

	// CleanStaging removes everything under the staging root except dataset
	// containers.
	CleanStaging(ctx context.Context, stagingRoot string) error
}
