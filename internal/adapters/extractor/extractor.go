// Package extractor expands zip, 7z and rar archives into staging
// directories.
package extractor

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"

	"github.com/jobrunner/strata/internal/domain"
)

// Extractor implements the ArchiveExtractor port. Each archive expands into
// a sub-folder of the destination named after the archive; an existing
// sub-folder means the archive was already expanded and is left alone.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an archive extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Supported reports whether the archive's format is handled.
func (e *Extractor) Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".7z", ".rar":
		return true
	default:
		return false
	}
}

// Extract expands the archive into a sub-folder of destDir.
func (e *Extractor) Extract(ctx context.Context, path, destDir string) error {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(destDir, stem)

	if _, err := os.Stat(out); err == nil {
		e.logger.Debug("archive already expanded", "archive", path, "dest", out)
		return nil
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return &domain.ExtractionError{Archive: path, Err: err}
	}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		err = e.extractZip(ctx, path, out)
	case ".7z":
		err = e.extractSevenZip(ctx, path, out)
	case ".rar":
		err = e.extractRar(ctx, path, out)
	default:
		err = domain.ErrUnsupportedArchive
	}
	if err != nil {
		// A partial expansion must not masquerade as a completed one.
		_ = os.RemoveAll(out)
		return &domain.ExtractionError{Archive: path, Err: err}
	}

	e.logger.Info("archive expanded", "archive", path, "dest", out)
	return nil
}

func (e *Extractor) extractZip(ctx context.Context, path, dest string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := securePath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) extractSevenZip(ctx context.Context, path, dest string) error {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := securePath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(target, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Extractor) extractRar(ctx context.Context, path, dest string) error {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := securePath(dest, hdr.Name)
		if err != nil {
			return err
		}
		if hdr.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := writeEntry(target, r); err != nil {
			return err
		}
	}
}

// securePath joins an archive entry name onto dest, rejecting entries that
// would escape it.
func securePath(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes destination: %w", name, domain.ErrInvalidInput)
	}
	return target, nil
}

// writeEntry streams one archive entry to disk.
func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil { //#nosec G110 -- corpus archives are trusted inputs
		_ = out.Close()
		return err
	}
	return out.Close()
}
