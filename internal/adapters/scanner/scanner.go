// Package scanner implements corpus filesystem plumbing: candidate
// enumeration, resource discovery, staging and cleanup.
package scanner

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jobrunner/strata/internal/domain"
)

// Config carries the filesystem conventions of the corpus.
type Config struct {
	ContainerExts   []string // Recognized container extensions (lower case, with dot)
	ArchiveExts     []string // Recognized archive extensions (lower case, with dot)
	ResourceDirName string   // Well-known resource sub-folder name, e.g. "GIS"
	StagingDirName  string   // Staging folder name, never descended into
}

// Scanner implements the CorpusScanner port on the local filesystem.
type Scanner struct {
	cfg    Config
	logger *slog.Logger
}

// NewScanner creates a corpus scanner.
func NewScanner(cfg Config, logger *slog.Logger) *Scanner {
	if cfg.StagingDirName == "" {
		cfg.StagingDirName = "extracted_files"
	}
	return &Scanner{cfg: cfg, logger: logger}
}

// ScanRoot returns the direct children of root whose names start with
// prefix, sorted by name.
func (s *Scanner) ScanRoot(_ context.Context, root, prefix string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading corpus root %s: %w", root, err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if prefix != "" && !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		dirs = append(dirs, filepath.Join(root, entry.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Discover locates the resource bundle of one candidate directory. The
// directory itself is checked first; when the well-known resource
// sub-folder exists one level down, its contents are authoritative and
// top-level findings are discarded.
func (s *Scanner) Discover(ctx context.Context, dir string) (*domain.SourceDirectory, error) {
	src := &domain.SourceDirectory{Path: dir}

	if err := s.collectResources(dir, src); err != nil {
		return nil, err
	}
	if src.ResourceDir != "" {
		src.Containers = nil
		src.Archives = nil
		if err := s.collectResources(src.ResourceDir, src); err != nil {
			return nil, err
		}
	}

	_ = ctx
	sort.Strings(src.Containers)
	sort.Strings(src.Archives)
	return src, nil
}

// collectResources appends containers and archives found directly inside
// dir, noting the resource sub-folder when it appears.
func (s *Scanner) collectResources(dir string, src *domain.SourceDirectory) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)

		switch {
		case entry.IsDir() && strings.EqualFold(name, s.cfg.StagingDirName):
			// Never treat our own staging output as source material.
		case entry.IsDir() && s.isContainer(name):
			src.Containers = append(src.Containers, path)
		case entry.IsDir() && dir == src.Path && strings.EqualFold(name, s.cfg.ResourceDirName):
			src.ResourceDir = path
		case !entry.IsDir() && s.isContainer(name):
			src.Containers = append(src.Containers, path)
		case !entry.IsDir() && s.isArchive(name):
			src.Archives = append(src.Archives, path)
		}
	}
	return nil
}

// StageContainers copies the bundle's containers into destDir, skipping
// ones already present.
func (s *Scanner) StageContainers(ctx context.Context, src *domain.SourceDirectory, destDir string) error {
	if len(src.Containers) == 0 && len(src.Archives) == 0 {
		return nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating staging dir %s: %w", destDir, err)
	}

	for _, container := range src.Containers {
		if err := ctx.Err(); err != nil {
			return err
		}
		dest := filepath.Join(destDir, filepath.Base(container))
		if _, err := os.Stat(dest); err == nil {
			s.logger.Debug("container already staged", "container", dest)
			continue
		}

		info, err := os.Stat(container)
		if err != nil {
			return fmt.Errorf("staging %s: %w", container, err)
		}
		if info.IsDir() {
			err = copyDir(container, dest)
		} else {
			err = copyFile(container, dest)
		}
		if err != nil {
			return fmt.Errorf("staging %s: %w", container, err)
		}
		s.logger.Debug("container staged", "src", container, "dest", dest)
	}
	return nil
}

// FindContainers returns all dataset containers under dir, recursively.
// Container directories are not descended into.
func (s *Scanner) FindContainers(_ context.Context, dir string) ([]string, error) {
	var containers []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return nil // No staging output at all, nothing to find.
			}
			return err
		}
		if !s.isContainer(d.Name()) {
			return nil
		}
		if !d.IsDir() && hasSiblingGeodatabase(path) {
			// A .gpkg next to a same-stem .gdb is a converted copy of the
			// geodatabase, not a distinct dataset.
			return nil
		}
		containers = append(containers, path)
		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching containers in %s: %w", dir, err)
	}
	sort.Strings(containers)
	return containers, nil
}

// CleanStaging removes everything directly under the staging root except
// dataset containers.
func (s *Scanner) CleanStaging(_ context.Context, stagingRoot string) error {
	entries, err := os.ReadDir(stagingRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading staging root %s: %w", stagingRoot, err)
	}

	for _, entry := range entries {
		if s.isContainer(entry.Name()) {
			continue
		}
		path := filepath.Join(stagingRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("cleaning %s: %w", path, err)
		}
		s.logger.Debug("removed staging leftover", "path", path)
	}
	return nil
}

func (s *Scanner) isContainer(name string) bool {
	return hasAnyExt(name, s.cfg.ContainerExts)
}

func (s *Scanner) isArchive(name string) bool {
	return hasAnyExt(name, s.cfg.ArchiveExts)
}

// hasSiblingGeodatabase reports whether a .gpkg file shares its stem with
// a .gdb directory in the same folder.
func hasSiblingGeodatabase(path string) bool {
	ext := filepath.Ext(path)
	if !strings.EqualFold(ext, ".gpkg") {
		return false
	}
	stem := strings.TrimSuffix(path, ext)
	for _, gdbExt := range []string{".gdb", ".GDB"} {
		if info, err := os.Stat(stem + gdbExt); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

func hasAnyExt(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// copyFile copies one regular file, preserving nothing but content.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	return out.Close()
}

// copyDir copies a directory tree.
func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
