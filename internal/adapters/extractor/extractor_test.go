package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/strata/internal/domain"
)

func newTestExtractor() *Extractor {
	return NewExtractor(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSupported(t *testing.T) {
	e := newTestExtractor()
	for _, path := range []string{"a.zip", "b.7z", "c.rar", "D.ZIP"} {
		if !e.Supported(path) {
			t.Errorf("Supported(%q) = false, want true", path)
		}
	}
	for _, path := range []string{"a.tar.gz", "b.gpkg", "c"} {
		if e.Supported(path) {
			t.Errorf("Supported(%q) = true, want false", path)
		}
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "survey.zip")
	writeZip(t, archive, map[string]string{
		"dig.gpkg":                    "sqlite",
		"site.gdb/a00000001.gdbtable": "table",
	})

	dest := filepath.Join(dir, "extracted_files")
	if err := newTestExtractor().Extract(context.Background(), archive, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	for _, want := range []string{
		filepath.Join(dest, "survey", "dig.gpkg"),
		filepath.Join(dest, "survey", "site.gdb", "a00000001.gdbtable"),
	} {
		if _, err := os.Stat(want); err != nil {
			t.Errorf("missing extracted file %s: %v", want, err)
		}
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "survey.zip")
	writeZip(t, archive, map[string]string{"dig.gpkg": "sqlite"})

	dest := filepath.Join(dir, "extracted_files")
	e := newTestExtractor()
	if err := e.Extract(context.Background(), archive, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Tamper with the output; a rerun must not touch it.
	marker := filepath.Join(dest, "survey", "marker")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := e.Extract(context.Background(), archive, dest); err != nil {
		t.Fatalf("second Extract failed: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("existing expansion was overwritten")
	}
}

func TestExtractCorruptArchiveCleansUp(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "broken.zip")
	if err := os.WriteFile(archive, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "extracted_files")
	err := newTestExtractor().Extract(context.Background(), archive, dest)
	if err == nil {
		t.Fatal("Extract should fail for a corrupt archive")
	}

	var extractionErr *domain.ExtractionError
	if !errors.As(err, &extractionErr) {
		t.Errorf("err = %T, want *domain.ExtractionError", err)
	}

	// The failed expansion folder must not block a retry.
	if _, statErr := os.Stat(filepath.Join(dest, "broken")); !os.IsNotExist(statErr) {
		t.Error("partial expansion folder survived the failure")
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../outside.txt": "x"})

	dest := filepath.Join(dir, "extracted_files")
	if err := newTestExtractor().Extract(context.Background(), archive, dest); err == nil {
		t.Fatal("Extract should reject entries escaping the destination")
	}
	if _, err := os.Stat(filepath.Join(dir, "outside.txt")); !os.IsNotExist(err) {
		t.Error("escaping entry was written outside the destination")
	}
}
