package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/jobrunner/strata/internal/domain"
	"github.com/jobrunner/strata/internal/ports/output"
)

func TestFileLedgerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "done.ledger")

	l, err := OpenLedger(path)
	if err != nil {
		t.Fatalf("OpenLedger failed: %v", err)
	}
	if l.AlreadyDone("/corpus/A-100") {
		t.Error("fresh ledger should hold nothing")
	}
	if err := l.MarkDone("/corpus/A-100"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	if err := l.MarkDone("/corpus/A-100"); err != nil {
		t.Fatalf("repeated MarkDone failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenLedger(path)
	if err != nil {
		t.Fatalf("reopening ledger failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if !reopened.AlreadyDone("/corpus/A-100") {
		t.Error("key lost across reopen")
	}
	if reopened.AlreadyDone("/corpus/A-200") {
		t.Error("unknown key reported done")
	}
}

func TestFileVersionLogRecordsMints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.log")

	log, err := OpenVersionLog(path)
	if err != nil {
		t.Fatalf("OpenVersionLog failed: %v", err)
	}
	err = log.RecordMint(output.MintRecord{
		Token:           domain.FirstVersionToken,
		Kind:            domain.GeometryPoly,
		SourceDirectory: "/corpus/A-100",
		DatasetName:     "dig.gpkg",
		Columns:         []string{"depth", "material"},
	})
	if err != nil {
		t.Fatalf("RecordMint failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, want := range []string{"kind=poly", "token=verA", "dataset=dig.gpkg", "columns=depth,material"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestFileExclusionListMatchesByBasename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge_dirs.txt")

	list, err := OpenExclusionList(path)
	if err != nil {
		t.Fatalf("OpenExclusionList failed: %v", err)
	}
	if err := list.Add("/corpus/A-100", 25.4); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := list.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenExclusionList(path)
	if err != nil {
		t.Fatalf("reopening exclusion list failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	// The corpus root may move; the basename still matches.
	if !reopened.Contains("/mnt/other/A-100") {
		t.Error("excluded basename not matched after reopen")
	}
	if reopened.Contains("/corpus/A-200") {
		t.Error("unknown directory reported excluded")
	}
}

func TestYAMLReportSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skipped.yaml")

	sink := NewYAMLReportSink(path)
	err := sink.WriteSkipped([]domain.SkippedDirectory{
		{Path: "/corpus/A-100", EstimatedGB: 25.4},
		{Path: "/corpus/A-300", EstimatedGB: 31.0},
	})
	if err != nil {
		t.Fatalf("WriteSkipped failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var report skipReport
	if err := yaml.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not valid YAML: %v", err)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("len(Skipped) = %d, want 2", len(report.Skipped))
	}
	if report.Skipped[0].Path != "/corpus/A-100" || report.Skipped[0].EstimatedGB != 25.4 {
		t.Errorf("first entry = %+v", report.Skipped[0])
	}
}
