package ledger

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jobrunner/strata/internal/domain"
)

// YAMLReportSink implements the ReportSink port, writing the skipped
// directories of each run to one YAML document. Each run overwrites the
// previous report.
type YAMLReportSink struct {
	path string
}

// NewYAMLReportSink creates a report sink writing to path.
func NewYAMLReportSink(path string) *YAMLReportSink {
	return &YAMLReportSink{path: path}
}

type skipReport struct {
	GeneratedAt string                    `yaml:"generated_at"`
	Skipped     []domain.SkippedDirectory `yaml:"skipped_directories"`
}

// WriteSkipped persists the per-run skipped-directory report.
func (s *YAMLReportSink) WriteSkipped(skipped []domain.SkippedDirectory) error {
	report := skipReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Skipped:     skipped,
	}

	data, err := yaml.Marshal(&report)
	if err != nil {
		return fmt.Errorf("encoding skip report: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing skip report %s: %w", s.path, err)
	}
	return nil
}
