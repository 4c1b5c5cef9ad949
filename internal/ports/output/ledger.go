package output

import (
	"github.com/jobrunner/strata/internal/domain"
)

// Ledger is the idempotency guard over completed units of work (archive
// extraction, source-directory processing). Append-only; presence of a key
// means "skip on next encounter".
type Ledger interface {
	// AlreadyDone reports whether key was previously marked done.
	AlreadyDone(key string) bool

	// MarkDone durably records key as done.
	MarkDone(key string) error

	// Close flushes and releases the ledger.
	Close() error
}

// MintRecord is the audit payload written for every newly minted version
// token.
type MintRecord struct {
	Token           domain.VersionToken
	Kind            domain.GeometryKind
	SourceDirectory string
	DatasetName     string
	Columns         []string // Sorted column list that produced the token
}

// VersionAuditLog durably records minted version tokens as human-readable
// lines.
type VersionAuditLog interface {
	RecordMint(rec MintRecord) error
}

// ExclusionList is the persisted set of directories excluded from
// processing (typically oversized ones). Matching is by directory basename.
type ExclusionList interface {
	// Contains reports whether the directory is excluded.
	Contains(dir string) bool

	// Add appends a directory with its size estimate.
	Add(dir string, estimatedGB float64) error
}

// ReportSink persists the per-run skipped-directory report.
type ReportSink interface {
	WriteSkipped(skipped []domain.SkippedDirectory) error
}
