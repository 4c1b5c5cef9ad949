package ledger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/strata/internal/ports/output"
)

// FileVersionLog implements the VersionAuditLog port as an append-only
// text file. One line per minted token, grep-friendly.
type FileVersionLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenVersionLog opens or creates the audit log at path.
func OpenVersionLog(path string) (*FileVersionLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening version log %s: %w", path, err)
	}
	return &FileVersionLog{file: file}, nil
}

// RecordMint appends one mint record.
func (l *FileVersionLog) RecordMint(rec output.MintRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("%s kind=%s token=%s dataset=%s source=%s columns=%s\n",
		time.Now().UTC().Format(time.RFC3339),
		rec.Kind, rec.Token,
		rec.DatasetName, rec.SourceDirectory,
		strings.Join(rec.Columns, ","),
	)
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("appending to version log: %w", err)
	}
	return l.file.Sync()
}

// Close releases the log file.
func (l *FileVersionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
