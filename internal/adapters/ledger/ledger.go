// Package ledger persists the small bookkeeping files of the ingestion
// pipeline: the done ledger, the version audit log, the exclusion list and
// the per-run skip report.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FileLedger implements the Ledger port as an append-only line file with an
// in-memory index. Keys are single lines; a key's presence means done.
type FileLedger struct {
	mu   sync.Mutex
	file *os.File
	done map[string]struct{}
}

// OpenLedger opens or creates the ledger file at path and loads its index.
func OpenLedger(path string) (*FileLedger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}

	done := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key != "" {
			done[key] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}

	return &FileLedger{file: file, done: done}, nil
}

// AlreadyDone reports whether key was previously marked done.
func (l *FileLedger) AlreadyDone(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.done[key]
	return ok
}

// MarkDone durably records key as done. Marking a done key again is a
// no-op.
func (l *FileLedger) MarkDone(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.done[key]; ok {
		return nil
	}
	if _, err := fmt.Fprintln(l.file, key); err != nil {
		return fmt.Errorf("appending to ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing ledger: %w", err)
	}
	l.done[key] = struct{}{}
	return nil
}

// Close flushes and releases the ledger.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
