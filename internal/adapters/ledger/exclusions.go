package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileExclusionList implements the ExclusionList port as a tab-separated
// line file of directory basenames and their size estimates. Matching by
// basename keeps the list valid when the corpus root moves.
type FileExclusionList struct {
	mu   sync.Mutex
	file *os.File
	dirs map[string]float64
}

// OpenExclusionList opens or creates the exclusion list at path.
func OpenExclusionList(path string) (*FileExclusionList, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening exclusion list %s: %w", path, err)
	}

	dirs := make(map[string]float64)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, sizePart, _ := strings.Cut(line, "\t")
		var gb float64
		_, _ = fmt.Sscanf(sizePart, "%f", &gb)
		dirs[name] = gb
	}
	if err := scanner.Err(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("reading exclusion list %s: %w", path, err)
	}

	return &FileExclusionList{file: file, dirs: dirs}, nil
}

// Contains reports whether the directory is excluded.
func (l *FileExclusionList) Contains(dir string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.dirs[filepath.Base(dir)]
	return ok
}

// Add appends a directory with its size estimate. Re-adding a known
// directory is a no-op.
func (l *FileExclusionList) Add(dir string, estimatedGB float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	name := filepath.Base(dir)
	if _, ok := l.dirs[name]; ok {
		return nil
	}
	if _, err := fmt.Fprintf(l.file, "%s\t%.2f\n", name, estimatedGB); err != nil {
		return fmt.Errorf("appending to exclusion list: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing exclusion list: %w", err)
	}
	l.dirs[name] = estimatedGB
	return nil
}

// Close releases the list file.
func (l *FileExclusionList) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
