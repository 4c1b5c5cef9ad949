// Package watcher triggers ingestion passes when new source directories
// arrive under the corpus root.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler is called once per quiet period after candidate directories
// arrived. All arrivals within the period coalesce into one call.
type Handler func(ctx context.Context) error

// Config holds watcher configuration.
type Config struct {
	Root      string        // Corpus root to watch
	DirPrefix string        // Candidate directories must start with this prefix
	Debounce  time.Duration // Quiet period before triggering a run
}

// Watcher watches the corpus root for arriving source directories. Copies
// into the corpus take time, so arrivals are debounced: the handler only
// fires after the root has been quiet for the configured period.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	cfg       Config

	mu       sync.Mutex
	lastSeen time.Time
	pending  []string
	running  bool
}

// New creates a corpus watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 30 * time.Second
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// Start begins watching the corpus root.
func (w *Watcher) Start(ctx context.Context) error {
	root, err := filepath.Abs(w.cfg.Root)
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Add(root); err != nil {
		return err
	}
	w.logger.Info("watching corpus root", "root", root, "prefix", w.cfg.DirPrefix)

	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// eventLoop collects fsnotify events.
func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent records one arriving candidate directory.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) {
		return
	}
	if !w.isCandidate(event.Name) {
		return
	}

	w.logger.Debug("candidate directory arrived", "path", event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = time.Now()
	w.pending = append(w.pending, event.Name)
}

// isCandidate reports whether a path names a candidate source directory.
func (w *Watcher) isCandidate(path string) bool {
	base := filepath.Base(path)
	return w.cfg.DirPrefix == "" || strings.HasPrefix(base, w.cfg.DirPrefix)
}

// debounceLoop fires the handler once arrivals have gone quiet.
func (w *Watcher) debounceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.maybeTrigger(ctx)
		}
	}
}

// maybeTrigger runs the handler when the quiet period elapsed and no run
// is already in flight.
func (w *Watcher) maybeTrigger(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 || w.running || time.Since(w.lastSeen) < w.cfg.Debounce {
		w.mu.Unlock()
		return
	}
	arrived := w.pending
	w.pending = nil
	w.running = true
	w.mu.Unlock()

	w.logger.Info("triggering ingestion run", "arrived_directories", len(arrived))

	go func() {
		defer func() {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
		}()
		if err := w.handler(ctx); err != nil {
			w.logger.Error("triggered run failed", "error", err)
		}
	}()
}
