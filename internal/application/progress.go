package application

import (
	"sync"

	"github.com/jobrunner/strata/internal/domain"
)

// ProgressTracker holds the mutable state of the current run behind a
// mutex and serves read-only snapshots to the status endpoints.
type ProgressTracker struct {
	mu   sync.Mutex
	cur  domain.Progress
}

// NewProgressTracker creates a tracker in the idle phase.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{cur: domain.Progress{Phase: domain.PhaseIdle}}
}

// Progress returns a snapshot of the current run.
func (p *ProgressTracker) Progress() domain.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// SetPhase moves the run into a new phase.
func (p *ProgressTracker) SetPhase(phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.Phase = phase
}

// SetDirectoriesTotal records how many directories this run will process.
func (p *ProgressTracker) SetDirectoriesTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.DirectoriesTotal = n
}

// StartDirectory marks dir as the directory currently being processed.
func (p *ProgressTracker) StartDirectory(dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.CurrentDirectory = dir
}

// FinishDirectory counts one directory as done.
func (p *ProgressTracker) FinishDirectory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.DirectoriesDone++
	p.cur.CurrentDirectory = ""
}

// AddSkipped counts directories skipped before admission.
func (p *ProgressTracker) AddSkipped(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.DirectoriesSkipped += n
}

// AddDataset counts one processed dataset.
func (p *ProgressTracker) AddDataset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.DatasetsProcessed++
}

// AddLayer counts one imported layer and its features.
func (p *ProgressTracker) AddLayer(features int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.LayersImported++
	p.cur.FeaturesImported += features
}

// SetTokensMinted records the number of version tokens minted so far.
func (p *ProgressTracker) SetTokensMinted(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur.TokensMinted = n
}

// Reset returns the tracker to idle between runs.
func (p *ProgressTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cur = domain.Progress{Phase: domain.PhaseIdle}
}
