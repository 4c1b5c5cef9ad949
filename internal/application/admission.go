package application

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/strata/internal/domain"
	"github.com/jobrunner/strata/internal/ports/output"
)

const bytesPerGB = float64(1 << 30)

// AdmissionConfig configures the size-gating pass.
type AdmissionConfig struct {
	ThresholdBytes  int64    // Directories whose GIS resources exceed this are excluded
	MaxWorkers      int      // Upper bound on concurrent directory evaluations
	ArchiveExts     []string // Recognized archive extensions (lower case, with dot)
	ContainerExts   []string // Recognized container extensions (lower case, with dot)
	ResourceDirName string   // Well-known resource sub-folder name, e.g. "GIS"
}

// Estimate is the admission result for one directory.
type Estimate struct {
	Dir   string
	Bytes int64 // Exact when admitted; a lower bound >= threshold when rejected
	Err   error // Enumeration failure; always excludes the directory
}

// GB returns the estimate in gigabytes.
func (e Estimate) GB() float64 {
	return float64(e.Bytes) / bytesPerGB
}

// AdmissionFilter gates which source directories are considered for
// processing, by a bounded-cost estimate of their GIS-relevant size only:
// archive files and dataset containers, not the whole tree.
type AdmissionFilter struct {
	cfg     AdmissionConfig
	metrics output.MetricsCollector
	logger  *slog.Logger
}

// NewAdmissionFilter creates an admission filter.
func NewAdmissionFilter(cfg AdmissionConfig, metrics output.MetricsCollector, logger *slog.Logger) *AdmissionFilter {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	return &AdmissionFilter{cfg: cfg, metrics: metrics, logger: logger}
}

// Evaluate estimates all candidate directories concurrently with a worker
// pool of min(MaxWorkers, len(dirs)) and splits them into admitted paths
// and excluded estimates. Workers share no mutable state beyond the guarded
// result slices, so completion order cannot affect the outcome.
func (f *AdmissionFilter) Evaluate(ctx context.Context, dirs []string) (admitted []string, excluded []Estimate) {
	if len(dirs) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		results = make([]Estimate, 0, len(dirs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(f.cfg.MaxWorkers, len(dirs)))

	for _, dir := range dirs {
		dir := dir
		g.Go(func() error {
			est := f.EstimateDir(gctx, dir)
			mu.Lock()
			results = append(results, est)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Deterministic output order regardless of completion order.
	sort.Slice(results, func(i, j int) bool { return results[i].Dir < results[j].Dir })

	for _, est := range results {
		switch {
		case est.Err != nil:
			f.logger.Error("excluding directory: size estimation failed",
				"dir", est.Dir, "error", est.Err)
			f.metrics.IncDirectoriesExcluded()
			excluded = append(excluded, est)
		case est.Bytes > f.cfg.ThresholdBytes:
			f.metrics.IncDirectoriesExcluded()
			excluded = append(excluded, est)
		default:
			f.metrics.IncDirectoriesAdmitted()
			admitted = append(admitted, est.Dir)
		}
	}
	return admitted, excluded
}

// EstimateDir computes the GIS-resource size of one directory with an early
// exit: scanning stops as soon as the running sum exceeds the threshold.
// The admit decision is therefore exact while the reject decision returns a
// lower bound above the threshold.
func (f *AdmissionFilter) EstimateDir(ctx context.Context, dir string) Estimate {
	total, err := f.sumGISResources(ctx, dir, 0)
	if err != nil {
		return Estimate{Dir: dir, Err: &domain.AdmissionError{Directory: dir, Err: err}}
	}

	// The same check also runs one level down in the resource sub-folder.
	if total <= f.cfg.ThresholdBytes && f.cfg.ResourceDirName != "" {
		if sub := f.findResourceDir(dir); sub != "" {
			subTotal, err := f.sumGISResources(ctx, sub, total)
			if err != nil {
				return Estimate{Dir: dir, Err: &domain.AdmissionError{Directory: sub, Err: err}}
			}
			total = subTotal
		}
	}

	return Estimate{Dir: dir, Bytes: total}
}

// sumGISResources adds archive files and container sizes directly inside
// dir to running, stopping once the sum exceeds the threshold.
func (f *AdmissionFilter) sumGISResources(ctx context.Context, dir string, running int64) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return running, nil
		}
		name := strings.ToLower(entry.Name())
		path := filepath.Join(dir, entry.Name())

		switch {
		case !entry.IsDir() && hasAnySuffix(name, f.cfg.ArchiveExts):
			info, err := entry.Info()
			if err != nil {
				continue
			}
			running += info.Size()

		case !entry.IsDir() && hasAnySuffix(name, f.cfg.ContainerExts):
			info, err := entry.Info()
			if err != nil {
				continue
			}
			running += info.Size()

		case entry.IsDir() && hasAnySuffix(name, f.cfg.ContainerExts):
			// Containers are directories of many small files; their full
			// recursive size counts.
			running = f.dirSize(path, running)
		}

		if running > f.cfg.ThresholdBytes {
			return running, nil
		}
	}
	return running, nil
}

// dirSize walks a container directory, adding file sizes to running and
// stopping early once the threshold is exceeded.
func (f *AdmissionFilter) dirSize(dir string, running int64) int64 {
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Unreadable container entries just don't count.
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		running += info.Size()
		if running > f.cfg.ThresholdBytes {
			return fs.SkipAll
		}
		return nil
	})
	return running
}

// findResourceDir returns the well-known resource sub-folder one level
// down, matched case-insensitively, or "".
func (f *AdmissionFilter) findResourceDir(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.EqualFold(entry.Name(), f.cfg.ResourceDirName) {
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}

func hasAnySuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
