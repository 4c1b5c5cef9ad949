package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jobrunner/strata/internal/ports/output"
)

// IdentityAssigner hands out one stable numeric identity per dataset
// container. Within a run the same path always yields the same identity;
// across runs the counter is re-seeded from the store's highest persisted
// identity, so identities never collide with prior runs even though the
// in-run map is not persisted.
type IdentityAssigner struct {
	mu          sync.Mutex
	store       output.Store
	logger      *slog.Logger
	ids         map[string]int64
	next        int64
	initialized bool
}

// NewIdentityAssigner creates an uninitialized assigner.
func NewIdentityAssigner(store output.Store, logger *slog.Logger) *IdentityAssigner {
	return &IdentityAssigner{
		store:  store,
		logger: logger,
		ids:    make(map[string]int64),
		next:   1,
	}
}

// Initialize seeds the counter one past the highest identity present in the
// summary store. Runs exactly once, before any ingestion begins. A store
// failure seeds the counter at 1 with a warning; that is only safe against
// an empty or unreachable-but-empty store, hence the warning.
func (a *IdentityAssigner) Initialize(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		a.logger.Warn("identity assigner initialized twice")
		return
	}
	a.initialized = true

	maxID, err := a.store.MaxSummaryIdentity(ctx)
	if err != nil {
		a.next = 1
		a.logger.Warn("seeding ingestion identities from 1: store query failed", "error", err)
		return
	}

	a.next = maxID + 1
	a.logger.Info("ingestion identities seeded", "next", a.next, "store_max", maxID)
}

// GetOrCreate returns the identity for a dataset container path, assigning
// the next counter value to unseen paths.
func (a *IdentityAssigner) GetOrCreate(datasetPath string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.ids[datasetPath]; ok {
		return id
	}

	id := a.next
	a.next++
	a.ids[datasetPath] = id
	a.logger.Debug("assigned ingestion identity", "path", datasetPath, "id", id)
	return id
}

// Assigned returns the number of identities handed out this run.
func (a *IdentityAssigner) Assigned() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ids)
}
