// Package application contains the application services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jobrunner/strata/internal/domain"
	"github.com/jobrunner/strata/internal/ports/output"
)

// MintContext carries the provenance recorded when a new token is minted.
type MintContext struct {
	SourceDirectory string
	DatasetName     string
}

// VersionRegistry maps (geometry kind, column signature) pairs to stable
// version tokens. For a fixed kind the mapping is a bijection that never
// changes for the lifetime of the corpus: the registry reconciles itself
// against the store's existing versioned tables before first use, so
// restarts neither duplicate nor collide with prior tokens.
type VersionRegistry struct {
	mu         sync.Mutex
	store      output.Store
	audit      output.VersionAuditLog
	metrics    output.MetricsCollector
	logger     *slog.Logger
	prefix     string
	versions   map[domain.GeometryKind]map[string]domain.VersionToken
	next       map[domain.GeometryKind]domain.VersionToken
	exhausted  map[domain.GeometryKind]bool
	reconciled bool
	minted     int
}

// NewVersionRegistry creates an empty, unreconciled registry.
func NewVersionRegistry(
	store output.Store,
	audit output.VersionAuditLog,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	prefix string,
) *VersionRegistry {
	r := &VersionRegistry{
		store:     store,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		prefix:    prefix,
		versions:  make(map[domain.GeometryKind]map[string]domain.VersionToken),
		next:      make(map[domain.GeometryKind]domain.VersionToken),
		exhausted: make(map[domain.GeometryKind]bool),
	}
	for _, kind := range domain.GeometryKinds {
		r.versions[kind] = make(map[string]domain.VersionToken)
		r.next[kind] = domain.FirstVersionToken
	}
	return r
}

// Reconcile rebuilds the signature-to-token mapping from the store's
// existing versioned tables and positions each kind's next pointer one past
// the highest token found. It must run once before the first GetOrCreate.
//
// On failure the registry stays empty, which is safe only because table
// creation is idempotent on "already exists"; the caller logs and proceeds.
func (r *VersionRegistry) Reconcile(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.store.ListVersionedTables(ctx, r.prefix)
	if err != nil {
		r.reconciled = true
		return fmt.Errorf("listing versioned tables: %w", err)
	}
	sort.Strings(names)
	r.reset()

	recovered := 0
	for _, name := range names {
		kind, token, err := domain.ParseTableName(r.prefix, name)
		if err != nil {
			// Unrelated tables can share the prefix; only shaped names count.
			r.logger.Debug("skipping non-versioned table", "table", name)
			continue
		}

		cols, err := r.store.TableColumns(ctx, name)
		if err != nil {
			r.reset()
			r.reconciled = true
			return fmt.Errorf("reading columns of %s: %w", name, err)
		}

		colNames := make([]string, len(cols))
		for i, c := range cols {
			colNames[i] = c.Name
		}
		sig := domain.SignatureFromTableColumns(colNames)

		if prior, ok := r.versions[kind][sig.Key()]; ok {
			r.logger.Error("duplicate signature across versioned tables",
				"kind", kind, "signature", sig.Key(),
				"tokens", fmt.Sprintf("%s,%s", prior, token))
			continue
		}
		r.versions[kind][sig.Key()] = token

		if token >= r.next[kind] {
			next, err := token.Next()
			if err != nil {
				r.exhausted[kind] = true
			} else {
				r.next[kind] = next
			}
		}
		recovered++
	}

	r.reconciled = true
	r.logger.Info("version registry reconciled",
		"tables", len(names), "mappings", recovered)
	return nil
}

// reset clears any partially recovered state.
func (r *VersionRegistry) reset() {
	for _, kind := range domain.GeometryKinds {
		r.versions[kind] = make(map[string]domain.VersionToken)
		r.next[kind] = domain.FirstVersionToken
		r.exhausted[kind] = false
	}
}

// GetOrCreate returns the stable token for the (kind, signature) pair,
// minting and audit-logging a new one on first sight. Repeated calls with
// the same pair always return the same token.
func (r *VersionRegistry) GetOrCreate(
	ctx context.Context,
	kind domain.GeometryKind,
	sig domain.ColumnSignature,
	mint MintContext,
) (domain.VersionToken, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	if !kind.Valid() {
		return 0, fmt.Errorf("geometry kind %q: %w", kind, domain.ErrInvalidInput)
	}
	if !r.reconciled {
		r.logger.Warn("version registry used before reconciliation", "kind", kind)
	}

	if token, ok := r.versions[kind][sig.Key()]; ok {
		return token, nil
	}

	if r.exhausted[kind] {
		return 0, fmt.Errorf("kind %s: %w", kind, domain.ErrVersionSpaceExhausted)
	}

	token := r.next[kind]
	r.versions[kind][sig.Key()] = token
	next, err := token.Next()
	if err != nil {
		// The minted token is the last one; further misses must fail loudly.
		r.exhausted[kind] = true
	} else {
		r.next[kind] = next
	}
	r.minted++
	r.metrics.IncTokensMinted(string(kind))

	r.logger.Info("minted version token",
		"token", token.String(), "kind", kind,
		"source_directory", mint.SourceDirectory,
		"dataset", mint.DatasetName,
	)
	if err := r.audit.RecordMint(output.MintRecord{
		Token:           token,
		Kind:            kind,
		SourceDirectory: mint.SourceDirectory,
		DatasetName:     mint.DatasetName,
		Columns:         sig.Columns(),
	}); err != nil {
		r.logger.Error("writing version audit log", "token", token.String(), "error", err)
	}

	return token, nil
}

// Minted returns the number of tokens minted since construction.
func (r *VersionRegistry) Minted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minted
}
