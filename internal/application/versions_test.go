package application

import (
	"context"
	"errors"
	"testing"

	"github.com/jobrunner/strata/internal/domain"
	"github.com/jobrunner/strata/internal/ports/output"
)

func newTestRegistry(store *mockStore, audit *mockAudit) *VersionRegistry {
	return NewVersionRegistry(store, audit, &output.NoOpMetrics{}, testLogger(), "excavations")
}

func sig(cols ...string) domain.ColumnSignature {
	return domain.NewColumnSignature(cols)
}

func TestVersionRegistryMintsStableTokens(t *testing.T) {
	registry := newTestRegistry(newMockStore(), &mockAudit{})
	ctx := context.Background()

	if err := registry.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	first, err := registry.GetOrCreate(ctx, domain.GeometryPoly, sig("depth", "material"), MintContext{})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if first.String() != "verA" {
		t.Errorf("first token = %s, want verA", first)
	}

	// Same signature, same token, regardless of call count.
	for i := 0; i < 3; i++ {
		again, err := registry.GetOrCreate(ctx, domain.GeometryPoly, sig("material", "depth"), MintContext{})
		if err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
		if again != first {
			t.Errorf("repeat token = %s, want %s", again, first)
		}
	}

	second, err := registry.GetOrCreate(ctx, domain.GeometryPoly, sig("depth", "material", "era"), MintContext{})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if second.String() != "verB" {
		t.Errorf("second token = %s, want verB", second)
	}

	if registry.Minted() != 2 {
		t.Errorf("Minted() = %d, want 2", registry.Minted())
	}
}

func TestVersionRegistryKindsAreIndependent(t *testing.T) {
	registry := newTestRegistry(newMockStore(), &mockAudit{})
	ctx := context.Background()
	_ = registry.Reconcile(ctx)

	columns := sig("depth", "material")
	for _, kind := range domain.GeometryKinds {
		token, err := registry.GetOrCreate(ctx, kind, columns, MintContext{})
		if err != nil {
			t.Fatalf("GetOrCreate(%s) failed: %v", kind, err)
		}
		if token.String() != "verA" {
			t.Errorf("kind %s token = %s, want verA", kind, token)
		}
	}
}

func TestVersionRegistryAuditsEveryMint(t *testing.T) {
	audit := &mockAudit{}
	registry := newTestRegistry(newMockStore(), audit)
	ctx := context.Background()
	_ = registry.Reconcile(ctx)

	mint := MintContext{SourceDirectory: "/corpus/A-100", DatasetName: "dig.gpkg"}
	if _, err := registry.GetOrCreate(ctx, domain.GeometryPoint, sig("depth"), mint); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	// A lookup hit must not write a second record.
	if _, err := registry.GetOrCreate(ctx, domain.GeometryPoint, sig("depth"), mint); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if len(audit.records) != 1 {
		t.Fatalf("len(audit.records) = %d, want 1", len(audit.records))
	}
	rec := audit.records[0]
	if rec.Kind != domain.GeometryPoint || rec.DatasetName != "dig.gpkg" {
		t.Errorf("unexpected audit record: %+v", rec)
	}
}

func TestVersionRegistryReconcileResumesSequence(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()

	// Pre-seed the store with tables up to verC.
	for i, cols := range [][]string{{"a"}, {"a", "b"}, {"a", "b", "c"}} {
		name := domain.TableName("excavations", domain.GeometryPoly, domain.VersionToken(i))
		layer := &domain.LayerSchema{Name: "seed"}
		for _, c := range cols {
			layer.Fields = append(layer.Fields, domain.FieldDef{Name: c, Type: "String"})
		}
		if err := store.CreateVersionedTable(ctx, name, layer); err != nil {
			t.Fatalf("seeding table %s: %v", name, err)
		}
	}

	registry := newTestRegistry(store, &mockAudit{})
	if err := registry.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	// A known signature resolves to its recovered token without minting.
	token, err := registry.GetOrCreate(ctx, domain.GeometryPoly, sig("a", "b"), MintContext{})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if token.String() != "verB" {
		t.Errorf("recovered token = %s, want verB", token)
	}
	if registry.Minted() != 0 {
		t.Errorf("Minted() = %d after recovery lookup, want 0", registry.Minted())
	}

	// A new signature continues after the highest recovered token.
	token, err = registry.GetOrCreate(ctx, domain.GeometryPoly, sig("x", "y"), MintContext{})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if token.String() != "verD" {
		t.Errorf("new token = %s, want verD", token)
	}
}

func TestVersionRegistryReconcileIgnoresForeignTables(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()
	store.tables["excavations_header"] = []output.Column{{Name: "ingestion_id", Type: "bigint"}}
	store.tables["excavations_poly_backup"] = []output.Column{{Name: "a", Type: "text"}}

	registry := newTestRegistry(store, &mockAudit{})
	if err := registry.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	token, err := registry.GetOrCreate(ctx, domain.GeometryPoly, sig("a"), MintContext{})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if token.String() != "verA" {
		t.Errorf("token = %s, want verA", token)
	}
}

func TestVersionRegistryReconcileFailureStartsEmpty(t *testing.T) {
	store := newMockStore()
	store.listErr = domain.ErrStoreUnavailable

	registry := newTestRegistry(store, &mockAudit{})
	if err := registry.Reconcile(context.Background()); err == nil {
		t.Fatal("Reconcile should fail when listing fails")
	}

	// Minting still works; the empty registry restarts at verA.
	token, err := registry.GetOrCreate(context.Background(), domain.GeometryLine, sig("a"), MintContext{})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if token.String() != "verA" {
		t.Errorf("token = %s, want verA", token)
	}
}

func TestVersionRegistryExhaustion(t *testing.T) {
	store := newMockStore()
	ctx := context.Background()

	// Seed the final token so the next mint lands on the boundary.
	name := domain.TableName("excavations", domain.GeometryPoint, domain.MaxVersionToken-1)
	if err := store.CreateVersionedTable(ctx, name, &domain.LayerSchema{
		Fields: []domain.FieldDef{{Name: "last", Type: "String"}},
	}); err != nil {
		t.Fatalf("seeding table: %v", err)
	}

	registry := newTestRegistry(store, &mockAudit{})
	if err := registry.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	token, err := registry.GetOrCreate(ctx, domain.GeometryPoint, sig("final"), MintContext{})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if token != domain.MaxVersionToken {
		t.Errorf("token = %s, want %s", token, domain.MaxVersionToken)
	}

	// The space is spent; further unseen signatures must fail.
	if _, err := registry.GetOrCreate(ctx, domain.GeometryPoint, sig("overflow"), MintContext{}); !errors.Is(err, domain.ErrVersionSpaceExhausted) {
		t.Errorf("err = %v, want ErrVersionSpaceExhausted", err)
	}

	// Known signatures keep resolving after exhaustion.
	again, err := registry.GetOrCreate(ctx, domain.GeometryPoint, sig("final"), MintContext{})
	if err != nil {
		t.Fatalf("GetOrCreate after exhaustion failed: %v", err)
	}
	if again != token {
		t.Errorf("token = %s, want %s", again, token)
	}
}

func TestVersionRegistryRejectsInvalidKind(t *testing.T) {
	registry := newTestRegistry(newMockStore(), &mockAudit{})
	_ = registry.Reconcile(context.Background())

	if _, err := registry.GetOrCreate(context.Background(), domain.GeometryKind("raster"), sig("a"), MintContext{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestIdentityAssignerStableWithinRun(t *testing.T) {
	store := newMockStore()
	store.maxIdentity = 41
	assigner := NewIdentityAssigner(store, testLogger())
	assigner.Initialize(context.Background())

	first := assigner.GetOrCreate("/corpus/A-100/dig.gpkg")
	if first != 42 {
		t.Errorf("first identity = %d, want 42", first)
	}
	if again := assigner.GetOrCreate("/corpus/A-100/dig.gpkg"); again != first {
		t.Errorf("repeat identity = %d, want %d", again, first)
	}
	if second := assigner.GetOrCreate("/corpus/A-200/site.gdb"); second != 43 {
		t.Errorf("second identity = %d, want 43", second)
	}
	if assigner.Assigned() != 2 {
		t.Errorf("Assigned() = %d, want 2", assigner.Assigned())
	}
}

func TestIdentityAssignerSeedFailureFallsBackToOne(t *testing.T) {
	store := newMockStore()
	store.maxIDErr = domain.ErrStoreUnavailable
	assigner := NewIdentityAssigner(store, testLogger())
	assigner.Initialize(context.Background())

	if id := assigner.GetOrCreate("/corpus/A-100/dig.gpkg"); id != 1 {
		t.Errorf("identity = %d, want 1", id)
	}
}
