package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/strata/internal/domain"
	"github.com/jobrunner/strata/internal/ports/output"
)

type ingestFixture struct {
	service   *IngestService
	store     *mockStore
	scanner   *mockScanner
	extractor *mockExtractor
	ledger    *mockLedger
	excluded  *mockExclusions
	reports   *mockReports
	audit     *mockAudit
}

func newIngestFixture(t *testing.T, scanner *mockScanner, reader *mockReader) *ingestFixture {
	t.Helper()

	f := &ingestFixture{
		store:     newMockStore(),
		scanner:   scanner,
		extractor: &mockExtractor{},
		ledger:    newMockLedger(),
		excluded:  newMockExclusions(),
		reports:   &mockReports{},
		audit:     &mockAudit{},
	}

	logger := testLogger()
	metrics := &output.NoOpMetrics{}
	registry := NewVersionRegistry(f.store, f.audit, metrics, logger, "excavations")
	identity := NewIdentityAssigner(f.store, logger)
	admission := NewAdmissionFilter(AdmissionConfig{
		ThresholdBytes: 1 << 40, // Effectively no size gate for fixture dirs.
		MaxWorkers:     2,
		ArchiveExts:    []string{".zip"},
		ContainerExts:  []string{".gdb", ".gpkg"},
	}, metrics, logger)

	f.service = NewIngestService(
		IngestConfig{
			Root:         t.TempDir(),
			DirPrefix:    "A-",
			TablePrefix:  "excavations",
			CleanupEvery: 2,
			CreatedBy:    "ingest",
			Region:       "north",
		},
		f.store, reader, scanner, f.extractor,
		f.ledger, f.excluded, f.reports,
		admission, registry, identity,
		NewProgressTracker(), metrics, logger,
	)
	return f
}

func polyLayer(name string, count int64, cols ...string) *domain.LayerSchema {
	fields := []domain.FieldDef{{Name: "OBJECTID", Type: "Integer"}}
	for _, c := range cols {
		fields = append(fields, domain.FieldDef{Name: c, Type: "String"})
	}
	return &domain.LayerSchema{
		Name:         name,
		Fields:       fields,
		GeometryType: "POLYGON",
		GeometryKind: domain.GeometryPoly,
		SRID:         2039,
		FeatureCount: count,
	}
}

func TestIngestRunImportsVersionedLayers(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "A-100")
	staging := filepath.Join(dir, "extracted_files")
	staged := filepath.Join(staging, "dig.gpkg")
	extracted := filepath.Join(staging, "legacy.gpkg")

	scanner := &mockScanner{
		roots: map[string][]string{root: {dir, filepath.Join(root, "B-900")}},
		discovered: map[string]*domain.SourceDirectory{
			dir: {
				Path:       dir,
				Containers: []string{filepath.Join(dir, "dig.gpkg")},
				Archives:   []string{filepath.Join(dir, "old.zip")},
			},
		},
		containers: map[string][]string{staging: {staged, extracted}},
	}
	reader := &mockReader{
		layers: map[string][]*domain.LayerSchema{
			staged:    {polyLayer("trenches", 3, "depth", "material")},
			extracted: {polyLayer("trenches_old", 2, "depth", "material", "era")},
		},
	}

	f := newIngestFixture(t, scanner, reader)
	f.service.cfg.Root = root

	report, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.DirectoriesScanned != 1 {
		t.Errorf("DirectoriesScanned = %d, want 1 (prefix filter)", report.DirectoriesScanned)
	}
	if report.DatasetsProcessed != 2 {
		t.Errorf("DatasetsProcessed = %d, want 2", report.DatasetsProcessed)
	}
	if report.LayersImported != 2 {
		t.Errorf("LayersImported = %d, want 2", report.LayersImported)
	}
	if report.FeaturesImported != 5 {
		t.Errorf("FeaturesImported = %d, want 5", report.FeaturesImported)
	}
	if report.TokensMinted != 2 {
		t.Errorf("TokensMinted = %d, want 2", report.TokensMinted)
	}

	// Distinct signatures land in distinct versioned tables.
	for _, table := range []string{"excavations_poly_verA", "excavations_poly_verB"} {
		if _, ok := f.store.tables[table]; !ok {
			t.Errorf("table %s was not created", table)
		}
	}
	if f.store.features["excavations_poly_verA"] != 3 {
		t.Errorf("verA features = %d, want 3", f.store.features["excavations_poly_verA"])
	}
	if f.store.features["excavations_poly_verB"] != 2 {
		t.Errorf("verB features = %d, want 2", f.store.features["excavations_poly_verB"])
	}

	// One summary row per dataset, the extracted one flagged as compressed.
	if len(f.store.summaries) != 2 {
		t.Fatalf("len(summaries) = %d, want 2", len(f.store.summaries))
	}
	var fromCompressed, direct int
	for _, row := range f.store.summaries {
		if row.Region != "north" || row.CreatedBy != "ingest" {
			t.Errorf("summary audit fields = %q/%q", row.Region, row.CreatedBy)
		}
		if row.FromCompressed {
			fromCompressed++
		} else {
			direct++
		}
	}
	if fromCompressed != 1 || direct != 1 {
		t.Errorf("fromCompressed = %d direct = %d, want 1 and 1", fromCompressed, direct)
	}

	// The archive was extracted and both it and the directory are ledgered.
	if len(f.extractor.extracted) != 1 {
		t.Errorf("extracted = %v, want one archive", f.extractor.extracted)
	}
	if !f.ledger.AlreadyDone(dir) {
		t.Error("directory not marked done in ledger")
	}
	if !f.ledger.AlreadyDone(filepath.Join(dir, "old.zip")) {
		t.Error("archive not marked done in ledger")
	}
	if len(scanner.cleaned) == 0 {
		t.Error("staging was never cleaned")
	}
}

func TestIngestRunSkipsLedgeredDirectories(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "A-100")

	scanner := &mockScanner{roots: map[string][]string{root: {dir}}}
	f := newIngestFixture(t, scanner, &mockReader{})
	f.service.cfg.Root = root
	if err := f.ledger.MarkDone(dir); err != nil {
		t.Fatal(err)
	}

	report, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.DirectoriesSkipped != 1 || report.Admitted != 0 {
		t.Errorf("skipped = %d admitted = %d, want 1 and 0",
			report.DirectoriesSkipped, report.Admitted)
	}
}

func TestIngestRunSkipsExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "A-100")

	scanner := &mockScanner{roots: map[string][]string{root: {dir}}}
	f := newIngestFixture(t, scanner, &mockReader{})
	f.service.cfg.Root = root
	if err := f.excluded.Add(dir, 25.0); err != nil {
		t.Fatal(err)
	}

	report, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.DirectoriesSkipped != 1 {
		t.Errorf("DirectoriesSkipped = %d, want 1", report.DirectoriesSkipped)
	}
}

func TestIngestRunFailsWhenStoreUnreachable(t *testing.T) {
	f := newIngestFixture(t, &mockScanner{}, &mockReader{})
	f.store.pingErr = domain.ErrStoreUnavailable

	if _, err := f.service.Run(context.Background()); err == nil {
		t.Fatal("Run should fail when the store is unreachable")
	}
}

func TestIngestRunSecondPassIsIdempotent(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "A-100")
	staging := filepath.Join(dir, "extracted_files")
	staged := filepath.Join(staging, "dig.gpkg")

	scanner := &mockScanner{
		roots: map[string][]string{root: {dir}},
		discovered: map[string]*domain.SourceDirectory{
			dir: {Path: dir, Containers: []string{filepath.Join(dir, "dig.gpkg")}},
		},
		containers: map[string][]string{staging: {staged}},
	}
	reader := &mockReader{
		layers: map[string][]*domain.LayerSchema{
			staged: {polyLayer("trenches", 3, "depth")},
		},
	}

	f := newIngestFixture(t, scanner, reader)
	f.service.cfg.Root = root

	if _, err := f.service.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if second.DirectoriesSkipped != 1 || second.DatasetsProcessed != 0 {
		t.Errorf("second pass skipped = %d datasets = %d, want 1 and 0",
			second.DirectoriesSkipped, second.DatasetsProcessed)
	}
	if got := f.store.features["excavations_poly_verA"]; got != 3 {
		t.Errorf("verA features after rerun = %d, want 3", got)
	}
}

func TestIngestRunFailedDatasetLeavesDirectoryUnledgered(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "A-100")
	staging := filepath.Join(dir, "extracted_files")
	staged := filepath.Join(staging, "dig.gpkg")

	scanner := &mockScanner{
		roots: map[string][]string{root: {dir}},
		discovered: map[string]*domain.SourceDirectory{
			dir: {Path: dir, Containers: []string{filepath.Join(dir, "dig.gpkg")}},
		},
		containers: map[string][]string{staging: {staged}},
	}
	reader := &mockReader{listErr: domain.ErrContainerNotFound}

	f := newIngestFixture(t, scanner, reader)
	f.service.cfg.Root = root

	report, err := f.service.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.DatasetsFailed != 1 {
		t.Errorf("DatasetsFailed = %d, want 1", report.DatasetsFailed)
	}
	if f.ledger.AlreadyDone(dir) {
		t.Error("failed directory must not be marked done")
	}
}

func TestMirrorSyncDownloadsMissingObjects(t *testing.T) {
	root := t.TempDir()
	storage := &mockStorage{
		objects: []output.StorageObject{
			{Key: "A-100/old.zip", Size: int64(len("A-100/old.zip"))},
			{Key: "A-200/site.gpkg", Size: int64(len("A-200/site.gpkg"))},
		},
	}

	mirror := NewMirrorService(storage, root, testLogger())
	report, err := mirror.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if report.Downloaded != 2 || report.Failed != 0 {
		t.Errorf("downloaded = %d failed = %d, want 2 and 0", report.Downloaded, report.Failed)
	}

	// A second sync sees matching sizes and skips everything.
	second, err := mirror.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if second.Skipped != 2 || second.Downloaded != 0 {
		t.Errorf("skipped = %d downloaded = %d, want 2 and 0", second.Skipped, second.Downloaded)
	}
}

func TestMirrorSyncSkipsStaleListingEntries(t *testing.T) {
	root := t.TempDir()
	key := "A-100/old.zip"
	storage := &mockStorage{
		objects: []output.StorageObject{{Key: key, Size: 999}},
		missing: map[string]bool{key: true},
	}

	// A drifted local copy of an object that is gone remotely.
	dest := filepath.Join(root, "A-100", "old.zip")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := NewMirrorService(storage, root, testLogger()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if report.Skipped != 1 || report.Downloaded != 0 || report.Failed != 0 {
		t.Errorf("skipped = %d downloaded = %d failed = %d, want 1, 0, 0",
			report.Skipped, report.Downloaded, report.Failed)
	}
	if len(storage.downloaded) != 0 {
		t.Errorf("downloaded keys = %v, want none", storage.downloaded)
	}
}

func TestMirrorSyncRejectsMismatchedDownloads(t *testing.T) {
	root := t.TempDir()
	key := "A-100/old.zip"
	storage := &mockStorage{
		objects: []output.StorageObject{{Key: key, Size: int64(len(key))}},
		remote:  map[string][]byte{key: []byte("different content")},
	}

	report, err := NewMirrorService(storage, root, testLogger()).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if report.Failed != 1 || report.Downloaded != 0 {
		t.Errorf("failed = %d downloaded = %d, want 1 and 0", report.Failed, report.Downloaded)
	}
	if _, err := os.Stat(filepath.Join(root, "A-100", "old.zip")); !os.IsNotExist(err) {
		t.Error("mismatched download should be removed")
	}
}
