package application

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jobrunner/strata/internal/domain"
	"github.com/jobrunner/strata/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockStore implements output.Store for testing. Tables are kept in memory
// as column lists; imports append to features.
type mockStore struct {
	mu            sync.Mutex
	tables        map[string][]output.Column
	features      map[string]int64
	summaries     map[int64]*domain.SummaryRow
	maxIdentity   int64
	batchID       int64
	pingErr       error
	listErr       error
	columnsErr    error
	createErr     error
	importErr     error
	maxIDErr      error
	createdTables []string
}

func newMockStore() *mockStore {
	return &mockStore{
		tables:    make(map[string][]output.Column),
		features:  make(map[string]int64),
		summaries: make(map[int64]*domain.SummaryRow),
		batchID:   7,
	}
}

func (m *mockStore) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *mockStore) TableExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[name]
	return ok, nil
}

func (m *mockStore) CreateVersionedTable(_ context.Context, name string, layer *domain.LayerSchema) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cols := []output.Column{{Name: "id", Type: "bigint"}}
	for _, f := range layer.Fields {
		cols = append(cols, output.Column{Name: f.Name, Type: f.Type})
	}
	cols = append(cols,
		output.Column{Name: "source_directory", Type: "text"},
		output.Column{Name: "ingestion_id", Type: "bigint"},
	)
	m.tables[name] = cols
	m.createdTables = append(m.createdTables, name)
	return nil
}

func (m *mockStore) ListVersionedTables(_ context.Context, prefix string) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.tables {
		names = append(names, name)
	}
	return names, nil
}

func (m *mockStore) TableColumns(_ context.Context, name string) ([]output.Column, error) {
	if m.columnsErr != nil {
		return nil, m.columnsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cols, ok := m.tables[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cols, nil
}

func (m *mockStore) ImportFeatures(_ context.Context, table string, _ *domain.LayerSchema, cursor output.FeatureCursor, _ domain.ImportMeta) (int64, error) {
	if m.importErr != nil {
		return 0, m.importErr
	}
	var n int64
	for cursor.Next() {
		if _, _, err := cursor.Row(); err != nil {
			return n, err
		}
		n++
	}
	if err := cursor.Err(); err != nil {
		return n, err
	}
	m.mu.Lock()
	m.features[table] += n
	m.mu.Unlock()
	return n, nil
}

func (m *mockStore) UpsertSummary(_ context.Context, row *domain.SummaryRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[row.IngestionID] = row
	return nil
}

func (m *mockStore) MaxSummaryIdentity(_ context.Context) (int64, error) {
	if m.maxIDErr != nil {
		return 0, m.maxIDErr
	}
	return m.maxIdentity, nil
}

func (m *mockStore) NextBatchID(_ context.Context) (int64, error) {
	return m.batchID, nil
}

func (m *mockStore) Close() {}

// sliceCursor implements output.FeatureCursor over in-memory rows.
type sliceCursor struct {
	columns []string
	rows    [][]any
	pos     int
	err     error
}

func (c *sliceCursor) Columns() []string { return c.columns }

func (c *sliceCursor) Next() bool {
	if c.pos >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Row() ([]any, []byte, error) {
	return c.rows[c.pos-1], nil, nil
}

func (c *sliceCursor) Err() error   { return c.err }
func (c *sliceCursor) Close() error { return nil }

// mockReader implements output.DatasetReader for testing, keyed by
// container path.
type mockReader struct {
	layers  map[string][]*domain.LayerSchema
	listErr error
}

func (m *mockReader) ListLayers(_ context.Context, containerPath string) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	schemas, ok := m.layers[containerPath]
	if !ok {
		return nil, domain.ErrContainerNotFound
	}
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
	}
	return names, nil
}

func (m *mockReader) DescribeLayer(_ context.Context, containerPath, layer string) (*domain.LayerSchema, error) {
	for _, s := range m.layers[containerPath] {
		if s.Name == layer {
			return s, nil
		}
	}
	return nil, domain.ErrLayerNotFound
}

func (m *mockReader) ReadFeatures(_ context.Context, containerPath, layer string) (output.FeatureCursor, error) {
	schema, err := m.DescribeLayer(context.Background(), containerPath, layer)
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, f := range schema.Fields {
		if !domain.IsSystemColumn(f.Name) {
			cols = append(cols, f.Name)
		}
	}
	rows := make([][]any, schema.FeatureCount)
	for i := range rows {
		rows[i] = make([]any, len(cols))
	}
	return &sliceCursor{columns: cols, rows: rows}, nil
}

func (m *mockReader) Close() error { return nil }

// mockScanner implements output.CorpusScanner over in-memory fixtures.
type mockScanner struct {
	roots      map[string][]string
	discovered map[string]*domain.SourceDirectory
	containers map[string][]string
	cleaned    []string
}

func (m *mockScanner) ScanRoot(_ context.Context, root, prefix string) ([]string, error) {
	var out []string
	for _, dir := range m.roots[root] {
		if strings.HasPrefix(filepath.Base(dir), prefix) {
			out = append(out, dir)
		}
	}
	return out, nil
}

func (m *mockScanner) Discover(_ context.Context, dir string) (*domain.SourceDirectory, error) {
	if src, ok := m.discovered[dir]; ok {
		return src, nil
	}
	return &domain.SourceDirectory{Path: dir}, nil
}

func (m *mockScanner) StageContainers(_ context.Context, _ *domain.SourceDirectory, _ string) error {
	return nil
}

func (m *mockScanner) FindContainers(_ context.Context, dir string) ([]string, error) {
	return m.containers[dir], nil
}

func (m *mockScanner) CleanStaging(_ context.Context, stagingRoot string) error {
	m.cleaned = append(m.cleaned, stagingRoot)
	return nil
}

// mockExtractor implements output.ArchiveExtractor for testing.
type mockExtractor struct {
	extracted  []string
	extractErr error
}

func (m *mockExtractor) Supported(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".zip" || ext == ".7z" || ext == ".rar"
}

func (m *mockExtractor) Extract(_ context.Context, path, _ string) error {
	if m.extractErr != nil {
		return m.extractErr
	}
	m.extracted = append(m.extracted, path)
	return nil
}

// mockLedger implements output.Ledger in memory.
type mockLedger struct {
	done map[string]bool
}

func newMockLedger() *mockLedger {
	return &mockLedger{done: make(map[string]bool)}
}

func (m *mockLedger) AlreadyDone(key string) bool { return m.done[key] }

func (m *mockLedger) MarkDone(key string) error {
	m.done[key] = true
	return nil
}

func (m *mockLedger) Close() error { return nil }

// mockAudit implements output.VersionAuditLog, recording mints.
type mockAudit struct {
	records []output.MintRecord
	err     error
}

func (m *mockAudit) RecordMint(rec output.MintRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

// mockExclusions implements output.ExclusionList in memory.
type mockExclusions struct {
	dirs map[string]float64
}

func newMockExclusions() *mockExclusions {
	return &mockExclusions{dirs: make(map[string]float64)}
}

func (m *mockExclusions) Contains(dir string) bool {
	_, ok := m.dirs[filepath.Base(dir)]
	return ok
}

func (m *mockExclusions) Add(dir string, estimatedGB float64) error {
	m.dirs[filepath.Base(dir)] = estimatedGB
	return nil
}

// mockReports implements output.ReportSink, capturing the last report.
type mockReports struct {
	skipped []domain.SkippedDirectory
}

func (m *mockReports) WriteSkipped(skipped []domain.SkippedDirectory) error {
	m.skipped = skipped
	return nil
}

// mockStorage implements output.ObjectStorage for mirror testing. Object
// content defaults to the key bytes; remote overrides it per key.
type mockStorage struct {
	objects     []output.StorageObject
	listErr     error
	downloadErr error
	downloaded  []string
	remote      map[string][]byte
	missing     map[string]bool
}

func (m *mockStorage) content(key string) []byte {
	if body, ok := m.remote[key]; ok {
		return body
	}
	return []byte(key)
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.objects, nil
}

func (m *mockStorage) Download(_ context.Context, key, dest string) error {
	if m.downloadErr != nil {
		return m.downloadErr
	}
	if err := os.WriteFile(dest, []byte(key), 0o644); err != nil {
		return err
	}
	m.downloaded = append(m.downloaded, key)
	return nil
}

func (m *mockStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.content(key))), nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	return !m.missing[key], nil
}
