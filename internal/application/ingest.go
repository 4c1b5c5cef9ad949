package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jobrunner/strata/internal/domain"
	"github.com/jobrunner/strata/internal/ports/output"
)

// IngestConfig carries the run-level knobs of the ingestion pipeline.
type IngestConfig struct {
	Root           string // Corpus root directory
	DirPrefix      string // Candidate directories must start with this prefix
	TablePrefix    string // Versioned-table and summary-table name prefix
	StagingDirName string // Staging sub-folder created inside each source directory
	CleanupEvery   int    // Staging cleanup cadence, in processed directories
	CreatedBy      string // Audit user stamped on imported rows
	Region         string // Region tag stamped on imported rows
}

// IngestService runs one full ingestion pass over the corpus: scan,
// admission, extraction, per-layer import into versioned tables, and the
// per-dataset summary upsert. It is the application's primary service.
type IngestService struct {
	cfg       IngestConfig
	store     output.Store
	reader    output.DatasetReader
	scanner   output.CorpusScanner
	extractor output.ArchiveExtractor
	ledger    output.Ledger
	excluded  output.ExclusionList
	reports   output.ReportSink
	admission *AdmissionFilter
	registry  *VersionRegistry
	identity  *IdentityAssigner
	progress  *ProgressTracker
	metrics   output.MetricsCollector
	logger    *slog.Logger
}

// NewIngestService wires the ingestion pipeline.
func NewIngestService(
	cfg IngestConfig,
	store output.Store,
	reader output.DatasetReader,
	scanner output.CorpusScanner,
	extractor output.ArchiveExtractor,
	ledger output.Ledger,
	excluded output.ExclusionList,
	reports output.ReportSink,
	admission *AdmissionFilter,
	registry *VersionRegistry,
	identity *IdentityAssigner,
	progress *ProgressTracker,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *IngestService {
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 5
	}
	if cfg.StagingDirName == "" {
		cfg.StagingDirName = "extracted_files"
	}
	return &IngestService{
		cfg:       cfg,
		store:     store,
		reader:    reader,
		scanner:   scanner,
		extractor: extractor,
		ledger:    ledger,
		excluded:  excluded,
		reports:   reports,
		admission: admission,
		registry:  registry,
		identity:  identity,
		progress:  progress,
		metrics:   metrics,
		logger:    logger,
	}
}

// IsHealthy implements the health port.
func (s *IngestService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady reports whether the store can serve a run.
func (s *IngestService) IsReady(ctx context.Context) bool {
	return s.store.Ping(ctx) == nil
}

// Run executes one full ingestion pass. Per-directory and per-dataset
// failures are recorded in the report and do not abort the pass; only an
// unreachable store or a cancelled context do.
func (s *IngestService) Run(ctx context.Context) (*domain.RunReport, error) {
	report := &domain.RunReport{Started: time.Now().UTC()}
	s.progress.Reset()
	s.progress.SetPhase(domain.PhaseConnecting)

	if err := s.store.Ping(ctx); err != nil {
		s.progress.SetPhase(domain.PhaseIdle)
		return nil, fmt.Errorf("store unreachable: %w", errors.Join(domain.ErrStoreUnavailable, err))
	}

	s.identity.Initialize(ctx)
	if err := s.registry.Reconcile(ctx); err != nil {
		// Safe to proceed: table creation is idempotent, re-mints land on
		// existing tables.
		s.logger.Warn("version registry reconciliation failed, starting empty", "error", err)
	}

	batchID, err := s.store.NextBatchID(ctx)
	if err != nil {
		s.logger.Warn("drawing batch id failed, stamping rows with batch 0", "error", err)
		batchID = 0
	}
	s.logger.Info("ingestion run starting",
		"root", s.cfg.Root, "prefix", s.cfg.DirPrefix, "batch_id", batchID)

	s.progress.SetPhase(domain.PhaseScanning)
	candidates, err := s.scanner.ScanRoot(ctx, s.cfg.Root, s.cfg.DirPrefix)
	if err != nil {
		return nil, fmt.Errorf("scanning corpus root %s: %w", s.cfg.Root, err)
	}
	report.DirectoriesScanned = len(candidates)
	s.metrics.AddDirectoriesScanned(len(candidates))

	// Ledger and exclusion-list skips happen before any sizing work.
	fresh := make([]string, 0, len(candidates))
	for _, dir := range candidates {
		switch {
		case s.excluded.Contains(dir):
			s.logger.Debug("skipping excluded directory", "dir", dir)
			report.DirectoriesSkipped++
		case s.ledger.AlreadyDone(dir):
			s.logger.Debug("skipping completed directory", "dir", dir)
			report.DirectoriesSkipped++
		default:
			fresh = append(fresh, dir)
		}
	}
	s.progress.AddSkipped(report.DirectoriesSkipped)

	s.progress.SetPhase(domain.PhaseFiltering)
	admitted, rejected := s.admission.Evaluate(ctx, fresh)
	report.Admitted = len(admitted)
	for _, est := range rejected {
		skip := domain.SkippedDirectory{Path: est.Dir, EstimatedGB: est.GB()}
		report.Excluded = append(report.Excluded, skip)
		s.logger.Warn("directory exceeds size threshold, excluding",
			"dir", est.Dir, "estimated_gb", fmt.Sprintf("%.1f", est.GB()))
		if err := s.excluded.Add(est.Dir, est.GB()); err != nil {
			s.logger.Error("persisting exclusion", "dir", est.Dir, "error", err)
		}
	}
	if len(report.Excluded) > 0 {
		if err := s.reports.WriteSkipped(report.Excluded); err != nil {
			s.logger.Error("writing skipped-directory report", "error", err)
		}
	}

	s.progress.SetPhase(domain.PhaseIngesting)
	s.progress.SetDirectoriesTotal(len(admitted))

	var stagingDirs []string
	for i, dir := range admitted {
		if err := ctx.Err(); err != nil {
			report.Finished = time.Now().UTC()
			return report, err
		}

		s.progress.StartDirectory(dir)
		staged, err := s.processDirectory(ctx, dir, batchID, report)
		if err != nil {
			s.logger.Error("directory processing failed", "dir", dir, "error", err)
		}
		if staged != "" {
			stagingDirs = append(stagingDirs, staged)
		}
		s.progress.FinishDirectory()
		s.progress.SetTokensMinted(s.registry.Minted())

		if (i+1)%s.cfg.CleanupEvery == 0 {
			stagingDirs = s.cleanStaging(ctx, stagingDirs)
		}
	}

	s.progress.SetPhase(domain.PhaseCleanup)
	s.cleanStaging(ctx, stagingDirs)

	report.TokensMinted = s.registry.Minted()
	report.Finished = time.Now().UTC()
	s.metrics.SetDatasetsProcessed(report.DatasetsProcessed)
	s.progress.SetPhase(domain.PhaseDone)

	s.logger.Info("ingestion run finished",
		"duration", report.Duration().Round(time.Second).String(),
		"scanned", report.DirectoriesScanned,
		"admitted", report.Admitted,
		"excluded", len(report.Excluded),
		"datasets", report.DatasetsProcessed,
		"layers", report.LayersImported,
		"features", report.FeaturesImported,
		"tokens_minted", report.TokensMinted,
	)
	return report, nil
}

// cleanStaging prunes non-container leftovers from each staging directory
// and returns the directories that still need cleaning later.
func (s *IngestService) cleanStaging(ctx context.Context, dirs []string) []string {
	for _, dir := range dirs {
		if err := s.scanner.CleanStaging(ctx, dir); err != nil {
			s.logger.Warn("staging cleanup failed", "dir", dir, "error", err)
		}
	}
	return nil
}

// processDirectory runs the full pipeline for one admitted source
// directory: discovery, staging, archive extraction, dataset import. It
// returns the staging directory path when one was populated. The directory
// is marked done in the ledger only when every dataset imported cleanly.
func (s *IngestService) processDirectory(ctx context.Context, dir string, batchID int64, report *domain.RunReport) (string, error) {
	src, err := s.scanner.Discover(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("discovering %s: %w", dir, err)
	}
	if !src.HasResources() {
		s.logger.Debug("no GIS resources found", "dir", dir)
		if err := s.ledger.MarkDone(dir); err != nil {
			s.logger.Error("marking directory done", "dir", dir, "error", err)
		}
		return "", nil
	}

	stagingDir := filepath.Join(dir, s.cfg.StagingDirName)
	if err := s.scanner.StageContainers(ctx, src, stagingDir); err != nil {
		return "", fmt.Errorf("staging containers for %s: %w", dir, err)
	}

	// Containers staged straight from the directory keep their basenames;
	// anything else in staging came out of an archive.
	stagedNames := make(map[string]bool, len(src.Containers))
	for _, c := range src.Containers {
		stagedNames[filepath.Base(c)] = true
	}

	for _, archive := range src.Archives {
		if s.ledger.AlreadyDone(archive) {
			s.logger.Debug("archive already extracted", "archive", archive)
			continue
		}
		if !s.extractor.Supported(archive) {
			s.logger.Warn("unsupported archive format", "archive", archive)
			continue
		}
		if err := s.extractor.Extract(ctx, archive, stagingDir); err != nil {
			s.metrics.IncArchivesExtracted(false)
			s.logger.Error("archive extraction failed", "archive", archive, "error", err)
			continue
		}
		s.metrics.IncArchivesExtracted(true)
		if err := s.ledger.MarkDone(archive); err != nil {
			s.logger.Error("marking archive done", "archive", archive, "error", err)
		}
	}

	containers, err := s.scanner.FindContainers(ctx, stagingDir)
	if err != nil {
		return stagingDir, fmt.Errorf("finding containers in %s: %w", stagingDir, err)
	}
	if len(containers) == 0 {
		s.logger.Info("no dataset containers after staging", "dir", dir)
	}

	clean := true
	for _, container := range containers {
		fromCompressed := !stagedNames[filepath.Base(container)]
		if err := s.processDataset(ctx, dir, container, fromCompressed, batchID, report); err != nil {
			report.DatasetsFailed++
			clean = false
			s.logger.Error("dataset processing failed",
				"dir", dir, "container", container, "error", err)
			continue
		}
		report.DatasetsProcessed++
		s.progress.AddDataset()
	}

	if clean {
		if err := s.ledger.MarkDone(dir); err != nil {
			s.logger.Error("marking directory done", "dir", dir, "error", err)
		}
	}
	return stagingDir, nil
}

// processDataset imports every feature layer of one dataset container and
// upserts its summary row.
func (s *IngestService) processDataset(ctx context.Context, sourceDir, container string, fromCompressed bool, batchID int64, report *domain.RunReport) error {
	datasetName := filepath.Base(container)
	ingestionID := s.identity.GetOrCreate(container)
	logger := s.logger.With("dataset", datasetName, "ingestion_id", ingestionID)

	layers, err := s.reader.ListLayers(ctx, container)
	if err != nil {
		return fmt.Errorf("listing layers of %s: %w", container, err)
	}
	if len(layers) == 0 {
		logger.Warn("container holds no feature layers")
		return nil
	}

	meta := domain.ImportMeta{
		IngestionID:     ingestionID,
		BatchID:         batchID,
		SourceDirectory: sourceDir,
		DatasetName:     datasetName,
		CreatedBy:       s.cfg.CreatedBy,
		Region:          s.cfg.Region,
	}
	mint := MintContext{SourceDirectory: sourceDir, DatasetName: datasetName}

	stats := make(map[domain.GeometryKind]domain.LayerStats)
	var failed int
	for _, layer := range layers {
		n, kind, token, err := s.importLayer(ctx, container, layer, meta, mint)
		if err != nil {
			failed++
			s.metrics.IncLayersImported(false)
			logger.Error("layer import failed", "layer", layer, "error", err)
			continue
		}
		if kind == "" {
			continue // Skipped, not failed (non-spatial or empty signature).
		}
		s.metrics.IncLayersImported(true)
		s.metrics.AddFeaturesImported(n)
		report.LayersImported++
		report.FeaturesImported += n
		s.progress.AddLayer(n)

		st := stats[kind]
		st.Version = token
		st.FeatureCount += n
		stats[kind] = st
	}

	row := &domain.SummaryRow{
		IngestionID:     ingestionID,
		DatasetName:     datasetName,
		SourceDirectory: sourceDir,
		FromCompressed:  fromCompressed,
		Region:          s.cfg.Region,
		CreatedBy:       s.cfg.CreatedBy,
		Stats:           stats,
	}
	if err := s.store.UpsertSummary(ctx, row); err != nil {
		return fmt.Errorf("upserting summary for %s: %w", datasetName, err)
	}
	logger.Info("dataset processed",
		"layers", len(layers), "failed_layers", failed, "from_compressed", fromCompressed)

	if failed > 0 {
		return &domain.ImportError{Container: container, Err: fmt.Errorf("%d of %d layers failed", failed, len(layers))}
	}
	return nil
}

// importLayer routes one layer to its versioned table and bulk-imports its
// features. A zero kind return means the layer was skipped on purpose.
func (s *IngestService) importLayer(ctx context.Context, container, layer string, meta domain.ImportMeta, mint MintContext) (int64, domain.GeometryKind, domain.VersionToken, error) {
	start := time.Now()

	schema, err := s.reader.DescribeLayer(ctx, container, layer)
	if err != nil {
		return 0, "", 0, fmt.Errorf("describing layer: %w", err)
	}
	if schema.GeometryKind == "" || !schema.GeometryKind.Valid() {
		s.logger.Warn("skipping layer with unsupported geometry",
			"layer", layer, "geometry_type", schema.GeometryType)
		return 0, "", 0, nil
	}

	sig := schema.Signature()
	if sig.Empty() {
		s.logger.Warn("skipping layer without attribute columns", "layer", layer)
		return 0, "", 0, nil
	}

	token, err := s.registry.GetOrCreate(ctx, schema.GeometryKind, sig, mint)
	if err != nil {
		return 0, "", 0, fmt.Errorf("resolving version token: %w", err)
	}
	table := domain.TableName(s.cfg.TablePrefix, schema.GeometryKind, token)

	exists, err := s.store.TableExists(ctx, table)
	if err != nil {
		return 0, "", 0, fmt.Errorf("checking table %s: %w", table, err)
	}
	if exists {
		if err := s.checkTableSignature(ctx, table, sig); err != nil {
			return 0, "", 0, err
		}
	} else {
		if err := s.store.CreateVersionedTable(ctx, table, schema); err != nil {
			return 0, "", 0, fmt.Errorf("creating table %s: %w", table, err)
		}
		s.logger.Info("created versioned table", "table", table, "layer", layer)
	}

	cursor, err := s.reader.ReadFeatures(ctx, container, layer)
	if err != nil {
		return 0, "", 0, fmt.Errorf("reading features: %w", err)
	}
	defer cursor.Close()

	n, err := s.store.ImportFeatures(ctx, table, schema, cursor, meta)
	if err != nil {
		return 0, "", 0, &domain.ImportError{Container: container, Layer: layer, Table: table, Err: err}
	}
	s.metrics.ObserveImportDuration(time.Since(start))

	s.logger.Info("layer imported",
		"layer", layer, "table", table, "features", n,
		"duration", time.Since(start).Round(time.Millisecond).String())
	return n, schema.GeometryKind, token, nil
}

// checkTableSignature guards against schema drift between the layer that
// minted a token and the table serving it. A mismatch means the table was
// altered out of band; importing into it would corrupt the version space.
func (s *IngestService) checkTableSignature(ctx context.Context, table string, sig domain.ColumnSignature) error {
	cols, err := s.store.TableColumns(ctx, table)
	if err != nil {
		return fmt.Errorf("reading columns of %s: %w", table, err)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	existing := domain.SignatureFromTableColumns(names)
	if !existing.Equal(sig) {
		s.logger.Error("table columns diverge from layer signature",
			"table", table,
			"table_signature", existing.Key(),
			"layer_signature", sig.Key(),
		)
		return fmt.Errorf("table %s: column signature mismatch: %w", table, domain.ErrInternal)
	}
	return nil
}
