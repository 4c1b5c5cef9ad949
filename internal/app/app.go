// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jobrunner/strata/internal/adapters/extractor"
	"github.com/jobrunner/strata/internal/adapters/geopackage"
	"github.com/jobrunner/strata/internal/adapters/ledger"
	"github.com/jobrunner/strata/internal/adapters/metrics"
	"github.com/jobrunner/strata/internal/adapters/scanner"
	"github.com/jobrunner/strata/internal/adapters/status"
	"github.com/jobrunner/strata/internal/adapters/storage"
	"github.com/jobrunner/strata/internal/adapters/store/postgres"
	"github.com/jobrunner/strata/internal/application"
	"github.com/jobrunner/strata/internal/config"
	"github.com/jobrunner/strata/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *postgres.Store
	Ledger       *ledger.FileLedger
	VersionLog   *ledger.FileVersionLog
	Exclusions   *ledger.FileExclusionList
	Ingest       *application.IngestService
	Mirror       *application.MirrorService
	Progress     *application.ProgressTracker
	StatusServer *status.Server
	Metrics      *metrics.Collector
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewCollector("strata"),
	}

	// Initialize the PostGIS store
	store, err := postgres.NewStore(ctx, cfg.Store.DSN, cfg.Store.TablePrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	app.Store = store

	// Initialize run bookkeeping
	if err := app.openLedgers(cfg.Ledger); err != nil {
		store.Close()
		return nil, err
	}
	reports := ledger.NewYAMLReportSink(filepath.Join(cfg.Ledger.Dir, cfg.Ledger.ReportFile))

	// Initialize dataset access
	converter := geopackage.NewConverter(cfg.Corpus.ConverterBinary, logger)
	reader := geopackage.NewReader(converter, logger)

	// Initialize corpus plumbing
	corpusScanner := scanner.NewScanner(scanner.Config{
		ContainerExts:   cfg.Corpus.ContainerExts,
		ArchiveExts:     cfg.Corpus.ArchiveExts,
		ResourceDirName: cfg.Corpus.ResourceDirName,
		StagingDirName:  cfg.Corpus.StagingDirName,
	}, logger)
	archives := extractor.NewExtractor(logger)

	// Initialize application services
	admission := application.NewAdmissionFilter(application.AdmissionConfig{
		ThresholdBytes:  cfg.Admission.ThresholdBytes(),
		MaxWorkers:      cfg.Admission.MaxWorkers,
		ArchiveExts:     cfg.Corpus.ArchiveExts,
		ContainerExts:   cfg.Corpus.ContainerExts,
		ResourceDirName: cfg.Corpus.ResourceDirName,
	}, app.Metrics, logger)

	registry := application.NewVersionRegistry(store, app.VersionLog, app.Metrics, logger, cfg.Store.TablePrefix)
	identity := application.NewIdentityAssigner(store, logger)
	app.Progress = application.NewProgressTracker()

	app.Ingest = application.NewIngestService(
		application.IngestConfig{
			Root:           cfg.Corpus.Root,
			DirPrefix:      cfg.Corpus.DirPrefix,
			TablePrefix:    cfg.Store.TablePrefix,
			StagingDirName: cfg.Corpus.StagingDirName,
			CleanupEvery:   cfg.Corpus.CleanupEvery,
			CreatedBy:      cfg.Corpus.CreatedBy,
			Region:         cfg.Corpus.Region,
		},
		store,
		reader,
		corpusScanner,
		archives,
		app.Ledger,
		app.Exclusions,
		reports,
		admission,
		registry,
		identity,
		app.Progress,
		app.Metrics,
		logger,
	)

	// Initialize remote corpus mirroring
	remote, err := initStorage(ctx, cfg.Mirror)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("initializing mirror storage: %w", err)
	}
	app.Mirror = application.NewMirrorService(remote, cfg.Corpus.Root, logger)

	// Initialize status endpoint
	if cfg.Status.Enabled {
		app.StatusServer = status.NewServer(cfg.Status.Address(), app.Ingest, app.Progress, logger)
	}

	return app, nil
}

// openLedgers opens the done ledger, version audit log and exclusion list.
func (a *App) openLedgers(cfg config.LedgerConfig) error {
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}

	done, err := ledger.OpenLedger(filepath.Join(cfg.Dir, cfg.DoneFile))
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	a.Ledger = done

	versions, err := ledger.OpenVersionLog(filepath.Join(cfg.Dir, cfg.VersionLogFile))
	if err != nil {
		_ = done.Close()
		return fmt.Errorf("opening version log: %w", err)
	}
	a.VersionLog = versions

	excluded, err := ledger.OpenExclusionList(filepath.Join(cfg.Dir, cfg.ExclusionsFile))
	if err != nil {
		_ = done.Close()
		_ = versions.Close()
		return fmt.Errorf("opening exclusion list: %w", err)
	}
	a.Exclusions = excluded
	return nil
}

// StartStatus starts the status endpoint in the background, if enabled.
func (a *App) StartStatus() {
	if a.StatusServer == nil {
		return
	}
	go func() {
		a.Logger.Info("status endpoint listening", "address", a.Config.Status.Address())
		if err := a.StatusServer.Start(); err != nil && err.Error() != "http: Server closed" {
			a.Logger.Error("status endpoint error", "error", err)
		}
	}()
}

// Close releases all application resources.
func (a *App) Close() {
	if a.Exclusions != nil {
		_ = a.Exclusions.Close()
	}
	if a.VersionLog != nil {
		_ = a.VersionLog.Close()
	}
	if a.Ledger != nil {
		_ = a.Ledger.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

// Shutdown gracefully shuts down the status endpoint and closes resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	var err error
	if a.StatusServer != nil {
		err = a.StatusServer.Shutdown(ctx)
	}
	a.Close()
	return err
}

// initStorage initializes the appropriate mirror storage adapter.
func initStorage(ctx context.Context, cfg config.MirrorConfig) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case "http":
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown mirror type: %s", cfg.Type)
	}
}
