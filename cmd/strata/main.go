// Package main provides the entry point for the strata ingestion service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/strata/internal/adapters/watcher"
	"github.com/jobrunner/strata/internal/app"
	"github.com/jobrunner/strata/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - spatial corpus ingestion into schema-versioned PostGIS tables",
	Long: `Strata ingests a filesystem corpus of spatial datasets (FileGDB and
GeoPackage, plain or archived) into PostGIS. Layers are routed into
geometry-split tables whose version suffix is minted from the layer's
column signature, so every schema variant found in the corpus lands in
its own stable table.

Features:
  - Column-signature based schema versioning (verA, verB, ...)
  - Size-gated admission of source directories
  - zip/7z/rar archive extraction with idempotent staging
  - Per-dataset ingestion identities and batch stamping
  - Remote corpus mirroring (local, AWS S3, Azure, HTTP)
  - Prometheus metrics and a progress endpoint`,
	RunE: runIngest,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run continuously, triggering a pass when new directories arrive",
	RunE:  runWatch,
}

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Mirror the remote corpus into the local corpus root",
	RunE:  runMirror,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("Strata %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")

	// Corpus flags
	rootCmd.PersistentFlags().String("root", "./corpus", "corpus root directory")
	rootCmd.PersistentFlags().String("dir-prefix", "A-", "candidate directory name prefix")

	// Store flags
	rootCmd.PersistentFlags().String("dsn", "", "PostGIS connection string")
	rootCmd.PersistentFlags().String("table-prefix", "excavations", "versioned table name prefix")

	// Admission flags
	rootCmd.PersistentFlags().Float64("threshold-gb", 20.0, "admission size threshold in GB")

	// Status flags
	rootCmd.PersistentFlags().Int("port", 8080, "status endpoint port")

	// Mirror flags
	mirrorCmd.Flags().String("mirror-type", "local", "mirror type (local, s3, azure, http)")
	mirrorCmd.Flags().String("mirror-path", "./remote", "local mirror path")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("corpus.root", rootCmd.PersistentFlags().Lookup("root"))
	_ = viper.BindPFlag("corpus.dir_prefix", rootCmd.PersistentFlags().Lookup("dir-prefix"))
	_ = viper.BindPFlag("store.dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	_ = viper.BindPFlag("store.table_prefix", rootCmd.PersistentFlags().Lookup("table-prefix"))
	_ = viper.BindPFlag("admission.threshold_gb", rootCmd.PersistentFlags().Lookup("threshold-gb"))
	_ = viper.BindPFlag("status.port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("mirror.type", mirrorCmd.Flags().Lookup("mirror-type"))
	_ = viper.BindPFlag("mirror.local_path", mirrorCmd.Flags().Lookup("mirror-path"))

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mirrorCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// setup loads config, builds the logger and wires the application.
func setup(ctx context.Context) (*app.App, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting Strata",
		"version", version,
		"corpus_root", cfg.Corpus.Root,
		"table_prefix", cfg.Store.TablePrefix,
	)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing application: %w", err)
	}
	return application, logger, nil
}

func runIngest(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	application.StartStatus()

	report, err := application.Ingest.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingestion pass failed: %w", err)
	}

	logger.Info("ingestion pass complete",
		"scanned", report.DirectoriesScanned,
		"admitted", report.Admitted,
		"skipped", report.DirectoriesSkipped,
		"datasets", report.DatasetsProcessed,
		"layers", report.LayersImported,
		"features", report.FeaturesImported,
	)
	return nil
}

func runWatch(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, logger, err := setup(ctx)
	if err != nil {
		return err
	}

	application.StartStatus()

	// One pass over whatever is already in the corpus before watching.
	if _, err := application.Ingest.Run(ctx); err != nil {
		logger.Error("initial ingestion pass failed", "error", err)
	}

	w, err := watcher.New(
		watcher.Config{
			Root:      application.Config.Corpus.Root,
			DirPrefix: application.Config.Corpus.DirPrefix,
			Debounce:  application.Config.Watch.Debounce,
		},
		func(ctx context.Context) error {
			_, err := application.Ingest.Run(ctx)
			return err
		},
		logger,
	)
	if err != nil {
		application.Close()
		return fmt.Errorf("initializing watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		application.Close()
		return fmt.Errorf("starting watcher: %w", err)
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")
	_ = w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), application.Config.Status.ShutdownTimeout)
	defer shutdownCancel()
	return application.Shutdown(shutdownCtx)
}

func runMirror(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, logger, err := setup(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.Mirror.Sync(ctx)
	if err != nil {
		return fmt.Errorf("mirror sync failed: %w", err)
	}

	logger.Info("mirror sync complete",
		"listed", report.Listed,
		"downloaded", report.Downloaded,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"bytes", report.Bytes,
		"duration", report.Duration,
	)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
