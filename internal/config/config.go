// Package config provides configuration management using Viper.
package config

import (
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Admission AdmissionConfig `mapstructure:"admission"`
	Store     StoreConfig     `mapstructure:"store"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	Status    StatusConfig    `mapstructure:"status"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CorpusConfig describes the filesystem corpus and its conventions.
type CorpusConfig struct {
	Root            string   `mapstructure:"root"`
	DirPrefix       string   `mapstructure:"dir_prefix"`
	ResourceDirName string   `mapstructure:"resource_dir_name"`
	StagingDirName  string   `mapstructure:"staging_dir_name"`
	ContainerExts   []string `mapstructure:"container_exts"`
	ArchiveExts     []string `mapstructure:"archive_exts"`
	ConverterBinary string   `mapstructure:"converter_binary"` // ogr2ogr or compatible
	CreatedBy       string   `mapstructure:"created_by"`
	Region          string   `mapstructure:"region"`
	CleanupEvery    int      `mapstructure:"cleanup_every"`
}

// AdmissionConfig holds size-gating configuration.
type AdmissionConfig struct {
	ThresholdGB float64 `mapstructure:"threshold_gb"`
	MaxWorkers  int     `mapstructure:"max_workers"`
}

// ThresholdBytes returns the admission threshold in bytes.
func (c *AdmissionConfig) ThresholdBytes() int64 {
	return int64(c.ThresholdGB * float64(1<<30))
}

// StoreConfig holds PostGIS connection configuration.
type StoreConfig struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// LedgerConfig holds the paths of the run bookkeeping files.
type LedgerConfig struct {
	Dir            string `mapstructure:"dir"`
	DoneFile       string `mapstructure:"done_file"`
	VersionLogFile string `mapstructure:"version_log_file"`
	ExclusionsFile string `mapstructure:"exclusions_file"`
	ReportFile     string `mapstructure:"report_file"`
}

// MirrorConfig holds remote corpus mirroring configuration.
type MirrorConfig struct {
	Type      string      `mapstructure:"type"` // s3, azure, http, local
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
	HTTP      HTTPConfig  `mapstructure:"http"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP download configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"` // default: index.txt
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// StatusConfig holds the health/progress HTTP endpoint configuration.
type StatusConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WatchConfig holds corpus watch mode configuration.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Corpus defaults
	viper.SetDefault("corpus.root", "./corpus")
	viper.SetDefault("corpus.dir_prefix", "A-")
	viper.SetDefault("corpus.resource_dir_name", "GIS")
	viper.SetDefault("corpus.staging_dir_name", "extracted_files")
	viper.SetDefault("corpus.container_exts", []string{".gpkg", ".gdb"})
	viper.SetDefault("corpus.archive_exts", []string{".zip", ".7z", ".rar"})
	viper.SetDefault("corpus.converter_binary", "ogr2ogr")
	viper.SetDefault("corpus.created_by", defaultCreatedBy())
	viper.SetDefault("corpus.region", "")
	viper.SetDefault("corpus.cleanup_every", 5)

	// Admission defaults
	viper.SetDefault("admission.threshold_gb", 20.0)
	viper.SetDefault("admission.max_workers", 10)

	// Store defaults
	viper.SetDefault("store.table_prefix", "excavations")

	// Ledger defaults
	viper.SetDefault("ledger.dir", "./state")
	viper.SetDefault("ledger.done_file", "done.list")
	viper.SetDefault("ledger.version_log_file", "versions.log")
	viper.SetDefault("ledger.exclusions_file", "excluded.list")
	viper.SetDefault("ledger.report_file", "skipped.yaml")

	// Mirror defaults
	viper.SetDefault("mirror.type", "local")
	viper.SetDefault("mirror.local_path", "./remote")
	viper.SetDefault("mirror.http.index_file", "index.txt")
	viper.SetDefault("mirror.http.timeout", 5*time.Minute)

	// Status defaults
	viper.SetDefault("status.enabled", true)
	viper.SetDefault("status.host", "0.0.0.0")
	viper.SetDefault("status.port", 8080)
	viper.SetDefault("status.shutdown_timeout", 10*time.Second)

	// Watch defaults
	viper.SetDefault("watch.debounce", 30*time.Second)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("STRATA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/strata")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Corpus.Root == "" {
		return fmt.Errorf("corpus root is required")
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store DSN is required")
	}
	if c.Store.TablePrefix == "" {
		return fmt.Errorf("store table prefix is required")
	}
	if c.Admission.ThresholdGB <= 0 {
		return fmt.Errorf("admission threshold must be positive, got %v", c.Admission.ThresholdGB)
	}
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > 65535) {
		return fmt.Errorf("invalid status port: %d", c.Status.Port)
	}

	switch c.Mirror.Type {
	case "local":
		if c.Mirror.LocalPath == "" {
			return fmt.Errorf("local mirror path is required")
		}
	case "s3":
		if c.Mirror.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required")
		}
		if c.Mirror.S3.Region == "" {
			return fmt.Errorf("S3 region is required")
		}
	case "azure":
		if c.Mirror.Azure.Container == "" {
			return fmt.Errorf("azure container is required")
		}
		if c.Mirror.Azure.AccountName == "" && c.Mirror.Azure.ConnectionString == "" {
			return fmt.Errorf("azure account name or connection string is required")
		}
	case "http":
		if c.Mirror.HTTP.BaseURL == "" {
			return fmt.Errorf("HTTP base URL is required")
		}
	default:
		return fmt.Errorf("unknown mirror type: %s", c.Mirror.Type)
	}

	return nil
}

// Address returns the status endpoint address string.
func (c *StatusConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// defaultCreatedBy returns the OS user running the process.
func defaultCreatedBy() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "strata"
}
