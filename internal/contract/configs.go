package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/huangsam/locstat/schema"
	"github.com/sirupsen/logrus"
)

// Default values for configuration.
const (
	DefaultResultLimit  = 25
	MaxResultLimit      = 1000
	DefaultPrecision    = 1
	DefaultMaxEntries   = 4096
	DefaultListen       = ":5000"
	DefaultFreshness    = 30 * time.Minute
	DefaultRetention    = time.Hour
	DefaultFetchTimeout = 300 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultArchivePath  = "results"
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// DefaultStorageRoot is where repositories are materialized unless overridden.
var DefaultStorageRoot = filepath.Join(os.TempDir(), "locstat_repos")

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// ArchiveConfig holds the S3-compatible archive sink settings.
type ArchiveConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string // Please use env var as this is plaintext
	SecretKey string // Please use env var as this is plaintext
	Region    string
	UseSSL    bool
}

// Enabled reports whether an archive endpoint is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

// Config holds the runtime configuration.
// This struct is the "final, validated" config.
type Config struct {
	StorageRoot       string
	Freshness         time.Duration
	Retention         time.Duration
	FetchTimeout      time.Duration
	Fetcher           schema.FetcherKind
	AllowLocalSources bool
	Workers           int
	MaxEntries        int
	Excludes          []string

	ResultLimit int
	Precision   int
	Output      schema.OutputMode
	OutputFile  string
	Width       int // Terminal width override (0 = auto-detect)
	UseColors   bool

	Listen    string
	LogLevel  logrus.Level
	LogFormat string

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	AnalysisBackend   schema.DatabaseBackend
	AnalysisDBConnect string // Please use env var as this is plaintext

	Archive ArchiveConfig
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Engine settings ---
	StorageRoot       string `mapstructure:"storage-root"`
	Freshness         string `mapstructure:"freshness"`
	Retention         string `mapstructure:"retention"`
	FetchTimeout      string `mapstructure:"fetch-timeout"`
	Fetcher           string `mapstructure:"fetcher"`
	AllowLocalSources bool   `mapstructure:"allow-local-sources"`
	Workers           int    `mapstructure:"workers"`
	MaxEntries        int    `mapstructure:"max-entries"`
	Exclude           string `mapstructure:"exclude"`

	// --- Output settings ---
	Limit      int    `mapstructure:"limit"`
	Precision  int    `mapstructure:"precision"`
	Output     string `mapstructure:"output"`
	OutputFile string `mapstructure:"output-file"`
	Width      int    `mapstructure:"width"`
	Color      string `mapstructure:"color"`

	// --- Service settings ---
	Listen    string `mapstructure:"listen"`
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	// --- Persistence settings ---
	CacheBackend      string `mapstructure:"cache-backend"`
	CacheDBConnect    string `mapstructure:"cache-db-connect"`
	AnalysisBackend   string `mapstructure:"analysis-backend"`
	AnalysisDBConnect string `mapstructure:"analysis-db-connect"`

	// --- Archive settings ---
	ArchiveEndpoint  string `mapstructure:"archive-endpoint"`
	ArchiveBucket    string `mapstructure:"archive-bucket"`
	ArchivePrefix    string `mapstructure:"archive-prefix"`
	ArchiveAccessKey string `mapstructure:"archive-access-key"`
	ArchiveSecretKey string `mapstructure:"archive-secret-key"`
	ArchiveRegion    string `mapstructure:"archive-region"`
	ArchiveUseSSL    bool   `mapstructure:"archive-use-ssl"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Excludes != nil {
		clone.Excludes = make([]string, len(c.Excludes))
		copy(clone.Excludes, c.Excludes)
	}
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateEngineInputs(cfg, input); err != nil {
		return err
	}
	if err := validateOutputInputs(cfg, input); err != nil {
		return err
	}
	if err := validateServiceInputs(cfg, input); err != nil {
		return err
	}
	if err := validateBackendConfigs(cfg, input); err != nil {
		return err
	}
	return validateArchiveConfig(cfg, input)
}

// parseDurationOr parses s, falling back to def when s is empty.
func parseDurationOr(name, s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid --%s value %q. Expected a duration like 30m or 1h: %w", name, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--%s must be positive (received %s)", name, s)
	}
	return d, nil
}

// validateEngineInputs processes the settings used by the analysis engine.
func validateEngineInputs(cfg *Config, input *ConfigRawInput) error {
	var err error

	// --- 1. Storage root ---
	root := strings.TrimSpace(input.StorageRoot)
	if root == "" {
		root = DefaultStorageRoot
	}
	if cfg.StorageRoot, err = filepath.Abs(root); err != nil {
		return fmt.Errorf("invalid storage root %q: %w", root, err)
	}

	// --- 2. Durations ---
	if cfg.Freshness, err = parseDurationOr("freshness", input.Freshness, DefaultFreshness); err != nil {
		return err
	}
	if cfg.Retention, err = parseDurationOr("retention", input.Retention, DefaultRetention); err != nil {
		return err
	}
	if cfg.FetchTimeout, err = parseDurationOr("fetch-timeout", input.FetchTimeout, DefaultFetchTimeout); err != nil {
		return err
	}

	// --- 3. Fetcher ---
	cfg.Fetcher = schema.FetcherKind(strings.ToLower(strings.TrimSpace(input.Fetcher)))
	if cfg.Fetcher == "" {
		cfg.Fetcher = schema.GitCLIFetcher
	}
	if _, ok := schema.ValidFetcherKinds[cfg.Fetcher]; !ok {
		return fmt.Errorf("invalid fetcher '%s'. must be git or go-git", input.Fetcher)
	}
	cfg.AllowLocalSources = input.AllowLocalSources

	// --- 4. Workers and capacity ---
	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers
	if input.MaxEntries <= 0 {
		return fmt.Errorf("max-entries must be greater than 0 (received %d)", input.MaxEntries)
	}
	cfg.MaxEntries = input.MaxEntries

	// --- 5. Excludes ---
	cfg.Excludes = nil
	for p := range strings.SplitSeq(input.Exclude, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			cfg.Excludes = append(cfg.Excludes, trimmed)
		}
	}
	return nil
}

// validateOutputInputs processes presentation settings.
func validateOutputInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	if input.Limit <= 0 || input.Limit > MaxResultLimit {
		return fmt.Errorf("limit must be greater than 0 and cannot exceed %d (received %d)", MaxResultLimit, input.Limit)
	}
	cfg.ResultLimit = input.Limit

	if input.Precision < 1 || input.Precision > 2 {
		return fmt.Errorf("precision must be 1 or 2 (received %d)", input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, json, csv, yaml, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("--output-file is required for parquet output")
	}
	return nil
}

// validateServiceInputs processes listener and logging settings.
func validateServiceInputs(cfg *Config, input *ConfigRawInput) error {
	cfg.Listen = strings.TrimSpace(input.Listen)
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}

	levelStr := input.LogLevel
	if levelStr == "" {
		levelStr = DefaultLogLevel
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid --log-level value: %w", err)
	}
	cfg.LogLevel = level

	cfg.LogFormat = strings.ToLower(strings.TrimSpace(input.LogFormat))
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log format '%s'. must be text or json", input.LogFormat)
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("a connection string is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates result and analysis backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Result Store Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = schema.NoneBackend
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.CacheBackend]; !ok {
		return fmt.Errorf("invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return err
	}

	// --- Analysis Backend Validation ---
	cfg.AnalysisBackend = schema.DatabaseBackend(strings.ToLower(input.AnalysisBackend))
	if cfg.AnalysisBackend == "" {
		cfg.AnalysisBackend = schema.NoneBackend
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.AnalysisBackend]; !ok {
		return fmt.Errorf("invalid analysis backend '%s'. must be sqlite, mysql, postgresql, none", input.AnalysisBackend)
	}
	cfg.AnalysisDBConnect = input.AnalysisDBConnect
	if err := ValidateDatabaseConnectionString(cfg.AnalysisBackend, cfg.AnalysisDBConnect); err != nil {
		return err
	}

	// Validate that both stores do not share one SQLite file
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.AnalysisBackend == schema.SQLiteBackend {
		cacheDBPath := cfg.CacheDBConnect
		if cacheDBPath == "" {
			cacheDBPath = GetCacheDBFilePath()
		}
		analysisDBPath := cfg.AnalysisDBConnect
		if analysisDBPath == "" {
			analysisDBPath = GetAnalysisDBFilePath()
		}
		if cacheDBPath == analysisDBPath {
			return fmt.Errorf("cache and analysis storage must use different SQLite database files. Both resolve to %q", cacheDBPath)
		}
	}
	return nil
}

// validateArchiveConfig validates the optional archive sink settings.
func validateArchiveConfig(cfg *Config, input *ConfigRawInput) error {
	cfg.Archive = ArchiveConfig{
		Endpoint:  strings.TrimSpace(input.ArchiveEndpoint),
		Bucket:    strings.TrimSpace(input.ArchiveBucket),
		Prefix:    strings.Trim(strings.TrimSpace(input.ArchivePrefix), "/"),
		AccessKey: input.ArchiveAccessKey,
		SecretKey: input.ArchiveSecretKey,
		Region:    input.ArchiveRegion,
		UseSSL:    input.ArchiveUseSSL,
	}
	if !cfg.Archive.Enabled() {
		return nil
	}
	if strings.Contains(cfg.Archive.Endpoint, "://") {
		return fmt.Errorf("archive endpoint must be host[:port] without a scheme (received %q)", cfg.Archive.Endpoint)
	}
	if cfg.Archive.Bucket == "" {
		return fmt.Errorf("archive-bucket is required when archive-endpoint is set")
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = DefaultArchivePath
	}
	return nil
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}
