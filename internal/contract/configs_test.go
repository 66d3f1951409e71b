package contract

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/locstat/schema"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validInput returns raw input equivalent to the CLI defaults.
func validInput() *ConfigRawInput {
	return &ConfigRawInput{
		StorageRoot:  filepath.Join("tmp", "repos"),
		Workers:      4,
		MaxEntries:   DefaultMaxEntries,
		Limit:        10,
		Precision:    1,
		Output:       "text",
		Color:        "yes",
		CacheBackend: "none",
	}
}

func TestProcessAndValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*ConfigRawInput)
		expectError string
	}{
		{name: "valid minimal config", mutate: func(*ConfigRawInput) {}},
		{name: "invalid output", mutate: func(in *ConfigRawInput) { in.Output = "xml" }, expectError: "invalid output format"},
		{name: "parquet without file", mutate: func(in *ConfigRawInput) { in.Output = "parquet" }, expectError: "--output-file is required"},
		{name: "zero workers", mutate: func(in *ConfigRawInput) { in.Workers = 0 }, expectError: "workers must be greater than 0"},
		{name: "zero max entries", mutate: func(in *ConfigRawInput) { in.MaxEntries = 0 }, expectError: "max-entries"},
		{name: "limit too high", mutate: func(in *ConfigRawInput) { in.Limit = MaxResultLimit + 1 }, expectError: "limit must be greater than 0"},
		{name: "bad precision", mutate: func(in *ConfigRawInput) { in.Precision = 3 }, expectError: "precision must be 1 or 2"},
		{name: "bad color", mutate: func(in *ConfigRawInput) { in.Color = "maybe" }, expectError: "invalid --color value"},
		{name: "bad freshness", mutate: func(in *ConfigRawInput) { in.Freshness = "soon" }, expectError: "invalid --freshness"},
		{name: "negative retention", mutate: func(in *ConfigRawInput) { in.Retention = "-1h" }, expectError: "--retention must be positive"},
		{name: "bad fetcher", mutate: func(in *ConfigRawInput) { in.Fetcher = "svn" }, expectError: "invalid fetcher"},
		{name: "bad log level", mutate: func(in *ConfigRawInput) { in.LogLevel = "loud" }, expectError: "invalid --log-level"},
		{name: "bad log format", mutate: func(in *ConfigRawInput) { in.LogFormat = "xml" }, expectError: "invalid log format"},
		{name: "bad cache backend", mutate: func(in *ConfigRawInput) { in.CacheBackend = "redis" }, expectError: "invalid cache backend"},
		{name: "mysql without dsn", mutate: func(in *ConfigRawInput) { in.AnalysisBackend = "mysql" }, expectError: "connection string is required"},
		{
			name: "shared sqlite file",
			mutate: func(in *ConfigRawInput) {
				in.CacheBackend, in.AnalysisBackend = "sqlite", "sqlite"
				in.CacheDBConnect, in.AnalysisDBConnect = "same.db", "same.db"
			},
			expectError: "different SQLite database files",
		},
		{name: "archive without bucket", mutate: func(in *ConfigRawInput) { in.ArchiveEndpoint = "localhost:9000" }, expectError: "archive-bucket is required"},
		{
			name: "archive with scheme",
			mutate: func(in *ConfigRawInput) {
				in.ArchiveEndpoint, in.ArchiveBucket = "http://localhost:9000", "b"
			},
			expectError: "without a scheme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(input)
			cfg := &Config{}
			err := ProcessAndValidate(cfg, input)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProcessAndValidateDefaults(t *testing.T) {
	input := validInput()
	input.StorageRoot = ""
	input.Exclude = " vendor/ , ,*.min.js "

	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, input))

	assert.Equal(t, DefaultStorageRoot, cfg.StorageRoot)
	assert.Equal(t, DefaultFreshness, cfg.Freshness)
	assert.Equal(t, DefaultRetention, cfg.Retention)
	assert.Equal(t, DefaultFetchTimeout, cfg.FetchTimeout)
	assert.Equal(t, schema.GitCLIFetcher, cfg.Fetcher)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, schema.NoneBackend, cfg.CacheBackend)
	assert.Equal(t, schema.NoneBackend, cfg.AnalysisBackend)
	assert.Equal(t, []string{"vendor/", "*.min.js"}, cfg.Excludes)
	assert.False(t, cfg.Archive.Enabled())
	assert.True(t, cfg.UseColors)
}

func TestProcessAndValidateOverrides(t *testing.T) {
	input := validInput()
	input.Freshness = "5m"
	input.Retention = "2h"
	input.FetchTimeout = "30s"
	input.Fetcher = "GO-GIT"
	input.LogLevel = "debug"
	input.LogFormat = "JSON"
	input.ArchiveEndpoint = "localhost:9000"
	input.ArchiveBucket = "locstat"
	input.ArchivePrefix = "/runs/"

	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, input))

	assert.Equal(t, 5*time.Minute, cfg.Freshness)
	assert.Equal(t, 2*time.Hour, cfg.Retention)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, schema.GoGitFetcher, cfg.Fetcher)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, "runs", cfg.Archive.Prefix)
	assert.True(t, filepath.IsAbs(cfg.StorageRoot))
}

func TestValidateDatabaseConnectionString(t *testing.T) {
	assert.NoError(t, ValidateDatabaseConnectionString(schema.SQLiteBackend, ""))
	assert.NoError(t, ValidateDatabaseConnectionString(schema.NoneBackend, ""))
	assert.NoError(t, ValidateDatabaseConnectionString(schema.MySQLBackend, "root:pw@tcp(localhost:3306)/locstat"))
	assert.Error(t, ValidateDatabaseConnectionString(schema.MySQLBackend, "root:pw@localhost/locstat"))
	assert.NoError(t, ValidateDatabaseConnectionString(schema.PostgreSQLBackend, "host=localhost dbname=postgres"))
	assert.Error(t, ValidateDatabaseConnectionString(schema.PostgreSQLBackend, "dbname=postgres"))
}

func TestConfigClone(t *testing.T) {
	cfg := &Config{Excludes: []string{"vendor/"}, Workers: 2}
	clone := cfg.Clone()
	clone.Excludes[0] = "changed/"
	clone.Workers = 8

	assert.Equal(t, "vendor/", cfg.Excludes[0])
	assert.Equal(t, 2, cfg.Workers)
}

func TestProcessProfilingConfig(t *testing.T) {
	profile := &ProfileConfig{}
	require.NoError(t, ProcessProfilingConfig(profile, ""))
	assert.False(t, profile.Enabled)

	require.NoError(t, ProcessProfilingConfig(profile, "out"))
	assert.True(t, profile.Enabled)
	assert.Equal(t, "out", profile.Prefix)
}
