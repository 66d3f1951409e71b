// Package cmd defines the command-line interface for locstat.
package cmd

import (
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(analysisCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	// Add the analysis subcommands to the parent analysis command
	analysisCmd.AddCommand(analysisClearCmd)
	analysisCmd.AddCommand(analysisStatusCmd)
	analysisCmd.AddCommand(analysisExportCmd)
	analysisCmd.AddCommand(analysisMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	flags := rootCmd.PersistentFlags()
	flags.String("storage-root", contract.DefaultStorageRoot, "Directory where repositories are materialized")
	flags.String("freshness", contract.DefaultFreshness.String(), "How long a result (or failure) is served before refetching")
	flags.String("retention", contract.DefaultRetention.String(), "Age after which materialized trees are swept")
	flags.String("fetch-timeout", contract.DefaultFetchTimeout.String(), "Upper bound for a single clone")
	flags.String("fetcher", string(schema.GitCLIFetcher), "Repository fetcher: git or go-git")
	flags.Bool("allow-local-sources", false, "Accept local directories and file:// URLs as sources")
	flags.Int("workers", contract.DefaultWorkers, "Number of concurrent file workers per analysis")
	flags.Int("max-entries", contract.DefaultMaxEntries, "Maximum number of results kept in memory")
	flags.String("exclude", "", "Comma-separated list of path prefixes or patterns to ignore")
	flags.IntP("limit", "l", contract.DefaultResultLimit, "Number of files and folders to display")
	flags.Int("precision", contract.DefaultPrecision, "Decimal precision for percentages")
	flags.String("output", string(schema.TextOut), "Output format: text or json or csv or yaml or parquet")
	flags.String("output-file", "", "Optional path to write output to")
	flags.Int("width", 0, "Terminal width override (0 = auto-detect)")
	flags.String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	flags.String("listen", contract.DefaultListen, "Address the HTTP service listens on")
	flags.String("log-level", contract.DefaultLogLevel, "Log level: trace, debug, info, warn, error")
	flags.String("log-format", contract.DefaultLogFormat, "Log format: text or json")
	flags.String("cache-backend", string(schema.SQLiteBackend), "Result store backend: sqlite or mysql or postgresql or none")
	flags.String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	flags.String("analysis-backend", "", "Analysis tracking backend: sqlite or mysql or postgresql or none")
	flags.String("analysis-db-connect", "", "Database connection string for analysis tracking (must differ from cache-db-connect)")
	flags.String("archive-endpoint", "", "S3-compatible endpoint (host:port) to archive completed results to")
	flags.String("archive-bucket", "", "Bucket for archived results")
	flags.String("archive-prefix", contract.DefaultArchivePath, "Object key prefix for archived results")
	flags.String("archive-access-key", "", "Archive access key (prefer LOCSTAT_ARCHIVE_ACCESS_KEY)")
	flags.String("archive-secret-key", "", "Archive secret key (prefer LOCSTAT_ARCHIVE_SECRET_KEY)")
	flags.String("archive-region", "", "Archive bucket region")
	flags.Bool("archive-use-ssl", false, "Use TLS when talking to the archive endpoint")
	flags.String("profile", "", "Enable profiling and write profiles to files with this prefix")
	flags.String("config", "", "Path to config file")
	if err := viper.BindPFlags(flags); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of analyzeCmd to Viper
	analyzeCmd.Flags().String("owner", "", "Override the owner inferred from the URL")
	analyzeCmd.Flags().String("repo", "", "Override the repository name inferred from the URL")
	if err := viper.BindPFlags(analyzeCmd.Flags()); err != nil {
		contract.LogFatal("Error binding analyze flags", err)
	}

	// Bind all flags of analysisMigrateCmd to Viper
	analysisMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(analysisMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding analysis migrate flags", err)
	}
}
