package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/iocache"
	"github.com/huangsam/locstat/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheSetup loads minimal configuration needed for cache operations.
// This is used by commands that need cache access without full shared setup.
func cacheSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	// Get cache-related config values
	backend := schema.DatabaseBackend(viper.GetString("cache-backend"))
	connStr := viper.GetString("cache-db-connect")

	// Basic validation for database backends
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	// Initialize the result store only (no run history for cache commands)
	if err := iocache.InitStores(backend, connStr, "", ""); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	cfg.CacheBackend = backend
	cfg.CacheDBConnect = connStr

	return nil
}

// cacheSetupWrapper wraps cacheSetup to provide PreRunE for cache commands.
func cacheSetupWrapper(_ *cobra.Command, _ []string) error {
	return cacheSetup()
}

// cacheCmd focused on result store management.
//
// Note: Cache subcommands use minimal initialization (cacheSetup) instead of
// the full sharedSetup used by analysis commands. This skips engine and output
// validation for simple store operations.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the persisted result store",
	Long: `Manage the store of completed results that survives restarts.

Every finished analysis (success or failure) is written to the result store.
On startup the service reloads entries that are still within --freshness, so
a restart does not refetch repositories that were just counted.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (memory only)

Subcommands:
  status - Show store statistics and connection info
  clear  - Remove all persisted results

Examples:
  # Check store status
  locstat cache status

  # Forget every persisted result
  locstat cache clear`,
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all persisted results",
	Long: `Delete all persisted results from the configured backend.

Use this when:
- A cached failure should be retried before --freshness expires
- The store may be corrupted
- Measuring cold-start behavior

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the result table

Examples:
  # Clear SQLite store (default)
  locstat cache clear

  # Clear MySQL store (set connection string via env variable)
  LOCSTAT_CACHE_BACKEND=mysql LOCSTAT_CACHE_DB_CONNECT="..." locstat cache clear`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ClearCache(cfg.CacheBackend, contract.GetCacheDBFilePath(), cfg.CacheDBConnect); err != nil {
			contract.LogFatal("Failed to clear cache", err)
		}
		fmt.Println("Result store cleared successfully.")
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display result store statistics and connection details",
	Long: `Show detailed information about the persisted result store.

Displays:
- Backend type and connection status
- Total number of persisted results
- Last and oldest entry timestamps
- Store size

Examples:
  # Check store status
  locstat cache status`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetResultStore()
		if store == nil {
			contract.LogFatal("Failed to get cache status", errors.New("result store is disabled"))
		}
		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get cache status", err)
		}
		iocache.PrintCacheStatus(os.Stdout, status)
	},
}
