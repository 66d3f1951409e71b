package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/huangsam/locstat/core/agg"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/outwriter"
	"github.com/huangsam/locstat/schema"
	"github.com/spf13/cobra"
)

// countCmd aggregates a local directory without fetching or caching.
var countCmd = &cobra.Command{
	Use:   "count [path]",
	Short: "Count lines in a local directory",
	Long: `Walk a local directory and report line counts without fetching or caching.

The .git directory is never visited and symbolic links are not followed.
Use --exclude to skip path prefixes or glob patterns.

Examples:
  # Count the current directory
  locstat count

  # Count a checkout, skipping vendored code
  locstat count ~/src/widgets --exclude vendor/,node_modules/

  # Export every file as Parquet
  locstat count . --output parquet --output-file widgets.parquet`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, args []string) {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		if err := runCount(dir); err != nil {
			contract.LogFatal("Count failed", err)
		}
	},
}

func runCount(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", dir, err)
	}

	start := time.Now()
	result, err := agg.New(cfg.Workers, cfg.Excludes).Aggregate(rootCtx, abs)
	if err != nil {
		return err
	}

	entry := &schema.CacheEntry{
		Identity:   contract.LocalIdentity(abs),
		Source:     abs,
		RunID:      uuid.NewString(),
		Result:     result,
		ProducedAt: time.Now(),
	}
	return outwriter.PrintResult(entry, cfg, time.Since(start))
}
