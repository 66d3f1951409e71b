package cmd

import (
	"os"

	"github.com/huangsam/locstat/core/sweep"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/outwriter"
	"github.com/spf13/cobra"
)

// sweepCmd runs the retention sweeper once.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove materialized repositories older than --retention",
	Long: `Delete top-level entries of the storage root that are older than --retention.

The service sweeps after every pipeline. Run this to reclaim space while no
service is running, or from cron on shared hosts. Concurrent sweeps are
serialized with a lock file in the storage root.

Examples:
  # Remove everything older than the default hour
  locstat sweep

  # Aggressive cleanup of a custom root
  locstat sweep --storage-root /srv/locstat --retention 5m`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		s := sweep.New(cfg.StorageRoot, cfg.Retention)
		s.Logger = contract.ComponentLogger("sweep")
		if err := outwriter.WriteSweepReport(os.Stdout, s.Sweep(), cfg); err != nil {
			contract.LogFatal("Failed to print sweep report", err)
		}
	},
}
