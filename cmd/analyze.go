package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/iocache"
	"github.com/huangsam/locstat/internal/outwriter"
	"github.com/huangsam/locstat/schema"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// pollInterval is how often analyze checks on its pipeline.
const pollInterval = 250 * time.Millisecond

// analyzeCmd runs one analysis through the coordinator and prints it.
var analyzeCmd = &cobra.Command{
	Use:   "analyze <owner/repo|url>",
	Short: "Fetch a repository and report its line counts",
	Long: `Fetch a repository into the storage root, count its lines and print the report.

The target may be a full clone URL (https, ssh, scp-like) or an owner/repo
shorthand, which resolves to https://github.com/owner/repo.git. Local
directories are accepted with --allow-local-sources.

A still-fresh result from the result store is printed without fetching.

Examples:
  # Shorthand for a GitHub repository
  locstat analyze acme/widgets

  # Any forge, as JSON
  locstat analyze https://gitlab.com/acme/widgets.git --output json

  # Top 50 files written to a CSV file
  locstat analyze acme/widgets --limit 50 --output csv --output-file widgets.csv`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, args []string) {
		defer iocache.CloseStores()
		if err := runAnalyze(rootCtx, args[0]); err != nil {
			contract.LogFatal("Analysis failed", err)
		}
	},
}

func runAnalyze(parent context.Context, target string) error {
	id, source, err := contract.ResolveRequest(
		viper.GetString("owner"), viper.GetString("repo"),
		contract.ExpandShorthand(target), cfg.AllowLocalSources)
	if err != nil {
		return err
	}

	coord, _, err := newCoordinator(cfg, defaultManager())
	if err != nil {
		return err
	}
	// Close also waits for the result to be persisted
	defer func() {
		if err := coord.Close(shutdownTimeout); err != nil {
			contract.LogWarn("Pipeline did not stop cleanly", err)
		}
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := coord.Hydrate(ctx); err != nil {
		contract.LogWarn("Failed to load persisted results", err)
	}

	start := time.Now()
	outcome, err := coord.RequestAnalysis(id, source)
	if err != nil {
		return err
	}

	entry := outcome.Entry
	if !outcome.Cached {
		contract.ComponentLogger("analyze").WithFields(logrus.Fields{
			"identity": id.Key(),
			"run_id":   outcome.RunID,
		}).Info("Analyzing repository")
		if entry, err = awaitResult(ctx, coord, id); err != nil {
			return err
		}
	}

	if err := outwriter.PrintResult(entry, cfg, time.Since(start)); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	if entry.Failure != nil {
		return entry.Failure
	}
	return nil
}

// awaitResult polls coord until id has a renderable entry or ctx ends.
func awaitResult(ctx context.Context, coord contract.AnalysisCoordinator, id schema.Identity) (*schema.CacheEntry, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if coord.PollStatus(id).State != schema.NotReady {
			if entry, ok := coord.RenderableResult(id); ok {
				return entry, nil
			}
		}
		if _, running := coord.Running(id); !running {
			// The pipeline may have stored its entry between the two checks
			if entry, ok := coord.RenderableResult(id); ok {
				return entry, nil
			}
			return nil, errors.New("analysis finished without a result. Check the logs for details")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("stopped waiting for %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}
