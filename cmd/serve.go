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
	"github.com/huangsam/locstat/internal/httpapi"
	"github.com/huangsam/locstat/internal/iocache"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds both the HTTP drain and the pipeline cancellation.
const shutdownTimeout = 15 * time.Second

// serveCmd runs the HTTP service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the line counting HTTP service",
	Long: `Start an HTTP service that analyzes repositories in the background.

Clients request an analysis, then poll until the result is ready. Results
are cached in memory for --freshness and persisted to the result store
(--cache-backend) so a restart answers from the last good run.

Endpoints:
  GET  /health                              - Liveness probe
  POST /api/stats                           - Request an analysis {"repoUrl": "..."}
  GET  /api/stats/status/{owner}/{repo}     - Poll for totals
  GET  /api/stats/result/{owner}/{repo}     - Full per-file report
  GET  /metrics                             - Prometheus metrics

Examples:
  # Listen on the default port 5000
  locstat serve

  # Use go-git instead of the git binary and keep results for an hour
  locstat serve --fetcher go-git --freshness 1h

  # Request an analysis
  curl -X POST localhost:5000/api/stats -d '{"repoUrl":"https://github.com/acme/widgets"}'`,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		defer iocache.CloseStores()
		if err := runServe(rootCtx); err != nil {
			contract.LogFatal("Server failed", err)
		}
	},
}

// runServe blocks until the server stops or an interrupt arrives.
func runServe(parent context.Context) error {
	log := contract.ComponentLogger("serve")

	coord, registry, err := newCoordinator(cfg, defaultManager())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := coord.Hydrate(ctx)
	if err != nil {
		contract.LogWarn("Failed to load persisted results", err)
	}
	log.WithField("entries", loaded).Info("Result cache hydrated")

	srv := httpapi.NewServer(cfg, coord, registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("listen", cfg.Listen).Info("Starting HTTP server")
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var httpErr error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			httpErr = fmt.Errorf("http shutdown: %w", err)
		}
		return errors.Join(httpErr, coord.Close(shutdownTimeout))
	})

	return g.Wait()
}
