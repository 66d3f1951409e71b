package cmd

import (
	"os"
	"time"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/iocache"
	"github.com/huangsam/locstat/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the locstat MCP server",
	Long: `Launch an MCP server on stdio that allows AI agents to count lines of code via standard tools.

Tools:
  request_analysis - Start (or reuse) a background analysis of a repository URL
  poll_status      - Check whether the analysis is ready
  get_result       - Fetch the per-file, per-folder and per-extension report
  count_directory  - Count a local directory synchronously`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		defer iocache.CloseStores()

		// stdout carries the protocol
		contract.ConfigureLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr)

		coord, _, err := newCoordinator(cfg, defaultManager())
		if err != nil {
			return err
		}
		defer func() {
			if err := coord.Close(5 * time.Second); err != nil {
				contract.LogWarn("Pipelines did not stop cleanly", err)
			}
		}()
		if _, err := coord.Hydrate(rootCtx); err != nil {
			contract.LogWarn("Failed to load persisted results", err)
		}

		return mcp.StartMCPServer(rootCtx, cfg, coord, version)
	},
}
