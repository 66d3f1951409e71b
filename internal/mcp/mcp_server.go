// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the locstat MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, coord contract.AnalysisCoordinator, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"locstat Line Counting Server",
		version,
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		coord:   coord,
	}

	// --- 1. Tool: request_analysis ---
	s.AddTool(mcp.NewTool("request_analysis",
		mcp.WithDescription("Start counting the lines of a remote repository, or return the cached counts when they are still fresh. Poll with poll_status afterwards."),
		mcp.WithString("repo_url", mcp.Description("Clone URL of the repository (https, ssh or git@host:owner/name)."), mcp.Required()),
		mcp.WithString("owner", mcp.Description("Repository owner. Inferred from repo_url when omitted.")),
		mcp.WithString("repo", mcp.Description("Repository name. Inferred from repo_url when omitted.")),
	), h.handleRequestAnalysis)

	// --- 2. Tool: poll_status ---
	s.AddTool(mcp.NewTool("poll_status",
		mcp.WithDescription("Report whether the line counts of a repository are ready, still running, or failed."),
		mcp.WithString("owner", mcp.Description("Repository owner."), mcp.Required()),
		mcp.WithString("repo", mcp.Description("Repository name."), mcp.Required()),
	), h.handlePollStatus)

	// --- 3. Tool: get_result ---
	s.AddTool(mcp.NewTool("get_result",
		mcp.WithDescription("Return the per-file, per-folder and per-extension line counts of a finished analysis."),
		mcp.WithString("owner", mcp.Description("Repository owner."), mcp.Required()),
		mcp.WithString("repo", mcp.Description("Repository name."), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Limit the number of files and folders returned.")),
	), h.handleGetResult)

	// --- 4. Tool: count_directory ---
	s.AddTool(mcp.NewTool("count_directory",
		mcp.WithDescription("Count the lines of a local directory synchronously, without caching."),
		mcp.WithString("path", mcp.Description("Path to the directory to count."), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Limit the number of files and folders returned.")),
	), h.handleCountDirectory)

	return s
}

// StartMCPServer serves the locstat MCP tools over stdio until the client disconnects.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, coord contract.AnalysisCoordinator, version string) error {
	s := NewMCPServer(baseCfg, coord, version)
	return server.ServeStdio(s)
}
