package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/huangsam/locstat/core/agg"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/outwriter"
	"github.com/huangsam/locstat/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	coord   contract.AnalysisCoordinator
}

// requestPayload is the answer of request_analysis.
type requestPayload struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	RunID      string `json:"run_id,omitempty"`
	TotalLines *int   `json:"total_lines,omitempty"`
	TotalFiles *int   `json:"total_files,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
}

// statusPayload is the answer of poll_status.
type statusPayload struct {
	Owner      string           `json:"owner"`
	Name       string           `json:"name"`
	State      schema.PollState `json:"state"`
	Running    bool             `json:"running"`
	RunID      string           `json:"run_id,omitempty"`
	TotalLines *int             `json:"total_lines,omitempty"`
	TotalFiles *int             `json:"total_files,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// totals returns pointers so an empty repository still reports zero totals.
func totals(result *schema.AnalysisResult) (*int, *int) {
	lines, files := result.TotalLines, result.TotalFiles
	return &lines, &files
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(jsonData))
}

// identityArgs reads and validates the owner and repo arguments.
func identityArgs(request mcp.CallToolRequest) (schema.Identity, error) {
	owner, err := request.RequireString("owner")
	if err != nil {
		return schema.Identity{}, err
	}
	repo, err := request.RequireString("repo")
	if err != nil {
		return schema.Identity{}, err
	}
	id := schema.NewIdentity(owner, repo)
	if err := id.Validate(); err != nil {
		return schema.Identity{}, fmt.Errorf("invalid repository identity: %w", err)
	}
	return id, nil
}

// limitArg returns the requested limit, falling back to the configured one.
func (h *toolHandler) limitArg(request mcp.CallToolRequest) int {
	if l := request.GetInt("limit", 0); l > 0 {
		return min(l, contract.MaxResultLimit)
	}
	return h.baseCfg.ResultLimit
}

func (h *toolHandler) handleRequestAnalysis(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoURL, err := request.RequireString("repo_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, source, err := contract.ResolveRequest(
		request.GetString("owner", ""), request.GetString("repo", ""), repoURL, h.baseCfg.AllowLocalSources)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid request: %v", err)), nil
	}

	outcome, err := h.coord.RequestAnalysis(id, source)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis request failed: %v", err)), nil
	}

	payload := requestPayload{Owner: id.Owner, Name: id.Name, RunID: outcome.RunID}
	switch {
	case outcome.Cached && outcome.Entry.Failure != nil:
		payload.Status = "cached"
		payload.Error = outcome.Entry.Failure.Error()
	case outcome.Cached:
		payload.Status = "cached"
		payload.TotalLines, payload.TotalFiles = totals(outcome.Entry.Result)
	case outcome.Coalesced:
		payload.Status = "processing"
		payload.Message = "Analysis already in progress. Call poll_status until ready."
	default:
		payload.Status = "processing"
		payload.Message = "Analysis started. Call poll_status until ready."
	}
	return jsonResult(payload), nil
}

func (h *toolHandler) handlePollStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := identityArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	poll := h.coord.PollStatus(id)
	payload := statusPayload{Owner: id.Owner, Name: id.Name, State: poll.State}
	if task, ok := h.coord.Running(id); ok {
		payload.Running = true
		payload.RunID = task.RunID
	}

	switch poll.State {
	case schema.Ready:
		payload.TotalLines, payload.TotalFiles = totals(poll.Result)
	case schema.Failed:
		payload.Reason = poll.Reason
	default:
		if payload.Running {
			payload.Message = "Analysis in progress."
		} else {
			payload.Message = "No fresh result. Call request_analysis to start one."
		}
	}
	return jsonResult(payload), nil
}

func (h *toolHandler) handleGetResult(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := identityArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry, ok := h.coord.RenderableResult(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no result for %s. Call request_analysis and wait for poll_status to report ready", id)), nil
	}
	if entry.Failure != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis of %s failed: %s", id, entry.Failure.Error())), nil
	}
	return jsonResult(outwriter.BuildEntryReport(entry, h.limitArg(request))), nil
}

func (h *toolHandler) handleCountDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid path %q: %v", dir, err)), nil
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("%q is not an accessible directory", dir)), nil
	}

	result, err := agg.New(h.baseCfg.Workers, h.baseCfg.Excludes).Aggregate(ctx, abs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("count failed: %v", err)), nil
	}

	return jsonResult(outwriter.BuildReport(contract.LocalIdentity(abs), result, h.limitArg(request))), nil
}
