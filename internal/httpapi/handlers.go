package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/huangsam/locstat/core/jobs"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/outwriter"
	"github.com/huangsam/locstat/schema"
)

// maxBodyBytes bounds the POST /api/stats body.
const maxBodyBytes = 64 * 1024

// statsRequest is the body of POST /api/stats.
type statsRequest struct {
	RepoURL string `json:"repoUrl"`
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
}

// statsResponse is shared by the request and status endpoints.
type statsResponse struct {
	TotalLines *int   `json:"totalLines,omitempty"`
	TotalFiles *int   `json:"totalFiles,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
	Processing bool   `json:"processing,omitempty"`
	Ready      *bool  `json:"ready,omitempty"`
	RunID      string `json:"runId,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, statsResponse{Error: msg})
}

func totals(result *schema.AnalysisResult) (*int, *int) {
	lines, files := result.TotalLines, result.TotalFiles
	return &lines, &files
}

// pathIdentity reads and validates the {owner}/{repo} path values.
func pathIdentity(r *http.Request) (schema.Identity, error) {
	id := schema.NewIdentity(r.PathValue("owner"), r.PathValue("repo"))
	if err := id.Validate(); err != nil {
		return schema.Identity{}, fmt.Errorf("invalid repository identity: %w", err)
	}
	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "locstat server is running"})
}

func (s *Server) handleRequestStats(w http.ResponseWriter, r *http.Request) {
	var req statsRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(body) == 0 || json.Unmarshal(body, &req) != nil {
		writeError(w, http.StatusBadRequest, "request body must be JSON with a repoUrl field")
		return
	}
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "repoUrl is required")
		return
	}

	id, source, err := contract.ResolveRequest(req.Owner, req.Repo, req.RepoURL, s.cfg.AllowLocalSources)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := s.coord.RequestAnalysis(id, source)
	switch {
	case errors.Is(err, jobs.ErrCoordinatorClosed):
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if outcome.Cached {
		resp := statsResponse{Cached: true, RunID: outcome.RunID}
		if outcome.Entry.Failure != nil {
			resp.Error = outcome.Entry.Failure.Reason
		} else {
			resp.TotalLines, resp.TotalFiles = totals(outcome.Entry.Result)
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	zero := 0
	writeJSON(w, http.StatusAccepted, statsResponse{
		TotalLines: &zero,
		TotalFiles: &zero,
		Processing: true,
		RunID:      outcome.RunID,
		Message:    "Analyzing repository, please wait...",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	poll := s.coord.PollStatus(id)
	switch poll.State {
	case schema.Ready:
		ready := true
		resp := statsResponse{Ready: &ready}
		resp.TotalLines, resp.TotalFiles = totals(poll.Result)
		writeJSON(w, http.StatusOK, resp)
	case schema.Failed:
		writeError(w, http.StatusInternalServerError, poll.Reason)
	default:
		ready := false
		resp := statsResponse{Ready: &ready, Message: "No analysis in progress. POST /api/stats to start one."}
		if task, ok := s.coord.Running(id); ok {
			resp.RunID = task.RunID
			resp.Message = "Analysis in progress..."
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
	}

	entry, ok := s.coord.RenderableResult(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no result for %s", id))
		return
	}
	if entry.Failure != nil {
		writeJSON(w, http.StatusOK, struct {
			Owner   string                  `json:"owner"`
			Name    string                  `json:"name"`
			RunID   string                  `json:"run_id"`
			Failure *schema.AnalysisFailure `json:"failure"`
		}{entry.Identity.Owner, entry.Identity.Name, entry.RunID, entry.Failure})
		return
	}
	writeJSON(w, http.StatusOK, outwriter.BuildEntryReport(entry, limit))
}
