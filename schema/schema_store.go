package schema

import "time"

// AnalysisRunRecord represents a row from the locstat_analysis_runs table.
type AnalysisRunRecord struct {
	AnalysisID    int64
	RunID         string
	Owner         string
	Name          string
	Source        string
	StartTime     time.Time
	EndTime       *time.Time
	RunDurationMs *int64
	Outcome       *string
	FailureReason *string
	TotalFiles    int32
	TotalLines    int64
}

// FileLinesRecord represents a row from the locstat_file_lines table.
type FileLinesRecord struct {
	AnalysisID int64
	FilePath   string
	Extension  string
	Language   string
	Lines      int64
	SizeBytes  int64
}

// RunOutcome values stored in the run history.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)
