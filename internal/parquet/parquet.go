// Package parquet provides data structures and functions for exporting locstat
// results and run history to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"cmp"
	"fmt"
	"os"
	"path"
	"slices"
	"time"

	"github.com/huangsam/locstat/schema"
	"github.com/parquet-go/parquet-go"
)

// AnalysisRun represents a single pipeline run with metadata.
// This struct maps to the locstat_analysis_runs database table.
type AnalysisRun struct {
	// AnalysisID is the unique identifier for this analysis run
	AnalysisID int64 `parquet:"analysis_id,snappy"`

	// RunID is the coordinator task ID
	RunID string `parquet:"run_id,snappy"`

	Owner  string `parquet:"owner,snappy"`
	Name   string `parquet:"name,snappy"`
	Source string `parquet:"source,snappy"`

	// StartTime is when the pipeline began (stored as TIMESTAMP with nanosecond precision)
	StartTime time.Time `parquet:"start_time,snappy"`

	// EndTime is when the pipeline completed (nullable)
	EndTime *time.Time `parquet:"end_time,optional,snappy"`

	// RunDurationMs is the duration of the run in milliseconds (nullable)
	RunDurationMs *int64 `parquet:"run_duration_ms,optional,snappy"`

	// Outcome is succeeded or failed (nullable while running)
	Outcome *string `parquet:"outcome,optional,snappy"`

	// FailureReason is the cached failure text (nullable)
	FailureReason *string `parquet:"failure_reason,optional,snappy"`

	TotalFiles int32 `parquet:"total_files,snappy"`
	TotalLines int64 `parquet:"total_lines,snappy"`
}

// FileLines represents the counted lines of one file in one run.
// This struct maps to the locstat_file_lines database table.
type FileLines struct {
	AnalysisID int64  `parquet:"analysis_id,snappy"`
	FilePath   string `parquet:"file_path,snappy"`
	Extension  string `parquet:"extension,snappy"`
	Language   string `parquet:"language,snappy"`
	Lines      int64  `parquet:"line_count,snappy"`
	SizeBytes  int64  `parquet:"size_bytes,snappy"`
}

// ResultFile is one file row of a single result export.
type ResultFile struct {
	Owner      string  `parquet:"owner,snappy"`
	Name       string  `parquet:"name,snappy"`
	FilePath   string  `parquet:"file_path,snappy"`
	Folder     string  `parquet:"folder,snappy"`
	Extension  string  `parquet:"extension,snappy"`
	Language   string  `parquet:"language,snappy"`
	Lines      int64   `parquet:"line_count,snappy"`
	SizeBytes  int64   `parquet:"size_bytes,snappy"`
	Percentage float64 `parquet:"percentage,snappy"`
}

// writeParquet writes rows to outputPath with a schema inferred from T.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// The schema is automatically derived from the struct tags
	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return file.Close()
}

// WriteAnalysisRunsParquet writes a slice of AnalysisRun structs to a Parquet file.
func WriteAnalysisRunsParquet(data []AnalysisRun, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteFileLinesParquet writes a slice of FileLines structs to a Parquet file.
func WriteFileLinesParquet(data []FileLines, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteResultParquet writes the files of a single result to a Parquet file,
// sorted by descending line count.
func WriteResultParquet(id schema.Identity, result *schema.AnalysisResult, outputPath string) error {
	return writeParquet(ConvertResultFiles(id, result), outputPath)
}

// ConvertAnalysisRunRecords converts schema.AnalysisRunRecord to AnalysisRun for Parquet export.
func ConvertAnalysisRunRecords(records []schema.AnalysisRunRecord) []AnalysisRun {
	result := make([]AnalysisRun, len(records))
	for i, record := range records {
		result[i] = AnalysisRun{
			AnalysisID:    record.AnalysisID,
			RunID:         record.RunID,
			Owner:         record.Owner,
			Name:          record.Name,
			Source:        record.Source,
			StartTime:     record.StartTime,
			EndTime:       record.EndTime,
			RunDurationMs: record.RunDurationMs,
			Outcome:       record.Outcome,
			FailureReason: record.FailureReason,
			TotalFiles:    record.TotalFiles,
			TotalLines:    record.TotalLines,
		}
	}
	return result
}

// ConvertFileLinesRecords converts schema.FileLinesRecord to FileLines for Parquet export.
func ConvertFileLinesRecords(records []schema.FileLinesRecord) []FileLines {
	result := make([]FileLines, len(records))
	for i, record := range records {
		result[i] = FileLines(record)
	}
	return result
}

// ConvertResultFiles flattens a result into rows ordered by lines, then path.
func ConvertResultFiles(id schema.Identity, result *schema.AnalysisResult) []ResultFile {
	if result == nil {
		return nil
	}
	rows := make([]ResultFile, 0, len(result.Files))
	for _, f := range result.Files {
		folder := path.Dir(f.Path)
		if folder == "." {
			folder = schema.RootFolder
		}
		rows = append(rows, ResultFile{
			Owner:      id.Owner,
			Name:       id.Name,
			FilePath:   f.Path,
			Folder:     folder,
			Extension:  f.Extension,
			Language:   f.Language,
			Lines:      int64(f.Lines),
			SizeBytes:  f.SizeBytes,
			Percentage: f.Percentage,
		})
	}
	slices.SortFunc(rows, func(a, b ResultFile) int {
		if c := cmp.Compare(b.Lines, a.Lines); c != 0 {
			return c
		}
		return cmp.Compare(a.FilePath, b.FilePath)
	})
	return rows
}
