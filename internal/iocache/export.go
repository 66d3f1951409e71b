package iocache

import (
	"errors"
	"fmt"
	"io"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/parquet"
)

// ExecuteAnalysisExport exports the run history in store to Parquet files
// named after outputFile.
func ExecuteAnalysisExport(w io.Writer, store contract.AnalysisStore, outputFile string) error {
	// Validate that output file is specified
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if store == nil {
		return errors.New("analysis tracking is not enabled. Set --analysis-backend to export run history")
	}

	// Check if there's any data to export
	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get analysis status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no analysis data found to export")
	}

	_, _ = fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Total analysis runs: %d\n", status.TotalRuns)
	_, _ = fmt.Fprintf(w, "Total file records: %d\n", status.TableSizes[fileLinesTable])

	// Retrieve all rows
	analysisRuns, err := store.GetAllAnalysisRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve analysis runs: %w", err)
	}
	fileLines, err := store.GetAllFileLines()
	if err != nil {
		return fmt.Errorf("failed to retrieve file lines: %w", err)
	}

	// Write analysis runs to Parquet
	analysisRunsFile := outputFile + ".analysis_runs.parquet"
	runRows := parquet.ConvertAnalysisRunRecords(analysisRuns)
	if err := parquet.WriteAnalysisRunsParquet(runRows, analysisRunsFile); err != nil {
		return fmt.Errorf("failed to write analysis runs: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d analysis runs to: %s\n", len(runRows), analysisRunsFile)

	// Write file lines to Parquet
	fileLinesFile := outputFile + ".file_lines.parquet"
	lineRows := parquet.ConvertFileLinesRecords(fileLines)
	if err := parquet.WriteFileLinesParquet(lineRows, fileLinesFile); err != nil {
		return fmt.Errorf("failed to write file lines: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d file line records to: %s\n", len(lineRows), fileLinesFile)

	_, _ = fmt.Fprintln(w, "\nExport complete! The Parquet files can be used with:")
	_, _ = fmt.Fprintln(w, "  - Apache Spark")
	_, _ = fmt.Fprintln(w, "  - Pandas (via pyarrow)")
	_, _ = fmt.Fprintln(w, "  - DuckDB")

	return nil
}
