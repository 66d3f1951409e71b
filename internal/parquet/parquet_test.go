package parquet

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/locstat/schema"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleAnalysisRuns returns runs covering finished, failed and unfinished rows.
func sampleAnalysisRuns() []AnalysisRun {
	now := time.Now()
	end1 := now.Add(-90 * time.Minute)
	dur1 := int64(30 * time.Minute / time.Millisecond)
	ok := schema.RunSucceeded
	end2 := now.Add(-23 * time.Hour)
	dur2 := int64(time.Hour / time.Millisecond)
	failed := schema.RunFailed
	reason := "fetch failed: repository not found"

	return []AnalysisRun{
		{
			AnalysisID: 1, RunID: "run-1", Owner: "acme", Name: "widgets", Source: "https://example.com/acme/widgets",
			StartTime: now.Add(-2 * time.Hour), EndTime: &end1, RunDurationMs: &dur1, Outcome: &ok,
			TotalFiles: 150, TotalLines: 12000,
		},
		{
			AnalysisID: 2, RunID: "run-2", Owner: "octo", Name: "missing", Source: "https://example.com/octo/missing",
			StartTime: now.Add(-24 * time.Hour), EndTime: &end2, RunDurationMs: &dur2, Outcome: &failed,
			FailureReason: &reason,
		},
		{
			AnalysisID: 3, RunID: "run-3", Owner: "acme", Name: "gadgets", Source: "https://example.com/acme/gadgets",
			StartTime: now.Add(-10 * time.Minute),
		},
	}
}

func readAll[T any](t *testing.T, path string) []T {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	reader := parquet.NewGenericReader[T](file)
	defer func() { _ = reader.Close() }()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		require.NoError(t, err)
	}
	return rows[:n]
}

func TestStructTags(t *testing.T) {
	tests := []struct {
		name    string
		model   any
		columns []string
	}{
		{"analysis runs", new(AnalysisRun), []string{
			"analysis_id", "run_id", "owner", "name", "source", "start_time", "end_time",
			"run_duration_ms", "outcome", "failure_reason", "total_files", "total_lines",
		}},
		{"file lines", new(FileLines), []string{
			"analysis_id", "file_path", "extension", "language", "line_count", "size_bytes",
		}},
		{"result files", new(ResultFile), []string{
			"owner", "name", "file_path", "folder", "extension", "language", "line_count", "size_bytes", "percentage",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parquet.SchemaOf(tt.model)
			for _, col := range tt.columns {
				_, ok := s.Lookup(col)
				assert.True(t, ok, "Column %s should exist in schema", col)
			}
		})
	}
}

func TestWriteAnalysisRunsParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "analysis_runs.parquet")
	data := sampleAnalysisRuns()
	require.NoError(t, WriteAnalysisRunsParquet(data, outputPath))

	readData := readAll[AnalysisRun](t, outputPath)
	require.Len(t, readData, len(data))

	for i := range data {
		assert.Equal(t, data[i].AnalysisID, readData[i].AnalysisID)
		assert.Equal(t, data[i].RunID, readData[i].RunID)
		assert.Equal(t, data[i].TotalLines, readData[i].TotalLines)
		assert.WithinDuration(t, data[i].StartTime, readData[i].StartTime, time.Microsecond)

		if data[i].EndTime == nil {
			assert.Nil(t, readData[i].EndTime)
		} else {
			require.NotNil(t, readData[i].EndTime)
			assert.WithinDuration(t, *data[i].EndTime, *readData[i].EndTime, time.Microsecond)
		}
		if data[i].FailureReason == nil {
			assert.Nil(t, readData[i].FailureReason)
		} else {
			require.NotNil(t, readData[i].FailureReason)
			assert.Equal(t, *data[i].FailureReason, *readData[i].FailureReason)
		}
	}
}

func TestWriteFileLinesParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "file_lines.parquet")
	records := []schema.FileLinesRecord{
		{AnalysisID: 1, FilePath: "main.go", Extension: ".go", Language: "Go", Lines: 42, SizeBytes: 900},
		{AnalysisID: 1, FilePath: "README", Extension: schema.NoExtensionLabel, Language: schema.UnknownLanguage, Lines: 3, SizeBytes: 20},
	}
	data := ConvertFileLinesRecords(records)
	require.NoError(t, WriteFileLinesParquet(data, outputPath))

	assert.Equal(t, data, readAll[FileLines](t, outputPath))
}

func TestWriteEmptyParquet(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, WriteAnalysisRunsParquet([]AnalysisRun{}, outputPath))

	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Empty(t, readAll[AnalysisRun](t, outputPath))
}

func TestWriteParquetInvalidPath(t *testing.T) {
	err := WriteFileLinesParquet(nil, filepath.Join(t.TempDir(), "missing", "out.parquet"))
	assert.Error(t, err)
}

func TestConvertAnalysisRunRecords(t *testing.T) {
	end := time.Now()
	outcome := schema.RunSucceeded
	records := []schema.AnalysisRunRecord{{
		AnalysisID: 7, RunID: "abc", Owner: "acme", Name: "widgets", Source: "src",
		StartTime: end.Add(-time.Second), EndTime: &end, Outcome: &outcome, TotalFiles: 2, TotalLines: 10,
	}}
	rows := ConvertAnalysisRunRecords(records)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].AnalysisID)
	assert.Equal(t, "acme", rows[0].Owner)
	assert.Equal(t, &outcome, rows[0].Outcome)
	assert.Equal(t, int32(2), rows[0].TotalFiles)
}

func TestConvertResultFiles(t *testing.T) {
	id := schema.NewIdentity("acme", "widgets")
	result := schema.NewAnalysisResult()
	result.Files["main.go"] = &schema.FileRecord{Path: "main.go", Lines: 10, Extension: ".go", Language: "Go", Percentage: 25}
	result.Files["pkg/a.go"] = &schema.FileRecord{Path: "pkg/a.go", Lines: 20, Extension: ".go", Language: "Go", Percentage: 50}
	result.Files["pkg/b.go"] = &schema.FileRecord{Path: "pkg/b.go", Lines: 10, Extension: ".go", Language: "Go", Percentage: 25}

	rows := ConvertResultFiles(id, result)
	require.Len(t, rows, 3)
	assert.Equal(t, "pkg/a.go", rows[0].FilePath)
	assert.Equal(t, "pkg", rows[0].Folder)
	assert.Equal(t, "main.go", rows[1].FilePath)
	assert.Equal(t, schema.RootFolder, rows[1].Folder)
	assert.Equal(t, "pkg/b.go", rows[2].FilePath)
	assert.Equal(t, "acme", rows[2].Owner)

	assert.Nil(t, ConvertResultFiles(id, nil))

	outputPath := filepath.Join(t.TempDir(), "result.parquet")
	require.NoError(t, WriteResultParquet(id, result, outputPath))
	assert.Equal(t, rows, readAll[ResultFile](t, outputPath))
}
