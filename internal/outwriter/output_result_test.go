package outwriter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testConfig(output schema.OutputMode) *contract.Config {
	return &contract.Config{
		Output:      output,
		Precision:   1,
		ResultLimit: 10,
		Width:       120,
		Workers:     4,
	}
}

func failedEntry() *schema.CacheEntry {
	return &schema.CacheEntry{
		Identity: schema.NewIdentity("acme", "broken"),
		Failure:  &schema.AnalysisFailure{Kind: schema.FetchFailure, Reason: "repository not found"},
	}
}

func TestWriteResultText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, sampleEntry(), testConfig(schema.TextOut), 1500*time.Millisecond))

	out := buf.String()
	assert.Contains(t, out, "acme/widgets: 100 lines in 4 files")
	assert.Contains(t, out, "pkg/util.go")
	assert.Contains(t, out, contract.DominantValue)
	assert.Contains(t, out, "30.0%")
	assert.Contains(t, out, "Showing top 4 of 4 files and 3 of 3 folders")
	assert.Contains(t, out, "Analysis completed in 1.5s with 4 workers.")
	assert.Less(t, strings.Index(out, "main.go"), strings.Index(out, "pkg/util.go"))
}

func TestWriteResultTextEmptyAndFailed(t *testing.T) {
	var buf bytes.Buffer
	entry := &schema.CacheEntry{Identity: schema.NewIdentity("acme", "empty"), Result: schema.NewAnalysisResult()}
	require.NoError(t, WriteResult(&buf, entry, testConfig(schema.TextOut), 0))
	assert.Contains(t, buf.String(), "No text files found.")
	assert.NotContains(t, buf.String(), "Analysis completed")

	buf.Reset()
	require.NoError(t, WriteResult(&buf, failedEntry(), testConfig(schema.TextOut), 0))
	assert.Contains(t, buf.String(), "acme/broken: fetch failed: repository not found")
}

func TestWriteResultJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, sampleEntry(), testConfig(schema.JSONOut), 0))

	var report ResultReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "widgets", report.Name)
	assert.Equal(t, "run-1", report.RunID)
	assert.Len(t, report.Files, 4, "structured output is not capped")
	assert.Equal(t, "main.go", report.Files[0].Path)

	buf.Reset()
	require.NoError(t, WriteResult(&buf, failedEntry(), testConfig(schema.JSONOut), 0))
	var failure map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &failure))
	assert.Equal(t, "broken", failure["name"])
	assert.Equal(t, "fetch", failure["failure"].(map[string]any)["kind"])
}

func TestWriteResultYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, sampleEntry(), testConfig(schema.YAMLOut), 0))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "acme", decoded["owner"])
	assert.Equal(t, 100, decoded["total_lines"])
}

func TestWriteResultCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, sampleEntry(), testConfig(schema.CSVOut), 0))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "rank", records[0][0])
	assert.Equal(t, []string{"1", "main.go", ".", ".go", "Go", "50", "900", "50.0", contract.DominantValue}, records[1])
	assert.Equal(t, "docs", records[3][2])

	buf.Reset()
	require.NoError(t, WriteResult(&buf, failedEntry(), testConfig(schema.CSVOut), 0))
	assert.Equal(t, "owner,name,failure_kind,failure_reason\nacme,broken,fetch,repository not found\n", buf.String())
}

func TestWriteResultParquetNeedsFile(t *testing.T) {
	var buf bytes.Buffer
	err := WriteResult(&buf, sampleEntry(), testConfig(schema.ParquetOut), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a file")
}

func TestPrintResultToFile(t *testing.T) {
	dir := t.TempDir()

	cfg := testConfig(schema.JSONOut)
	cfg.OutputFile = filepath.Join(dir, "result.json")
	require.NoError(t, PrintResult(sampleEntry(), cfg, 0))
	content, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"total_lines": 100`)

	cfg = testConfig(schema.ParquetOut)
	cfg.OutputFile = filepath.Join(dir, "result.parquet")
	require.NoError(t, PrintResult(sampleEntry(), cfg, 0))
	info, err := os.Stat(cfg.OutputFile)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestFolderOf(t *testing.T) {
	assert.Equal(t, ".", folderOf("main.go"))
	assert.Equal(t, "a/b", folderOf("a/b/c.go"))
}

func TestWriteClassifications(t *testing.T) {
	reports := []schema.ClassificationReport{
		{Path: "main.go", Verdict: schema.TextVerdict, Encoding: "utf-8", Reason: "decoded", SizeBytes: 2048, Lines: 40},
		{Path: "logo.png", Verdict: schema.BinaryVerdict, Reason: "signature", Detail: "PNG", SizeBytes: 4096},
		{Path: "gone.txt", Error: "no such file"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteClassifications(&buf, reports, testConfig(schema.TextOut)))
	out := buf.String()
	assert.Contains(t, out, "signature (PNG)")
	assert.Contains(t, out, "error: no such file")
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "1 of 3 files are text, 40 lines total")

	buf.Reset()
	require.NoError(t, WriteClassifications(&buf, reports, testConfig(schema.CSVOut)))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"logo.png", "binary", "", "signature", "PNG", "4096", "0", ""}, records[2])

	buf.Reset()
	require.NoError(t, WriteClassifications(&buf, reports, testConfig(schema.JSONOut)))
	var decoded []schema.ClassificationReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, reports, decoded)

	err = WriteClassifications(&buf, reports, testConfig(schema.ParquetOut))
	require.Error(t, err)
}

func TestGetMaxTablePathWidth(t *testing.T) {
	tests := []struct {
		width    int
		expected int
	}{
		{width: 60, expected: 15},
		{width: 100, expected: 40},
		{width: 300, expected: 70},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, GetMaxTablePathWidth(&contract.Config{Width: tt.width}))
	}
}

func TestOutWriter(t *testing.T) {
	dir := t.TempDir()
	ow := NewOutWriter()

	cfg := testConfig(schema.CSVOut)
	cfg.OutputFile = filepath.Join(dir, "result.csv")
	require.NoError(t, ow.WriteResult(sampleEntry(), cfg, 0))
	assert.FileExists(t, cfg.OutputFile)

	cfg.OutputFile = filepath.Join(dir, "classify.yaml")
	cfg.Output = schema.YAMLOut
	require.NoError(t, ow.WriteClassifications([]schema.ClassificationReport{{Path: "a.txt", Verdict: schema.TextVerdict}}, cfg))
	content, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "path: a.txt")
}
