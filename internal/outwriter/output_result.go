package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/parquet"
	"github.com/huangsam/locstat/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintResult outputs one result, dispatching on the configured output format.
// Text goes to stdout, other formats to cfg.OutputFile (stdout when empty).
func PrintResult(entry *schema.CacheEntry, cfg *contract.Config, duration time.Duration) error {
	if cfg.Output == schema.ParquetOut {
		if entry.Failure != nil {
			return fmt.Errorf("no result to export for %s: %w", entry.Identity, entry.Failure)
		}
		if err := parquet.WriteResultParquet(entry.Identity, entry.Result, cfg.OutputFile); err != nil {
			return fmt.Errorf("error writing Parquet output: %w", err)
		}
		_, _ = fmt.Fprintf(os.Stderr, "💾 Wrote Parquet to %s\n", cfg.OutputFile)
		return nil
	}
	if cfg.Output == schema.TextOut || cfg.Output == "" {
		return WriteResult(os.Stdout, entry, cfg, duration)
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteResult(w, entry, cfg, duration)
	}, "Wrote "+string(cfg.Output))
}

// WriteResult writes one result to w in the configured output format.
// A failed entry is written as its failure in every format.
func WriteResult(w io.Writer, entry *schema.CacheEntry, cfg *contract.Config, duration time.Duration) error {
	var err error
	switch cfg.Output {
	case schema.JSONOut:
		err = writeEntryStructured(w, entry, writeJSON)
	case schema.YAMLOut:
		err = writeEntryStructured(w, entry, writeYAML)
	case schema.CSVOut:
		err = writeCSVResult(w, entry, cfg)
	case schema.ParquetOut:
		return fmt.Errorf("parquet output requires a file. Set --output-file")
	default:
		err = writeResultTable(w, entry, cfg, duration)
	}
	if err != nil {
		return fmt.Errorf("error writing %s output: %w", cfg.Output, err)
	}
	return nil
}

// writeEntryStructured writes the full report, or the failure, with encode.
func writeEntryStructured(w io.Writer, entry *schema.CacheEntry, encode func(io.Writer, any) error) error {
	if entry.Failure != nil {
		return encode(w, struct {
			Owner   string                  `json:"owner" yaml:"owner"`
			Name    string                  `json:"name" yaml:"name"`
			Failure *schema.AnalysisFailure `json:"failure" yaml:"failure"`
		}{entry.Identity.Owner, entry.Identity.Name, entry.Failure})
	}
	return encode(w, BuildEntryReport(entry, 0))
}

// writeCSVResult writes one row per file.
func writeCSVResult(w io.Writer, entry *schema.CacheEntry, cfg *contract.Config) error {
	if entry.Failure != nil {
		return writeCSVWithHeader(w, []string{"owner", "name", "failure_kind", "failure_reason"}, func(cw *csv.Writer) error {
			return cw.Write([]string{entry.Identity.Owner, entry.Identity.Name, string(entry.Failure.Kind), entry.Failure.Reason})
		})
	}

	fmtFloat, _ := createFormatters(cfg.Precision)
	header := []string{"rank", "path", "folder", "extension", "language", "lines", "size_bytes", "percentage", "label"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for i, f := range SortedFiles(entry.Result) {
			row := []string{
				strconv.Itoa(i + 1),
				f.Path,
				folderOf(f.Path),
				f.Extension,
				f.Language,
				strconv.Itoa(f.Lines),
				strconv.FormatInt(f.SizeBytes, 10),
				fmtFloat(f.Percentage),
				contract.GetPlainLabel(f.Percentage),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeResultTable prints the summary line and the files, folders and
// extension tables.
func writeResultTable(w io.Writer, entry *schema.CacheEntry, cfg *contract.Config, duration time.Duration) error {
	bold := fmt.Sprint
	if cfg.UseColors {
		bold = color.New(color.Bold).SprintFunc()
	}

	if entry.Failure != nil {
		_, _ = fmt.Fprintf(w, "❌ %s: %s\n", bold(entry.Identity.Key()), entry.Failure.Error())
		return nil
	}

	result := entry.Result
	_, _ = fmt.Fprintf(w, "📊 %s: %s lines in %s files\n", bold(entry.Identity.Key()),
		humanize.Comma(int64(result.TotalLines)), humanize.Comma(int64(result.TotalFiles)))
	if result.TotalFiles == 0 {
		_, _ = fmt.Fprintln(w, "No text files found.")
		return nil
	}

	report := BuildReport(entry.Identity, result, cfg.ResultLimit)
	_, fmtPercent := createFormatters(cfg.Precision)
	label := contract.GetPlainLabel
	if cfg.UseColors {
		label = contract.GetColorLabel
	}
	pathWidth := GetMaxTablePathWidth(cfg)

	// 1. Files
	fileRows := make([][]string, 0, len(report.Files))
	for i, f := range report.Files {
		fileRows = append(fileRows, []string{
			strconv.Itoa(i + 1),
			contract.TruncatePath(f.Path, pathWidth),
			humanize.Comma(int64(f.Lines)),
			fmtPercent(f.Percentage),
			label(f.Percentage),
			f.Language,
		})
	}
	if err := renderTable(w, []string{"Rank", "Path", "Lines", "Share", "Label", "Language"}, fileRows); err != nil {
		return err
	}

	// 2. Folders
	folderRows := make([][]string, 0, len(report.Folders))
	for i, f := range report.Folders {
		folderRows = append(folderRows, []string{
			strconv.Itoa(i + 1),
			contract.TruncatePath(f.Path, pathWidth),
			humanize.Comma(int64(f.Lines)),
			strconv.Itoa(f.Files),
			fmtPercent(f.Percentage),
		})
	}
	if err := renderTable(w, []string{"Rank", "Folder", "Lines", "Files", "Share"}, folderRows); err != nil {
		return err
	}

	// 3. Extensions
	extRows := make([][]string, 0, len(report.Extensions))
	for _, s := range report.Extensions {
		extRows = append(extRows, []string{s.Label, humanize.Comma(int64(s.Lines)), fmtPercent(s.Percentage)})
	}
	if err := renderTable(w, []string{"Extension", "Lines", "Share"}, extRows); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Showing top %d of %d files and %d of %d folders\n",
		len(report.Files), result.TotalFiles, len(report.Folders), len(result.Folders))
	if duration > 0 {
		_, _ = fmt.Fprintf(w, "Analysis completed in %v with %d workers.\n", duration.Round(time.Millisecond), cfg.Workers)
	}
	return nil
}

// renderTable renders one right-aligned table.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// folderOf returns the immediate parent of a slash-separated path.
func folderOf(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return schema.RootFolder
}
