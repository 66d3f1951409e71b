package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
)

// PrintClassifications outputs classification verdicts in the configured format.
func PrintClassifications(reports []schema.ClassificationReport, cfg *contract.Config) error {
	if cfg.Output == schema.TextOut || cfg.Output == "" {
		return WriteClassifications(os.Stdout, reports, cfg)
	}
	if cfg.Output == schema.ParquetOut {
		return fmt.Errorf("parquet output is not supported for classify. Use json, csv or yaml")
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteClassifications(w, reports, cfg)
	}, "Wrote "+string(cfg.Output))
}

// WriteClassifications writes classification verdicts to w.
func WriteClassifications(w io.Writer, reports []schema.ClassificationReport, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeJSON(w, reports)
	case schema.YAMLOut:
		return writeYAML(w, reports)
	case schema.CSVOut:
		header := []string{"path", "verdict", "encoding", "reason", "detail", "size_bytes", "lines", "error"}
		return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
			for _, r := range reports {
				row := []string{
					r.Path, string(r.Verdict), r.Encoding, r.Reason, r.Detail,
					strconv.FormatInt(r.SizeBytes, 10), strconv.Itoa(r.Lines), r.Error,
				}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
			return nil
		})
	case schema.ParquetOut:
		return fmt.Errorf("parquet output is not supported for classify. Use json, csv or yaml")
	default:
		return writeClassificationTable(w, reports, cfg)
	}
}

func writeClassificationTable(w io.Writer, reports []schema.ClassificationReport, cfg *contract.Config) error {
	textColor, binaryColor := fmt.Sprint, fmt.Sprint
	if cfg.UseColors {
		textColor = color.New(color.FgGreen).SprintFunc()
		binaryColor = color.New(color.FgRed).SprintFunc()
	}
	pathWidth := GetMaxTablePathWidth(cfg)

	rows := make([][]string, 0, len(reports))
	var textFiles, textLines int
	for _, r := range reports {
		verdict := string(r.Verdict)
		switch r.Verdict {
		case schema.TextVerdict:
			verdict = textColor(verdict)
			textFiles++
			textLines += r.Lines
		case schema.BinaryVerdict:
			verdict = binaryColor(verdict)
		}
		reason := r.Reason
		if r.Error != "" {
			reason = "error: " + r.Error
		} else if r.Detail != "" {
			reason += " (" + r.Detail + ")"
		}
		encoding := r.Encoding
		if encoding == "" {
			encoding = "-"
		}
		rows = append(rows, []string{
			contract.TruncatePath(r.Path, pathWidth),
			verdict,
			encoding,
			humanize.Bytes(uint64(max(r.SizeBytes, 0))),
			humanize.Comma(int64(r.Lines)),
			reason,
		})
	}
	if err := renderTable(w, []string{"Path", "Verdict", "Encoding", "Size", "Lines", "Reason"}, rows); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%d of %d files are text, %s lines total\n", textFiles, len(reports), humanize.Comma(int64(textLines)))
	return nil
}
