package cmd

import (
	"github.com/huangsam/locstat/core/classify"
	"github.com/huangsam/locstat/core/lines"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/outwriter"
	"github.com/huangsam/locstat/schema"
	"github.com/spf13/cobra"
)

// classifyCmd explains how individual files are treated.
var classifyCmd = &cobra.Command{
	Use:   "classify <file>...",
	Short: "Show whether files count as text and which encoding decodes them",
	Long: `Classify each file the same way an analysis does and print the verdict.

For every file this shows:
- Verdict (text or binary) and the deciding rule
- Encoding used to decode text files
- Line count for text files

Use it to find out why a file is missing from a report.

Examples:
  # Inspect a couple of files
  locstat classify README.md assets/logo.png

  # Machine-readable output
  locstat classify legacy/*.c --output json`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, args []string) {
		reports := make([]schema.ClassificationReport, 0, len(args))
		for _, path := range args {
			reports = append(reports, inspectFile(path))
		}
		if err := outwriter.PrintClassifications(reports, cfg); err != nil {
			contract.LogFatal("Failed to print classifications", err)
		}
	},
}

// inspectFile classifies path and counts its lines when it is text.
func inspectFile(path string) schema.ClassificationReport {
	report := schema.ClassificationReport{Path: path}

	inspection, err := classify.ClassifyFile(path)
	if err != nil {
		report.Verdict = schema.BinaryVerdict
		report.Error = err.Error()
		return report
	}

	report.Verdict = inspection.Verdict
	report.Reason = string(inspection.Reason)
	report.Detail = inspection.Detail
	report.SizeBytes = inspection.Size
	if inspection.IsText() {
		report.Encoding = inspection.Encoding.String()
		report.Lines = lines.CountFile(path, inspection.Encoding)
	}
	return report
}
