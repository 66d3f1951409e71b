package outwriter

import (
	"fmt"
	"io"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
)

// WriteSweepReport writes the outcome of a retention sweep to w.
func WriteSweepReport(w io.Writer, report schema.SweepReport, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeJSON(w, report)
	case schema.YAMLOut:
		return writeYAML(w, report)
	}

	if report.Skipped {
		_, err := fmt.Fprintf(w, "⏭️  Sweep of %s skipped: another sweep holds the lock.\n", report.Root)
		return err
	}
	_, _ = fmt.Fprintf(w, "🧹 Swept %s: removed %d expired trees\n", report.Root, len(report.Removed))
	for _, path := range report.Removed {
		_, _ = fmt.Fprintf(w, "  - %s\n", path)
	}
	for _, msg := range report.Errors {
		_, _ = fmt.Fprintf(w, "  ⚠️  %s\n", msg)
	}
	return nil
}
