// Package outwriter has output and writer logic.
package outwriter

import (
	"time"

	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API for the commands.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteResult prints one analysis entry using the configured output format.
func (ow *OutWriter) WriteResult(entry *schema.CacheEntry, cfg *contract.Config, duration time.Duration) error {
	return PrintResult(entry, cfg, duration)
}

// WriteClassifications prints file classification verdicts using the configured output format.
func (ow *OutWriter) WriteClassifications(reports []schema.ClassificationReport, cfg *contract.Config) error {
	return PrintClassifications(reports, cfg)
}
