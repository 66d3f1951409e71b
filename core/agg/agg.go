// Package agg walks a materialized tree and aggregates per-file line counts
// into file, folder, extension and language totals.
package agg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/huangsam/locstat/core/classify"
	"github.com/huangsam/locstat/core/lines"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
	"github.com/sirupsen/logrus"
	"github.com/src-d/enry/v2"
)

// ErrNotDirectory is returned when the walk root is not a directory.
var ErrNotDirectory = errors.New("walk root is not a directory")

// Aggregator computes an AnalysisResult for a directory tree.
type Aggregator struct {
	Workers  int
	Excludes []string
	Logger   *logrus.Entry
}

// New creates an Aggregator with the given worker count and exclude patterns.
// A non-positive worker count falls back to GOMAXPROCS.
func New(workers int, excludes []string) *Aggregator {
	return &Aggregator{Workers: workers, Excludes: excludes}
}

// candidate is a file that survived walk pruning.
type candidate struct {
	abs string
	rel string
}

// Aggregate walks root and returns the aggregated line statistics.
// Unreadable files are skipped. A root that cannot be read and a cancelled
// context are returned as errors.
func (a *Aggregator) Aggregate(ctx context.Context, root string) (*schema.AnalysisResult, error) {
	log := a.logger().WithField("path", root)

	// 1. Validate the root
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read walk root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	// 2. Collect candidate files
	files, err := a.collect(ctx, root)
	if err != nil {
		return nil, err
	}
	log.WithField("candidates", len(files)).Debug("Walk finished")

	// 3. Classify and count on the worker pool
	records := a.analyzeFiles(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("walk cancelled: %w", err)
	}

	// 4. Merge into the final result
	result := buildResult(records)
	log.WithFields(logrus.Fields{
		"files": result.TotalFiles,
		"lines": result.TotalLines,
	}).Debug("Aggregation finished")
	return result, nil
}

// analyzeFiles processes all candidates in parallel using a worker pool.
// The returned slice holds one record per counted file in no particular order.
func (a *Aggregator) analyzeFiles(ctx context.Context, files []candidate) []*schema.FileRecord {
	fileCh := make(chan candidate, len(files))
	recordCh := make(chan *schema.FileRecord, len(files))
	var wg sync.WaitGroup

	for range a.workers() {
		wg.Go(func() {
			for f := range fileCh {
				if ctx.Err() != nil {
					continue
				}
				if rec := a.analyzeFile(f); rec != nil {
					recordCh <- rec
				}
			}
		})
	}

	for _, f := range files {
		fileCh <- f
	}
	close(fileCh)

	wg.Wait()
	close(recordCh)

	records := make([]*schema.FileRecord, 0, len(files))
	for r := range recordCh {
		records = append(records, r)
	}
	return records
}

// analyzeFile classifies and counts one file. It returns nil for anything
// that should not appear in the result.
func (a *Aggregator) analyzeFile(f candidate) *schema.FileRecord {
	insp, err := classify.ClassifyFile(f.abs)
	if err != nil {
		a.logger().WithError(err).WithField("path", f.rel).Debug("Skipping unreadable file")
		return nil
	}
	if !insp.IsText() {
		a.logger().WithFields(logrus.Fields{"path": f.rel, "reason": insp.Reason}).Trace("Skipping binary file")
		return nil
	}

	n := lines.CountFile(f.abs, insp.Encoding)
	if n <= 0 {
		return nil
	}
	return &schema.FileRecord{
		Path:      f.rel,
		Lines:     n,
		Extension: extensionLabel(f.rel),
		Language:  languageLabel(f.rel, insp.Sample),
		SizeBytes: insp.Size,
	}
}

func (a *Aggregator) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (a *Aggregator) logger() *logrus.Entry {
	if a.Logger != nil {
		return a.Logger
	}
	return contract.ComponentLogger("agg")
}

// languageLabel returns the enry language for a file, or the unknown label.
func languageLabel(rel string, sample []byte) string {
	if lang := enry.GetLanguage(filepath.Base(rel), sample); lang != "" {
		return lang
	}
	return schema.UnknownLanguage
}
