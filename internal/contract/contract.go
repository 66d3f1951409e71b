// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/huangsam/locstat/schema"
)

// Fetcher materializes a repository working tree at dest.
// Implementations must fail cleanly and honor ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, source, dest string) error
}

// CacheManager defines the interface for managing durable stores.
// This allows the persistence layer to be mocked for testing.
type CacheManager interface {
	GetResultStore() CacheStore
	GetAnalysisStore() AnalysisStore
}

// CacheStore defines the interface for durable key/value storage of completed results.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error

	// Scan calls fn for every entry whose timestamp is at or after since.
	Scan(since int64, fn func(key string, value []byte, version int, timestamp int64) error) error

	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// AnalysisStore defines the interface for tracking analysis runs and per-file line counts.
type AnalysisStore interface {
	// BeginAnalysis creates a new analysis run and returns its unique ID
	BeginAnalysis(runID string, id schema.Identity, source string, startTime time.Time) (int64, error)

	// EndAnalysis updates the analysis run with completion data
	EndAnalysis(analysisID int64, endTime time.Time, outcome string, failureReason string, totalFiles int, totalLines int) error

	// RecordFileLines stores the counted lines of every file in a result
	RecordFileLines(analysisID int64, files []*schema.FileRecord) error

	// GetStatus returns status information about the analysis store
	GetStatus() (schema.AnalysisStatus, error)

	// GetAllAnalysisRuns returns every stored run ordered by ID
	GetAllAnalysisRuns() ([]schema.AnalysisRunRecord, error)

	// GetAllFileLines returns every stored file row ordered by run and path
	GetAllFileLines() ([]schema.FileLinesRecord, error)

	// Close closes the underlying connection
	Close() error
}

// ResultSink receives completed entries for archival outside the process.
type ResultSink interface {
	Publish(ctx context.Context, entry *schema.CacheEntry) error
}

// AnalysisCoordinator is the core surface the HTTP and MCP adapters drive.
type AnalysisCoordinator interface {
	RequestAnalysis(id schema.Identity, source string) (schema.RequestOutcome, error)
	PollStatus(id schema.Identity) schema.PollOutcome
	RenderableResult(id schema.Identity) (*schema.CacheEntry, bool)
	Running(id schema.Identity) (schema.TaskInfo, bool)
}
