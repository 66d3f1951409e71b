package cmd

import (
	"fmt"

	"github.com/huangsam/locstat/core/agg"
	"github.com/huangsam/locstat/core/jobs"
	"github.com/huangsam/locstat/core/sweep"
	"github.com/huangsam/locstat/internal/archive"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/internal/fetch"
	"github.com/huangsam/locstat/internal/iocache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// newCoordinator wires the analysis engine from the validated config.
// The returned registry holds the coordinator metrics plus the Go and process collectors.
func newCoordinator(c *contract.Config, mgr contract.CacheManager) (*jobs.Coordinator, *prometheus.Registry, error) {
	fetcher, err := fetch.New(c.Fetcher, c.FetchTimeout)
	if err != nil {
		return nil, nil, err
	}

	var sink contract.ResultSink
	if c.Archive.Enabled() {
		s3, err := archive.NewS3Sink(c.Archive)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure archive: %w", err)
		}
		sink = s3
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	coord, err := jobs.New(jobs.Options{
		Fetcher:       fetcher,
		Aggregator:    agg.New(c.Workers, c.Excludes),
		Sweeper:       sweep.New(c.StorageRoot, c.Retention),
		StorageRoot:   c.StorageRoot,
		Freshness:     c.Freshness,
		MaxEntries:    c.MaxEntries,
		ResultStore:   mgr.GetResultStore(),
		AnalysisStore: mgr.GetAnalysisStore(),
		Sink:          sink,
		Registerer:    registry,
		Logger:        contract.ComponentLogger("jobs"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	return coord, registry, nil
}

// defaultManager is the process-wide store manager set up by sharedSetup.
func defaultManager() contract.CacheManager {
	return iocache.Manager
}
