package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/huangsam/locstat/internal/iocache"
	"github.com/huangsam/locstat/schema"
	"github.com/sirupsen/logrus"
)

// sinkTimeout bounds a single archive publish.
const sinkTimeout = 30 * time.Second

// run executes one pipeline for task and always clears its running marker.
// The marker stays set until the tree is removed and the entry is persisted,
// so a second pipeline for the same identity never overlaps this one.
func (c *Coordinator) run(ctx context.Context, task *Task) {
	defer c.wg.Done()
	defer close(task.done)
	defer task.cancel()
	defer c.release(task)

	log := c.log.WithFields(logrus.Fields{"identity": task.Identity.Key(), "run_id": task.ID})
	log.Info("Pipeline started")

	analysisID := c.beginRun(task, log)

	dest := c.materializePath(task)
	entry := c.execute(ctx, task, dest, log)
	c.store(entry)

	// The tree is never needed once the entry is cached
	if err := os.RemoveAll(dest); err != nil {
		log.WithError(err).WithField("path", dest).Warn("Failed to remove materialized tree")
	}

	outcome := "succeeded"
	if entry.Failure != nil {
		outcome = string(entry.Failure.Kind) + "_failed"
		log.WithField("reason", entry.Failure.Reason).Warn("Pipeline failed")
	} else {
		log.WithFields(logrus.Fields{
			"total_files": entry.Result.TotalFiles,
			"total_lines": entry.Result.TotalLines,
		}).Info("Pipeline succeeded")
	}
	c.metrics.pipelines.WithLabelValues(outcome).Inc()
	c.metrics.duration.Observe(c.opts.Clock().Sub(task.StartedAt).Seconds())

	c.persist(entry, analysisID, log)
}

// materializePath returns a destination unique to the identity, time and run.
func (c *Coordinator) materializePath(task *Task) string {
	name := fmt.Sprintf("%s_%s_%d_%s", task.Identity.Owner, task.Identity.Name, task.StartedAt.Unix(), task.ID[:8])
	return filepath.Join(c.opts.StorageRoot, name)
}

// execute sweeps, fetches and aggregates. A panic becomes a walk failure.
func (c *Coordinator) execute(ctx context.Context, task *Task, dest string, log *logrus.Entry) (entry *schema.CacheEntry) {
	entry = &schema.CacheEntry{Identity: task.Identity, Source: task.Source, RunID: task.ID}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Pipeline panicked")
			entry.Result = nil
			entry.Failure = &schema.AnalysisFailure{Kind: schema.WalkFailure, Reason: fmt.Sprintf("internal error: %v", r)}
		}
		entry.ProducedAt = c.opts.Clock()
	}()

	// 1. Remove stale trees left behind by earlier runs
	c.sweep(log)

	// 2. Materialize the repository
	if err := c.opts.Fetcher.Fetch(ctx, task.Source, dest); err != nil {
		entry.Failure = &schema.AnalysisFailure{Kind: schema.FetchFailure, Reason: err.Error()}
		return entry
	}

	// 3. Walk and count
	result, err := c.opts.Aggregator.Aggregate(ctx, dest)
	if err != nil {
		entry.Failure = &schema.AnalysisFailure{Kind: schema.WalkFailure, Reason: err.Error()}
		return entry
	}
	entry.Result = result
	return entry
}

// sweep runs the retention sweeper if one is configured.
func (c *Coordinator) sweep(log *logrus.Entry) {
	if c.opts.Sweeper == nil {
		return
	}
	report := c.opts.Sweeper.Sweep()
	c.metrics.swept.Add(float64(len(report.Removed)))
	for _, msg := range report.Errors {
		log.WithField("root", report.Root).Warn("Sweep: " + msg)
	}
}

// beginRun records the start of a run in the analysis store.
func (c *Coordinator) beginRun(task *Task, log *logrus.Entry) int64 {
	if c.opts.AnalysisStore == nil {
		return 0
	}
	analysisID, err := c.opts.AnalysisStore.BeginAnalysis(task.ID, task.Identity, task.Source, task.StartedAt)
	if err != nil {
		log.WithError(err).Warn("Failed to record analysis start")
		return 0
	}
	return analysisID
}

// persist performs the best-effort side effects of a completed pipeline.
// Failures are logged and never change the cached entry.
func (c *Coordinator) persist(entry *schema.CacheEntry, analysisID int64, log *logrus.Entry) {
	if store := c.opts.ResultStore; store != nil {
		if err := iocache.SaveEntry(store, entry); err != nil {
			log.WithError(err).Warn("Failed to write result store")
		}
	}

	if store := c.opts.AnalysisStore; store != nil && analysisID != 0 {
		outcome, reason, files, lines := schema.RunSucceeded, "", 0, 0
		if entry.Failure != nil {
			outcome, reason = schema.RunFailed, entry.Failure.Reason
		} else {
			files, lines = entry.Result.TotalFiles, entry.Result.TotalLines
			records := make([]*schema.FileRecord, 0, len(entry.Result.Files))
			for _, f := range entry.Result.Files {
				records = append(records, f)
			}
			if err := store.RecordFileLines(analysisID, records); err != nil {
				log.WithError(err).Warn("Failed to record file lines")
			}
		}
		if err := store.EndAnalysis(analysisID, entry.ProducedAt, outcome, reason, files, lines); err != nil {
			log.WithError(err).Warn("Failed to record analysis end")
		}
	}

	if sink := c.opts.Sink; sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := sink.Publish(ctx, entry); err != nil {
			log.WithError(err).Warn("Failed to publish result to archive")
		}
	}
}

// Hydrate loads still-fresh entries from the result store into the cache.
// Entries already present with a newer ProducedAt are kept.
func (c *Coordinator) Hydrate(ctx context.Context) (int, error) {
	store := c.opts.ResultStore
	if store == nil {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := c.opts.Clock()
	entries, err := iocache.LoadEntries(store, now.Add(-c.opts.Freshness).Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to load stored results: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	loaded := 0
	for _, entry := range entries {
		if !entry.FreshAt(now, c.opts.Freshness) {
			continue
		}
		if prev, ok := c.entries.Peek(entry.Identity); ok && !entry.ProducedAt.After(prev.ProducedAt) {
			continue
		}
		c.entries.Add(entry.Identity, entry)
		loaded++
	}
	c.log.WithField("entries", loaded).Info("Hydrated result cache")
	return loaded, nil
}
