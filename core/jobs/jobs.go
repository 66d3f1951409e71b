// Package jobs coordinates background analysis pipelines per repository
// identity: it answers from a bounded in-memory cache, starts at most one
// pipeline per identity, and lets callers poll for completion.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/huangsam/locstat/core/agg"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Sentinel errors returned by RequestAnalysis.
var (
	ErrInvalidIdentity   = errors.New("invalid repository identity")
	ErrEmptySource       = errors.New("repository source is required")
	ErrCoordinatorClosed = errors.New("coordinator is closed")
)

// Aggregator walks a materialized tree.
type Aggregator interface {
	Aggregate(ctx context.Context, root string) (*schema.AnalysisResult, error)
}

// Sweeper removes stale trees from the storage root.
type Sweeper interface {
	Sweep() schema.SweepReport
}

// Options configures a Coordinator. Only Fetcher is required.
type Options struct {
	Fetcher     contract.Fetcher
	Aggregator  Aggregator
	Sweeper     Sweeper
	StorageRoot string
	Freshness   time.Duration
	MaxEntries  int

	// Optional best-effort side effects of a completed pipeline.
	ResultStore   contract.CacheStore
	AnalysisStore contract.AnalysisStore
	Sink          contract.ResultSink

	Registerer prometheus.Registerer
	Clock      func() time.Time
	Logger     *logrus.Entry
}

// Task is a running pipeline registered under its identity.
type Task struct {
	ID        string
	Identity  schema.Identity
	Source    string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Done is closed once the pipeline has finished all of its work.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Info returns an inspection copy of the task.
func (t *Task) Info() schema.TaskInfo {
	return schema.TaskInfo{Identity: t.Identity, RunID: t.ID, Source: t.Source, StartedAt: t.StartedAt}
}

// Coordinator owns the identity -> entry mapping and the running markers.
type Coordinator struct {
	mu      sync.Mutex
	entries *lru.Cache[schema.Identity, *schema.CacheEntry]
	running map[schema.Identity]*Task
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	opts    Options
	metrics *metrics
	log     *logrus.Entry
}

var _ contract.AnalysisCoordinator = &Coordinator{} // Compile-time check

// New creates a Coordinator, filling defaults for every unset option.
func New(opts Options) (*Coordinator, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("a repository fetcher is required")
	}
	if opts.Aggregator == nil {
		opts.Aggregator = agg.New(contract.DefaultWorkers, nil)
	}
	if opts.StorageRoot == "" {
		opts.StorageRoot = contract.DefaultStorageRoot
	}
	if opts.Freshness <= 0 {
		opts.Freshness = contract.DefaultFreshness
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = contract.DefaultMaxEntries
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = contract.ComponentLogger("jobs")
	}

	entries, err := lru.New[schema.Identity, *schema.CacheEntry](opts.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry cache: %w", err)
	}
	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		entries: entries,
		running: make(map[schema.Identity]*Task),
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		metrics: m,
		log:     opts.Logger,
	}, nil
}

// RequestAnalysis returns a fresh cached entry for id, or makes sure a
// pipeline fetching source is running for it. It never blocks on I/O.
func (c *Coordinator) RequestAnalysis(id schema.Identity, source string) (schema.RequestOutcome, error) {
	id = schema.NewIdentity(id.Owner, id.Name)
	if err := id.Validate(); err != nil {
		return schema.RequestOutcome{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return schema.RequestOutcome{}, ErrEmptySource
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return schema.RequestOutcome{}, ErrCoordinatorClosed
	}

	// 1. Fresh entries are answered directly, failures included
	if entry, ok := c.freshEntry(id); ok {
		c.metrics.requests.WithLabelValues("cached").Inc()
		return schema.RequestOutcome{Cached: true, Entry: entry, RunID: entry.RunID}, nil
	}

	// 2. Coalesce onto the pipeline already running for this identity
	if task, ok := c.running[id]; ok {
		c.metrics.requests.WithLabelValues("coalesced").Inc()
		return schema.RequestOutcome{Accepted: true, Coalesced: true, RunID: task.ID}, nil
	}

	// 3. Register the running marker and launch the pipeline
	ctx, cancel := context.WithCancel(c.ctx)
	task := &Task{
		ID:        uuid.NewString(),
		Identity:  id,
		Source:    source,
		StartedAt: c.opts.Clock(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.running[id] = task
	c.metrics.requests.WithLabelValues("accepted").Inc()
	c.metrics.running.Inc()

	c.wg.Add(1)
	go c.run(ctx, task)

	return schema.RequestOutcome{Accepted: true, RunID: task.ID}, nil
}

// PollStatus reports the state of id without triggering any work.
func (c *Coordinator) PollStatus(id schema.Identity) schema.PollOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.freshEntry(schema.NewIdentity(id.Owner, id.Name))
	switch {
	case !ok:
		return schema.PollOutcome{State: schema.NotReady}
	case entry.Failure != nil:
		return schema.PollOutcome{State: schema.Failed, Reason: entry.Failure.Reason}
	default:
		return schema.PollOutcome{State: schema.Ready, Result: entry.Result}
	}
}

// RenderableResult returns the full fresh entry for id, success or failure.
func (c *Coordinator) RenderableResult(id schema.Identity) (*schema.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freshEntry(schema.NewIdentity(id.Owner, id.Name))
}

// Running reports the pipeline currently registered for id.
func (c *Coordinator) Running(id schema.Identity) (schema.TaskInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.running[schema.NewIdentity(id.Owner, id.Name)]
	if !ok {
		return schema.TaskInfo{}, false
	}
	return task.Info(), true
}

// Snapshot lists running pipelines, oldest first.
func (c *Coordinator) Snapshot() []schema.TaskInfo {
	c.mu.Lock()
	infos := make([]schema.TaskInfo, 0, len(c.running))
	for _, task := range c.running {
		infos = append(infos, task.Info())
	}
	c.mu.Unlock()

	slices.SortFunc(infos, func(a, b schema.TaskInfo) int {
		if n := a.StartedAt.Compare(b.StartedAt); n != 0 {
			return n
		}
		return strings.Compare(a.Identity.Key(), b.Identity.Key())
	})
	return infos
}

// Wait blocks until the pipeline registered for id finishes or ctx ends.
// It returns immediately when nothing is running.
func (c *Coordinator) Wait(ctx context.Context, id schema.Identity) error {
	c.mu.Lock()
	task, ok := c.running[schema.NewIdentity(id.Owner, id.Name)]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-task.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new requests, cancels in-flight pipelines and waits up to
// timeout for them to finish.
func (c *Coordinator) Close(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	inFlight := len(c.running)
	c.mu.Unlock()

	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s waiting for %d pipelines to stop", timeout, inFlight)
	}
}

// freshEntry returns the entry for id if it is still within the freshness window.
// An expired entry is removed so it reads as Absent from then on.
// Callers must hold c.mu.
func (c *Coordinator) freshEntry(id schema.Identity) (*schema.CacheEntry, bool) {
	entry, ok := c.entries.Get(id)
	if !ok {
		return nil, false
	}
	if !entry.FreshAt(c.opts.Clock(), c.opts.Freshness) {
		c.entries.Remove(id)
		return nil, false
	}
	return entry, true
}

// store writes entry for its identity, keeping ProducedAt strictly increasing.
func (c *Coordinator) store(entry *schema.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries.Peek(entry.Identity); ok && !entry.ProducedAt.After(prev.ProducedAt) {
		entry.ProducedAt = prev.ProducedAt.Add(time.Nanosecond)
	}
	c.entries.Add(entry.Identity, entry)
}

// release clears the running marker of task once its pipeline has fully finished.
func (c *Coordinator) release(task *Task) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running[task.Identity] == task {
		delete(c.running, task.Identity)
		c.metrics.running.Dec()
	}
}
