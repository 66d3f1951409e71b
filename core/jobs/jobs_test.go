package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huangsam/locstat/core/agg"
	"github.com/huangsam/locstat/internal/iocache"
	"github.com/huangsam/locstat/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

var widgets = schema.NewIdentity("acme", "widgets")

// fakeFetcher writes a fixed tree into dest, optionally waiting on gate first.
type fakeFetcher struct {
	mu    sync.Mutex
	files map[string]string
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func newFakeFetcher(files map[string]string) *fakeFetcher {
	return &fakeFetcher{files: files}
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) Fetch(ctx context.Context, _, dest string) error {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return fmt.Errorf("git clone cancelled: %w", ctx.Err())
		}
	}

	f.mu.Lock()
	err, files := f.err, f.files
	f.mu.Unlock()
	if err != nil {
		return err
	}
	for rel, content := range files {
		path := filepath.Join(dest, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return os.MkdirAll(dest, 0o755)
}

// fakeClock is a settable clock shared with the coordinator.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type aggregatorFunc func(ctx context.Context, root string) (*schema.AnalysisResult, error)

func (f aggregatorFunc) Aggregate(ctx context.Context, root string) (*schema.AnalysisResult, error) {
	return f(ctx, root)
}

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep() schema.SweepReport {
	s.calls.Add(1)
	return schema.SweepReport{Removed: []string{"old"}, Errors: []string{"cannot remove stale"}}
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*schema.CacheEntry
}

func (s *recordingSink) Publish(_ context.Context, entry *schema.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return errors.New("bucket unavailable")
}

// gatedSink blocks every publish until release is closed.
type gatedSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSink) Publish(ctx context.Context, _ *schema.CacheEntry) error {
	s.entered <- struct{}{}
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func newTestCoordinator(t *testing.T, opts Options) *Coordinator {
	t.Helper()
	if opts.StorageRoot == "" {
		opts.StorageRoot = t.TempDir()
	}
	if opts.Aggregator == nil {
		opts.Aggregator = agg.New(2, nil)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(waitFor) })
	return c
}

func waitForState(t *testing.T, c *Coordinator, id schema.Identity, state schema.PollState) schema.PollOutcome {
	t.Helper()
	var out schema.PollOutcome
	require.Eventually(t, func() bool {
		out = c.PollStatus(id)
		return out.State == state
	}, waitFor, tick)
	return out
}

func waitIdle(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.Snapshot()) == 0 }, waitFor, tick)
}

// assertNoTrees checks that no materialized tree is left under root.
func assertNoTrees(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "materialized trees must be removed")
}

func TestNew(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	c, err := New(Options{Fetcher: newFakeFetcher(nil)})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, c.opts.Freshness)
	assert.Equal(t, 4096, c.opts.MaxEntries)
	assert.NotEmpty(t, c.opts.StorageRoot)
	require.NoError(t, c.Close(time.Second))
}

func TestRequestAnalysisValidation(t *testing.T) {
	c := newTestCoordinator(t, Options{Fetcher: newFakeFetcher(nil)})

	_, err := c.RequestAnalysis(schema.NewIdentity("", "widgets"), "src")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	_, err = c.RequestAnalysis(schema.NewIdentity("acme", "a/b"), "src")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	_, err = c.RequestAnalysis(widgets, "   ")
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestPipelineSuccess(t *testing.T) {
	root := t.TempDir()
	fetcher := newFakeFetcher(map[string]string{
		"src/a.py":    "hello\nworld\n",
		"src/b.png":   "\x89PNG\r\n\x1a\nxxxx",
		".git/config": "[core]\n",
	})
	reg := prometheus.NewRegistry()
	c := newTestCoordinator(t, Options{Fetcher: fetcher, StorageRoot: root, Registerer: reg})

	assert.Equal(t, schema.NotReady, c.PollStatus(widgets).State)

	out, err := c.RequestAnalysis(widgets, "https://example.com/acme/widgets")
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.False(t, out.Cached)
	assert.NotEmpty(t, out.RunID)

	poll := waitForState(t, c, widgets, schema.Ready)
	require.NotNil(t, poll.Result)
	assert.Equal(t, 2, poll.Result.TotalLines)
	assert.Equal(t, 1, poll.Result.TotalFiles)
	assert.Equal(t, 2, poll.Result.Folders["src"].Lines)
	assert.Equal(t, 1, poll.Result.Folders["src"].Files)
	waitIdle(t, c)

	// Cached answers do not start another pipeline
	out, err = c.RequestAnalysis(widgets, "https://example.com/acme/widgets")
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.False(t, out.Accepted)
	require.NotNil(t, out.Entry)
	assert.True(t, out.Entry.Succeeded())
	assert.Equal(t, int32(1), fetcher.calls.Load())

	entry, ok := c.RenderableResult(widgets)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/acme/widgets", entry.Source)

	// The materialized tree is removed
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(root)
		return err == nil && len(entries) == 0
	}, waitFor, tick)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues("cached")))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c.metrics.pipelines.WithLabelValues("succeeded")) == 1
	}, waitFor, tick)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.running))
}

func TestDuplicateRequestsCoalesce(t *testing.T) {
	fetcher := newFakeFetcher(map[string]string{"main.go": "package main\n"})
	fetcher.gate = make(chan struct{})
	c := newTestCoordinator(t, Options{Fetcher: fetcher})

	first, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	require.True(t, first.Accepted)

	var wg sync.WaitGroup
	outcomes := make([]schema.RequestOutcome, 8)
	for i := range outcomes {
		wg.Go(func() {
			out, err := c.RequestAnalysis(widgets, "src")
			assert.NoError(t, err)
			outcomes[i] = out
		})
	}
	wg.Wait()

	for _, out := range outcomes {
		assert.True(t, out.Accepted)
		assert.True(t, out.Coalesced)
		assert.Equal(t, first.RunID, out.RunID)
	}

	info, ok := c.Running(widgets)
	require.True(t, ok)
	assert.Equal(t, first.RunID, info.RunID)
	assert.Len(t, c.Snapshot(), 1)
	assert.Equal(t, schema.NotReady, c.PollStatus(widgets).State)

	close(fetcher.gate)
	waitForState(t, c, widgets, schema.Ready)
	waitIdle(t, c)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	_, ok = c.Running(widgets)
	assert.False(t, ok)
}

func TestDifferentIdentitiesRunInParallel(t *testing.T) {
	fetcher := newFakeFetcher(map[string]string{"a.txt": "x\n"})
	fetcher.gate = make(chan struct{})
	c := newTestCoordinator(t, Options{Fetcher: fetcher})

	gadgets := schema.NewIdentity("acme", "gadgets")
	_, err := c.RequestAnalysis(widgets, "src1")
	require.NoError(t, err)
	_, err = c.RequestAnalysis(gadgets, "src2")
	require.NoError(t, err)

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 2)

	close(fetcher.gate)
	waitForState(t, c, widgets, schema.Ready)
	waitForState(t, c, gadgets, schema.Ready)
}

func TestFetchFailureThenRetryAfterExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	fetcher := newFakeFetcher(map[string]string{"a.go": "package a\n\nfunc A() {}\n"})
	fetcher.setErr(errors.New("git clone failed: repository not found"))
	root := t.TempDir()
	c := newTestCoordinator(t, Options{Fetcher: fetcher, StorageRoot: root, Clock: clock.Now, Freshness: time.Minute})

	_, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	poll := waitForState(t, c, widgets, schema.Failed)
	assert.Equal(t, "git clone failed: repository not found", poll.Reason)
	waitIdle(t, c)
	assertNoTrees(t, root)

	// A fresh failure is answered from the cache
	out, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	assert.True(t, out.Cached)
	require.NotNil(t, out.Entry.Failure)
	assert.Equal(t, schema.FetchFailure, out.Entry.Failure.Kind)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	// Once expired the failure reads as not ready and a retry is accepted
	clock.Advance(2 * time.Minute)
	assert.Equal(t, schema.NotReady, c.PollStatus(widgets).State)
	_, ok := c.RenderableResult(widgets)
	assert.False(t, ok)

	fetcher.setErr(nil)
	out, err = c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	poll = waitForState(t, c, widgets, schema.Ready)
	assert.Equal(t, 3, poll.Result.TotalLines)
	assert.Equal(t, int32(2), fetcher.calls.Load())
	waitIdle(t, c)
	assertNoTrees(t, root)
}

func TestWalkFailure(t *testing.T) {
	failing := aggregatorFunc(func(context.Context, string) (*schema.AnalysisResult, error) {
		return nil, agg.ErrNotDirectory
	})
	root := t.TempDir()
	fetcher := newFakeFetcher(map[string]string{"a.go": "package a\n"})
	c := newTestCoordinator(t, Options{Fetcher: fetcher, StorageRoot: root, Aggregator: failing})

	_, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	waitForState(t, c, widgets, schema.Failed)

	entry, ok := c.RenderableResult(widgets)
	require.True(t, ok)
	assert.Equal(t, schema.WalkFailure, entry.Failure.Kind)
	assert.Nil(t, entry.Result)

	// The tree is removed even though aggregation failed
	waitIdle(t, c)
	assertNoTrees(t, root)
}

func TestPanicBecomesWalkFailure(t *testing.T) {
	panicking := aggregatorFunc(func(context.Context, string) (*schema.AnalysisResult, error) {
		panic("boom")
	})
	root := t.TempDir()
	fetcher := newFakeFetcher(map[string]string{"a.go": "package a\n"})
	c := newTestCoordinator(t, Options{Fetcher: fetcher, StorageRoot: root, Aggregator: panicking})

	_, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	poll := waitForState(t, c, widgets, schema.Failed)
	assert.Contains(t, poll.Reason, "boom")
	waitIdle(t, c)

	_, ok := c.Running(widgets)
	assert.False(t, ok, "running marker must be cleared after a panic")
	assertNoTrees(t, root)
}

func TestProducedAtStrictlyIncreases(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCoordinator(t, Options{Fetcher: newFakeFetcher(nil), Clock: func() time.Time { return frozen }})

	first := &schema.CacheEntry{Identity: widgets, ProducedAt: frozen}
	c.store(first)
	second := &schema.CacheEntry{Identity: widgets, ProducedAt: frozen}
	c.store(second)

	assert.True(t, second.ProducedAt.After(first.ProducedAt))
	entry, ok := c.RenderableResult(widgets)
	require.True(t, ok)
	assert.Same(t, second, entry)
}

func TestEvictionReadsAsAbsent(t *testing.T) {
	c := newTestCoordinator(t, Options{Fetcher: newFakeFetcher(nil), MaxEntries: 1})
	now := time.Now()
	c.store(&schema.CacheEntry{Identity: widgets, Result: schema.NewAnalysisResult(), ProducedAt: now})
	gadgets := schema.NewIdentity("acme", "gadgets")
	c.store(&schema.CacheEntry{Identity: gadgets, Result: schema.NewAnalysisResult(), ProducedAt: now})

	assert.Equal(t, schema.NotReady, c.PollStatus(widgets).State)
	assert.Equal(t, schema.Ready, c.PollStatus(gadgets).State)
}

func TestExpiredEntryIsDropped(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCoordinator(t, Options{Fetcher: newFakeFetcher(nil), Clock: clock.Now, Freshness: time.Minute})
	c.store(&schema.CacheEntry{Identity: widgets, Result: schema.NewAnalysisResult(), ProducedAt: clock.Now()})

	assert.Equal(t, schema.Ready, c.PollStatus(widgets).State)
	assert.Equal(t, 1, c.entries.Len())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, schema.NotReady, c.PollStatus(widgets).State)
	_, ok := c.entries.Peek(widgets)
	assert.False(t, ok, "expired entry must leave the cache")
}

func TestRunningMarkerHeldUntilPersisted(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	fetcher := newFakeFetcher(map[string]string{"a.txt": "a\n"})
	sink := &gatedSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := newTestCoordinator(t, Options{Fetcher: fetcher, Sink: sink, Clock: clock.Now, Freshness: time.Minute})

	first, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	select {
	case <-sink.entered:
	case <-time.After(waitFor):
		t.Fatal("pipeline never reached the archive sink")
	}

	// The result is visible while the tail of the pipeline is still persisting
	assert.Equal(t, schema.Ready, c.PollStatus(widgets).State)
	info, ok := c.Running(widgets)
	require.True(t, ok)
	assert.Equal(t, first.RunID, info.RunID)

	// Even once the entry expires, a new request joins the unfinished pipeline
	clock.Advance(2 * time.Minute)
	out, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	assert.True(t, out.Coalesced)
	assert.Equal(t, first.RunID, out.RunID)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	close(sink.release)
	waitIdle(t, c)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.running))
}

func TestCloseCancelsPipelines(t *testing.T) {
	fetcher := newFakeFetcher(nil)
	fetcher.gate = make(chan struct{})
	c, err := New(Options{Fetcher: fetcher, StorageRoot: t.TempDir()})
	require.NoError(t, err)

	_, err = c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	require.NoError(t, c.Close(waitFor))

	entry, ok := c.RenderableResult(widgets)
	require.True(t, ok)
	require.NotNil(t, entry.Failure)
	assert.Equal(t, schema.FetchFailure, entry.Failure.Kind)
	assert.Contains(t, entry.Failure.Reason, "cancelled")

	_, err = c.RequestAnalysis(widgets, "src")
	assert.ErrorIs(t, err, ErrCoordinatorClosed)
	assert.NoError(t, c.Close(waitFor), "second close is a no-op")
}

func TestWait(t *testing.T) {
	fetcher := newFakeFetcher(map[string]string{"a.txt": "a\n"})
	fetcher.gate = make(chan struct{})
	c := newTestCoordinator(t, Options{Fetcher: fetcher})

	assert.NoError(t, c.Wait(context.Background(), widgets), "nothing running")

	_, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx, widgets), context.DeadlineExceeded)

	close(fetcher.gate)
	require.NoError(t, c.Wait(context.Background(), widgets))
	assert.Equal(t, schema.Ready, c.PollStatus(widgets).State)
}

func TestSideEffectsAreBestEffort(t *testing.T) {
	analysis := &iocache.MockAnalysisStore{}
	analysis.On("BeginAnalysis", mock.AnythingOfType("string"), widgets, "src", mock.AnythingOfType("time.Time")).Return(int64(42), nil)
	analysis.On("RecordFileLines", int64(42), mock.Anything).Return(errors.New("disk full"))
	analysis.On("EndAnalysis", int64(42), mock.AnythingOfType("time.Time"), schema.RunSucceeded, "", 1, 1).Return(nil)

	results := &iocache.MockCacheStore{}
	results.On("Set", "acme/widgets", mock.Anything, iocache.EntryVersion, mock.AnythingOfType("int64")).Return(errors.New("db down"))

	sink := &recordingSink{}
	sweeper := &countingSweeper{}
	c := newTestCoordinator(t, Options{
		Fetcher:       newFakeFetcher(map[string]string{"a.txt": "one\n"}),
		Sweeper:       sweeper,
		ResultStore:   results,
		AnalysisStore: analysis,
		Sink:          sink,
	})

	_, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	require.NoError(t, c.Wait(context.Background(), widgets))
	require.Eventually(t, func() bool { return sink.count() == 1 }, waitFor, tick)

	assert.Equal(t, schema.Ready, c.PollStatus(widgets).State, "store and sink failures never override the result")
	assert.Equal(t, int32(1), sweeper.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.swept))
	analysis.AssertExpectations(t)
	results.AssertExpectations(t)
}

func TestFailedRunRecorded(t *testing.T) {
	analysis := &iocache.MockAnalysisStore{}
	analysis.On("BeginAnalysis", mock.Anything, widgets, "src", mock.Anything).Return(int64(7), nil)
	analysis.On("EndAnalysis", int64(7), mock.Anything, schema.RunFailed, "no such repo", 0, 0).Return(nil)

	fetcher := newFakeFetcher(nil)
	fetcher.setErr(errors.New("no such repo"))
	sink := &recordingSink{}
	c := newTestCoordinator(t, Options{Fetcher: fetcher, AnalysisStore: analysis, Sink: sink})

	_, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.count() == 1 }, waitFor, tick)

	analysis.AssertExpectations(t)
	analysis.AssertNotCalled(t, "RecordFileLines", mock.Anything, mock.Anything)
}

func TestHydrate(t *testing.T) {
	store, err := iocache.NewCacheStore(iocache.ResultTable, schema.SQLiteBackend, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Now()
	gadgets := schema.NewIdentity("acme", "gadgets")
	fresh := &schema.CacheEntry{Identity: widgets, RunID: "r1", Result: schema.NewAnalysisResult(), ProducedAt: now.Add(-time.Minute)}
	stale := &schema.CacheEntry{Identity: gadgets, RunID: "r2", Result: schema.NewAnalysisResult(), ProducedAt: now.Add(-time.Hour)}
	require.NoError(t, iocache.SaveEntry(store, fresh))
	require.NoError(t, iocache.SaveEntry(store, stale))

	c := newTestCoordinator(t, Options{Fetcher: newFakeFetcher(nil), ResultStore: store})
	loaded, err := c.Hydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, schema.Ready, c.PollStatus(widgets).State)
	assert.Equal(t, schema.NotReady, c.PollStatus(gadgets).State)

	out, err := c.RequestAnalysis(widgets, "src")
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, "r1", out.RunID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Hydrate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHydrateWithoutStore(t *testing.T) {
	c := newTestCoordinator(t, Options{Fetcher: newFakeFetcher(nil)})
	loaded, err := c.Hydrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, loaded)
}

func TestMaterializePath(t *testing.T) {
	c := newTestCoordinator(t, Options{Fetcher: newFakeFetcher(nil), StorageRoot: "/srv/repos"})
	task := &Task{ID: "0123456789abcdef", Identity: widgets, StartedAt: time.Unix(1700000000, 0)}
	assert.Equal(t, filepath.Join("/srv/repos", "acme_widgets_1700000000_01234567"), c.materializePath(task))
}
