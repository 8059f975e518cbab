package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"histlens/internal/analyzer"
	"histlens/internal/cache"
	"histlens/internal/config"
	"histlens/internal/eligibility"
	hlerrors "histlens/internal/errors"
	"histlens/internal/gitsource"
	"histlens/internal/logging"
	"histlens/internal/prompt"
	"histlens/internal/routing"
)

type fakeSource struct {
	details  *gitsource.CommitDetails
	changes  []gitsource.FileChange
	history  []gitsource.HistoryEntry
	contents map[string]string // "rev:path" -> content
	diffErr  error
}

func (f *fakeSource) CommitDetails(ctx context.Context, hash string) (*gitsource.CommitDetails, error) {
	if f.details == nil {
		return nil, fmt.Errorf("unknown revision %s", hash)
	}
	return f.details, nil
}

func (f *fakeSource) CommitChanges(ctx context.Context, hash string) ([]gitsource.FileChange, error) {
	return f.changes, nil
}

func (f *fakeSource) CompareChanges(ctx context.Context, fromHash, toHash string) ([]gitsource.FileChange, error) {
	return f.changes, nil
}

func (f *fakeSource) CommitFileDiff(ctx context.Context, hash, path string) (string, error) {
	if f.diffErr != nil {
		return "", f.diffErr
	}
	return "+changed " + path + "\n", nil
}

func (f *fakeSource) CompareFileDiff(ctx context.Context, fromHash, toHash, path string) (string, error) {
	return f.CommitFileDiff(ctx, fromHash, path)
}

func (f *fakeSource) FileAtRevision(ctx context.Context, revision, path string) (string, error) {
	if content, ok := f.contents[revision+":"+path]; ok {
		return content, nil
	}
	return "", fmt.Errorf("no such file %s at %s", path, revision)
}

func (f *fakeSource) FileHistory(ctx context.Context, path string, limit int) ([]gitsource.HistoryEntry, error) {
	return f.history, nil
}

type fakeClient struct {
	calls    atomic.Int32
	block    chan struct{} // nil means never block
	summary  string
	insights *analyzer.Insights
	err      error
}

func (c *fakeClient) wait(ctx context.Context) error {
	if c.block == nil {
		return nil
	}
	select {
	case <-c.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeClient) AnalyzeDiff(ctx context.Context, prompt string) (string, error) {
	c.calls.Add(1)
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	if c.err != nil {
		return "", c.err
	}
	return c.summary, nil
}

func (c *fakeClient) AnalyzeFileHistory(ctx context.Context, prompt string) (*analyzer.Insights, error) {
	c.calls.Add(1)
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.insights, nil
}

func (c *fakeClient) AnalyzeFileComparison(ctx context.Context, prompt string) (*analyzer.Insights, error) {
	return c.AnalyzeFileHistory(ctx, prompt)
}

type eventCollector struct {
	mu     sync.Mutex
	events []routing.Event
	done   chan routing.Event
}

func newCollector() *eventCollector {
	return &eventCollector{done: make(chan routing.Event, 8)}
}

func (c *eventCollector) Deliver(event routing.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	if event.Terminal() {
		c.done <- event
	}
}

func (c *eventCollector) waitTerminal(t *testing.T) routing.Event {
	t.Helper()
	select {
	case event := <-c.done:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal event")
		return routing.Event{}
	}
}

func (c *eventCollector) all() []routing.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]routing.Event(nil), c.events...)
}

type fixture struct {
	orch   *Orchestrator
	router *routing.Router
	client *fakeClient
	source *fakeSource
	cfg    *config.Config
}

func newFixture(t *testing.T, source *fakeSource, client *fakeClient) *fixture {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: io.Discard})
	cfg := config.DefaultConfig()
	cfg.Filter.BudgetMs = 2000
	cfg.Filter.PerFileTimeoutMs = 500

	store := cache.New(cache.Options{
		Dir:                t.TempDir(),
		FastTierMaxEntries: 16,
		TTL:                time.Hour,
	}, logger)
	t.Cleanup(store.Close)

	router := routing.NewRouter(logger)
	orch := New(Options{
		Config:  cfg,
		Source:  source,
		Filter:  eligibility.New(cfg.Filter, nil, logger),
		Cache:   store,
		Client:  client,
		Router:  router,
		Prompts: prompt.NewBuilder(cfg.Analysis.Model, nil),
		Logger:  logger,
	})
	return &fixture{orch: orch, router: router, client: client, source: source, cfg: cfg}
}

func commitSource() *fakeSource {
	return &fakeSource{
		details: &gitsource.CommitDetails{Hash: "abc123def456", Author: "dev", Subject: "tighten retries"},
		changes: []gitsource.FileChange{
			{Path: "server.go", Type: gitsource.Modified},
			{Path: "retry.go", Type: gitsource.Added},
		},
	}
}

func TestAnalyzeCommitReturnsDataBeforeAnalysisFinishes(t *testing.T) {
	client := &fakeClient{summary: "improves retry behavior", block: make(chan struct{})}
	f := newFixture(t, commitSource(), client)
	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetCommit, CommitHash: "abc123def456"}, collector)

	data, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456")
	if err != nil {
		t.Fatal(err)
	}
	if data.Details.Subject != "tighten retries" || len(data.Changes) != 2 {
		t.Fatalf("unexpected basic data %+v", data)
	}
	if data.Stats.Modified != 1 || data.Stats.Added != 1 {
		t.Errorf("unexpected stats %+v", data.Stats)
	}

	// The analyzer is still blocked, so the only events so far are
	// non-terminal.
	for _, event := range collector.all() {
		if event.Terminal() {
			t.Fatal("terminal event before the analyzer finished")
		}
	}

	close(client.block)
	terminal := collector.waitTerminal(t)
	if terminal.Type != routing.EventCompleted {
		t.Fatalf("expected completed, got %+v", terminal)
	}
	if terminal.Payload != "improves retry behavior" {
		t.Errorf("unexpected payload %v", terminal.Payload)
	}
	if terminal.RequestID != data.RequestID {
		t.Error("terminal event carries a different request ID")
	}

	f.orch.Wait()
	if got := f.orch.RequestState(data.RequestID); got != StateCompleted {
		t.Errorf("expected completed state, got %s", got)
	}
}

func TestConcurrentIdenticalRequestsBothCallAnalyzer(t *testing.T) {
	client := &fakeClient{summary: "ok", block: make(chan struct{})}
	f := newFixture(t, commitSource(), client)

	for i := 0; i < 2; i++ {
		if _, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456"); err != nil {
			t.Fatal(err)
		}
	}

	// Identical in-flight requests are not deduplicated: both miss the
	// cache and reach the analyzer before either result is written.
	deadline := time.After(5 * time.Second)
	for client.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 analyzer calls, got %d", client.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(client.block)
	f.orch.Wait()

	if got := client.calls.Load(); got != 2 {
		t.Errorf("expected 2 analyzer calls, got %d", got)
	}
}

func TestDisabledAnalysisTerminatesAfterBasicData(t *testing.T) {
	client := &fakeClient{summary: "ok"}
	f := newFixture(t, commitSource(), client)
	f.cfg.Analysis.Enabled = false
	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetCommit, CommitHash: "abc123def456"}, collector)

	data, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456")
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Changes) != 2 {
		t.Error("basic data should still be returned when analysis is off")
	}

	terminal := collector.waitTerminal(t)
	if terminal.Type != routing.EventFailed || terminal.ErrorKind != string(hlerrors.Disabled) {
		t.Fatalf("expected disabled failure, got %+v", terminal)
	}
	if client.calls.Load() != 0 {
		t.Error("analyzer must not be called when analysis is disabled")
	}
}

func TestCacheHitSkipsAnalyzer(t *testing.T) {
	client := &fakeClient{summary: "fresh summary"}
	f := newFixture(t, commitSource(), client)

	if _, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456"); err != nil {
		t.Fatal(err)
	}
	f.orch.Wait()
	if client.calls.Load() != 1 {
		t.Fatalf("expected 1 call after first request, got %d", client.calls.Load())
	}

	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetCommit, CommitHash: "abc123def456"}, collector)
	if _, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456"); err != nil {
		t.Fatal(err)
	}
	terminal := collector.waitTerminal(t)

	if terminal.Type != routing.EventCompleted || terminal.Payload != "fresh summary" {
		t.Fatalf("expected cached completion, got %+v", terminal)
	}
	if client.calls.Load() != 1 {
		t.Errorf("cache hit must not call the analyzer, got %d calls", client.calls.Load())
	}
}

func TestNoReadableFiles(t *testing.T) {
	source := commitSource()
	source.changes = []gitsource.FileChange{
		{Path: "logo.png", Type: gitsource.Modified},
		{Path: "gone.go", Type: gitsource.Deleted},
	}
	client := &fakeClient{summary: "ok"}
	f := newFixture(t, source, client)
	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetCommit, CommitHash: "abc123def456"}, collector)

	if _, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456"); err != nil {
		t.Fatal(err)
	}
	terminal := collector.waitTerminal(t)

	if terminal.ErrorKind != string(hlerrors.NoReadableFiles) {
		t.Fatalf("expected no_readable_files, got %+v", terminal)
	}
	if client.calls.Load() != 0 {
		t.Error("analyzer must not run without eligible files")
	}
}

func TestAllDiffFetchesFailing(t *testing.T) {
	source := commitSource()
	source.diffErr = fmt.Errorf("bad object")
	client := &fakeClient{summary: "ok"}
	f := newFixture(t, source, client)
	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetCommit, CommitHash: "abc123def456"}, collector)

	if _, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456"); err != nil {
		t.Fatal(err)
	}
	terminal := collector.waitTerminal(t)

	if terminal.ErrorKind != string(hlerrors.DiffExtractionFailed) {
		t.Fatalf("expected diff_extraction_failed, got %+v", terminal)
	}
}

func TestAnalyzerFailureIsClassified(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("dial tcp: connection refused")}
	f := newFixture(t, commitSource(), client)
	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetCommit, CommitHash: "abc123def456"}, collector)

	data, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456")
	if err != nil {
		t.Fatal(err)
	}
	terminal := collector.waitTerminal(t)

	if terminal.Type != routing.EventFailed || terminal.ErrorKind != string(hlerrors.ServiceUnavailable) {
		t.Fatalf("expected service_unavailable, got %+v", terminal)
	}
	if terminal.Message == "" {
		t.Error("failed events carry a user-facing message")
	}

	f.orch.Wait()
	if got := f.orch.RequestState(data.RequestID); got != StateFailed {
		t.Errorf("expected failed state, got %s", got)
	}
}

func TestAnalyzeComparisonWorkingTree(t *testing.T) {
	client := &fakeClient{summary: "pending changes look safe"}
	f := newFixture(t, commitSource(), client)
	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetComparison, CommitHash: "abc123def456"}, collector)

	data, err := f.orch.AnalyzeComparison(context.Background(), "abc123def456", "")
	if err != nil {
		t.Fatal(err)
	}
	if data.ToHash != "" {
		t.Error("working-tree comparison keeps an empty target hash")
	}

	terminal := collector.waitTerminal(t)
	if terminal.Type != routing.EventCompleted {
		t.Fatalf("expected completion, got %+v", terminal)
	}
}

func TestAnalyzeFileHistory(t *testing.T) {
	source := commitSource()
	source.history = []gitsource.HistoryEntry{
		{Hash: "aaa", Author: "alice", AuthorDate: time.Now(), Message: "initial", Additions: 10},
		{Hash: "bbb", Author: "bob", AuthorDate: time.Now(), Message: "fix", Additions: 2, Deletions: 1},
	}
	client := &fakeClient{insights: &analyzer.Insights{Summary: "steady growth", EvolutionPattern: "incremental"}}
	f := newFixture(t, source, client)
	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetFileHistory, FilePath: "core.go"}, collector)

	data, err := f.orch.AnalyzeFileHistory(context.Background(), "core.go", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(data.History) != 2 {
		t.Fatalf("unexpected history %+v", data.History)
	}

	terminal := collector.waitTerminal(t)
	insights, ok := terminal.Payload.(*analyzer.Insights)
	if !ok || insights.EvolutionPattern != "incremental" {
		t.Fatalf("unexpected payload %+v", terminal.Payload)
	}
}

func TestAnalyzeFileHistoryCacheRoundTrip(t *testing.T) {
	source := commitSource()
	source.history = []gitsource.HistoryEntry{{Hash: "aaa", Author: "alice", Message: "initial"}}
	client := &fakeClient{insights: &analyzer.Insights{Summary: "one commit"}}
	f := newFixture(t, source, client)

	if _, err := f.orch.AnalyzeFileHistory(context.Background(), "core.go", 50); err != nil {
		t.Fatal(err)
	}
	f.orch.Wait()

	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetFileHistory, FilePath: "core.go"}, collector)
	if _, err := f.orch.AnalyzeFileHistory(context.Background(), "core.go", 50); err != nil {
		t.Fatal(err)
	}
	terminal := collector.waitTerminal(t)

	insights, ok := terminal.Payload.(*analyzer.Insights)
	if !ok || insights.Summary != "one commit" {
		t.Fatalf("unexpected cached payload %+v", terminal.Payload)
	}
	if client.calls.Load() != 1 {
		t.Errorf("second request should be served from cache, got %d calls", client.calls.Load())
	}
}

func TestAnalyzeFileHistoryEmpty(t *testing.T) {
	client := &fakeClient{}
	f := newFixture(t, commitSource(), client)

	_, err := f.orch.AnalyzeFileHistory(context.Background(), "never-committed.go", 50)
	if err == nil {
		t.Fatal("expected an error for a file with no history")
	}
}

func TestAnalyzeFileCompare(t *testing.T) {
	source := commitSource()
	source.contents = map[string]string{
		"v1:core.go": "package core\n\nfunc Old() {}\n",
		"v2:core.go": "package core\n\nfunc New() {}\n",
	}
	client := &fakeClient{insights: &analyzer.Insights{Summary: "renamed function", ChangeType: "refactoring"}}
	f := newFixture(t, source, client)
	collector := newCollector()
	f.router.Attach(routing.Identity{
		Kind: routing.TargetFileCompare, CommitHash: "v1", CompareWith: "v2", FilePath: "core.go",
	}, collector)

	data, err := f.orch.AnalyzeFileCompare(context.Background(), "core.go", "v1", "v2")
	if err != nil {
		t.Fatal(err)
	}
	if data.Diff == "" {
		t.Fatal("expected a non-empty diff in basic data")
	}

	terminal := collector.waitTerminal(t)
	insights, ok := terminal.Payload.(*analyzer.Insights)
	if !ok || insights.ChangeType != "refactoring" {
		t.Fatalf("unexpected payload %+v", terminal.Payload)
	}
}

func TestAnalyzeFileCompareMissingBothSides(t *testing.T) {
	client := &fakeClient{}
	f := newFixture(t, commitSource(), client)

	_, err := f.orch.AnalyzeFileCompare(context.Background(), "ghost.go", "v1", "v2")
	if err == nil {
		t.Fatal("expected an error when neither version exists")
	}
}

func TestAnalyzeFileCompareIneligibleFile(t *testing.T) {
	source := commitSource()
	source.contents = map[string]string{
		"v1:logo.png": "binary-ish",
		"v2:logo.png": "binary-ish2",
	}
	client := &fakeClient{}
	f := newFixture(t, source, client)
	collector := newCollector()
	f.router.Attach(routing.Identity{
		Kind: routing.TargetFileCompare, CommitHash: "v1", CompareWith: "v2", FilePath: "logo.png",
	}, collector)

	if _, err := f.orch.AnalyzeFileCompare(context.Background(), "logo.png", "v1", "v2"); err != nil {
		t.Fatal(err)
	}
	terminal := collector.waitTerminal(t)

	if terminal.ErrorKind != string(hlerrors.NoReadableFiles) {
		t.Fatalf("expected no_readable_files, got %+v", terminal)
	}
	if client.calls.Load() != 0 {
		t.Error("analyzer must not run for an ineligible file")
	}
}

func TestUnknownRequestState(t *testing.T) {
	f := newFixture(t, commitSource(), &fakeClient{})
	if got := f.orch.RequestState("nope"); got != "" {
		t.Errorf("expected empty state for unknown ID, got %s", got)
	}
}

func TestFinishedRequestsAreEvicted(t *testing.T) {
	client := &fakeClient{summary: "ok"}
	f := newFixture(t, commitSource(), client)
	collector := newCollector()
	f.router.Attach(routing.Identity{Kind: routing.TargetCommit, CommitHash: "abc123def456"}, collector)

	first, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456")
	if err != nil {
		t.Fatal(err)
	}
	collector.waitTerminal(t)
	f.orch.Wait()
	if got := f.orch.RequestState(first.RequestID); got != StateCompleted {
		t.Fatalf("expected completed state, got %s", got)
	}

	// A later request arriving after the retention window sweeps the
	// finished entry, so the tracking map stays bounded.
	f.orch.retention = 0
	if _, err := f.orch.AnalyzeCommit(context.Background(), "abc123def456"); err != nil {
		t.Fatal(err)
	}
	collector.waitTerminal(t)
	f.orch.Wait()

	if got := f.orch.RequestState(first.RequestID); got != "" {
		t.Errorf("expected the finished request to be evicted, got state %s", got)
	}
}
