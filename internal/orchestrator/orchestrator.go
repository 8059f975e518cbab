// Package orchestrator runs the asynchronous analysis pipeline. Each
// request returns its repository data synchronously and enhances it
// with AI analysis in the background, delivering results through the
// router.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"histlens/internal/analyzer"
	"histlens/internal/cache"
	"histlens/internal/config"
	"histlens/internal/eligibility"
	hlerrors "histlens/internal/errors"
	"histlens/internal/gitsource"
	"histlens/internal/logging"
	"histlens/internal/prompt"
	"histlens/internal/routing"
	"histlens/internal/storage"
)

// State tracks where a request is in its lifecycle.
type State string

const (
	// StateReceived means the request was accepted.
	StateReceived State = "received"
	// StateBasicDataReturned means repository data went back to the caller.
	StateBasicDataReturned State = "basicDataReturned"
	// StateFiltering means eligibility filtering is running.
	StateFiltering State = "filtering"
	// StateBatching means diffs are being collected and sized.
	StateBatching State = "batching"
	// StateAwaitingExternalCall means the analysis service call is in flight.
	StateAwaitingExternalCall State = "awaitingExternalCall"
	// StateCompleted is terminal success.
	StateCompleted State = "completed"
	// StateFailed is terminal failure.
	StateFailed State = "failed"
)

// AnalyzerClient is the surface of the analysis service the
// orchestrator needs.
type AnalyzerClient interface {
	AnalyzeDiff(ctx context.Context, prompt string) (string, error)
	AnalyzeFileHistory(ctx context.Context, prompt string) (*analyzer.Insights, error)
	AnalyzeFileComparison(ctx context.Context, prompt string) (*analyzer.Insights, error)
}

// GitSource is the repository access the orchestrator needs.
type GitSource interface {
	CommitDetails(ctx context.Context, hash string) (*gitsource.CommitDetails, error)
	CommitChanges(ctx context.Context, hash string) ([]gitsource.FileChange, error)
	CompareChanges(ctx context.Context, fromHash, toHash string) ([]gitsource.FileChange, error)
	CommitFileDiff(ctx context.Context, hash, path string) (string, error)
	CompareFileDiff(ctx context.Context, fromHash, toHash, path string) (string, error)
	FileAtRevision(ctx context.Context, revision, path string) (string, error)
	FileHistory(ctx context.Context, path string, limit int) ([]gitsource.HistoryEntry, error)
}

// MetricsRecorder persists per-request metrics. May be nil.
type MetricsRecorder interface {
	RecordAnalysis(rec storage.MetricRecord) error
}

type request struct {
	mu     sync.Mutex
	state  State
	doneAt time.Time
}

func (r *request) set(s State) {
	r.mu.Lock()
	r.state = s
	if s == StateCompleted || s == StateFailed {
		r.doneAt = time.Now()
	}
	r.mu.Unlock()
}

func (r *request) get() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *request) doneTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doneAt
}

// Orchestrator coordinates filtering, caching, prompting and the
// external call for every analysis request. Identical concurrent
// requests each run their own pipeline; there is no dedup.
type Orchestrator struct {
	cfg     *config.Config
	source  GitSource
	filter  *eligibility.Filter
	cache   *cache.Cache
	client  AnalyzerClient
	router  *routing.Router
	prompts *prompt.Builder
	metrics MetricsRecorder
	logger  *logging.Logger

	mu        sync.RWMutex
	requests  map[string]*request
	retention time.Duration
	wg        sync.WaitGroup
}

// requestRetention is how long a finished request's state stays
// queryable before it is evicted.
const requestRetention = 10 * time.Minute

// Options wires an orchestrator. Metrics is optional.
type Options struct {
	Config  *config.Config
	Source  GitSource
	Filter  *eligibility.Filter
	Cache   *cache.Cache
	Client  AnalyzerClient
	Router  *routing.Router
	Prompts *prompt.Builder
	Metrics MetricsRecorder
	Logger  *logging.Logger
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		cfg:       opts.Config,
		source:    opts.Source,
		filter:    opts.Filter,
		cache:     opts.Cache,
		client:    opts.Client,
		router:    opts.Router,
		prompts:   opts.Prompts,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		requests:  make(map[string]*request),
		retention: requestRetention,
	}
}

// RequestState reports the lifecycle state of a request, or "" for an
// unknown ID.
func (o *Orchestrator) RequestState(requestID string) State {
	o.mu.RLock()
	req := o.requests[requestID]
	o.mu.RUnlock()
	if req == nil {
		return ""
	}
	return req.get()
}

// Wait blocks until all background pipelines have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// evictFinished drops requests that reached a terminal state longer
// than the retention window ago, keeping the map bounded across a
// long-running process.
func (o *Orchestrator) evictFinished(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, req := range o.requests {
		if done := req.doneTime(); !done.IsZero() && now.Sub(done) >= o.retention {
			delete(o.requests, id)
		}
	}
}

// CommitData is the synchronous payload for a commit request.
type CommitData struct {
	RequestID string                   `json:"requestId"`
	Details   *gitsource.CommitDetails `json:"details"`
	Changes   []gitsource.FileChange   `json:"changes"`
	Stats     gitsource.ChangeStats    `json:"stats"`
}

// ComparisonData is the synchronous payload for a comparison request.
type ComparisonData struct {
	RequestID string                 `json:"requestId"`
	FromHash  string                 `json:"fromHash"`
	ToHash    string                 `json:"toHash,omitempty"`
	Changes   []gitsource.FileChange `json:"changes"`
	Stats     gitsource.ChangeStats  `json:"stats"`
}

// FileHistoryData is the synchronous payload for a file history
// request.
type FileHistoryData struct {
	RequestID string                   `json:"requestId"`
	FilePath  string                   `json:"filePath"`
	History   []gitsource.HistoryEntry `json:"history"`
}

// FileCompareData is the synchronous payload for a file comparison
// request.
type FileCompareData struct {
	RequestID string `json:"requestId"`
	FilePath  string `json:"filePath"`
	FromHash  string `json:"fromHash"`
	ToHash    string `json:"toHash,omitempty"`
	Diff      string `json:"diff"`
}

func (o *Orchestrator) begin(kind routing.TargetKind) (string, *request) {
	o.evictFinished(time.Now())

	requestID := uuid.NewString()
	req := &request{state: StateReceived}
	o.mu.Lock()
	o.requests[requestID] = req
	o.mu.Unlock()
	o.logger.Debug("analysis request received", map[string]interface{}{
		"requestId": requestID,
		"kind":      string(kind),
	})
	return requestID, req
}

// start moves a request to the background. When analysis is disabled
// the request terminates immediately with a disabled failure.
func (o *Orchestrator) start(requestID string, req *request, target routing.Identity, run func(ctx context.Context)) {
	req.set(StateBasicDataReturned)

	if !o.cfg.Analysis.Enabled {
		req.set(StateFailed)
		o.router.Dispatch(target, routing.Event{
			Type:      routing.EventFailed,
			RequestID: requestID,
			ErrorKind: string(hlerrors.Disabled),
			Message:   hlerrors.UserMessage(hlerrors.Disabled),
		})
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				req.set(StateFailed)
				o.logger.Error("analysis pipeline panic", map[string]interface{}{
					"requestId": requestID,
					"panic":     r,
				})
				o.router.Dispatch(target, routing.Event{
					Type:      routing.EventFailed,
					RequestID: requestID,
					ErrorKind: string(hlerrors.UnknownError),
					Message:   hlerrors.UserMessage(hlerrors.UnknownError),
				})
			}
		}()

		// The caller's context ends at the synchronous return; the
		// background pipeline gets its own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), o.pipelineDeadline())
		defer cancel()

		o.router.Dispatch(target, routing.Event{
			Type:      routing.EventAnalyzing,
			RequestID: requestID,
		})
		run(ctx)
	}()
}

func (o *Orchestrator) pipelineDeadline() time.Duration {
	attempts := time.Duration(o.cfg.Analysis.RetryBudget + 1)
	return attempts*o.cfg.Analysis.CallTimeout() + o.cfg.Filter.Budget() + 30*time.Second
}

func (o *Orchestrator) complete(requestID string, req *request, target routing.Identity, payload interface{}) {
	req.set(StateCompleted)
	o.router.Dispatch(target, routing.Event{
		Type:      routing.EventCompleted,
		RequestID: requestID,
		Payload:   payload,
	})
}

func (o *Orchestrator) fail(requestID string, req *request, target routing.Identity, err error) *hlerrors.AnalysisError {
	classified := hlerrors.Classify(err)
	req.set(StateFailed)
	o.logger.Warn("analysis failed", map[string]interface{}{
		"requestId": requestID,
		"kind":      string(classified.Kind),
		"detail":    classified.Detail,
	})
	o.router.Dispatch(target, routing.Event{
		Type:      routing.EventFailed,
		RequestID: requestID,
		ErrorKind: string(classified.Kind),
		Message:   hlerrors.UserMessage(classified.Kind),
	})
	return classified
}

func (o *Orchestrator) record(rec storage.MetricRecord) {
	if o.metrics == nil {
		return
	}
	if err := o.metrics.RecordAnalysis(rec); err != nil {
		o.logger.Warn("failed to record analysis metrics", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
