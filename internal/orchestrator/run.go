package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"histlens/internal/analyzer"
	"histlens/internal/cache"
	"histlens/internal/difftext"
	hlerrors "histlens/internal/errors"
	"histlens/internal/gitsource"
	"histlens/internal/prompt"
	"histlens/internal/routing"
	"histlens/internal/storage"
	"histlens/internal/tokens"
)

const progressInterval = 10

// AnalyzeCommit returns the commit's repository data immediately and
// schedules its AI analysis.
func (o *Orchestrator) AnalyzeCommit(ctx context.Context, commitHash string) (*CommitData, error) {
	requestID, req := o.begin(routing.TargetCommit)

	details, err := o.source.CommitDetails(ctx, commitHash)
	if err != nil {
		req.set(StateFailed)
		return nil, hlerrors.Classify(err)
	}
	changes, err := o.source.CommitChanges(ctx, commitHash)
	if err != nil {
		req.set(StateFailed)
		return nil, hlerrors.Classify(err)
	}

	data := &CommitData{
		RequestID: requestID,
		Details:   details,
		Changes:   changes,
		Stats:     gitsource.StatsFor(changes),
	}

	target := routing.Identity{Kind: routing.TargetCommit, CommitHash: commitHash}
	o.start(requestID, req, target, func(ctx context.Context) {
		o.runChangeAnalysis(ctx, requestID, req, target, changeJob{
			kind:     routing.TargetCommit,
			changes:  changes,
			cacheKey: cache.CommitKey(commitHash, len(changes)),
			fetchDiff: func(ctx context.Context, path string) (string, error) {
				return o.source.CommitFileDiff(ctx, commitHash, path)
			},
			buildPrompt: func(files []tokens.FilePayload) string {
				return o.prompts.CommitAnalysis(details, files, data.Stats)
			},
		})
	})
	return data, nil
}

// AnalyzeComparison returns the change list between two versions
// immediately and schedules its AI analysis. An empty toHash compares
// against the working tree.
func (o *Orchestrator) AnalyzeComparison(ctx context.Context, fromHash, toHash string) (*ComparisonData, error) {
	requestID, req := o.begin(routing.TargetComparison)

	changes, err := o.source.CompareChanges(ctx, fromHash, toHash)
	if err != nil {
		req.set(StateFailed)
		return nil, hlerrors.Classify(err)
	}

	data := &ComparisonData{
		RequestID: requestID,
		FromHash:  fromHash,
		ToHash:    toHash,
		Changes:   changes,
		Stats:     gitsource.StatsFor(changes),
	}

	target := routing.Identity{Kind: routing.TargetComparison, CommitHash: fromHash, CompareWith: toHash}
	o.start(requestID, req, target, func(ctx context.Context) {
		o.runChangeAnalysis(ctx, requestID, req, target, changeJob{
			kind:     routing.TargetComparison,
			changes:  changes,
			cacheKey: cache.ComparisonKey(fromHash, toHash, len(changes)),
			fetchDiff: func(ctx context.Context, path string) (string, error) {
				return o.source.CompareFileDiff(ctx, fromHash, toHash, path)
			},
			buildPrompt: func(files []tokens.FilePayload) string {
				return o.prompts.ComparisonAnalysis(fromHash, toHash, files, data.Stats)
			},
		})
	})
	return data, nil
}

// AnalyzeFileHistory returns a file's commit history immediately and
// schedules its evolution analysis.
func (o *Orchestrator) AnalyzeFileHistory(ctx context.Context, filePath string, limit int) (*FileHistoryData, error) {
	requestID, req := o.begin(routing.TargetFileHistory)

	history, err := o.source.FileHistory(ctx, filePath, limit)
	if err != nil {
		req.set(StateFailed)
		return nil, hlerrors.Classify(err)
	}
	if len(history) == 0 {
		req.set(StateFailed)
		return nil, hlerrors.New(hlerrors.DiffExtractionFailed, hlerrors.UserMessage(hlerrors.DiffExtractionFailed),
			fmt.Errorf("no history for %s", filePath))
	}

	data := &FileHistoryData{
		RequestID: requestID,
		FilePath:  filePath,
		History:   history,
	}

	target := routing.Identity{Kind: routing.TargetFileHistory, FilePath: filePath}
	o.start(requestID, req, target, func(ctx context.Context) {
		o.runInsightsAnalysis(ctx, requestID, req, target, insightsJob{
			kind:     routing.TargetFileHistory,
			cacheKey: cache.FileHistoryKey(filePath, len(history)),
			prompt:   o.prompts.FileHistoryAnalysis(filePath, history),
			call:     o.client.AnalyzeFileHistory,
		})
	})
	return data, nil
}

// AnalyzeFileCompare returns the diff between two versions of one
// file immediately and schedules its analysis. An empty toHash
// compares against the working tree.
func (o *Orchestrator) AnalyzeFileCompare(ctx context.Context, filePath, fromHash, toHash string) (*FileCompareData, error) {
	requestID, req := o.begin(routing.TargetFileCompare)

	before, beforeErr := o.source.FileAtRevision(ctx, fromHash, filePath)
	after, afterErr := o.source.FileAtRevision(ctx, toHash, filePath)
	if beforeErr != nil && afterErr != nil {
		req.set(StateFailed)
		return nil, hlerrors.New(hlerrors.DiffExtractionFailed, hlerrors.UserMessage(hlerrors.DiffExtractionFailed), beforeErr)
	}

	diff := difftext.Unified(before, after)
	data := &FileCompareData{
		RequestID: requestID,
		FilePath:  filePath,
		FromHash:  fromHash,
		ToHash:    toHash,
		Diff:      diff,
	}

	target := routing.Identity{
		Kind:        routing.TargetFileCompare,
		CommitHash:  fromHash,
		CompareWith: toHash,
		FilePath:    filePath,
	}
	o.start(requestID, req, target, func(ctx context.Context) {
		if !o.filter.IsEligible(ctx, filePath) {
			o.fail(requestID, req, target, hlerrors.New(hlerrors.NoReadableFiles,
				hlerrors.UserMessage(hlerrors.NoReadableFiles), nil))
			return
		}
		o.runInsightsAnalysis(ctx, requestID, req, target, insightsJob{
			kind:     routing.TargetFileCompare,
			cacheKey: cache.FileCompareKey(filePath, fromHash, toHash),
			prompt:   o.prompts.FileCompareAnalysis(filePath, fromHash, toHash, diff, before, after),
			call:     o.client.AnalyzeFileComparison,
		})
	})
	return data, nil
}

// changeJob is the per-kind wiring for multi-file change analysis.
type changeJob struct {
	kind        routing.TargetKind
	changes     []gitsource.FileChange
	cacheKey    string
	fetchDiff   func(ctx context.Context, path string) (string, error)
	buildPrompt func(files []tokens.FilePayload) string
}

func (o *Orchestrator) runChangeAnalysis(ctx context.Context, requestID string, req *request, target routing.Identity, job changeJob) {
	start := time.Now()
	metric := storage.MetricRecord{
		RequestID:    requestID,
		AnalysisKind: string(job.kind),
	}

	if payload, ok := o.cacheGet(job.cacheKey); ok {
		metric.CacheHit = true
		metric.Outcome = string(StateCompleted)
		metric.LatencyMs = time.Since(start).Milliseconds()
		o.record(metric)
		o.complete(requestID, req, target, payload)
		return
	}

	req.set(StateFiltering)
	candidates := readableCandidates(job.changes)
	batch := o.filter.FilterBatch(ctx, candidates, o.cfg.Filter.Budget(), o.cfg.Filter.PerFileTimeout())
	metric.FilesExamined = batch.Examined
	if len(batch.Eligible) == 0 {
		metric.Outcome = string(StateFailed)
		metric.ErrorKind = string(hlerrors.NoReadableFiles)
		metric.LatencyMs = time.Since(start).Milliseconds()
		o.record(metric)
		o.fail(requestID, req, target, hlerrors.New(hlerrors.NoReadableFiles,
			hlerrors.UserMessage(hlerrors.NoReadableFiles), nil))
		return
	}

	paths := batch.Eligible
	if max := o.cfg.Analysis.MaxFiles; max > 0 && len(paths) > max {
		paths = paths[:max]
	}

	req.set(StateBatching)
	changeTypes := changeTypeIndex(job.changes)
	var files []tokens.FilePayload
	for i, path := range paths {
		diff, err := job.fetchDiff(ctx, path)
		if err != nil {
			o.logger.Debug("dropping file after diff failure", map[string]interface{}{
				"requestId": requestID,
				"path":      path,
				"error":     err.Error(),
			})
			continue
		}
		files = append(files, tokens.FilePayload{
			Path:       path,
			ChangeType: prompt.ChangeTypeDescription(changeTypes[path]),
			Diff:       diff,
		})
		if (i+1)%progressInterval == 0 {
			o.router.Dispatch(target, routing.Event{
				Type:      routing.EventProgress,
				RequestID: requestID,
				Done:      i + 1,
				Total:     len(paths),
			})
		}
	}
	if len(files) == 0 {
		metric.Outcome = string(StateFailed)
		metric.ErrorKind = string(hlerrors.DiffExtractionFailed)
		metric.LatencyMs = time.Since(start).Milliseconds()
		o.record(metric)
		o.fail(requestID, req, target, hlerrors.New(hlerrors.DiffExtractionFailed,
			hlerrors.UserMessage(hlerrors.DiffExtractionFailed), nil))
		return
	}
	metric.FilesAnalyzed = len(files)

	promptText := job.buildPrompt(files)
	metric.EstimatedTokens = tokens.Estimate(promptText)

	// The client enforces the per-attempt call timeout; ctx only caps
	// the whole pipeline including retries.
	req.set(StateAwaitingExternalCall)
	summary, err := o.client.AnalyzeDiff(ctx, promptText)
	metric.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		classified := o.fail(requestID, req, target, err)
		metric.Outcome = string(StateFailed)
		metric.ErrorKind = string(classified.Kind)
		o.record(metric)
		return
	}

	o.cacheSet(job.cacheKey, summary)
	metric.Outcome = string(StateCompleted)
	o.record(metric)
	o.complete(requestID, req, target, summary)
}

// insightsJob is the per-kind wiring for single-file structured
// analysis.
type insightsJob struct {
	kind     routing.TargetKind
	cacheKey string
	prompt   string
	call     func(ctx context.Context, prompt string) (*analyzer.Insights, error)
}

func (o *Orchestrator) runInsightsAnalysis(ctx context.Context, requestID string, req *request, target routing.Identity, job insightsJob) {
	start := time.Now()
	metric := storage.MetricRecord{
		RequestID:     requestID,
		AnalysisKind:  string(job.kind),
		FilesExamined: 1,
		FilesAnalyzed: 1,
	}

	if payload, ok := o.cacheGet(job.cacheKey); ok {
		var insights analyzer.Insights
		if err := json.Unmarshal([]byte(payload), &insights); err == nil {
			metric.CacheHit = true
			metric.Outcome = string(StateCompleted)
			metric.LatencyMs = time.Since(start).Milliseconds()
			o.record(metric)
			o.complete(requestID, req, target, &insights)
			return
		}
		// Undecodable cached payload falls through to a fresh call.
	}

	metric.EstimatedTokens = tokens.Estimate(job.prompt)

	req.set(StateAwaitingExternalCall)
	insights, err := job.call(ctx, job.prompt)
	metric.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		classified := o.fail(requestID, req, target, err)
		metric.Outcome = string(StateFailed)
		metric.ErrorKind = string(classified.Kind)
		o.record(metric)
		return
	}

	if encoded, err := json.Marshal(insights); err == nil {
		o.cacheSet(job.cacheKey, string(encoded))
	}
	metric.Outcome = string(StateCompleted)
	o.record(metric)
	o.complete(requestID, req, target, insights)
}

func (o *Orchestrator) cacheGet(key string) (string, bool) {
	if o.cache == nil || !o.cfg.Cache.Enabled {
		return "", false
	}
	return o.cache.Get(key)
}

func (o *Orchestrator) cacheSet(key, payload string) {
	if o.cache == nil || !o.cfg.Cache.Enabled {
		return
	}
	o.cache.Set(key, payload)
}

// readableCandidates drops deletions; their content no longer exists
// to sniff.
func readableCandidates(changes []gitsource.FileChange) []string {
	var paths []string
	for _, c := range changes {
		if c.Type == gitsource.Deleted {
			continue
		}
		paths = append(paths, c.Path)
	}
	return paths
}

func changeTypeIndex(changes []gitsource.FileChange) map[string]gitsource.ChangeType {
	index := make(map[string]gitsource.ChangeType, len(changes))
	for _, c := range changes {
		index[c.Path] = c.Type
	}
	return index
}
