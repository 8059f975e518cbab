// Package analyzer is the HTTP client for the external AI analysis
// service.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"histlens/internal/config"
	hlerrors "histlens/internal/errors"
	"histlens/internal/logging"
)

const (
	routeHealth         = "/health"
	routeDiff           = "/analyze_diff"
	routeFileHistory    = "/analyze_file_history"
	routeFileComparison = "/analyze_file_version_comparison"
)

// Client talks to the analysis service over HTTP JSON. The configured
// call timeout applies per attempt, so a retry budget can outlive a
// timed-out first attempt.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	retries  int
	timeout  time.Duration
	http     *http.Client
	logger   *logging.Logger
}

// New creates a client from the analysis configuration.
func New(cfg config.AnalysisConfig, logger *logging.Logger) *Client {
	timeout := time.Duration(cfg.CallTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		retries:  cfg.RetryBudget,
		timeout:  timeout,
		http:     &http.Client{},
		logger:   logger,
	}
}

type analyzeRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// Insights is the structured payload returned by the service. Which
// fields are populated depends on the analysis kind.
type Insights struct {
	Summary          string   `json:"summary"`
	EvolutionPattern string   `json:"evolutionPattern,omitempty"`
	ChangeType       string   `json:"changeType,omitempty"`
	ImpactAnalysis   string   `json:"impactAnalysis,omitempty"`
	KeyChanges       []string `json:"keyChanges,omitempty"`
	KeyModifications []string `json:"keyModifications,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

type analyzeResponse struct {
	Analysis *Insights `json:"analysis"`
	Error    string    `json:"error,omitempty"`
}

// Health checks that the service is reachable and answering.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+routeHealth, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return hlerrors.Classify(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}
	return nil
}

// AnalyzeDiff sends a diff or commit prompt and returns the summary
// text.
func (c *Client) AnalyzeDiff(ctx context.Context, prompt string) (string, error) {
	insights, err := c.analyze(ctx, routeDiff, prompt)
	if err != nil {
		return "", err
	}
	return insights.Summary, nil
}

// AnalyzeFileHistory sends a file evolution prompt and returns the
// structured insights.
func (c *Client) AnalyzeFileHistory(ctx context.Context, prompt string) (*Insights, error) {
	return c.analyze(ctx, routeFileHistory, prompt)
}

// AnalyzeFileComparison sends a file version comparison prompt and
// returns the structured insights.
func (c *Client) AnalyzeFileComparison(ctx context.Context, prompt string) (*Insights, error) {
	return c.analyze(ctx, routeFileComparison, prompt)
}

func (c *Client) analyze(ctx context.Context, route, prompt string) (*Insights, error) {
	var lastErr error
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying analysis call", map[string]interface{}{
				"route":   route,
				"attempt": attempt + 1,
			})
		}
		// Each attempt gets a fresh deadline; the caller's context only
		// bounds the overall budget.
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		insights, err := c.callOnce(attemptCtx, route, prompt)
		cancel()
		if err == nil {
			return insights, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) callOnce(ctx context.Context, route, prompt string) (*Insights, error) {
	body, err := json.Marshal(analyzeRequest{Prompt: prompt, Model: c.model})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+route, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, hlerrors.Classify(err)
	}
	defer resp.Body.Close()

	c.logger.Debug("analysis call finished", map[string]interface{}{
		"route":     route,
		"status":    resp.StatusCode,
		"elapsedMs": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, hlerrors.Classify(err)
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, hlerrors.New(hlerrors.AnalysisFailed, "analysis service returned malformed response", err)
	}
	if parsed.Error != "" {
		return nil, hlerrors.Classify(fmt.Errorf("analysis service error: %s", parsed.Error))
	}
	if parsed.Analysis == nil || parsed.Analysis.Summary == "" {
		return nil, hlerrors.New(hlerrors.AnalysisFailed, "analysis service returned no summary", nil)
	}
	return parsed.Analysis, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func statusError(code int) *hlerrors.AnalysisError {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return hlerrors.New(hlerrors.AuthenticationFailed, "analysis service rejected credentials", fmt.Errorf("status %d", code))
	case code == http.StatusTooManyRequests:
		return hlerrors.New(hlerrors.RateLimited, "analysis service throttled the request", fmt.Errorf("status %d", code))
	case code >= 500:
		return hlerrors.New(hlerrors.ServiceUnavailable, "analysis service unavailable", fmt.Errorf("status %d", code))
	default:
		return hlerrors.New(hlerrors.UnknownError, "unexpected analysis service response", fmt.Errorf("status %d", code))
	}
}

func retryable(err error) bool {
	var analysisErr *hlerrors.AnalysisError
	if !stderrors.As(err, &analysisErr) {
		return false
	}
	switch analysisErr.Kind {
	case hlerrors.Timeout, hlerrors.ServiceUnavailable, hlerrors.RateLimited:
		return true
	}
	return false
}
