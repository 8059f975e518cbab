package analyzer

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"histlens/internal/config"
	hlerrors "histlens/internal/errors"
	"histlens/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Output: io.Discard})
}

func testClient(endpoint string, retries int) *Client {
	return New(config.AnalysisConfig{
		Endpoint:      endpoint,
		Model:         "gpt-4.1-mini",
		CallTimeoutMs: 2000,
		RetryBudget:   retries,
	}, testLogger())
}

func TestAnalyzeDiff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != routeDiff {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.Write([]byte(`{"analysis":{"summary":"adds retry handling"}}`))
	}))
	defer server.Close()

	summary, err := testClient(server.URL, 0).AnalyzeDiff(context.Background(), "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if summary != "adds retry handling" {
		t.Errorf("unexpected summary %q", summary)
	}
}

func TestAnalyzeDiffEmptySummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"analysis":{"summary":""}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL, 0).AnalyzeDiff(context.Background(), "prompt")
	assertKind(t, err, hlerrors.AnalysisFailed)
}

func TestAnalyzeDiffStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   hlerrors.ErrorKind
	}{
		{http.StatusUnauthorized, hlerrors.AuthenticationFailed},
		{http.StatusForbidden, hlerrors.AuthenticationFailed},
		{http.StatusTooManyRequests, hlerrors.RateLimited},
		{http.StatusServiceUnavailable, hlerrors.ServiceUnavailable},
		{http.StatusTeapot, hlerrors.UnknownError},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := testClient(server.URL, 0).AnalyzeDiff(context.Background(), "prompt")
		assertKind(t, err, tt.kind)
		server.Close()
	}
}

func TestRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"analysis":{"summary":"ok"}}`))
	}))
	defer server.Close()

	summary, err := testClient(server.URL, 2).AnalyzeDiff(context.Background(), "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if summary != "ok" {
		t.Errorf("unexpected summary %q", summary)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestRetryAfterTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(500 * time.Millisecond)
			return
		}
		w.Write([]byte(`{"analysis":{"summary":"ok"}}`))
	}))
	defer server.Close()

	client := New(config.AnalysisConfig{
		Endpoint:      server.URL,
		CallTimeoutMs: 50,
		RetryBudget:   2,
	}, testLogger())

	// The first attempt times out; the second must run under a fresh
	// deadline rather than inheriting the expired one.
	summary, err := client.AnalyzeDiff(context.Background(), "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if summary != "ok" {
		t.Errorf("unexpected summary %q", summary)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestNoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testClient(server.URL, 0).AnalyzeDiff(context.Background(), "prompt")
	assertKind(t, err, hlerrors.ServiceUnavailable)
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestNoRetryOnAuthFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL, 5).AnalyzeDiff(context.Background(), "prompt")
	assertKind(t, err, hlerrors.AuthenticationFailed)
	if calls.Load() != 1 {
		t.Errorf("auth failures must not be retried, got %d calls", calls.Load())
	}
}

func TestAnalyzeFileHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != routeFileHistory {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"analysis":{"summary":"steady growth","evolutionPattern":"incremental","keyChanges":["initial import"]}}`))
	}))
	defer server.Close()

	insights, err := testClient(server.URL, 0).AnalyzeFileHistory(context.Background(), "prompt")
	if err != nil {
		t.Fatal(err)
	}
	if insights.EvolutionPattern != "incremental" || len(insights.KeyChanges) != 1 {
		t.Errorf("unexpected insights %+v", insights)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != routeHealth {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	if err := testClient(server.URL, 0).Health(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{"analysis":{"summary":"ok"}}`))
	}))
	defer server.Close()

	client := New(config.AnalysisConfig{Endpoint: server.URL, APIKey: "sekret", CallTimeoutMs: 2000}, testLogger())
	if _, err := client.AnalyzeDiff(context.Background(), "prompt"); err != nil {
		t.Fatal(err)
	}
	if got != "Bearer sekret" {
		t.Errorf("unexpected authorization header %q", got)
	}
}

func assertKind(t *testing.T, err error, kind hlerrors.ErrorKind) {
	t.Helper()
	var analysisErr *hlerrors.AnalysisError
	if !stderrors.As(err, &analysisErr) {
		t.Fatalf("expected AnalysisError, got %v", err)
	}
	if analysisErr.Kind != kind {
		t.Errorf("expected kind %s, got %s", kind, analysisErr.Kind)
	}
}
