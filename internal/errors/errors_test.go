package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAnalysisError(t *testing.T) {
	cause := stderrors.New("dial tcp: connection refused")
	err := New(ServiceUnavailable, "analyzer unreachable", cause)

	if err.Kind != ServiceUnavailable {
		t.Errorf("expected kind %s, got %s", ServiceUnavailable, err.Kind)
	}
	if err.Detail != cause.Error() {
		t.Errorf("expected detail from cause, got %q", err.Detail)
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected Unwrap to reach the cause")
	}

	msg := err.Error()
	if msg != "[service_unavailable] analyzer unreachable: dial tcp: connection refused" {
		t.Errorf("unexpected Error() output: %s", msg)
	}
}

func TestAnalysisErrorWithoutCause(t *testing.T) {
	err := New(Disabled, "analysis disabled", nil)
	if err.Detail != "" {
		t.Errorf("expected empty detail, got %q", err.Detail)
	}
	if err.Error() != "[disabled] analysis disabled" {
		t.Errorf("unexpected Error() output: %s", err.Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"connection refused", stderrors.New("dial tcp 127.0.0.1:5111: connect: ECONNREFUSED"), ServiceUnavailable},
		{"no such host", stderrors.New("lookup analyzer.local: no such host"), ServiceUnavailable},
		{"http 429", stderrors.New("unexpected status 429 Too Many Requests"), RateLimited},
		{"rate limit text", stderrors.New("rate limit exceeded, retry later"), RateLimited},
		{"http 401", stderrors.New("unexpected status 401"), AuthenticationFailed},
		{"http 403", stderrors.New("unexpected status 403 Forbidden"), AuthenticationFailed},
		{"timeout text", stderrors.New("request timed out after 30s"), Timeout},
		{"context deadline", context.DeadlineExceeded, Timeout},
		{"wrapped deadline", fmt.Errorf("analyze: %w", context.DeadlineExceeded), Timeout},
		{"unrecognized", stderrors.New("something very strange happened"), UnknownError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got.Kind, tt.want)
			}
			if got.Message == "" {
				t.Error("classified error should carry a user message")
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	got := Classify(nil)
	if got.Kind != UnknownError {
		t.Errorf("Classify(nil) = %s, want %s", got.Kind, UnknownError)
	}
}

func TestClassifyPassesThroughAnalysisError(t *testing.T) {
	orig := New(NoReadableFiles, UserMessage(NoReadableFiles), nil)
	got := Classify(fmt.Errorf("request failed: %w", orig))
	if got.Kind != NoReadableFiles {
		t.Errorf("expected pass-through kind %s, got %s", NoReadableFiles, got.Kind)
	}
}

func TestUserMessageFallback(t *testing.T) {
	if UserMessage(ErrorKind("nonsense")) != userMessages[UnknownError] {
		t.Error("unknown kind should fall back to the unknown_error message")
	}
}
