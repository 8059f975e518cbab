package errors

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
)

// userMessages maps each error kind to its user-facing message.
var userMessages = map[ErrorKind]string{
	Timeout:              "The AI analysis timed out. Try again, or reduce the number of files per analysis.",
	ServiceUnavailable:   "The AI analysis service is unreachable. Check that it is running and the endpoint is correct.",
	AuthenticationFailed: "The AI analysis service rejected the request credentials. Check the configured API key.",
	RateLimited:          "The AI analysis service is rate limiting requests. Wait a moment and try again.",
	NoReadableFiles:      "None of the changed files contain analyzable text content.",
	DiffExtractionFailed: "The change contents could not be extracted from the repository.",
	AnalysisFailed:       "The AI analysis completed but returned no usable result.",
	Disabled:             "AI analysis is disabled in the configuration.",
	UnknownError:         "AI analysis failed with an unexpected error.",
}

// UserMessage returns the user-facing message for a kind.
func UserMessage(kind ErrorKind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[UnknownError]
}

// Classify maps a raw failure to an AnalysisError with a stable kind
// and a user-facing message. An already-classified error passes
// through unchanged. Anything unrecognized becomes UnknownError; this
// function never fails.
func Classify(raw error) *AnalysisError {
	if raw == nil {
		return New(UnknownError, userMessages[UnknownError], nil)
	}

	var ae *AnalysisError
	if stderrors.As(raw, &ae) {
		return ae
	}

	kind := kindOf(raw)
	return New(kind, userMessages[kind], raw)
}

func kindOf(raw error) ErrorKind {
	if stderrors.Is(raw, context.DeadlineExceeded) {
		return Timeout
	}

	var netErr net.Error
	if stderrors.As(raw, &netErr) && netErr.Timeout() {
		return Timeout
	}

	msg := strings.ToLower(raw.Error())

	switch {
	case containsAny(msg, "timeout", "timed out", "deadline exceeded", "etimedout"):
		return Timeout
	case containsAny(msg, "econnrefused", "connection refused", "no such host", "host unresolved", "network is unreachable", "enotfound", "connection reset"):
		return ServiceUnavailable
	case containsAny(msg, "401", "403", "unauthorized", "forbidden", "invalid api key", "authentication"):
		return AuthenticationFailed
	case containsAny(msg, "429", "rate limit", "too many requests"):
		return RateLimited
	}

	return UnknownError
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
