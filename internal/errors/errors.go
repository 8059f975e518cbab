// Package errors defines the analysis failure taxonomy and the typed
// error carried through the engine.
package errors

import (
	"fmt"
)

// ErrorKind represents stable error kinds for all analysis failure modes
type ErrorKind string

const (
	// Timeout indicates the external call exceeded its deadline
	Timeout ErrorKind = "timeout"
	// ServiceUnavailable indicates the analyzer is not reachable
	ServiceUnavailable ErrorKind = "service_unavailable"
	// AuthenticationFailed indicates the analyzer rejected credentials
	AuthenticationFailed ErrorKind = "authentication_failed"
	// RateLimited indicates the analyzer throttled the request
	RateLimited ErrorKind = "rate_limited"
	// NoReadableFiles indicates no candidate file passed eligibility
	NoReadableFiles ErrorKind = "no_readable_files"
	// DiffExtractionFailed indicates every diff fetch in a batch failed
	DiffExtractionFailed ErrorKind = "diff_extraction_failed"
	// AnalysisFailed indicates the analyzer returned no usable payload
	AnalysisFailed ErrorKind = "analysis_failed"
	// Disabled indicates AI analysis is turned off in configuration
	Disabled ErrorKind = "disabled"
	// UnknownError is the fallback for unrecognized failures
	UnknownError ErrorKind = "unknown_error"
)

// AnalysisError represents an analysis failure with a stable kind,
// a user-facing message and an optional underlying cause.
type AnalysisError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Detail  string    `json:"technicalDetail,omitempty"`
	cause   error
}

// New creates a new AnalysisError
func New(kind ErrorKind, message string, cause error) *AnalysisError {
	e := &AnalysisError{
		Kind:    kind,
		Message: message,
		cause:   cause,
	}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// Error implements the error interface
func (e *AnalysisError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *AnalysisError) Unwrap() error {
	return e.cause
}

// WithDetail overrides the technical detail string
func (e *AnalysisError) WithDetail(detail string) *AnalysisError {
	e.Detail = detail
	return e
}
