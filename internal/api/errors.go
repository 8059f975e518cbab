package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	hlerrors "histlens/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: code})
}

// WriteError writes an error with automatic status code mapping
func WriteError(w http.ResponseWriter, err error) {
	var analysisErr *hlerrors.AnalysisError
	if stderrors.As(err, &analysisErr) {
		writeJSONError(w, statusForKind(analysisErr.Kind), string(analysisErr.Kind),
			hlerrors.UserMessage(analysisErr.Kind))
		return
	}
	writeJSONError(w, http.StatusInternalServerError, string(hlerrors.UnknownError), err.Error())
}

func statusForKind(kind hlerrors.ErrorKind) int {
	switch kind {
	case hlerrors.Timeout:
		return http.StatusGatewayTimeout
	case hlerrors.ServiceUnavailable:
		return http.StatusServiceUnavailable
	case hlerrors.AuthenticationFailed:
		return http.StatusBadGateway
	case hlerrors.RateLimited:
		return http.StatusTooManyRequests
	case hlerrors.NoReadableFiles, hlerrors.DiffExtractionFailed:
		return http.StatusUnprocessableEntity
	case hlerrors.Disabled:
		return http.StatusForbidden
	case hlerrors.AnalysisFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
