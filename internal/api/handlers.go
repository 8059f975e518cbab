package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"histlens/internal/routing"
	"histlens/internal/version"
)

const (
	defaultPollWait = 25 * time.Second
	maxPollWait     = 55 * time.Second
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
	})
}

type commitRequest struct {
	CommitHash string `json:"commitHash"`
}

func (s *Server) handleAnalyzeCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CommitHash == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "commitHash is required")
		return
	}

	target := routing.Identity{Kind: routing.TargetCommit, CommitHash: req.CommitHash}
	stream := s.hub.capture(s.events, target)
	data, err := s.orch.AnalyzeCommit(r.Context(), req.CommitHash)
	if err != nil {
		s.hub.drop(stream)
		WriteError(w, err)
		return
	}
	s.hub.bind(stream, data.RequestID)
	writeJSON(w, http.StatusOK, data)
}

type compareRequest struct {
	FromHash string `json:"fromHash"`
	ToHash   string `json:"toHash"`
}

func (s *Server) handleAnalyzeCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FromHash == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "fromHash is required")
		return
	}

	target := routing.Identity{Kind: routing.TargetComparison, CommitHash: req.FromHash, CompareWith: req.ToHash}
	stream := s.hub.capture(s.events, target)
	data, err := s.orch.AnalyzeComparison(r.Context(), req.FromHash, req.ToHash)
	if err != nil {
		s.hub.drop(stream)
		WriteError(w, err)
		return
	}
	s.hub.bind(stream, data.RequestID)
	writeJSON(w, http.StatusOK, data)
}

type fileHistoryRequest struct {
	FilePath string `json:"filePath"`
	Limit    int    `json:"limit"`
}

func (s *Server) handleAnalyzeFileHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req fileHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FilePath == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "filePath is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	target := routing.Identity{Kind: routing.TargetFileHistory, FilePath: req.FilePath}
	stream := s.hub.capture(s.events, target)
	data, err := s.orch.AnalyzeFileHistory(r.Context(), req.FilePath, req.Limit)
	if err != nil {
		s.hub.drop(stream)
		WriteError(w, err)
		return
	}
	s.hub.bind(stream, data.RequestID)
	writeJSON(w, http.StatusOK, data)
}

type fileCompareRequest struct {
	FilePath string `json:"filePath"`
	FromHash string `json:"fromHash"`
	ToHash   string `json:"toHash"`
}

func (s *Server) handleAnalyzeFileCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req fileCompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FilePath == "" || req.FromHash == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "filePath and fromHash are required")
		return
	}

	target := routing.Identity{
		Kind:        routing.TargetFileCompare,
		CommitHash:  req.FromHash,
		CompareWith: req.ToHash,
		FilePath:    req.FilePath,
	}
	stream := s.hub.capture(s.events, target)
	data, err := s.orch.AnalyzeFileCompare(r.Context(), req.FilePath, req.FromHash, req.ToHash)
	if err != nil {
		s.hub.drop(stream)
		WriteError(w, err)
		return
	}
	s.hub.bind(stream, data.RequestID)
	writeJSON(w, http.StatusOK, data)
}

type eventsResponse struct {
	RequestID string          `json:"requestId"`
	Events    []routing.Event `json:"events"`
	Done      bool            `json:"done"`
}

// handleEvents long-polls for the buffered events of one request.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	requestID := strings.TrimPrefix(r.URL.Path, "/events/")
	if requestID == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_request", "request ID is required")
		return
	}

	wait := defaultPollWait
	if raw := r.URL.Query().Get("waitMs"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
			wait = time.Duration(ms) * time.Millisecond
		}
	}
	if wait > maxPollWait {
		wait = maxPollWait
	}

	events, done, known := s.hub.poll(requestID, wait)
	if !known {
		writeJSONError(w, http.StatusNotFound, "not_found", "unknown or finished request ID")
		return
	}
	if events == nil {
		events = []routing.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{RequestID: requestID, Events: events, Done: done})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache_disabled", "cache is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	if s.cache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache_disabled", "cache is not configured")
		return
	}
	s.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "metrics_unavailable", "metrics store is not configured")
		return
	}
	hours := 24
	if raw := r.URL.Query().Get("windowHours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	aggregates, err := s.db.GetAggregates(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"windowHours": hours,
		"byKind":      aggregates,
	})
}
