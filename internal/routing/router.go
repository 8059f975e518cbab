// Package routing delivers analysis events to the display surfaces
// that asked for them.
package routing

import (
	"sync"

	"github.com/google/uuid"

	"histlens/internal/logging"
)

// TargetKind identifies what a surface is displaying.
type TargetKind string

const (
	// TargetCommit is a single-commit view.
	TargetCommit TargetKind = "commit"
	// TargetComparison is a two-version comparison view.
	TargetComparison TargetKind = "comparison"
	// TargetFileHistory is a single-file history view.
	TargetFileHistory TargetKind = "fileHistory"
	// TargetFileCompare is a single-file version comparison view.
	TargetFileCompare TargetKind = "fileCompare"
)

// Identity is the full typed description of an analysis target. Hash
// order matters: a comparison of (a, b) is a different target than
// (b, a). An empty CompareWith on a comparison means the working tree.
type Identity struct {
	Kind        TargetKind `json:"kind"`
	CommitHash  string     `json:"commitHash,omitempty"`
	CompareWith string     `json:"compareWith,omitempty"`
	FilePath    string     `json:"filePath,omitempty"`
}

// EventType classifies a routed event.
type EventType string

const (
	// EventAnalyzing signals that background analysis has started.
	EventAnalyzing EventType = "analyzing"
	// EventProgress reports batch progress.
	EventProgress EventType = "progress"
	// EventCompleted carries the final analysis payload.
	EventCompleted EventType = "completed"
	// EventFailed carries a classified failure.
	EventFailed EventType = "failed"
)

// Event is one message delivered to a surface. Completed and Failed
// are terminal; no further events follow them for a request.
type Event struct {
	Type      EventType   `json:"type"`
	RequestID string      `json:"requestId"`
	Target    Identity    `json:"target"`
	Payload   interface{} `json:"payload,omitempty"`
	ErrorKind string      `json:"errorKind,omitempty"`
	Message   string      `json:"message,omitempty"`
	Done      int         `json:"done,omitempty"`
	Total     int         `json:"total,omitempty"`
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}

// Sink receives routed events. Deliver must not block for long; it is
// called with the router lock released but serially per dispatch.
type Sink interface {
	Deliver(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event)

// Deliver calls the function.
func (f SinkFunc) Deliver(event Event) { f(event) }

type registration struct {
	token    string
	identity Identity
	sink     Sink
}

// Router matches analysis results to attached surfaces. A result is
// delivered to every surface whose identity matches the target tuple
// exactly, and, when the target names a file, also to every surface
// showing that file path regardless of the rest of its identity.
// Unmatched results are dropped.
type Router struct {
	mu       sync.RWMutex
	surfaces map[string]*registration
	logger   *logging.Logger
}

// NewRouter creates an empty router.
func NewRouter(logger *logging.Logger) *Router {
	return &Router{
		surfaces: make(map[string]*registration),
		logger:   logger,
	}
}

// Attach registers a surface for an identity and returns the token to
// detach it with. Multiple surfaces may share one identity.
func (r *Router) Attach(identity Identity, sink Sink) string {
	token := uuid.NewString()
	r.mu.Lock()
	r.surfaces[token] = &registration{token: token, identity: identity, sink: sink}
	r.mu.Unlock()
	return token
}

// Detach removes a surface. Detaching an unknown token is a no-op.
func (r *Router) Detach(token string) {
	r.mu.Lock()
	delete(r.surfaces, token)
	r.mu.Unlock()
}

// SurfaceCount returns the number of attached surfaces.
func (r *Router) SurfaceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surfaces)
}

// Dispatch delivers an event for a target. Every exact identity match
// is notified, plus every per-file surface sharing the target's file
// path; a surface matching both ways is delivered once. With no match
// at all the event is dropped.
func (r *Router) Dispatch(target Identity, event Event) {
	event.Target = target
	sinks := r.match(target)
	if len(sinks) == 0 {
		r.logger.Debug("no surface for analysis result", map[string]interface{}{
			"kind":      string(target.Kind),
			"requestId": event.RequestID,
		})
		return
	}
	for _, sink := range sinks {
		sink.Deliver(event)
	}
}

func (r *Router) match(target Identity) []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []Sink
	for _, reg := range r.surfaces {
		switch {
		case reg.identity == target:
			sinks = append(sinks, reg.sink)
		case target.FilePath != "" && reg.identity.FilePath == target.FilePath:
			sinks = append(sinks, reg.sink)
		}
	}
	return sinks
}
