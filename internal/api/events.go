package api

import (
	"sync"
	"time"

	"histlens/internal/routing"
)

// streamRetention is how long a finished stream waits for a final
// poll before it is released.
const streamRetention = 5 * time.Minute

// eventHub buffers routed events per request ID so HTTP clients can
// collect them by long-polling. Streams whose terminal event sits
// unpolled past the retention window are released so a client that
// never polls cannot accumulate state.
type eventHub struct {
	mu        sync.Mutex
	streams   map[string]*eventStream
	retention time.Duration
}

func newEventHub() *eventHub {
	return &eventHub{
		streams:   make(map[string]*eventStream),
		retention: streamRetention,
	}
}

// eventStream records every event routed to one target identity. It
// attaches before the analysis request starts so no early event is
// lost, and is bound to the request ID once that ID exists.
type eventStream struct {
	mu         sync.Mutex
	requestID  string
	events     []routing.Event
	terminalAt time.Time
	notify     chan struct{}
	detach     func()
}

// Deliver implements routing.Sink.
func (st *eventStream) Deliver(event routing.Event) {
	st.mu.Lock()
	st.events = append(st.events, event)
	// Only this request's terminal event finishes the stream; events
	// routed here for other requests sharing the identity do not. An
	// empty requestID means the stream is not yet bound, which only
	// happens while its own request is being set up.
	if event.Terminal() && st.terminalAt.IsZero() &&
		(st.requestID == "" || event.RequestID == st.requestID) {
		st.terminalAt = time.Now()
	}
	st.mu.Unlock()
	select {
	case st.notify <- struct{}{}:
	default:
	}
}

func (st *eventStream) terminalTime() time.Time {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.terminalAt
}

// take removes and returns the buffered events for the bound request.
// Events routed to the same identity for other requests are discarded.
func (st *eventStream) take() (out []routing.Event, done bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, event := range st.events {
		if event.RequestID != st.requestID {
			continue
		}
		out = append(out, event)
		if event.Terminal() {
			done = true
		}
	}
	st.events = st.events[:0]
	return out, done
}

// capture attaches a fresh stream for a target identity.
func (h *eventHub) capture(router *routing.Router, target routing.Identity) *eventStream {
	st := &eventStream{notify: make(chan struct{}, 1)}
	token := router.Attach(target, st)
	st.detach = func() { router.Detach(token) }
	return st
}

// bind publishes the stream under its request ID.
func (h *eventHub) bind(st *eventStream, requestID string) {
	h.sweep(time.Now())

	st.mu.Lock()
	st.requestID = requestID
	st.mu.Unlock()

	h.mu.Lock()
	h.streams[requestID] = st
	h.mu.Unlock()
}

// sweep releases streams whose terminal event has sat unpolled past
// the retention window.
func (h *eventHub) sweep(now time.Time) {
	h.mu.Lock()
	var expired []*eventStream
	for id, st := range h.streams {
		if t := st.terminalTime(); !t.IsZero() && now.Sub(t) >= h.retention {
			delete(h.streams, id)
			expired = append(expired, st)
		}
	}
	h.mu.Unlock()
	for _, st := range expired {
		st.detach()
	}
}

// drop detaches a stream whose request never started.
func (h *eventHub) drop(st *eventStream) {
	st.detach()
}

// poll returns buffered events for a request, waiting up to wait for
// the first one. known is false for an unrecognized request ID. After
// the terminal event is returned the stream is released.
func (h *eventHub) poll(requestID string, wait time.Duration) (events []routing.Event, done, known bool) {
	h.sweep(time.Now())

	h.mu.Lock()
	st := h.streams[requestID]
	h.mu.Unlock()
	if st == nil {
		return nil, false, false
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		events, done = st.take()
		if done {
			st.detach()
			h.mu.Lock()
			delete(h.streams, requestID)
			h.mu.Unlock()
			return events, true, true
		}
		if len(events) > 0 {
			return events, false, true
		}
		select {
		case <-st.notify:
		case <-deadline.C:
			return nil, false, true
		}
	}
}
