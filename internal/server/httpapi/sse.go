package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// eventStream writes server-sent events. Upload goroutines may send
// concurrently with the handler; nothing is written after close.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func newEventStream(w http.ResponseWriter) *eventStream {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	es := &eventStream{w: w}
	es.flusher, _ = w.(http.Flusher)
	es.flush()
	return es
}

func (es *eventStream) flush() {
	if es.flusher != nil {
		es.flusher.Flush()
	}
}

func (es *eventStream) send(event string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		return
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	if es.closed {
		return
	}
	fmt.Fprintf(es.w, "event: %s\ndata: %s\n\n", event, b)
	es.flush()
}

func (es *eventStream) close() {
	es.mu.Lock()
	es.closed = true
	es.mu.Unlock()
}

type progressEvent struct {
	Field    string  `json:"field"`
	Fraction float64 `json:"fraction"`
}

type errorEvent struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}
