package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/jitter.report/internal/httputil"
)

// streamStats serves the live statistics feed as Server-Sent Events. Each
// event is one Snapshot JSON, published at the session's render cadence
// (every RenderDivisor-th frame, ~30Hz for a 90Hz stream). A client that
// cannot keep up misses snapshots rather than stalling the session.
func (s *Server) streamStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, ch := s.session.SubscribeStats()
	defer s.session.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
