package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// handleEvents is the external SSE fan-out transport: it drains one
// broadcaster subscription onto the response writer. The subscribe/
// publish/bounded-queue/keep-alive logic itself lives in the broadcaster
// (C3); this handler only serializes what arrives.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimPrefix(r.URL.Path, "/api/events/")
	if projectID == "" {
		http.Error(w, "project id required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	events, cancel := s.broadcaster.Subscribe(ctx, projectID)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				s.logger.Warn().Err(err).Str("project_id", projectID).Msg("failed to marshal SSE event payload")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload)
			flusher.Flush()
		}
	}
}
