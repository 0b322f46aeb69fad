package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

var logUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleLogSocket is an operator debug tail over arbor's in-memory writer,
// polling it the same way the donor's websocket log handler does rather
// than hooking a push-based sink into the logger.
func (s *Server) handleLogSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := logUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("log socket upgrade failed")
		return
	}
	defer conn.Close()

	memWriter := arbor.GetRegisteredMemoryWriter(arbor.WRITER_MEMORY)
	if memWriter == nil {
		return
	}

	seen := make(map[string]bool)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		entries, err := memWriter.GetEntriesWithLimit(100)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to read memory log entries")
			return
		}
		for key, line := range entries {
			if seen[key] {
				continue
			}
			seen[key] = true
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
	}
}
