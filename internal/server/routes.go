package server

import "net/http"

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/events/", s.handleEvents) // GET /api/events/{project_id} (SSE)
	mux.HandleFunc("/ws/logs", s.handleLogSocket)

	return mux
}
