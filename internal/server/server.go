// Package server is the thin HTTP transport the core pipeline sits behind.
// Per the scoping of this system, the CRUD controller layer and static
// asset serving live outside the implemented core; what remains here is
// just enough surface to exercise C3's broadcaster (the SSE endpoint) and
// an operator-facing log tail, adapted from the donor's server.go
// start/shutdown shape and its websocket log handler.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/events"
)

// Server wraps the stdlib HTTP server with the broadcaster it drains SSE
// subscriptions from.
type Server struct {
	httpServer   *http.Server
	broadcaster  *events.Broadcaster
	logger       arbor.ILogger
	shutdownChan chan struct{}
}

func New(host string, port int, broadcaster *events.Broadcaster, logger arbor.ILogger) *Server {
	s := &Server{broadcaster: broadcaster, logger: logger}
	mux := s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE/websocket connections are long-lived
	}
	return s
}

// SetShutdownChannel stores ch on the Server. No route in this package
// reads or signals it.
func (s *Server) SetShutdownChannel(ch chan struct{}) {
	s.shutdownChan = ch
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
