package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server hosts the webhook endpoints.
type Server struct {
	httpServer *http.Server
}

// NewServer creates the webhook HTTP server on the given port.
func NewServer(port int, h *Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      h.Routes(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second, // completion calls dominate request latency
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start starts the server. It blocks until the server stops.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
