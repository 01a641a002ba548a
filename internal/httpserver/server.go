package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server wraps http.Server with timeouts suited to long-running generation requests.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on the provided port. writeTimeout must
// cover a full image generation round trip; zero selects a two minute default.
func New(port int, writeTimeout time.Duration, handler http.Handler) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Minute
	}
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       time.Minute,
		},
	}
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
