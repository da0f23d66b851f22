package httpserver

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// Server represents the HTTP server.
//
// @req RQ-0301
// @design DS-0301
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// New creates a new HTTP server.
//
// @design DS-0301
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		handler: handler,
	}
}

// SetTLSConfig installs a TLS configuration, typically to require
// client certificates. Must be called before ListenAndServeTLS.
func (s *Server) SetTLSConfig(cfg *tls.Config) {
	s.httpServer.TLSConfig = cfg
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS starts the HTTPS server.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
