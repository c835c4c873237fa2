// Package api exposes the indexer over HTTP with JSON bodies.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 32 << 20

// Ports holds the driving ports the HTTP handlers call.
type Ports struct {
	Search     driving.SearchService
	Index      driving.IndexService
	Reconciler driving.Reconciler
	Health     driving.HealthService

	// Version is reported by the service info endpoint.
	Version string
}

// Server serves the HTTP API.
type Server struct {
	mu       sync.Mutex
	addr     string
	ports    Ports
	server   *http.Server
	listener net.Listener
	errChan  chan error
	mounts   map[string]http.Handler
}

// NewServer creates a server that will listen on addr (host:port).
// Port 0 picks a free port.
func NewServer(addr string, ports Ports) *Server {
	return &Server{
		addr:    addr,
		ports:   ports,
		errChan: make(chan error, 1),
		mounts:  make(map[string]http.Handler),
	}
}

// Mount serves h under pattern alongside the API routes. Call before Start.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts[pattern] = h
}

// Handler returns the routed handler with request ids attached.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/index", s.handleIndex)
	mux.HandleFunc("GET /api/v1/index/status/{document_id}", s.handleStatus)
	mux.HandleFunc("DELETE /api/v1/index/{document_id}", s.handleDelete)
	mux.HandleFunc("POST /api/v1/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/search/hybrid", s.handleSearch)
	mux.HandleFunc("GET /api/v1/search/stats", s.handleStats)
	mux.HandleFunc("POST /api/v1/reconcile", s.handleReconcile)
	mux.HandleFunc("POST /api/v1/documents", s.handleSubmit)
	for pattern, h := range s.mounts {
		mux.Handle(pattern, h)
	}
	return withRequestID(mux)
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("api server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.addr = listener.Addr().String()

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errChan <- err:
			default:
			}
		}
	}()

	logger.Info("http api listening", "addr", s.addr)
	return nil
}

// Addr returns the listen address. After Start it carries the real port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Err delivers a serve failure, if one happens.
func (s *Server) Err() <-chan error {
	return s.errChan
}

// Stop waits for in-flight requests to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http api: %w", err)
	}
	logger.Debug("http api stopped")
	return nil
}
