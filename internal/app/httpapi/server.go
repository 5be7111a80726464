package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/R3E-Network/storefront/internal/app/system"
	"github.com/R3E-Network/storefront/pkg/logger"
)

var _ system.Service = (*Server)(nil)

// Server runs the HTTP listener as a lifecycle-managed service.
type Server struct {
	srv *http.Server
	log *logger.Logger

	mu   sync.Mutex
	ln   net.Listener
	done chan error
}

// NewServer wraps handler in an http.Server bound to addr.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		log: log,
	}
}

func (s *Server) Name() string { return "http" }

// Start binds the listener and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	s.done = make(chan error, 1)
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.log.WithError(err).Error("http server stopped unexpectedly")
		}
		s.done <- err
	}()
	s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Done reports when the server exits on its own.
func (s *Server) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
