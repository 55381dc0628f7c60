// Package server runs the HTTP listener that exposes the health, version and
// metrics endpoints of a governance process.
//
// The server wraps its handler in a fixed middleware chain: panic recovery
// (outermost), access logging, then request ID propagation.
//
//	srv := server.New(&server.Config{Address: "127.0.0.1:9090"}, mux)
//	if err := srv.Listen(); err != nil {
//	    return err
//	}
//	err := srv.Serve(ctx) // blocks until ctx is cancelled
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Default timeouts.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
)

// ErrAlreadyRunning is returned by Listen and Serve on a started server.
var ErrAlreadyRunning = errors.New("server is already running")

// Config configures the listener.
type Config struct {
	// Address is the host:port to listen on. Port 0 picks a free port.
	Address string

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 5s
	ReadHeaderTimeout time.Duration

	// WriteTimeout bounds writing a response. Zero means no limit.
	WriteTimeout time.Duration

	// IdleTimeout bounds keep-alive connections.
	// Default: 60s
	IdleTimeout time.Duration

	// ShutdownTimeout is the grace period Serve allows in-flight requests
	// after its context is cancelled.
	// Default: 15s
	ShutdownTimeout time.Duration
}

// Server is an HTTP server with graceful shutdown.
type Server struct {
	config     Config
	handler    http.Handler
	logger     *slog.Logger
	httpServer *http.Server

	mu           sync.Mutex
	listener     net.Listener
	running      bool
	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for lifecycle and access logs.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.With("component", "server")
		}
	}
}

// New creates a server for handler. The handler is wrapped in the
// recovery, logging and request ID middleware.
func New(cfg *Config, handler http.Handler, opts ...Option) *Server {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		config: c,
		logger: slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = Chain(handler, Recovery(s.logger), Logging(s.logger), RequestID)
	s.httpServer = &http.Server{
		Addr:              c.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: c.ReadHeaderTimeout,
		WriteTimeout:      c.WriteTimeout,
		IdleTimeout:       c.IdleTimeout,
	}
	return s
}

// Handler returns the wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the configured address without serving yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrAlreadyRunning
	}
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener fails,
// then shuts down gracefully. It calls Listen first if needed.
func (s *Server) Serve(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	ln := s.listener
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.setStopped()
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Only the first call has an effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
		s.mu.Lock()
		if s.listener != nil {
			// Closes a listener that Serve never took over.
			_ = s.listener.Close()
		}
		s.running = false
		s.mu.Unlock()
		s.logger.Info("server stopped")
	})
	return shutdownErr
}

// IsRunning reports whether Serve is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}
