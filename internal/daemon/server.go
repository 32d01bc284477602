package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"wagate/internal/config"
	"wagate/internal/httpapi"
)

// Server manages the HTTP server lifecycle for a session daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the configured listen address.
// Binding happens here so a bad address fails construction, not serving.
func NewServer(p Params, cfg *config.Config, handler *httpapi.Handler, logger *zap.Logger) (*Server, error) {
	addr := p.ListenAddr
	if addr == "" {
		addr = cfg.Listen
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	return &Server{
		httpServer: &http.Server{
			Handler:           handler.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address, useful when the configured port is 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown, waiting for in-flight requests up
// to the context deadline.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
	}
}
