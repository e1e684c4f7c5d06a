package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/api"
	"github.com/Abhishek8642/MindPal-1.3/internal/paths"
)

// Server manages the HTTP server lifecycle on the daemon's unix socket.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates an HTTP server bound to the daemon's unix domain socket.
func NewServer(p Params, logger *zap.Logger, handler *api.Handler) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = paths.SocketPath()
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := &http.Server{
		Handler:     handler.Router(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: the event feed holds its connection open.
		IdleTimeout: 120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("socket", s.socketPath))
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
	}
	_ = os.Remove(s.socketPath)
}
