// Package server runs an http.Server on a pre-bound listener and stops it with the context.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bloops-games/carousing/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	ip       string
	port     string
	listener net.Listener
}

// New binds the port right away so a busy port fails start-up instead of the serve loop.
// Port "0" picks a free port.
func New(port string) (*Server, error) {
	addr := fmt.Sprintf(":%s", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener on %s: %w", addr, err)
	}

	return &Server{
		ip:       listener.Addr().(*net.TCPAddr).IP.String(),
		port:     fmt.Sprintf("%d", listener.Addr().(*net.TCPAddr).Port),
		listener: listener,
	}, nil
}

func (s *Server) IP() string {
	return s.ip
}

func (s *Server) Port() string {
	return s.port
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.ip, s.port)
}

// ServeHTTP blocks until ctx is done, then shuts srv down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, srv *http.Server) error {
	logger := logging.FromContext(ctx).Named("server.ServeHTTP")

	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()

		logger.Debugf("server.Serve: context closed")
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()

		logger.Debugf("server.Serve: shutting down")
		errCh <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}

	logger.Debugf("server.Serve: serving stopped")

	if err := <-errCh; err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}

	return nil
}

// ServeHTTPHandler serves handler with the default server settings.
func (s *Server) ServeHTTPHandler(ctx context.Context, handler http.Handler) error {
	return s.ServeHTTP(ctx, &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// HandleHealth answers {"status":"ok"} while ctx is alive and 503 once it is done.
func HandleHealth(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		status, code := "ok", http.StatusOK
		if ctx.Err() != nil {
			status, code = "shutting down", http.StatusServiceUnavailable
		}

		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
}
