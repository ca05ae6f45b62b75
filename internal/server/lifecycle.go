// Package server provides HTTP server utilities
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lcrostarosa/legacyvault/internal/logging"
)

// ShutdownTimeout is the default timeout for graceful shutdown
const ShutdownTimeout = 5 * time.Second

// GracefulServer wraps an http.Server with graceful shutdown capabilities
type GracefulServer struct {
	server          *http.Server
	beforeStop      func()
	shutdownHook    func()
	shutdownTimeout time.Duration
}

// GracefulServerOptions configures a GracefulServer
type GracefulServerOptions struct {
	// BeforeStop is called before initiating shutdown (e.g., stop scheduler)
	BeforeStop func()
	// ShutdownHook is called after server shutdown completes
	ShutdownHook func()
	// ShutdownTimeout bounds draining in-flight requests. Zero uses
	// ShutdownTimeout.
	ShutdownTimeout time.Duration
}

// NewGracefulServer creates a server wrapper with graceful shutdown
func NewGracefulServer(server *http.Server, opts *GracefulServerOptions) *GracefulServer {
	gs := &GracefulServer{server: server, shutdownTimeout: ShutdownTimeout}
	if opts != nil {
		gs.beforeStop = opts.BeforeStop
		gs.shutdownHook = opts.ShutdownHook
		if opts.ShutdownTimeout > 0 {
			gs.shutdownTimeout = opts.ShutdownTimeout
		}
	}
	return gs
}

// ListenAndServe listens on the server's Addr and serves until ctx is done
// or SIGINT/SIGTERM arrives, then shuts down gracefully.
func (gs *GracefulServer) ListenAndServe(ctx context.Context) error {
	addr := gs.server.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return gs.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done or a shutdown signal arrives.
func (gs *GracefulServer) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("HTTP server listening", logging.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logging.Error("Server error", logging.Err(err))
			return err
		}
		return nil
	case <-ctx.Done():
		return gs.Shutdown()
	}
}

// Shutdown gracefully shuts down the server
func (gs *GracefulServer) Shutdown() error {
	logging.Info("Shutting down...")

	if gs.beforeStop != nil {
		gs.beforeStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gs.shutdownTimeout)
	defer cancel()

	if err := gs.server.Shutdown(ctx); err != nil {
		return err
	}

	if gs.shutdownHook != nil {
		gs.shutdownHook()
	}

	logging.Info("Server stopped")
	return nil
}
