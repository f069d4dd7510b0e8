// Package server runs the HTTP API and the cron schedule until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"igharvest/internal/scheduler"
	"igharvest/pkg/config"
	"igharvest/pkg/logger"
)

// Server bundles the HTTP listener and the optional scheduler
type Server struct {
	httpServer      *http.Server
	scheduler       *scheduler.Scheduler
	shutdownTimeout time.Duration
	logger          logger.Logger
}

// New creates a server for handler. sched may be nil.
func New(cfg config.ServerConfig, handler http.Handler, sched *scheduler.Scheduler, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			// a harvest triggered over HTTP can run for a long time
			WriteTimeout: cfg.WriteTimeout,
		},
		scheduler:       sched,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          log.WithField("component", "server"),
	}
}

// Run listens on the configured address and blocks until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.scheduler != nil {
		s.scheduler.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogComponentStart(s.logger, "http", map[string]interface{}{"addr": ln.Addr().String()})
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.stopScheduler()
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown stops accepting requests, waits for in-flight ones and stops
// the scheduler
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	logger.LogComponentStop(s.logger, "http", "shutdown")
	return errors.Join(errs...)
}

func (s *Server) stopScheduler() {
	if s.scheduler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.scheduler.Stop(ctx); err != nil {
		s.logger.WithError(err).Warn("Scheduler stop failed")
	}
}
