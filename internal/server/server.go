// Package server runs one world process: the game loop, the persistence
// writer and the HTTP endpoints for metrics and status.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/volundmush/moonsilver/internal/config"
	"github.com/volundmush/moonsilver/internal/core/engine"
	"github.com/volundmush/moonsilver/internal/core/observability/log"
	"github.com/volundmush/moonsilver/internal/core/session"
	"github.com/volundmush/moonsilver/internal/core/storage"
	"github.com/volundmush/moonsilver/internal/core/world"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg     *config.Config
	logger  log.Log
	engine  *engine.Engine
	gateway *session.Gateway
	writer  *storage.Writer
	sink    storage.Sink
	http    *http.Server

	running atomic.Bool
	closed  atomic.Bool
}

// New assembles a server. metrics serves /metrics and may be nil.
func New(cfg *config.Config, logger log.Log, e *engine.Engine, gw *session.Gateway, writer *storage.Writer, sink storage.Sink, metrics http.Handler) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger.With(log.String("component", "server")),
		engine:  e,
		gateway: gw,
		writer:  writer,
		sink:    sink,
	}
	if cfg.Metrics.Addr != "" {
		s.http = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           s.routes(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s
}

func (s *Server) Engine() *engine.Engine    { return s.engine }
func (s *Server) Gateway() *session.Gateway { return s.gateway }

// Run sets the engine up and blocks while the game loop runs. It returns
// after Stop, after ctx is cancelled, or when setup or the HTTP listener
// fails. Dirty state is flushed before it returns.
func (s *Server) Run(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	defer s.running.Store(false)

	if err := s.engine.Setup(ctx); err != nil {
		s.logger.Error("setup failed", log.Error(err))
		_ = s.sink.Close()
		return err
	}

	s.writer.Start(context.WithoutCancel(ctx))
	defer s.shutdown()

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	defer stopLoop()

	if s.http != nil {
		g.Go(func() error {
			s.logger.Info("http listening", log.String("addr", s.http.Addr))
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-loopCtx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return s.http.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		defer stopLoop()
		return s.engine.Start(loopCtx)
	})
	return g.Wait()
}

// Stop asks the game loop to halt after its current iteration.
func (s *Server) Stop() {
	s.logger.Info("stop requested")
	s.engine.Stop()
}

// Close stops the server and forbids further runs.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.Stop()
	return nil
}

func (s *Server) shutdown() {
	if err := s.writer.Close(); err != nil && !errors.Is(err, storage.ErrWriterClosed) {
		s.logger.Error("writer close failed", log.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.engine.Do(func(w *world.World) error {
		if n := s.writer.Reclaim(); n > 0 {
			s.logger.Warn("retrying failed records", log.Int("records", n))
		}
		n, err := storage.Sync(ctx, w, s.sink)
		if err == nil && n > 0 {
			s.logger.Info("final flush", log.Int("records", n))
		}
		return err
	})
	if err != nil {
		s.logger.Error("final flush failed", log.Error(err))
	}

	if err := s.sink.Close(); err != nil {
		s.logger.Error("sink close failed", log.Error(err))
	}
}
