package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/julianshen/twspoc/api/controllers"
	"github.com/julianshen/twspoc/api/routes"
	"github.com/julianshen/twspoc/internal/fallback"
	"github.com/julianshen/twspoc/internal/reconcile"
	"github.com/julianshen/twspoc/internal/remote"
	"github.com/julianshen/twspoc/internal/store"
	"github.com/julianshen/twspoc/internal/supervisor"
	"github.com/julianshen/twspoc/pkg/config"
	"github.com/julianshen/twspoc/pkg/logger"
	"github.com/julianshen/twspoc/pkg/metrics"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
)

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
	Gatherer prometheus.Gatherer

	// Remote and Opener are ignored in offline mode.
	Remote  reconcile.Remote
	Opener  remote.Opener
	Pingers []controllers.Pinger

	ShutdownTimeout time.Duration
}

// Service owns the engine, the supervisor and the local HTTP server.
type Service struct {
	cfg             *config.Config
	logg            *logger.Logger
	store           *store.Store
	engine          *reconcile.Engine
	supervisor      *supervisor.Supervisor
	server          *http.Server
	shutdownTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	cfg := params.Config
	offline := cfg.Remote.Offline
	if !offline && params.Remote == nil {
		return nil, errors.New("remote client is required")
	}
	if !offline && params.Opener == nil {
		return nil, errors.New("push opener is required")
	}

	gen, err := fallback.New(fallback.Params{Config: cfg.Fallback, Logger: params.Logger})
	if err != nil {
		return nil, err
	}

	st := store.New(params.Logger)

	var rem reconcile.Remote
	if !offline {
		rem = params.Remote
	}
	engine, err := reconcile.New(reconcile.Params{
		Remote:          rem,
		Fallback:        gen,
		Sink:            st,
		Logger:          params.Logger,
		Metrics:         params.Metrics,
		Confirm:         cfg.Confirm,
		SeedCount:       cfg.Fallback.SeedCount,
		SnapshotTimeout: cfg.Remote.SnapshotTimeout,
		Offline:         offline,
	})
	if err != nil {
		return nil, err
	}
	st.Bind(engine)

	svc := &Service{
		cfg:             cfg,
		logg:            params.Logger,
		store:           st,
		engine:          engine,
		shutdownTimeout: params.ShutdownTimeout,
	}
	if svc.shutdownTimeout <= 0 {
		svc.shutdownTimeout = defaultShutdownTimeout
	}

	var conn controllers.Connection
	if !offline {
		sup, err := supervisor.New(supervisor.Params{
			Opener:   params.Opener,
			Handler:  engine.Push,
			Listener: engine,
			Logger:   params.Logger,
			Metrics:  params.Metrics,
			Config:   cfg.Supervisor,
		})
		if err != nil {
			return nil, err
		}
		svc.supervisor = sup
		conn = sup
	}

	svc.server = &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           routes.NewRouter(cfg, params.Logger, st, conn, params.Gatherer, params.Pingers...),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return svc, nil
}

// Handler exposes the local HTTP surface.
func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

// Run blocks until ctx is done or the HTTP server fails. The engine outlives ctx until
// the server has drained so in-flight mutations still land.
func (s *Service) Run(ctx context.Context) error {
	if err := s.engine.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, 2)
	workers := 1
	go func() {
		results <- s.serve()
	}()
	if s.supervisor != nil {
		workers++
		go func() {
			results <- s.supervisor.Run(runCtx)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-results:
		workers--
		runErr = err
		if runErr == nil {
			runErr = errors.New("http server stopped")
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer stop()
	shutdownErr := s.server.Shutdown(shutdownCtx)

	for ; workers > 0; workers-- {
		if err := <-results; err != nil && !errors.Is(err, context.Canceled) {
			runErr = multierr.Append(runErr, err)
		}
	}

	s.logg.Info(s.logg.WithField(ctx, "state", s.store.Status()), "notifsync.stopped")
	return multierr.Combine(runErr, shutdownErr, s.engine.Close())
}

func (s *Service) serve() error {
	s.logg.Info(s.logg.WithField(context.Background(), "addr", s.server.Addr), "http.listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
