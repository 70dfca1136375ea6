package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/config"
	httpserver "github.com/lucasspain13/out-sports-qc-sub001/internal/http"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/http/handlers"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/http/ws"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/liveview"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/metrics"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/notify"
)

var metricsSetup = metrics.Setup

type Server struct {
	cfg           config.Config
	logger        *slog.Logger
	metrics       *metrics.Recorder
	view          Lifecycle
	hub           *ws.Hub
	backend       *Backend
	httpServer    httpServer
	metricsServer httpServer
	metricsStop   func(context.Context) error
}

// New opens the configured backend and wires the live view, push hub and HTTP surface.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewLogger(logging.Config{})
	}
	recorder, metricsSrv, metricsShutdown := buildMetrics(cfg, logger, nil)

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		if metricsShutdown != nil {
			_ = metricsShutdown(ctx)
		}
		return nil, fmt.Errorf("open backend: %w", err)
	}

	srv := newServerWithBackend(cfg, logger, backend, recorder)
	srv.metricsServer = metricsSrv
	srv.metricsStop = metricsShutdown
	return srv, nil
}

func newServerWithBackend(cfg config.Config, logger *slog.Logger, backend *Backend, recorder *metrics.Recorder) *Server {
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}

	// The hub is created after the view it reads from, so notifications reach
	// it through a late-bound sink.
	var hub *ws.Hub
	sink := notify.Fanout{
		notify.LogSink{Logger: logger},
		notify.SinkFunc(func(n notify.Notification) {
			if hub != nil {
				hub.Notify(n)
			}
		}),
	}

	view := liveview.New(backend.Repo, backend.Feed, ViewOptions(cfg, logger, recorder, sink))
	hub = ws.NewHub(view, logger, cfg.HTTP.CORSOrigins)
	view.Subscribe(hub.OnStoreEvent)
	view.SubscribeConnection(hub.OnConnection)

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Handler:     handlers.NewHandler(view, logger),
		Admin:       handlers.NewAdminHandler(backend.Repo, logger),
		Push:        hub,
		Logger:      logger,
		Metrics:     recorder,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	})

	return &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    recorder,
		view:       view,
		hub:        hub,
		backend:    backend,
		httpServer: buildHTTPServer(cfg, router),
	}
}

// newServerWithDeps is used for testing to inject custom components.
func newServerWithDeps(cfg config.Config, logger *slog.Logger, view Lifecycle, httpSrv httpServer) *Server {
	return &Server{
		cfg:        cfg,
		logger:     logger,
		view:       view,
		httpServer: httpSrv,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) httpServer {
	return netHTTPServer{srv: &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}}
}

// Run seeds the live view, then serves until ctx is cancelled or a server
// fails, and shuts everything down before returning.
func (s *Server) Run(ctx context.Context) error {
	if err := s.view.Start(ctx); err != nil {
		logging.Error(s.logger, "live view failed to start", err)
		s.gracefulShutdown()
		return fmt.Errorf("start live view: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.hub != nil {
		g.Go(func() error {
			s.hub.Run(gctx)
			return nil
		})
	}
	g.Go(func() error { return serve("http", s.httpServer, s.logger) })
	if s.metricsServer != nil {
		g.Go(func() error { return serve("metrics", s.metricsServer, s.logger) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logging.Info(s.logger, "shutdown signal received")
		s.gracefulShutdown()
		return nil
	})
	return g.Wait()
}

func (s *Server) gracefulShutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.metricsStop != nil {
		if err := s.metricsStop(shutdownCtx); err != nil {
			logging.Warn(s.logger, "metrics shutdown failed", logging.FieldError, err)
		}
	}

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn(s.logger, "metrics server shutdown failed", logging.FieldError, err)
		}
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error(s.logger, "graceful shutdown failed", err)
	}

	s.view.Stop()

	if err := s.backend.Close(); err != nil {
		logging.Warn(s.logger, "backend close failed", logging.FieldError, err)
	}

	logging.Info(s.logger, "shutdown complete")
}

func buildMetrics(cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder) (*metrics.Recorder, httpServer, func(context.Context) error) {
	if recorder != nil {
		return recorder, nil, nil
	}

	recCfg := metrics.TelemetryConfig{
		Enabled:      cfg.Metrics.Enabled,
		Port:         cfg.Metrics.Port,
		ServiceName:  cfg.Metrics.ServiceName,
		OtlpEndpoint: cfg.Metrics.OtlpEndpoint,
		OtlpInsecure: cfg.Metrics.OtlpInsecure,
	}

	rec, handler, shutdown, err := metricsSetup(context.Background(), recCfg)
	if err != nil {
		logging.Warn(logger, "metrics setup failed, continuing without telemetry", logging.FieldError, err)
		return metrics.NewRecorder(), nil, nil
	}

	var metricsSrv httpServer
	if handler != nil && recCfg.Enabled {
		metricsSrv = netHTTPServer{
			srv: &http.Server{
				Addr:              ":" + recCfg.Port,
				Handler:           handler,
				ReadHeaderTimeout: readTimeout,
			},
		}
	}

	return rec, metricsSrv, shutdown
}

// serve blocks on srv and treats a requested shutdown as a clean exit.
func serve(name string, srv httpServer, logger *slog.Logger) error {
	logging.Info(logger, "starting "+name+" server", "addr", srv.Addr())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error(logger, name+" server failed", err)
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// Handler exposes the HTTP handler (useful for tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler()
}
