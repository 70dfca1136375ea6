package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/changefeed"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/config"
	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/teststubs"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/testutil"
)

func runAsync(srv *Server, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
		return nil
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	view := &testutil.StubLifecycle{}
	httpSrv := &testutil.StubHTTPServer{AddrVal: ":0"}
	logger, _ := testutil.NewSafeBufferLogger()
	srv := newServerWithDeps(config.Config{}, logger, view, httpSrv)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(srv, ctx)
	cancel()

	if err := waitRun(t, done); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if starts, stops := view.Counts(); starts != 1 || stops != 1 {
		t.Fatalf("expected one start and stop, got %d/%d", starts, stops)
	}
	if httpSrv.ShutdownCalls != 1 {
		t.Fatalf("expected http shutdown, got %d", httpSrv.ShutdownCalls)
	}
}

func TestRunReturnsStartError(t *testing.T) {
	view := &testutil.StubLifecycle{StartErr: errors.New("seed failed")}
	httpSrv := &testutil.StubHTTPServer{}
	srv := newServerWithDeps(config.Config{}, nil, view, httpSrv)

	err := srv.Run(context.Background())
	if err == nil || !errors.Is(err, view.StartErr) {
		t.Fatalf("expected start error, got %v", err)
	}
	if httpSrv.ListenCalls != 0 {
		t.Fatalf("expected http server never started")
	}
	if _, stops := view.Counts(); stops != 1 {
		t.Fatalf("expected view stopped after failed start, got %d", stops)
	}
}

func TestRunStopsWhenHTTPServerFails(t *testing.T) {
	view := &testutil.StubLifecycle{}
	httpSrv := &testutil.ErrHTTPServer{}
	srv := newServerWithDeps(config.Config{}, nil, view, httpSrv)

	err := waitRun(t, runAsync(srv, context.Background()))
	if err == nil {
		t.Fatal("expected listen failure to surface")
	}
	if httpSrv.ShutdownCalls != 1 {
		t.Fatalf("expected shutdown after failure, got %d", httpSrv.ShutdownCalls)
	}
	if _, stops := view.Counts(); stops != 1 {
		t.Fatalf("expected view stopped, got %d", stops)
	}
}

func TestRunTreatsServerClosedAsClean(t *testing.T) {
	srv := newServerWithDeps(config.Config{}, nil, &testutil.StubLifecycle{}, &testutil.CloseableHTTPServer{})
	metricsSrv := &testutil.CloseableHTTPServer{}
	srv.metricsServer = metricsSrv
	stopped := false
	srv.metricsStop = func(context.Context) error {
		stopped = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(srv, ctx)
	cancel()

	if err := waitRun(t, done); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if metricsSrv.ShutdownCalls != 1 || !stopped {
		t.Fatalf("expected metrics shut down, server=%d stop=%v", metricsSrv.ShutdownCalls, stopped)
	}
}

func TestGracefulShutdownHonorsTimeout(t *testing.T) {
	orig := shutdownTimeout
	shutdownTimeout = 20 * time.Millisecond
	defer func() { shutdownTimeout = orig }()

	view := &testutil.StubLifecycle{}
	blocking := &testutil.BlockingHTTPServer{Unblock: make(chan struct{})}
	logger, buf := testutil.NewSafeBufferLogger()
	srv := newServerWithDeps(config.Config{}, logger, view, blocking)

	start := time.Now()
	srv.gracefulShutdown()
	if time.Since(start) > time.Second {
		t.Fatal("expected shutdown bounded by timeout")
	}
	if blocking.ShutdownCalls != 1 {
		t.Fatalf("expected shutdown attempt, got %d", blocking.ShutdownCalls)
	}
	if _, stops := view.Counts(); stops != 1 {
		t.Fatalf("expected view stopped even when http shutdown times out")
	}
	if !strings.Contains(buf.String(), "graceful shutdown failed") {
		t.Fatalf("expected timeout logged, got %s", buf.String())
	}
}

func TestServerWiresLiveViewIntoRoutes(t *testing.T) {
	repo := &teststubs.StubRepository{}
	repo.SetGames([]domaingames.Game{testutil.LiveGame("G1", 2, 1)})
	broker := changefeed.NewBroker(0, nil)
	backend := &Backend{Repo: repo, Feed: broker, closers: []func() error{repo.Close, broker.Close}}

	logger, _ := testutil.NewSafeBufferLogger()
	srv := newServerWithBackend(config.Config{Port: "0"}, logger, backend, nil)
	srv.httpServer = &testutil.StubHTTPServer{HandlerVal: srv.httpServer.Handler()}

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(srv, ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rr := testutil.Serve(srv.Handler(), http.MethodGet, "/ready", nil)
		if rr.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("view never became ready, last status %d", rr.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rr := testutil.Serve(srv.Handler(), http.MethodGet, "/games/live", nil)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var body domaingames.LiveResponse
	testutil.DecodeJSON(t, rr, &body)
	if len(body.Games) != 1 || body.Games[0].ID != "G1" {
		t.Fatalf("expected seeded game, got %+v", body.Games)
	}
	if body.Connection.Status != domaingames.ConnectionConnected {
		t.Fatalf("expected connected, got %s", body.Connection.Status)
	}

	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if repo.CloseCalls.Load() != 1 {
		t.Fatalf("expected repository closed once, got %d", repo.CloseCalls.Load())
	}
}

func TestOpenBackendSQLite(t *testing.T) {
	cfg := config.Config{Database: config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "live.db"),
	}}
	backend, err := OpenBackend(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := backend.Feed.(*changefeed.Broker); !ok {
		t.Fatalf("expected in-process broker feed, got %T", backend.Feed)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenBackendRejectsUnknownDriver(t *testing.T) {
	cfg := config.Config{Database: config.DatabaseConfig{Driver: "mysql"}}
	if _, err := OpenBackend(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestNewReportsBackendFailure(t *testing.T) {
	orig := openBackend
	defer func() { openBackend = orig }()
	openBackend = func(context.Context, config.Config, *slog.Logger) (*Backend, error) {
		return nil, errors.New("db down")
	}

	if _, err := New(context.Background(), config.Config{}, nil); err == nil {
		t.Fatal("expected backend error")
	}
}

func TestViewOptionsFromConfig(t *testing.T) {
	cfg := config.Config{Sync: config.SyncConfig{
		GameID:            "G9",
		ReconnectInitial:  time.Second,
		ReconnectMax:      time.Minute,
		SeedAttempts:      4,
		ResyncOnReconnect: true,
	}}
	opts := ViewOptions(cfg, nil, nil, nil)
	if opts.Filter.GameID != "G9" || opts.SeedAttempts != 4 || !opts.ResyncOnReconnect {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.ReconnectInitial != time.Second || opts.ReconnectMax != time.Minute {
		t.Fatalf("unexpected backoff %+v", opts)
	}
}
