package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/changefeed"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/config"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/liveview"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/metrics"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/notify"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/repository"
)

// Backend is the repository and change channel selected by the configured driver.
type Backend struct {
	Repo    repository.Repository
	Feed    changefeed.Feed
	closers []func() error
}

// Close releases the feed and repository in reverse order of opening.
func (b *Backend) Close() error {
	if b == nil {
		return nil
	}
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// openBackend remains a var for tests to override.
var openBackend = OpenBackend

// OpenBackend opens the repository for cfg.Database.Driver and pairs it with
// a change channel: LISTEN/NOTIFY for PostgreSQL, an in-process broker fed by
// the repository's own writes for SQLite.
func OpenBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		broker := changefeed.NewBroker(0, logger)
		repo, err := repository.OpenSQLite(ctx, cfg.Database.SQLitePath, repository.Options{
			Publish: broker.Publish,
			Logger:  logger,
		})
		if err != nil {
			broker.Close()
			return nil, err
		}
		return &Backend{Repo: repo, Feed: broker, closers: []func() error{repo.Close, broker.Close}}, nil

	case config.DriverPostgres:
		repo, err := repository.OpenPostgres(ctx, cfg.Database.URL, true, repository.Options{Logger: logger})
		if err != nil {
			return nil, err
		}
		feed := changefeed.NewPQFeed(cfg.Database.URL, changefeed.PQOptions{
			MinReconnect: cfg.Sync.ReconnectInitial,
			MaxReconnect: cfg.Sync.ReconnectMax,
			PingInterval: cfg.Sync.FeedPingInterval,
			Logger:       logger,
		})
		return &Backend{Repo: repo, Feed: feed, closers: []func() error{repo.Close}}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// ViewOptions maps sync configuration onto live view options.
func ViewOptions(cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder, sink notify.Sink) liveview.Options {
	return liveview.Options{
		Filter:            changefeed.Filter{GameID: cfg.Sync.GameID},
		ReconnectInitial:  cfg.Sync.ReconnectInitial,
		ReconnectMax:      cfg.Sync.ReconnectMax,
		SeedAttempts:      cfg.Sync.SeedAttempts,
		ResyncOnReconnect: cfg.Sync.ResyncOnReconnect,
		Sink:              sink,
		Logger:            logger,
		Metrics:           recorder,
	}
}
