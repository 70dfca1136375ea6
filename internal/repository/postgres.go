package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/config"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
)

const (
	postgresMaxOpenConns = 25
	postgresMaxIdleConns = 5
)

// OpenPostgres connects to PostgreSQL. Change notifications come from the
// games_notify trigger, so opts.Publish is normally nil.
func OpenPostgres(ctx context.Context, dsn string, migrate bool, opts Options) (*SQLRepository, error) {
	logging.Info(opts.Logger, "opening database", logging.FieldDriver, config.DriverPostgres)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(postgresMaxOpenConns)
	db.SetMaxIdleConns(postgresMaxIdleConns)

	if migrate {
		if err := Migrate(ctx, db, config.DriverPostgres); err != nil {
			db.Close()
			return nil, err
		}
	}
	return newSQLRepository(db, config.DriverPostgres, true, opts), nil
}
