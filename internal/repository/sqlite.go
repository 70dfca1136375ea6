package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/config"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
)

// OpenSQLite opens (creating if needed) a SQLite database and applies migrations.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLRepository, error) {
	logging.Info(opts.Logger, "opening database", logging.FieldDriver, config.DriverSQLite, "path", path)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db, config.DriverSQLite); err != nil {
		db.Close()
		return nil, err
	}
	return newSQLRepository(db, config.DriverSQLite, false, opts), nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "ON"},
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("failed to set PRAGMA %s: %w", p.name, err)
		}
	}
	return nil
}
