package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
)

const gameColumns = "id, home_team, away_team, home_score, away_score, status, version"

// Publisher receives a change after each committed write.
type Publisher func(domaingames.Change)

// Options configures a SQLRepository.
type Options struct {
	// Publish, when set, is called after every committed write. PostgreSQL
	// relies on its trigger instead; SQLite needs this to feed the broker.
	Publish Publisher
	Logger  *slog.Logger
	Now     func() time.Time
}

// SQLRepository implements Repository over database/sql.
type SQLRepository struct {
	db       *sql.DB
	driver   string
	numbered bool
	publish  Publisher
	logger   *slog.Logger
	now      func() time.Time
}

func newSQLRepository(db *sql.DB, driver string, numbered bool, opts Options) *SQLRepository {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SQLRepository{
		db:       db,
		driver:   driver,
		numbered: numbered,
		publish:  opts.Publish,
		logger:   opts.Logger,
		now:      now,
	}
}

// DB exposes the underlying handle for migrations and diagnostics.
func (r *SQLRepository) DB() *sql.DB { return r.db }

// Driver names the backing database.
func (r *SQLRepository) Driver() string { return r.driver }

func (r *SQLRepository) ListLive(ctx context.Context) ([]domaingames.Game, error) {
	q := r.rebind("SELECT " + gameColumns + " FROM games WHERE status = ? ORDER BY id")
	rows, err := r.db.QueryContext(ctx, q, string(domaingames.StatusInProgress))
	if err != nil {
		return nil, fmt.Errorf("list live games: %w", err)
	}
	defer rows.Close()

	var out []domaingames.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list live games: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) SetScore(ctx context.Context, id string, home, away int) error {
	if home < 0 || away < 0 {
		return fmt.Errorf("scores must be non-negative, got %d-%d", home, away)
	}
	return r.update(ctx, id, "home_score = ?, away_score = ?", home, away)
}

func (r *SQLRepository) IncrementScore(ctx context.Context, id string, team domaingames.Team) error {
	col, err := scoreColumn(team)
	if err != nil {
		return err
	}
	return r.update(ctx, id, col+" = "+col+" + 1")
}

func (r *SQLRepository) DecrementScore(ctx context.Context, id string, team domaingames.Team) error {
	col, err := scoreColumn(team)
	if err != nil {
		return err
	}
	return r.update(ctx, id, col+" = CASE WHEN "+col+" > 0 THEN "+col+" - 1 ELSE 0 END")
}

func (r *SQLRepository) SetStatus(ctx context.Context, id string, status domaingames.GameStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	return r.update(ctx, id, "status = ?", string(status))
}

// Put inserts or replaces a game row. The stored version is bumped past any existing one.
func (r *SQLRepository) Put(ctx context.Context, g domaingames.Game) (domaingames.Game, error) {
	if g.ID == "" {
		return domaingames.Game{}, errors.New("game id is required")
	}
	if g.Status == "" {
		g.Status = domaingames.StatusScheduled
	}
	q := r.rebind(`INSERT INTO games (id, home_team, away_team, home_score, away_score, status, version)
VALUES (?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (id) DO UPDATE SET
	home_team = excluded.home_team,
	away_team = excluded.away_team,
	home_score = excluded.home_score,
	away_score = excluded.away_score,
	status = excluded.status,
	version = games.version + 1,
	updated_at = CURRENT_TIMESTAMP
RETURNING ` + gameColumns)

	row := r.db.QueryRowContext(ctx, q, g.ID, g.HomeTeam, g.AwayTeam, g.Score.Home, g.Score.Away, string(g.Status))
	stored, err := scanGame(row)
	if err != nil {
		return domaingames.Game{}, fmt.Errorf("put game %s: %w", g.ID, err)
	}
	ct := domaingames.ChangeUpdate
	if stored.Version == 1 {
		ct = domaingames.ChangeInsert
	}
	r.emit(ct, stored)
	return stored, nil
}

// Delete removes a game row.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	q := r.rebind("DELETE FROM games WHERE id = ? RETURNING " + gameColumns)
	g, err := scanGame(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("delete game %s: %w", id, err)
	}
	r.emit(domaingames.ChangeDelete, g)
	return nil
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) update(ctx context.Context, id, set string, args ...any) error {
	q := r.rebind("UPDATE games SET " + set + ", version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? RETURNING " + gameColumns)
	args = append(args, id)

	g, err := scanGame(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("update game %s: %w", id, err)
	}
	logging.Debug(r.logger, "game row updated",
		logging.FieldGameID, id,
		logging.FieldScore, g.Score.String(),
		logging.FieldDriver, r.driver,
	)
	r.emit(domaingames.ChangeUpdate, g)
	return nil
}

func (r *SQLRepository) emit(ct domaingames.ChangeType, g domaingames.Game) {
	if r.publish == nil {
		return
	}
	r.publish(domaingames.Change{Type: ct, Patch: domaingames.PatchFrom(g), CommitTime: r.now().UTC()})
}

// rebind rewrites ? placeholders to $n for drivers that need numbered parameters.
func (r *SQLRepository) rebind(q string) string {
	if !r.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(s scanner) (domaingames.Game, error) {
	var (
		g      domaingames.Game
		status string
	)
	if err := s.Scan(&g.ID, &g.HomeTeam, &g.AwayTeam, &g.Score.Home, &g.Score.Away, &status, &g.Version); err != nil {
		return domaingames.Game{}, err
	}
	parsed, err := domaingames.ParseStatus(status)
	if err != nil {
		return domaingames.Game{}, err
	}
	g.Status = parsed
	return g, nil
}

func scoreColumn(team domaingames.Team) (string, error) {
	switch team {
	case domaingames.TeamHome:
		return "home_score", nil
	case domaingames.TeamAway:
		return "away_score", nil
	}
	return "", fmt.Errorf("unknown team %q", team)
}
