package repository

import (
	"context"
	"errors"
	"fmt"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
)

// ErrNotFound is returned when a write targets a game that does not exist.
var ErrNotFound = errors.New("game not found")

// Repository is the authoritative game store. Writes are confirmed back to
// readers through the change channel, not through return values.
type Repository interface {
	ListLive(ctx context.Context) ([]domaingames.Game, error)
	SetScore(ctx context.Context, id string, home, away int) error
	IncrementScore(ctx context.Context, id string, team domaingames.Team) error
	DecrementScore(ctx context.Context, id string, team domaingames.Team) error
	SetStatus(ctx context.Context, id string, status domaingames.GameStatus) error
	Close() error
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
