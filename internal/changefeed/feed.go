package changefeed

import (
	"context"
	"errors"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
)

// Status is a subscription lifecycle signal.
type Status string

const (
	StatusSubscribed Status = "subscribed"
	StatusError      Status = "error"
	StatusTimedOut   Status = "timed_out"
)

// Channel is the notification channel the repository publishes row changes on.
const Channel = "live_games"

// ErrClosed is returned when subscribing to a closed feed.
var ErrClosed = errors.New("changefeed closed")

// Filter narrows a subscription. An empty GameID receives every game.
type Filter struct {
	GameID string
}

// Matches reports whether the change falls inside the filter.
func (f Filter) Matches(c domaingames.Change) bool {
	return f.GameID == "" || c.Patch.ID == f.GameID
}

// Subscription delivers row changes and lifecycle signals until closed.
// Events is closed when the subscription ends; callers treat that as an error.
type Subscription interface {
	Events() <-chan domaingames.Change
	Status() <-chan Status
	Close() error
}

// Feed opens subscriptions to the change channel.
type Feed interface {
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}
