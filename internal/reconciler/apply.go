package reconciler

import (
	"fmt"
	"time"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/changefeed"
	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/metrics"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/notify"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/store"
)

// Apply merges one change into the store. It is safe to apply the same change
// more than once.
func (r *Reconciler) Apply(c domaingames.Change) {
	id := c.Patch.ID
	if id == "" || !r.filter.Matches(c) {
		r.metrics.RecordChannelEvent(string(c.Type), metrics.ResultIgnored)
		return
	}
	at := c.CommitTime
	if at.IsZero() {
		at = r.now()
	}

	var result string
	var game domaingames.Game
	switch c.Type {
	case domaingames.ChangeDelete:
		result = metrics.ResultIgnored
		if _, act := r.store.Mutate(id, func(cur domaingames.Game, ok bool) (domaingames.Game, store.Action) {
			return cur, store.ActionRemove
		}); act == store.ActionRemove {
			result = metrics.ResultApplied
		}
	case domaingames.ChangeInsert, domaingames.ChangeUpdate:
		game, result = r.merge(id, c.Patch, at)
	default:
		result = metrics.ResultIgnored
	}

	r.metrics.RecordChannelEvent(string(c.Type), result)
	logging.Debug(r.logger, "change applied",
		logging.FieldGameID, id,
		logging.FieldChangeType, string(c.Type),
		"result", result,
	)
	if result != metrics.ResultApplied {
		return
	}
	r.conn.Touch(r.now())
	if c.Type == domaingames.ChangeDelete {
		return
	}
	r.sink.Notify(notify.Notification{
		Kind:   notify.KindUpdated,
		GameID: id,
		Detail: describe(game),
		Game:   game,
	})
}

// merge applies an insert or update patch under the store lock. Older
// versions than the tracked snapshot are discarded. Leaving in-progress
// removes the game; entering it adds the game.
func (r *Reconciler) merge(id string, patch domaingames.Patch, at time.Time) (domaingames.Game, string) {
	result := metrics.ResultIgnored
	confirm := func(g domaingames.Game) domaingames.Game {
		next := patch.Apply(g)
		// A redelivered patch leaves the snapshot, reconciliation time included, untouched.
		if patch.Version != 0 && patch.Version == g.Version && next == g {
			return g
		}
		next.LastReconciledAt = at
		return next
	}

	var merged domaingames.Game
	r.store.Mutate(id, func(cur domaingames.Game, ok bool) (domaingames.Game, store.Action) {
		if !ok {
			if patch.StatusOr("") != domaingames.StatusInProgress {
				return cur, store.ActionNone
			}
			result = metrics.ResultApplied
			merged = confirm(domaingames.Game{ID: id})
			return merged, store.ActionUpsert
		}
		if patch.Version != 0 && patch.Version < cur.Version {
			result = metrics.ResultStale
			return cur, store.ActionNone
		}
		result = metrics.ResultApplied
		if r.pending != nil {
			r.pending.Rebase(id, confirm)
		}
		merged = confirm(cur)
		if !merged.Live() {
			return merged, store.ActionRemove
		}
		return merged, store.ActionUpsert
	})
	return merged, result
}

func describe(g domaingames.Game) string {
	if !g.Live() {
		return fmt.Sprintf("%s %d - %d %s (%s)", g.HomeTeam, g.Score.Home, g.Score.Away, g.AwayTeam, g.Status)
	}
	return fmt.Sprintf("%s %d - %d %s", g.HomeTeam, g.Score.Home, g.Score.Away, g.AwayTeam)
}

// inScope reports whether a repository row belongs to this view.
func inScope(f changefeed.Filter, g domaingames.Game) bool {
	return g.Live() && (f.GameID == "" || f.GameID == g.ID)
}
