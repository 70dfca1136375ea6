package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/metrics"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/notify"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/store"
)

// Op names a score mutation.
type Op string

const (
	OpSet       Op = "set"
	OpIncrement Op = "increment"
	OpDecrement Op = "decrement"
)

// Writer is the repository surface the coordinator writes through.
type Writer interface {
	SetScore(ctx context.Context, id string, home, away int) error
	IncrementScore(ctx context.Context, id string, team domaingames.Team) error
	DecrementScore(ctx context.Context, id string, team domaingames.Team) error
}

// PendingMutation is an optimistic value awaiting the repository's answer.
type PendingMutation struct {
	GameID    string
	Op        Op
	Previous  domaingames.Game
	Requested domaingames.Game
}

// Coordinator applies score mutations optimistically and rolls them back when
// the repository rejects them. Mutations for one game run one at a time in
// arrival order; different games proceed independently.
type Coordinator struct {
	store   *store.LiveStore
	writer  Writer
	sink    notify.Sink
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	mu      sync.Mutex
	slots   map[string]*slot
	pending map[string]PendingMutation
	closed  bool
	done    chan struct{}
}

// slot is a per-game semaphore; refs counts holders and waiters.
type slot struct {
	ch   chan struct{}
	refs int
}

// New builds a coordinator. sink, logger and recorder may be nil.
func New(s *store.LiveStore, w Writer, sink notify.Sink, logger *slog.Logger, recorder *metrics.Recorder) *Coordinator {
	if sink == nil {
		sink = notify.Discard
	}
	return &Coordinator{
		store:   s,
		writer:  w,
		sink:    sink,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
		slots:   make(map[string]*slot),
		pending: make(map[string]PendingMutation),
		done:    make(chan struct{}),
	}
}

// SetScore replaces both scores.
func (c *Coordinator) SetScore(ctx context.Context, id string, home, away int) error {
	if home < 0 || away < 0 {
		return fmt.Errorf("%w: %d-%d", ErrInvalidScore, home, away)
	}
	return c.mutate(ctx, id, OpSet,
		func(g domaingames.Game) domaingames.Game {
			g.Score = domaingames.Score{Home: home, Away: away}
			return g
		},
		func(ctx context.Context) error { return c.writer.SetScore(ctx, id, home, away) },
	)
}

// IncrementScore adds one point to team.
func (c *Coordinator) IncrementScore(ctx context.Context, id string, team domaingames.Team) error {
	if err := validTeam(team); err != nil {
		return err
	}
	return c.mutate(ctx, id, OpIncrement,
		func(g domaingames.Game) domaingames.Game {
			g.Score = g.Score.Add(team, 1)
			return g
		},
		func(ctx context.Context) error { return c.writer.IncrementScore(ctx, id, team) },
	)
}

// DecrementScore removes one point from team. At zero the local score stays
// put and the write is still sent.
func (c *Coordinator) DecrementScore(ctx context.Context, id string, team domaingames.Team) error {
	if err := validTeam(team); err != nil {
		return err
	}
	return c.mutate(ctx, id, OpDecrement,
		func(g domaingames.Game) domaingames.Game {
			g.Score = g.Score.Add(team, -1)
			return g
		},
		func(ctx context.Context) error { return c.writer.DecrementScore(ctx, id, team) },
	)
}

// Pending returns the in-flight mutation for id, if any.
func (c *Coordinator) Pending(id string) (PendingMutation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	return p, ok
}

// HasPending reports whether a mutation for id is in flight.
func (c *Coordinator) HasPending(id string) bool {
	_, ok := c.Pending(id)
	return ok
}

// Rebase applies confirmed data to the rollback target of an in-flight
// mutation, so a later rollback restores confirmed state rather than a stale
// snapshot. It may be called from inside a store.Mutate callback.
func (c *Coordinator) Rebase(id string, confirm func(domaingames.Game) domaingames.Game) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[id]; ok {
		p.Previous = confirm(p.Previous)
		c.pending[id] = p
	}
}

// Close stops handling write results. Waiting callers get ErrClosed and
// in-flight writes finish without rollback or notification.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	c.pending = make(map[string]PendingMutation)
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) mutate(ctx context.Context, id string, op Op, compute func(domaingames.Game) domaingames.Game, write func(context.Context) error) error {
	start := c.now()
	if _, ok := c.store.Get(id); !ok {
		c.record(op, start, metrics.ResultNotFound)
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	release, err := c.acquire(ctx, id)
	if err != nil {
		c.record(op, start, metrics.ResultCancelled)
		return err
	}
	defer release()

	// The game may have left the live set while this call waited its turn.
	var missing, noop bool
	requested, _ := c.store.Mutate(id, func(cur domaingames.Game, ok bool) (domaingames.Game, store.Action) {
		if !ok {
			missing = true
			return cur, store.ActionNone
		}
		next := compute(cur)
		if next == cur {
			noop = true
			return cur, store.ActionNone
		}
		c.mu.Lock()
		c.pending[id] = PendingMutation{GameID: id, Op: op, Previous: cur, Requested: next}
		c.mu.Unlock()
		return next, store.ActionUpsert
	})
	if missing {
		c.record(op, start, metrics.ResultNotFound)
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	writeErr := write(ctx)

	if c.isClosed() {
		c.record(op, start, metrics.ResultCancelled)
		if writeErr != nil {
			return ErrClosed
		}
		return nil
	}

	if writeErr == nil {
		result := metrics.ResultOK
		if noop {
			result = metrics.ResultNoop
		} else {
			c.clearPending(id)
		}
		c.record(op, start, result)
		logging.Debug(c.logger, "score write confirmed",
			logging.FieldGameID, id,
			logging.FieldOp, string(op),
			logging.FieldScore, requested.Score.String(),
		)
		return nil
	}

	// A write that changed nothing locally has nothing to roll back.
	restored := requested
	if !noop {
		restored = c.rollback(id)
		c.metrics.RecordRollback(string(op))
	}
	c.record(op, start, metrics.ResultError)
	logging.Warn(c.logger, "score write failed",
		logging.FieldGameID, id,
		logging.FieldOp, string(op),
		logging.FieldError, writeErr,
	)
	if !c.isClosed() {
		c.sink.Notify(notify.Notification{
			Kind:   notify.KindUpdateFailed,
			GameID: id,
			Op:     string(op),
			Detail: writeErr.Error(),
			Game:   restored,
		})
	}
	return &WriteFailedError{GameID: id, Op: op, Err: writeErr}
}

// rollback restores the (possibly rebased) previous snapshot. A game the
// reconciler removed in the meantime stays removed.
func (c *Coordinator) rollback(id string) domaingames.Game {
	restored, _ := c.store.Mutate(id, func(cur domaingames.Game, ok bool) (domaingames.Game, store.Action) {
		c.mu.Lock()
		p, has := c.pending[id]
		delete(c.pending, id)
		closed := c.closed
		c.mu.Unlock()
		if !ok || !has || closed {
			return cur, store.ActionNone
		}
		return p.Previous, store.ActionUpsert
	})
	restored.ID = id
	return restored
}

func (c *Coordinator) clearPending(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Coordinator) acquire(ctx context.Context, id string) (func(), error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := c.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		c.slots[id] = s
	}
	s.refs++
	c.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		c.unref(id, s)
		return nil, ctx.Err()
	case <-c.done:
		c.unref(id, s)
		return nil, ErrClosed
	}

	if c.isClosed() {
		<-s.ch
		c.unref(id, s)
		return nil, ErrClosed
	}
	return func() {
		<-s.ch
		c.unref(id, s)
	}, nil
}

func (c *Coordinator) unref(id string, s *slot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.refs--
	if s.refs == 0 && c.slots[id] == s {
		delete(c.slots, id)
	}
}

func (c *Coordinator) record(op Op, start time.Time, result string) {
	c.metrics.RecordMutation(string(op), c.now().Sub(start), result)
}

func validTeam(team domaingames.Team) error {
	if team != domaingames.TeamHome && team != domaingames.TeamAway {
		return fmt.Errorf("%w: %q", ErrInvalidTeam, team)
	}
	return nil
}
