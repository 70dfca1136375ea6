// Package liveview ties the store, mutation coordinator and reconciler into
// one handle with an explicit lifecycle.
package liveview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/changefeed"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/coordinator"
	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/metrics"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/notify"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/reconciler"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/store"
)

// Phase is the lifecycle position of a View.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseSeeding       Phase = "seeding"
	PhaseSubscribed    Phase = "subscribed"
	PhaseTornDown      Phase = "torn-down"
)

var (
	ErrAlreadyStarted = errors.New("live view already started")
	ErrTornDown       = errors.New("live view torn down")
)

// Repository is what a view reads from and writes through.
type Repository interface {
	reconciler.Lister
	coordinator.Writer
}

// Options configures a View. Zero values use the reconciler's defaults.
type Options struct {
	Filter            changefeed.Filter
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	SeedAttempts      int
	ResyncOnReconnect bool
	Sink              notify.Sink
	Logger            *slog.Logger
	Metrics           *metrics.Recorder
	Now               func() time.Time
}

// View is one live view: a store kept aligned with the repository, plus the
// operations that mutate it.
type View struct {
	store  *store.LiveStore
	coord  *coordinator.Coordinator
	conn   *reconciler.ConnectionTracker
	rec    *reconciler.Reconciler
	logger *slog.Logger
	scope  string

	mu         sync.Mutex
	phase      Phase
	seedCancel context.CancelFunc
}

func New(repo Repository, feed changefeed.Feed, opts Options) *View {
	s := store.NewLiveStore()
	conn := reconciler.NewConnectionTracker(opts.Metrics)
	coord := coordinator.New(s, repo, opts.Sink, opts.Logger, opts.Metrics)
	rec := reconciler.New(repo, feed, s, conn, reconciler.Options{
		Filter:            opts.Filter,
		ReconnectInitial:  opts.ReconnectInitial,
		ReconnectMax:      opts.ReconnectMax,
		SeedAttempts:      opts.SeedAttempts,
		ResyncOnReconnect: opts.ResyncOnReconnect,
		Pending:           coord,
		Sink:              opts.Sink,
		Logger:            opts.Logger,
		Metrics:           opts.Metrics,
		Now:               opts.Now,
	})
	return &View{
		store:  s,
		coord:  coord,
		conn:   conn,
		rec:    rec,
		logger: opts.Logger,
		scope:  opts.Filter.GameID,
		phase:  PhaseUninitialized,
	}
}

// Start seeds the view and opens its subscription. On a seeding failure the
// view returns to uninitialized and may be started again.
func (v *View) Start(ctx context.Context) error {
	v.mu.Lock()
	switch v.phase {
	case PhaseTornDown:
		v.mu.Unlock()
		return ErrTornDown
	case PhaseSeeding, PhaseSubscribed:
		v.mu.Unlock()
		return ErrAlreadyStarted
	}
	seedCtx, cancel := context.WithCancel(ctx)
	v.phase = PhaseSeeding
	v.seedCancel = cancel
	v.mu.Unlock()
	defer cancel()

	logging.Info(v.logger, "live view starting", logging.FieldGameID, v.scope)
	err := v.rec.Start(seedCtx)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.seedCancel = nil
	if v.phase == PhaseTornDown {
		// Stop ran while seeding; the reconciler loop may have started after it.
		if err == nil {
			v.rec.Stop()
		}
		v.store.Clear()
		return ErrTornDown
	}
	if err != nil {
		v.phase = PhaseUninitialized
		return err
	}
	v.phase = PhaseSubscribed
	return nil
}

// Stop tears the view down from any phase: the subscription is closed,
// in-flight write results are ignored and every listener is released.
func (v *View) Stop() {
	v.mu.Lock()
	if v.phase == PhaseTornDown {
		v.mu.Unlock()
		return
	}
	prev := v.phase
	v.phase = PhaseTornDown
	if v.seedCancel != nil {
		v.seedCancel()
	}
	v.mu.Unlock()

	// Close the coordinator first so writes finishing during unsubscribe are ignored.
	v.coord.Close()
	v.rec.Stop()
	v.store.Close()
	v.conn.Close()
	logging.Info(v.logger, "live view stopped", logging.FieldState, string(prev))
}

// Phase reports the lifecycle position.
func (v *View) Phase() Phase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase
}

// Ready is closed once the change channel first confirms the subscription.
func (v *View) Ready() <-chan struct{} { return v.rec.Ready() }

// LiveGames lists the tracked in-progress games ordered by ID.
func (v *View) LiveGames() []domaingames.Game {
	return v.store.List(domaingames.IsLive)
}

func (v *View) Game(id string) (domaingames.Game, bool) {
	return v.store.Get(id)
}

func (v *View) ConnectionState() domaingames.ConnectionState {
	return v.conn.State()
}

// Subscribe registers a store listener. The returned func removes it.
func (v *View) Subscribe(l store.Listener) func() {
	return v.store.Subscribe(l)
}

// SubscribeConnection registers a connection listener. The returned func removes it.
func (v *View) SubscribeConnection(l func(domaingames.ConnectionState)) func() {
	return v.conn.Subscribe(l)
}

// Pending exposes the in-flight mutation for id, if any.
func (v *View) Pending(id string) (coordinator.PendingMutation, bool) {
	return v.coord.Pending(id)
}

func (v *View) SetScore(ctx context.Context, id string, home, away int) error {
	if v.Phase() == PhaseTornDown {
		return coordinator.ErrClosed
	}
	return v.coord.SetScore(ctx, id, home, away)
}

func (v *View) IncrementScore(ctx context.Context, id string, team domaingames.Team) error {
	if v.Phase() == PhaseTornDown {
		return coordinator.ErrClosed
	}
	return v.coord.IncrementScore(ctx, id, team)
}

func (v *View) DecrementScore(ctx context.Context, id string, team domaingames.Team) error {
	if v.Phase() == PhaseTornDown {
		return coordinator.ErrClosed
	}
	return v.coord.DecrementScore(ctx, id, team)
}
