package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/changefeed"
	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/metrics"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/notify"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/store"
)

const (
	defaultReconnectInitial = 500 * time.Millisecond
	defaultReconnectMax     = 30 * time.Second
	defaultSeedAttempts     = 5
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("reconciler already started")

// Lister reads the live set from the repository.
type Lister interface {
	ListLive(ctx context.Context) ([]domaingames.Game, error)
}

// PendingTracker is implemented by the mutation coordinator. Confirmed data
// is folded into in-flight rollback targets, and resync leaves games with an
// in-flight write alone.
type PendingTracker interface {
	HasPending(id string) bool
	Rebase(id string, confirm func(domaingames.Game) domaingames.Game)
}

// Options configures a Reconciler. Zero values use defaults.
type Options struct {
	Filter            changefeed.Filter
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	SeedAttempts      int
	ResyncOnReconnect bool
	Pending           PendingTracker
	Sink              notify.Sink
	Logger            *slog.Logger
	Metrics           *metrics.Recorder
	Now               func() time.Time
}

// Reconciler seeds the store from the repository and keeps it aligned with
// the change channel.
type Reconciler struct {
	repo    Lister
	feed    changefeed.Feed
	store   *store.LiveStore
	conn    *ConnectionTracker
	filter  changefeed.Filter
	pending PendingTracker
	sink    notify.Sink
	logger  *slog.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	reconnectInitial time.Duration
	reconnectMax     time.Duration
	seedAttempts     int
	resync           bool

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	ready     chan struct{}
	readyOnce sync.Once
}

func New(repo Lister, feed changefeed.Feed, s *store.LiveStore, conn *ConnectionTracker, opts Options) *Reconciler {
	r := &Reconciler{
		repo:             repo,
		feed:             feed,
		store:            s,
		conn:             conn,
		filter:           opts.Filter,
		pending:          opts.Pending,
		sink:             opts.Sink,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		now:              opts.Now,
		reconnectInitial: opts.ReconnectInitial,
		reconnectMax:     opts.ReconnectMax,
		seedAttempts:     opts.SeedAttempts,
		resync:           opts.ResyncOnReconnect,
		ready:            make(chan struct{}),
	}
	if r.conn == nil {
		r.conn = NewConnectionTracker(opts.Metrics)
	}
	if r.sink == nil {
		r.sink = notify.Discard
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.reconnectInitial <= 0 {
		r.reconnectInitial = defaultReconnectInitial
	}
	if r.reconnectMax < r.reconnectInitial {
		r.reconnectMax = defaultReconnectMax
		if r.reconnectMax < r.reconnectInitial {
			r.reconnectMax = r.reconnectInitial
		}
	}
	if r.seedAttempts <= 0 {
		r.seedAttempts = defaultSeedAttempts
	}
	return r
}

// Connection exposes the tracker this reconciler drives.
func (r *Reconciler) Connection() *ConnectionTracker { return r.conn }

// Ready is closed the first time the channel confirms a subscription.
func (r *Reconciler) Ready() <-chan struct{} { return r.ready }

// Start seeds the store, then consumes the channel in the background until
// Stop. The subscription loop outlives ctx's cancellation but keeps its values.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	if err := r.seed(ctx); err != nil {
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(loopCtx)
	return nil
}

// Stop ends the subscription loop and waits for it. The subscription is
// closed before Stop returns.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Reconciler) seed(ctx context.Context) error {
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackoff(), uint64(r.seedAttempts-1)), ctx)
	attempt := 0
	games, err := backoff.RetryNotifyWithData(
		func() ([]domaingames.Game, error) {
			attempt++
			return r.repo.ListLive(ctx)
		},
		b,
		func(err error, next time.Duration) {
			logging.Warn(r.logger, "seed read failed, retrying",
				logging.FieldAttempt, attempt,
				logging.FieldError, err,
				"retry_in", next.String(),
			)
		},
	)
	if err != nil {
		logging.Error(r.logger, "seed read failed", err, logging.FieldAttempt, attempt)
		return fmt.Errorf("seed live games: %w", err)
	}

	at := r.now()
	count := 0
	for _, g := range games {
		if !inScope(r.filter, g) {
			continue
		}
		g.LastReconciledAt = at
		r.store.Upsert(g)
		count++
	}
	logging.Info(r.logger, "live games seeded", logging.FieldCount, count)
	return nil
}

func (r *Reconciler) run(ctx context.Context) {
	defer r.wg.Done()

	b := r.newBackoff()
	outage := false
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			r.conn.Set(domaingames.ConnectionReconnecting)
			r.metrics.RecordResubscribe()
		}

		sub, err := r.feed.Subscribe(ctx, r.filter)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warn(r.logger, "channel subscribe failed", logging.FieldAttempt, attempt+1, logging.FieldError, err)
			r.conn.Set(domaingames.ConnectionDisconnected)
			outage = true
		} else {
			outage = r.consume(ctx, sub, b, outage)
		}

		if !r.sleep(ctx, b.NextBackOff()) {
			return
		}
	}
}

// consume drains one subscription until it fails or ctx ends, closing it on
// every path. It returns whether an outage is still unresolved.
func (r *Reconciler) consume(ctx context.Context, sub changefeed.Subscription, b backoff.BackOff, outage bool) bool {
	defer func() {
		if err := sub.Close(); err != nil {
			logging.Warn(r.logger, "channel close failed", logging.FieldError, err)
		}
	}()

	events, statuses := sub.Events(), sub.Status()
	for {
		select {
		case <-ctx.Done():
			return outage
		case c, ok := <-events:
			if !ok {
				logging.Warn(r.logger, "channel stream ended")
				r.conn.Set(domaingames.ConnectionDisconnected)
				return true
			}
			r.Apply(c)
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			logging.Info(r.logger, "channel status", logging.FieldState, string(st))
			switch st {
			case changefeed.StatusSubscribed:
				r.conn.Set(domaingames.ConnectionConnected)
				r.readyOnce.Do(func() { close(r.ready) })
				b.Reset()
				if outage && r.resync {
					r.Resync(ctx)
				}
				outage = false
			case changefeed.StatusTimedOut:
				r.conn.Set(domaingames.ConnectionReconnecting)
				outage = true
			case changefeed.StatusError:
				r.conn.Set(domaingames.ConnectionDisconnected)
				return true
			}
		}
	}
}

// Resync re-reads the live set after an outage. Newer-or-equal rows replace
// tracked snapshots; tracked games missing from the live set are removed
// unless a write for them is in flight.
func (r *Reconciler) Resync(ctx context.Context) {
	games, err := r.repo.ListLive(ctx)
	if err != nil {
		logging.Warn(r.logger, "resync read failed", logging.FieldError, err)
		return
	}

	at := r.now()
	live := make(map[string]struct{}, len(games))
	for _, g := range games {
		if !inScope(r.filter, g) {
			continue
		}
		live[g.ID] = struct{}{}
		// A row no newer than an in-flight write's overlay predates that write.
		if r.pending != nil && r.pending.HasPending(g.ID) {
			if cur, ok := r.store.Get(g.ID); ok && g.Version <= cur.Version {
				continue
			}
		}
		r.merge(g.ID, domaingames.PatchFrom(g), at)
	}

	removed := 0
	for _, g := range r.store.List(nil) {
		if _, ok := live[g.ID]; ok {
			continue
		}
		if r.pending != nil && r.pending.HasPending(g.ID) {
			continue
		}
		if r.store.Remove(g.ID) {
			removed++
		}
	}
	logging.Info(r.logger, "resync complete", logging.FieldCount, len(live), "removed", removed)
}

func (r *Reconciler) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.reconnectInitial
	b.MaxInterval = r.reconnectMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (r *Reconciler) sleep(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
