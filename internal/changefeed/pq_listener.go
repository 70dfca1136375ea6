package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
)

// listener is the subset of *pq.Listener used by the feed.
type listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

type listenerFactory func(dsn string, minReconnect, maxReconnect time.Duration, cb pq.EventCallbackType) listener

func newPQListener(dsn string, minReconnect, maxReconnect time.Duration, cb pq.EventCallbackType) listener {
	return pq.NewListener(dsn, minReconnect, maxReconnect, cb)
}

// PQOptions tunes the LISTEN connection.
type PQOptions struct {
	MinReconnect time.Duration
	MaxReconnect time.Duration
	PingInterval time.Duration
	Logger       *slog.Logger
}

// PQFeed subscribes to row changes via PostgreSQL LISTEN/NOTIFY.
type PQFeed struct {
	dsn         string
	opts        PQOptions
	newListener listenerFactory
}

// NewPQFeed builds a feed for the given connection string.
func NewPQFeed(dsn string, opts PQOptions) *PQFeed {
	if opts.MinReconnect <= 0 {
		opts.MinReconnect = 500 * time.Millisecond
	}
	if opts.MaxReconnect < opts.MinReconnect {
		opts.MaxReconnect = opts.MinReconnect
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 90 * time.Second
	}
	return &PQFeed{dsn: dsn, opts: opts, newListener: newPQListener}
}

// Subscribe opens a dedicated listener connection and LISTENs on Channel.
// It blocks until the first connection succeeds or ctx ends.
func (f *PQFeed) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	sub := &pqSubscription{
		filter: filter,
		events: make(chan domaingames.Change, defaultBrokerBuffer),
		status: make(chan Status, statusBuffer),
		done:   make(chan struct{}),
		ping:   f.opts.PingInterval,
		logger: f.opts.Logger,
	}
	sub.listener = f.newListener(f.dsn, f.opts.MinReconnect, f.opts.MaxReconnect, sub.onEvent)

	listenErr := make(chan error, 1)
	go func() { listenErr <- sub.listener.Listen(Channel) }()

	select {
	case err := <-listenErr:
		if err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("listen %s: %w", Channel, err)
		}
	case <-ctx.Done():
		_ = sub.Close()
		return nil, ctx.Err()
	}

	sub.wg.Add(1)
	go sub.run()
	return sub, nil
}

type pqSubscription struct {
	filter   Filter
	listener listener
	events   chan domaingames.Change
	status   chan Status
	done     chan struct{}
	ping     time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (s *pqSubscription) Events() <-chan domaingames.Change { return s.events }
func (s *pqSubscription) Status() <-chan Status             { return s.status }

func (s *pqSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()

	s.mu.Lock()
	close(s.status)
	s.mu.Unlock()
	return err
}

// onEvent maps listener connection events onto subscription signals.
func (s *pqSubscription) onEvent(ev pq.ListenerEventType, err error) {
	var st Status
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		st = StatusSubscribed
	case pq.ListenerEventDisconnected:
		st = StatusError
	case pq.ListenerEventConnectionAttemptFailed:
		st = StatusTimedOut
	default:
		return
	}
	if err != nil {
		logging.Warn(s.logger, "listener connection event", logging.FieldState, string(st), logging.FieldError, err)
	}
	s.signal(st)
}

func (s *pqSubscription) signal(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.status <- st:
	default:
	}
}

func (s *pqSubscription) run() {
	defer s.wg.Done()
	defer close(s.events)

	ticker := time.NewTicker(s.ping)
	defer ticker.Stop()
	notifications := s.listener.NotificationChannel()

	for {
		select {
		case <-s.done:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			// A nil notification follows a reconnect; the Reconnected event already signalled it.
			if n == nil {
				continue
			}
			ticker.Reset(s.ping)
			s.deliver(n.Extra)
		case <-ticker.C:
			if err := s.listener.Ping(); err != nil {
				logging.Warn(s.logger, "listener ping failed", logging.FieldError, err)
				s.signal(StatusTimedOut)
			}
		}
	}
}

func (s *pqSubscription) deliver(payload string) {
	change, err := DecodePayload(payload)
	if err != nil {
		logging.Warn(s.logger, "dropping malformed change payload", logging.FieldError, err)
		return
	}
	if !s.filter.Matches(change) {
		return
	}
	select {
	case s.events <- change:
	case <-s.done:
	}
}
