package changefeed

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
)

const (
	defaultBrokerBuffer = 256
	statusBuffer        = 8
)

// Broker is an in-process Feed. Writers call Publish after committing; each
// subscriber gets its own buffered queue. A subscriber that falls behind is
// sent StatusError so it resubscribes and resyncs instead of silently missing data.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]*brokerSub
	nextID int
	buffer int
	closed bool
	logger *slog.Logger
}

// NewBroker builds a broker with the given per-subscriber buffer. Non-positive uses a default.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBrokerBuffer
	}
	return &Broker{
		subs:   make(map[int]*brokerSub),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber. StatusSubscribed is queued immediately.
func (b *Broker) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &brokerSub{
		id:     b.nextID,
		broker: b,
		filter: filter,
		events: make(chan domaingames.Change, b.buffer),
		status: make(chan Status, statusBuffer),
	}
	b.nextID++
	b.subs[sub.id] = sub
	sub.status <- StatusSubscribed
	return sub, nil
}

// Publish delivers the change to every matching subscriber without blocking.
func (b *Broker) Publish(c domaingames.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.sortedIDs() {
		sub := b.subs[id]
		if sub.broken || !sub.filter.Matches(c) {
			continue
		}
		select {
		case sub.events <- c:
		default:
			sub.broken = true
			sub.sendStatus(StatusError)
			logging.Warn(b.logger, "changefeed subscriber overflowed",
				logging.FieldGameID, c.Patch.ID,
				logging.FieldChangeType, string(c.Type),
			)
		}
	}
}

// Inject sends a lifecycle signal to every subscriber. Used to simulate
// outages locally and in tests.
func (b *Broker) Inject(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.sortedIDs() {
		b.subs[id].sendStatus(s)
	}
}

// Subscribers reports the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription and rejects new ones.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.closeChannels()
		delete(b.subs, id)
	}
	return nil
}

func (b *Broker) sortedIDs() []int {
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type brokerSub struct {
	id     int
	broker *Broker
	filter Filter
	events chan domaingames.Change
	status chan Status
	broken bool
	done   bool
}

func (s *brokerSub) Events() <-chan domaingames.Change { return s.events }
func (s *brokerSub) Status() <-chan Status             { return s.status }

func (s *brokerSub) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if s.done {
		return nil
	}
	delete(s.broker.subs, s.id)
	s.closeChannels()
	return nil
}

// sendStatus and closeChannels run with the broker lock held.
func (s *brokerSub) sendStatus(st Status) {
	select {
	case s.status <- st:
	default:
	}
}

func (s *brokerSub) closeChannels() {
	if s.done {
		return
	}
	s.done = true
	close(s.events)
	close(s.status)
}
