package teststubs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/changefeed"
	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
)

// WriteCall records one repository write.
type WriteCall struct {
	Op     string
	GameID string
	Home   int
	Away   int
	Team   domaingames.Team
	Status domaingames.GameStatus
}

// StubRepository is a test double for repository.Repository.
type StubRepository struct {
	mu sync.Mutex

	Games    []domaingames.Game
	ListErr  error
	ListErrs []error // consumed before ListErr, one per call
	WriteErr error
	// OnWrite, when set, runs after the call is recorded and its error is returned.
	OnWrite func(ctx context.Context, call WriteCall) error
	// Started receives each call as it begins, when non-nil. Sends never block.
	Started chan WriteCall

	ListCalls  atomic.Int32
	CloseCalls atomic.Int32
	calls      []WriteCall
}

// SetGames replaces the live list returned by ListLive.
func (s *StubRepository) SetGames(games []domaingames.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Games = games
}

// ListLive returns the configured games and errors while tracking calls.
func (s *StubRepository) ListLive(ctx context.Context) ([]domaingames.Game, error) {
	_ = ctx
	s.ListCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ListErrs) > 0 {
		err := s.ListErrs[0]
		s.ListErrs = s.ListErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]domaingames.Game, len(s.Games))
	copy(out, s.Games)
	return out, nil
}

func (s *StubRepository) SetScore(ctx context.Context, id string, home, away int) error {
	return s.write(ctx, WriteCall{Op: "set", GameID: id, Home: home, Away: away})
}

func (s *StubRepository) IncrementScore(ctx context.Context, id string, team domaingames.Team) error {
	return s.write(ctx, WriteCall{Op: "increment", GameID: id, Team: team})
}

func (s *StubRepository) DecrementScore(ctx context.Context, id string, team domaingames.Team) error {
	return s.write(ctx, WriteCall{Op: "decrement", GameID: id, Team: team})
}

func (s *StubRepository) SetStatus(ctx context.Context, id string, status domaingames.GameStatus) error {
	return s.write(ctx, WriteCall{Op: "status", GameID: id, Status: status})
}

func (s *StubRepository) Close() error {
	s.CloseCalls.Add(1)
	return nil
}

// Calls returns a copy of the recorded writes.
func (s *StubRepository) Calls() []WriteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WriteCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *StubRepository) write(ctx context.Context, call WriteCall) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	hook := s.OnWrite
	err := s.WriteErr
	s.mu.Unlock()

	if s.Started != nil {
		select {
		case s.Started <- call:
		default:
		}
	}
	if hook != nil {
		return hook(ctx, call)
	}
	return err
}

// Gate blocks OnWrite hooks until released, one write per Release.
type Gate struct {
	ch chan error
}

func NewGate() *Gate {
	return &Gate{ch: make(chan error)}
}

// Wait blocks until Release is called or ctx ends.
func (g *Gate) Wait(ctx context.Context, _ WriteCall) error {
	select {
	case err := <-g.ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release lets one waiting write finish with err.
func (g *Gate) Release(err error) {
	g.ch <- err
}

// StubFeed is a test double for changefeed.Feed.
type StubFeed struct {
	mu            sync.Mutex
	SubscribeErrs []error // consumed one per call
	subs          []*StubSubscription
	// Subscribed receives every subscription opened, when non-nil.
	Subscribed chan *StubSubscription
	// CloseBlock, when non-nil, holds every subscription's Close until it is closed.
	CloseBlock chan struct{}
}

// Subscribe opens a stub subscription or returns the next queued error.
func (f *StubFeed) Subscribe(ctx context.Context, filter changefeed.Filter) (changefeed.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if len(f.SubscribeErrs) > 0 {
		err := f.SubscribeErrs[0]
		f.SubscribeErrs = f.SubscribeErrs[1:]
		if err != nil {
			f.mu.Unlock()
			return nil, err
		}
	}
	sub := NewStubSubscription(filter)
	sub.block = f.CloseBlock
	f.subs = append(f.subs, sub)
	notify := f.Subscribed
	f.mu.Unlock()

	if notify != nil {
		notify <- sub
	}
	return sub, nil
}

// Subscriptions returns every subscription opened so far.
func (f *StubFeed) Subscriptions() []*StubSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*StubSubscription, len(f.subs))
	copy(out, f.subs)
	return out
}

// StubSubscription is driven by tests through Send, Signal and End.
type StubSubscription struct {
	Filter changefeed.Filter

	events chan domaingames.Change
	status chan changefeed.Status
	done   chan struct{}
	once   sync.Once
	ended  sync.Once
	closes atomic.Int32
	block  chan struct{}
}

func NewStubSubscription(filter changefeed.Filter) *StubSubscription {
	return &StubSubscription{
		Filter: filter,
		events: make(chan domaingames.Change),
		status: make(chan changefeed.Status),
		done:   make(chan struct{}),
	}
}

var errSubscriptionClosed = errors.New("stub subscription closed")

func (s *StubSubscription) Events() <-chan domaingames.Change { return s.events }
func (s *StubSubscription) Status() <-chan changefeed.Status  { return s.status }

// Close marks the subscription closed. Channels stay open so pending test sends fail cleanly.
// Done fires before Close waits on the feed's CloseBlock.
func (s *StubSubscription) Close() error {
	s.closes.Add(1)
	s.once.Do(func() { close(s.done) })
	if s.block != nil {
		<-s.block
	}
	return nil
}

// Closed reports whether Close was called.
func (s *StubSubscription) Closed() bool {
	return s.closes.Load() > 0
}

// Done is closed once the subscriber calls Close.
func (s *StubSubscription) Done() <-chan struct{} { return s.done }

// Send delivers a change and waits until the consumer receives it.
func (s *StubSubscription) Send(c domaingames.Change) error {
	select {
	case s.events <- c:
		return nil
	case <-s.done:
		return errSubscriptionClosed
	}
}

// Signal delivers a lifecycle signal and waits until the consumer receives it.
func (s *StubSubscription) Signal(st changefeed.Status) error {
	select {
	case s.status <- st:
		return nil
	case <-s.done:
		return errSubscriptionClosed
	}
}

// End closes the event stream as if the connection dropped.
func (s *StubSubscription) End() {
	s.ended.Do(func() { close(s.events) })
}
