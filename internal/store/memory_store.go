package store

import (
	"sort"
	"sync"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
)

// EventType describes what happened to a snapshot.
type EventType string

const (
	EventUpserted EventType = "upserted"
	EventRemoved  EventType = "removed"
	EventCleared  EventType = "cleared"
)

// Event is delivered to listeners after the store changes.
type Event struct {
	Type EventType
	Game domaingames.Game
}

// Listener observes store changes. Listeners run on the mutating goroutine, outside the store lock.
type Listener func(Event)

// LiveStore keeps a thread-safe snapshot of tracked games in memory.
type LiveStore struct {
	mu    sync.RWMutex
	games map[string]domaingames.Game

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// NewLiveStore constructs an empty LiveStore.
func NewLiveStore() *LiveStore {
	return &LiveStore{
		games:     make(map[string]domaingames.Game),
		listeners: make(map[int]Listener),
	}
}

// Get retrieves a game by ID.
func (s *LiveStore) Get(id string) (domaingames.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	return g, ok
}

// List returns copies of the games matching pred, ordered by ID. A nil pred matches everything.
func (s *LiveStore) List(pred func(domaingames.Game) bool) []domaingames.Game {
	s.mu.RLock()
	result := make([]domaingames.Game, 0, len(s.games))
	for _, g := range s.games {
		if pred == nil || pred(g) {
			result = append(result, g)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len reports how many games are held.
func (s *LiveStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}

// Upsert replaces the snapshot for game.ID. Ordering is the caller's concern.
func (s *LiveStore) Upsert(game domaingames.Game) {
	s.mu.Lock()
	s.games[game.ID] = game
	s.mu.Unlock()

	s.emit(Event{Type: EventUpserted, Game: game})
}

// Remove drops the snapshot for id and reports whether one was present.
func (s *LiveStore) Remove(id string) bool {
	s.mu.Lock()
	g, ok := s.games[id]
	if ok {
		delete(s.games, id)
	}
	s.mu.Unlock()

	if ok {
		s.emit(Event{Type: EventRemoved, Game: g})
	}
	return ok
}

// Action tells Mutate what to do with the snapshot returned by its callback.
type Action int

const (
	ActionNone Action = iota
	ActionUpsert
	ActionRemove
)

// Mutate reads and replaces the snapshot for id atomically. fn runs under the
// store's write lock and must not call back into the store. It returns the
// resulting snapshot and the action actually taken.
func (s *LiveStore) Mutate(id string, fn func(cur domaingames.Game, ok bool) (domaingames.Game, Action)) (domaingames.Game, Action) {
	s.mu.Lock()
	cur, ok := s.games[id]
	next, act := fn(cur, ok)
	switch act {
	case ActionUpsert:
		next.ID = id
		s.games[id] = next
	case ActionRemove:
		if ok {
			delete(s.games, id)
			next = cur
		} else {
			act = ActionNone
		}
	default:
		act = ActionNone
		next = cur
	}
	s.mu.Unlock()

	switch act {
	case ActionUpsert:
		s.emit(Event{Type: EventUpserted, Game: next})
	case ActionRemove:
		s.emit(Event{Type: EventRemoved, Game: next})
	}
	return next, act
}

// Clear drops every snapshot.
func (s *LiveStore) Clear() {
	s.mu.Lock()
	s.games = make(map[string]domaingames.Game)
	s.mu.Unlock()

	s.emit(Event{Type: EventCleared})
}

// Subscribe registers a listener and returns a function that removes it.
func (s *LiveStore) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// Close clears the store and releases every listener.
func (s *LiveStore) Close() {
	s.Clear()

	s.listenersMu.Lock()
	s.listeners = make(map[int]Listener)
	s.listenersMu.Unlock()
}

func (s *LiveStore) emit(e Event) {
	s.listenersMu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, s.listeners[id])
	}
	s.listenersMu.RUnlock()

	for _, l := range ls {
		l(e)
	}
}
