package store

import (
	"sync"
	"testing"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
)

func TestLiveStoreUpsertAndGet(t *testing.T) {
	s := NewLiveStore()

	s.Upsert(domaingames.Game{ID: "1", HomeTeam: "Otters", Status: domaingames.StatusInProgress})
	s.Upsert(domaingames.Game{ID: "2", HomeTeam: "Herons", Status: domaingames.StatusInProgress})

	if got := len(s.List(nil)); got != 2 {
		t.Fatalf("expected 2 games, got %d", got)
	}

	game, ok := s.Get("1")
	if !ok {
		t.Fatalf("expected to find game with id 1")
	}
	if game.HomeTeam != "Otters" {
		t.Fatalf("unexpected home team %s", game.HomeTeam)
	}
}

func TestLiveStoreGetNotFound(t *testing.T) {
	s := NewLiveStore()
	if _, ok := s.Get("missing"); ok {
		t.Fatalf("expected missing id to return false")
	}
}

func TestLiveStoreUpsertReplacesSnapshot(t *testing.T) {
	s := NewLiveStore()
	s.Upsert(domaingames.Game{ID: "g", Score: domaingames.Score{Home: 1}})
	s.Upsert(domaingames.Game{ID: "g", Score: domaingames.Score{Home: 2}})

	if s.Len() != 1 {
		t.Fatalf("expected one snapshot per id, got %d", s.Len())
	}
	g, _ := s.Get("g")
	if g.Score.Home != 2 {
		t.Fatalf("expected last writer to win, got %d", g.Score.Home)
	}
}

func TestLiveStoreListFiltersAndSorts(t *testing.T) {
	s := NewLiveStore()
	s.Upsert(domaingames.Game{ID: "c", Status: domaingames.StatusInProgress})
	s.Upsert(domaingames.Game{ID: "a", Status: domaingames.StatusInProgress})
	s.Upsert(domaingames.Game{ID: "b", Status: domaingames.StatusCompleted})

	live := s.List(domaingames.IsLive)
	if len(live) != 2 {
		t.Fatalf("expected 2 live games, got %d", len(live))
	}
	if live[0].ID != "a" || live[1].ID != "c" {
		t.Fatalf("expected sorted ids, got %s,%s", live[0].ID, live[1].ID)
	}
}

func TestLiveStoreListReturnsCopy(t *testing.T) {
	s := NewLiveStore()
	s.Upsert(domaingames.Game{ID: "copy", HomeTeam: "original"})

	list := s.List(nil)
	list[0].HomeTeam = "mutated"

	game, _ := s.Get("copy")
	if game.HomeTeam != "original" {
		t.Fatalf("expected store to remain unchanged, got %s", game.HomeTeam)
	}
}

func TestLiveStoreRemove(t *testing.T) {
	s := NewLiveStore()
	s.Upsert(domaingames.Game{ID: "gone"})

	if !s.Remove("gone") {
		t.Fatal("expected remove to report presence")
	}
	if s.Remove("gone") {
		t.Fatal("expected second remove to report absence")
	}
	if _, ok := s.Get("gone"); ok {
		t.Fatal("expected game removed")
	}
}

func TestLiveStoreMutate(t *testing.T) {
	s := NewLiveStore()
	var events []Event
	s.Subscribe(func(e Event) { events = append(events, e) })

	got, act := s.Mutate("g", func(cur domaingames.Game, ok bool) (domaingames.Game, Action) {
		if ok {
			t.Fatal("expected absent game")
		}
		return domaingames.Game{Score: domaingames.Score{Home: 1}}, ActionUpsert
	})
	if act != ActionUpsert || got.ID != "g" {
		t.Fatalf("expected upsert with id filled, got %v %+v", act, got)
	}

	_, act = s.Mutate("g", func(cur domaingames.Game, ok bool) (domaingames.Game, Action) {
		return domaingames.Game{ID: "g", Score: domaingames.Score{Home: 99}}, ActionNone
	})
	if act != ActionNone {
		t.Fatalf("expected no action, got %v", act)
	}
	if g, _ := s.Get("g"); g.Score.Home != 1 {
		t.Fatalf("expected untouched snapshot, got %d", g.Score.Home)
	}

	removed, act := s.Mutate("g", func(cur domaingames.Game, ok bool) (domaingames.Game, Action) {
		return cur, ActionRemove
	})
	if act != ActionRemove || removed.Score.Home != 1 {
		t.Fatalf("expected removal of stored snapshot, got %v %+v", act, removed)
	}
	if _, act = s.Mutate("g", func(cur domaingames.Game, ok bool) (domaingames.Game, Action) {
		return cur, ActionRemove
	}); act != ActionNone {
		t.Fatalf("expected removing absent game to be a no-op, got %v", act)
	}

	if len(events) != 2 || events[0].Type != EventUpserted || events[1].Type != EventRemoved {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestLiveStoreNotifiesListeners(t *testing.T) {
	s := NewLiveStore()
	var events []Event
	unsubscribe := s.Subscribe(func(e Event) { events = append(events, e) })

	s.Upsert(domaingames.Game{ID: "x"})
	s.Remove("x")
	s.Remove("x") // absent, no event
	s.Clear()

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != EventUpserted || events[1].Type != EventRemoved || events[2].Type != EventCleared {
		t.Fatalf("unexpected event order %+v", events)
	}
	if events[1].Game.ID != "x" {
		t.Fatalf("expected removed game carried in event, got %+v", events[1].Game)
	}

	unsubscribe()
	unsubscribe()
	s.Upsert(domaingames.Game{ID: "y"})
	if len(events) != 3 {
		t.Fatalf("expected no events after unsubscribe, got %d", len(events))
	}
}

func TestLiveStoreListenerCanReadStore(t *testing.T) {
	s := NewLiveStore()
	var seen domaingames.Game
	s.Subscribe(func(e Event) {
		seen, _ = s.Get(e.Game.ID)
	})
	s.Upsert(domaingames.Game{ID: "reentrant", HomeTeam: "ok"})
	if seen.HomeTeam != "ok" {
		t.Fatalf("expected listener to observe committed value, got %+v", seen)
	}
}

func TestLiveStoreCloseReleasesListeners(t *testing.T) {
	s := NewLiveStore()
	calls := 0
	s.Subscribe(func(Event) { calls++ })
	s.Upsert(domaingames.Game{ID: "a"})

	s.Close()
	if s.Len() != 0 {
		t.Fatalf("expected store cleared on close")
	}
	before := calls
	s.Upsert(domaingames.Game{ID: "b"})
	if calls != before {
		t.Fatalf("expected listeners released on close")
	}
}

func TestLiveStoreConcurrentAccess(t *testing.T) {
	s := NewLiveStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Upsert(domaingames.Game{ID: "g", Score: domaingames.Score{Home: j}})
				_ = s.List(nil)
				_, _ = s.Get("g")
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 1 {
		t.Fatalf("expected a single snapshot, got %d", s.Len())
	}
}

func BenchmarkLiveStoreUpsert(b *testing.B) {
	s := NewLiveStore()
	s.Subscribe(func(Event) {})
	g := domaingames.Game{ID: "bench", Status: domaingames.StatusInProgress}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		g.Score.Home = i
		s.Upsert(g)
	}
}
