package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/metrics"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/notify"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/store"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/teststubs"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/testutil"
)

type fixture struct {
	store *store.LiveStore
	repo  *teststubs.StubRepository
	sink  *notify.Recorder
	rec   *metrics.Recorder
	c     *Coordinator
}

func newFixture(t *testing.T, games ...domaingames.Game) *fixture {
	t.Helper()
	s := store.NewLiveStore()
	for _, g := range games {
		s.Upsert(g)
	}
	repo := &teststubs.StubRepository{Started: make(chan teststubs.WriteCall, 8)}
	sink := &notify.Recorder{}
	rec := metrics.NewRecorder()
	return &fixture{store: s, repo: repo, sink: sink, rec: rec, c: New(s, repo, sink, nil, rec)}
}

func (f *fixture) score(t *testing.T, id string) domaingames.Score {
	t.Helper()
	g, ok := f.store.Get(id)
	if !ok {
		t.Fatalf("expected %s in store", id)
	}
	return g.Score
}

func waitStarted(t *testing.T, repo *teststubs.StubRepository) teststubs.WriteCall {
	t.Helper()
	select {
	case call := <-repo.Started:
		return call
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for repository write")
	}
	return teststubs.WriteCall{}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mutation result")
	}
	return nil
}

func TestIncrementConfirmed(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))

	if err := f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 3, Away: 1}) {
		t.Fatalf("expected 3-1, got %s", got)
	}
	if _, ok := f.c.Pending("G1"); ok {
		t.Fatal("expected pending mutation cleared")
	}
	if n := len(f.sink.All()); n != 0 {
		t.Fatalf("expected no notifications, got %d", n)
	}
	calls := f.repo.Calls()
	if len(calls) != 1 || calls[0].Op != "increment" || calls[0].Team != domaingames.TeamHome {
		t.Fatalf("unexpected repository calls %+v", calls)
	}
	if snap := f.rec.Snapshot(string(OpIncrement)); snap.Calls != 1 || snap.Errors != 0 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}

func TestOptimisticValueVisibleBeforeConfirmation(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))
	gate := teststubs.NewGate()
	f.repo.OnWrite = gate.Wait

	done := make(chan error, 1)
	go func() { done <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	waitStarted(t, f.repo)

	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 3, Away: 1}) {
		t.Fatalf("expected optimistic 3-1, got %s", got)
	}
	p, ok := f.c.Pending("G1")
	if !ok || p.Previous.Score != (domaingames.Score{Home: 2, Away: 1}) || p.Requested.Score != (domaingames.Score{Home: 3, Away: 1}) || p.Op != OpIncrement {
		t.Fatalf("unexpected pending mutation %+v ok=%v", p, ok)
	}
	g, _ := f.store.Get("G1")
	if !g.LastReconciledAt.IsZero() {
		t.Fatal("optimistic update must not touch reconciliation time")
	}

	gate.Release(nil)
	if err := waitErr(t, done); err != nil {
		t.Fatalf("increment: %v", err)
	}
}

func TestFailedWriteRollsBack(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))
	writeErr := errors.New("permission denied")
	f.repo.WriteErr = writeErr

	var mu sync.Mutex
	var seen []domaingames.Score
	f.store.Subscribe(func(e store.Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Game.Score)
	})

	err := f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome)
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected cause preserved, got %v", err)
	}
	wf, ok := AsWriteFailed(err)
	if !ok || wf.GameID != "G1" || wf.Op != OpIncrement {
		t.Fatalf("unexpected write failed error %+v", wf)
	}

	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 2, Away: 1}) {
		t.Fatalf("expected rollback to 2-1, got %s", got)
	}
	mu.Lock()
	want := []domaingames.Score{{Home: 3, Away: 1}, {Home: 2, Away: 1}}
	if len(seen) != 2 || seen[0] != want[0] || seen[1] != want[1] {
		t.Fatalf("expected transitions %v, got %v", want, seen)
	}
	mu.Unlock()

	if n := f.sink.Count(notify.KindUpdateFailed); n != 1 {
		t.Fatalf("expected one update_failed notification, got %d", n)
	}
	n := f.sink.All()[0]
	if n.GameID != "G1" || n.Op != string(OpIncrement) || n.Game.Score != (domaingames.Score{Home: 2, Away: 1}) {
		t.Fatalf("unexpected notification %+v", n)
	}
	if _, ok := f.c.Pending("G1"); ok {
		t.Fatal("expected pending mutation cleared")
	}
	if snap := f.rec.Snapshot(string(OpIncrement)); snap.Errors != 1 || snap.Rollbacks != 1 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}

func TestUnknownGameIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)

	ops := []error{
		f.c.SetScore(context.Background(), "nope", 1, 1),
		f.c.IncrementScore(context.Background(), "nope", domaingames.TeamHome),
		f.c.DecrementScore(context.Background(), "nope", domaingames.TeamAway),
	}
	for i, err := range ops {
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("op %d: expected ErrNotFound, got %v", i, err)
		}
	}
	if len(f.repo.Calls()) != 0 {
		t.Fatal("expected no repository calls")
	}
	if len(f.sink.All()) != 0 {
		t.Fatal("expected no notifications")
	}
	if f.store.Len() != 0 {
		t.Fatal("expected store untouched")
	}
}

func TestInvalidInputRejected(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 0, 0))

	if err := f.c.SetScore(context.Background(), "G1", -1, 2); !errors.Is(err, ErrInvalidScore) {
		t.Fatalf("expected ErrInvalidScore, got %v", err)
	}
	if err := f.c.IncrementScore(context.Background(), "G1", domaingames.Team("visitors")); !errors.Is(err, ErrInvalidTeam) {
		t.Fatalf("expected ErrInvalidTeam, got %v", err)
	}
	if err := f.c.DecrementScore(context.Background(), "G1", ""); !errors.Is(err, ErrInvalidTeam) {
		t.Fatalf("expected ErrInvalidTeam, got %v", err)
	}
	if len(f.repo.Calls()) != 0 {
		t.Fatal("expected no repository calls")
	}
}

func TestSetScore(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))

	if err := f.c.SetScore(context.Background(), "G1", 7, 4); err != nil {
		t.Fatalf("set score: %v", err)
	}
	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 7, Away: 4}) {
		t.Fatalf("expected 7-4, got %s", got)
	}
	calls := f.repo.Calls()
	if len(calls) != 1 || calls[0].Op != "set" || calls[0].Home != 7 || calls[0].Away != 4 {
		t.Fatalf("unexpected repository calls %+v", calls)
	}

	// Setting the same score again changes nothing and sends nothing.
	if err := f.c.SetScore(context.Background(), "G1", 7, 4); err != nil {
		t.Fatalf("repeat set score: %v", err)
	}
	if len(f.repo.Calls()) != 1 {
		t.Fatal("expected unchanged set to skip the repository")
	}
}

func TestDecrementFloorsAtZero(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 1, 0))

	for i := 0; i < 3; i++ {
		if err := f.c.DecrementScore(context.Background(), "G1", domaingames.TeamHome); err != nil {
			t.Fatalf("decrement %d: %v", i, err)
		}
		if got := f.score(t, "G1"); got.Home < 0 {
			t.Fatalf("score went negative: %s", got)
		}
	}
	if got := f.score(t, "G1"); got.Home != 0 {
		t.Fatalf("expected home floored at 0, got %d", got.Home)
	}
	if n := len(f.repo.Calls()); n != 3 {
		t.Fatalf("expected every decrement to reach the repository, got %d", n)
	}
	if _, ok := f.c.Pending("G1"); ok {
		t.Fatal("expected no pending mutation left behind")
	}
}

func TestUnchangedLocalScoreStillWrites(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 0, 2))
	gate := teststubs.NewGate()
	f.repo.OnWrite = gate.Wait

	done := make(chan error, 1)
	go func() { done <- f.c.DecrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	call := waitStarted(t, f.repo)
	if call.Op != "decrement" || call.Team != domaingames.TeamHome {
		t.Fatalf("unexpected write %+v", call)
	}
	if _, ok := f.c.Pending("G1"); ok {
		t.Fatal("expected no optimistic overlay for an unchanged score")
	}
	gate.Release(errors.New("db down"))

	err := <-done
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected write failure surfaced, got %v", err)
	}
	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 0, Away: 2}) {
		t.Fatalf("expected score untouched, got %s", got)
	}
	if n := f.sink.Count(notify.KindUpdateFailed); n != 1 {
		t.Fatalf("expected one failure notification, got %d", n)
	}

	f.repo.OnWrite = nil
	if err := f.c.SetScore(context.Background(), "G1", 0, 2); err != nil {
		t.Fatalf("set to current score: %v", err)
	}
	calls := f.repo.Calls()
	if last := calls[len(calls)-1]; last.Op != "set" || last.Home != 0 || last.Away != 2 {
		t.Fatalf("expected set written through, got %+v", last)
	}
}

func TestMutationsOnOneGameAreSerialized(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))
	gate := teststubs.NewGate()
	f.repo.OnWrite = gate.Wait

	first := make(chan error, 1)
	go func() { first <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	waitStarted(t, f.repo)

	second := make(chan error, 1)
	go func() { second <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()

	time.Sleep(20 * time.Millisecond)
	if n := len(f.repo.Calls()); n != 1 {
		t.Fatalf("expected second mutation queued, got %d calls", n)
	}
	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 3, Away: 1}) {
		t.Fatalf("expected only first optimistic value, got %s", got)
	}

	gate.Release(nil)
	if err := waitErr(t, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	waitStarted(t, f.repo)
	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 4, Away: 1}) {
		t.Fatalf("expected second optimistic value 4-1, got %s", got)
	}
	p, _ := f.c.Pending("G1")
	if p.Previous.Score != (domaingames.Score{Home: 3, Away: 1}) {
		t.Fatalf("expected second rollback target to reflect first outcome, got %s", p.Previous.Score)
	}

	gate.Release(errors.New("conflict"))
	if err := waitErr(t, second); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected second to fail, got %v", err)
	}
	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 3, Away: 1}) {
		t.Fatalf("expected rollback to 3-1, got %s", got)
	}
}

func TestSecondMutationSeesFirstRollback(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))
	gate := teststubs.NewGate()
	f.repo.OnWrite = gate.Wait

	first := make(chan error, 1)
	go func() { first <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	waitStarted(t, f.repo)
	second := make(chan error, 1)
	go func() { second <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamAway) }()
	time.Sleep(20 * time.Millisecond)

	gate.Release(errors.New("offline"))
	if err := waitErr(t, first); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected first to fail, got %v", err)
	}
	waitStarted(t, f.repo)
	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 2, Away: 2}) {
		t.Fatalf("expected second to build on rolled back 2-1, got %s", got)
	}
	gate.Release(nil)
	if err := waitErr(t, second); err != nil {
		t.Fatalf("second: %v", err)
	}
}

func TestDifferentGamesProceedIndependently(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 0, 0), testutil.LiveGame("G2", 0, 0))
	gate := teststubs.NewGate()
	f.repo.OnWrite = func(ctx context.Context, call teststubs.WriteCall) error {
		if call.GameID == "G1" {
			return gate.Wait(ctx, call)
		}
		return nil
	}

	blocked := make(chan error, 1)
	go func() { blocked <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	waitStarted(t, f.repo)

	if err := f.c.IncrementScore(context.Background(), "G2", domaingames.TeamHome); err != nil {
		t.Fatalf("G2 increment: %v", err)
	}
	if got := f.score(t, "G2"); got.Home != 1 {
		t.Fatalf("expected G2 updated while G1 in flight, got %s", got)
	}

	gate.Release(nil)
	if err := waitErr(t, blocked); err != nil {
		t.Fatalf("G1 increment: %v", err)
	}
}

func TestRollbackRestoresRebasedSnapshot(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))
	gate := teststubs.NewGate()
	f.repo.OnWrite = gate.Wait

	done := make(chan error, 1)
	go func() { done <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	waitStarted(t, f.repo)

	// Another client's away point is confirmed while the write is in flight.
	away := 5
	patch := domaingames.Patch{ID: "G1", AwayScore: &away, Version: 2}
	f.store.Mutate("G1", func(cur domaingames.Game, ok bool) (domaingames.Game, store.Action) {
		f.c.Rebase("G1", patch.Apply)
		return patch.Apply(cur), store.ActionUpsert
	})
	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 3, Away: 5}) {
		t.Fatalf("expected merged overlay 3-5, got %s", got)
	}

	gate.Release(errors.New("rejected"))
	if err := waitErr(t, done); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected failure, got %v", err)
	}
	g, _ := f.store.Get("G1")
	if g.Score != (domaingames.Score{Home: 2, Away: 5}) || g.Version != 2 {
		t.Fatalf("expected confirmed 2-5 at version 2, got %s v%d", g.Score, g.Version)
	}
}

func TestRollbackLeavesRemovedGameRemoved(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))
	gate := teststubs.NewGate()
	f.repo.OnWrite = gate.Wait

	done := make(chan error, 1)
	go func() { done <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	waitStarted(t, f.repo)

	f.store.Remove("G1")
	gate.Release(errors.New("rejected"))
	if err := waitErr(t, done); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected failure, got %v", err)
	}
	if _, ok := f.store.Get("G1"); ok {
		t.Fatal("expected removed game to stay removed")
	}
	if f.sink.Count(notify.KindUpdateFailed) != 1 {
		t.Fatal("expected failure still notified")
	}
}

func TestGameLeavingWhileQueuedIsNotFound(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))
	gate := teststubs.NewGate()
	f.repo.OnWrite = gate.Wait

	first := make(chan error, 1)
	go func() { first <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	waitStarted(t, f.repo)
	second := make(chan error, 1)
	go func() { second <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	time.Sleep(20 * time.Millisecond)

	f.store.Remove("G1")
	gate.Release(nil)
	if err := waitErr(t, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := waitErr(t, second); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected queued mutation to find game gone, got %v", err)
	}
	if n := len(f.repo.Calls()); n != 1 {
		t.Fatalf("expected one repository call, got %d", n)
	}
}

func TestWaitingMutationHonoursContext(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 0, 0))
	gate := teststubs.NewGate()
	f.repo.OnWrite = gate.Wait

	first := make(chan error, 1)
	go func() { first <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	waitStarted(t, f.repo)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := f.c.IncrementScore(ctx, "G1", domaingames.TeamAway); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	gate.Release(nil)
	if err := waitErr(t, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	f.c.mu.Lock()
	slots := len(f.c.slots)
	f.c.mu.Unlock()
	if slots != 0 {
		t.Fatalf("expected idle slots released, got %d", slots)
	}
}

func TestCloseIgnoresInFlightResults(t *testing.T) {
	f := newFixture(t, testutil.LiveGame("G1", 2, 1))
	gate := teststubs.NewGate()
	f.repo.OnWrite = gate.Wait

	first := make(chan error, 1)
	go func() { first <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome) }()
	waitStarted(t, f.repo)
	queued := make(chan error, 1)
	go func() { queued <- f.c.IncrementScore(context.Background(), "G1", domaingames.TeamAway) }()
	time.Sleep(20 * time.Millisecond)

	f.c.Close()
	f.c.Close()
	if err := waitErr(t, queued); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected queued caller to get ErrClosed, got %v", err)
	}

	gate.Release(errors.New("late failure"))
	if err := waitErr(t, first); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for ignored failure, got %v", err)
	}
	if got := f.score(t, "G1"); got != (domaingames.Score{Home: 3, Away: 1}) {
		t.Fatalf("expected no rollback after close, got %s", got)
	}
	if len(f.sink.All()) != 0 {
		t.Fatal("expected no notifications after close")
	}
	if err := f.c.IncrementScore(context.Background(), "G1", domaingames.TeamHome); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func BenchmarkIncrementScore(b *testing.B) {
	s := store.NewLiveStore()
	s.Upsert(testutil.LiveGame("G1", 0, 0))
	c := New(s, &teststubs.StubRepository{}, nil, nil, nil)
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = c.IncrementScore(ctx, "G1", domaingames.TeamHome)
	}
}
