package reconciler

import (
	"sort"
	"sync"
	"time"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/metrics"
)

// ConnectionTracker holds the connection indicator for one view.
type ConnectionTracker struct {
	mu        sync.Mutex
	state     domaingames.ConnectionState
	listeners map[int]func(domaingames.ConnectionState)
	nextID    int
	metrics   *metrics.Recorder
}

// NewConnectionTracker starts disconnected: nothing has been confirmed yet.
func NewConnectionTracker(recorder *metrics.Recorder) *ConnectionTracker {
	return &ConnectionTracker{
		state:     domaingames.ConnectionState{Status: domaingames.ConnectionDisconnected},
		listeners: make(map[int]func(domaingames.ConnectionState)),
		metrics:   recorder,
	}
}

// State returns the current indicator.
func (t *ConnectionTracker) State() domaingames.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Set moves to status. Listeners hear only actual transitions.
func (t *ConnectionTracker) Set(status domaingames.ConnectionStatus) {
	t.mu.Lock()
	if t.state.Status == status {
		t.mu.Unlock()
		return
	}
	t.state.Status = status
	state := t.state
	ls := t.snapshotListeners()
	t.mu.Unlock()

	t.metrics.RecordConnectionState(string(status))
	for _, l := range ls {
		l(state)
	}
}

// Touch records that confirmed data arrived at at.
func (t *ConnectionTracker) Touch(at time.Time) {
	t.mu.Lock()
	t.state.LastUpdateAt = at
	t.mu.Unlock()
}

// Subscribe registers a listener and returns a function that removes it.
func (t *ConnectionTracker) Subscribe(l func(domaingames.ConnectionState)) func() {
	if l == nil {
		return func() {}
	}
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

// Close releases every listener.
func (t *ConnectionTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = make(map[int]func(domaingames.ConnectionState))
}

// snapshotListeners must be called with t.mu held.
func (t *ConnectionTracker) snapshotListeners() []func(domaingames.ConnectionState) {
	ids := make([]int, 0, len(t.listeners))
	for id := range t.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(domaingames.ConnectionState), 0, len(ids))
	for _, id := range ids {
		out = append(out, t.listeners[id])
	}
	return out
}
