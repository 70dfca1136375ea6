package metrics

import (
	"sync"
	"time"
)

type opStats struct {
	calls       int
	errors      int
	rollbacks   int
	lastLatency time.Duration
}

// Recorder captures lightweight, in-memory metrics about score sync activity.
// When built through Setup it also forwards to OpenTelemetry instruments.
type Recorder struct {
	mu           sync.Mutex
	ops          map[string]*opStats
	events       map[string]int
	transitions  map[string]int
	resubscribes int
	requests     map[string]int
	otel         *otelInstruments
}

func NewRecorder() *Recorder {
	return newRecorder(nil)
}

func newRecorder(otel *otelInstruments) *Recorder {
	return &Recorder{
		ops:         make(map[string]*opStats),
		events:      make(map[string]int),
		transitions: make(map[string]int),
		requests:    make(map[string]int),
		otel:        otel,
	}
}

// RecordMutation tracks one coordinator mutation and its outcome.
func (r *Recorder) RecordMutation(op string, duration time.Duration, result string) {
	if r == nil {
		return
	}

	r.mu.Lock()
	stats := r.ensureOp(op)
	stats.calls++
	stats.lastLatency = duration
	if result == ResultError {
		stats.errors++
	}
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordMutation(op, duration, result)
	}
}

// RecordRollback tracks an optimistic update being reverted.
func (r *Recorder) RecordRollback(op string) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.ensureOp(op).rollbacks++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordRollback(op)
	}
}

// RecordChannelEvent tracks a change event and whether it was applied.
func (r *Recorder) RecordChannelEvent(changeType, result string) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.events[changeType+"/"+result]++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordChannelEvent(changeType, result)
	}
}

// RecordConnectionState tracks a connection state transition.
func (r *Recorder) RecordConnectionState(state string) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.transitions[state]++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordConnectionState(state)
	}
}

// RecordResubscribe tracks a new subscription attempt after a channel failure.
func (r *Recorder) RecordResubscribe() {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.resubscribes++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordResubscribe()
	}
}

// RecordHTTPRequest tracks basic HTTP metrics.
func (r *Recorder) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.requests[method+" "+path]++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordHTTPRequest(method, path, status, duration)
	}
}

// Snapshot is a copy of the current stats for one mutation op.
type Snapshot struct {
	Calls       int
	Errors      int
	Rollbacks   int
	LastLatency time.Duration
}

// Snapshot returns the stats recorded for op.
func (r *Recorder) Snapshot(op string) Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stats, ok := r.ops[op]
	if !ok || stats == nil {
		return Snapshot{}
	}
	return Snapshot{
		Calls:       stats.calls,
		Errors:      stats.errors,
		Rollbacks:   stats.rollbacks,
		LastLatency: stats.lastLatency,
	}
}

// ChannelEvents returns how many events of changeType ended with result.
func (r *Recorder) ChannelEvents(changeType, result string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[changeType+"/"+result]
}

// ConnectionTransitions returns how many times state was entered.
func (r *Recorder) ConnectionTransitions(state string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitions[state]
}

// Resubscribes returns the number of resubscription attempts.
func (r *Recorder) Resubscribes() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resubscribes
}

// HTTPRequests returns how many requests matched method and the normalized path.
func (r *Recorder) HTTPRequests(method, path string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[method+" "+path]
}

// ensureOp must be called with r.mu held.
func (r *Recorder) ensureOp(op string) *opStats {
	stats, ok := r.ops[op]
	if !ok {
		stats = &opStats{}
		r.ops[op] = stats
	}
	return stats
}
