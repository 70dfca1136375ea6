package notify

import (
	"log/slog"
	"sync"

	domaingames "github.com/lucasspain13/out-sports-qc-sub001/internal/domain/games"
	"github.com/lucasspain13/out-sports-qc-sub001/internal/logging"
)

// Kind classifies a user-facing notification.
type Kind string

const (
	KindUpdated      Kind = "updated"
	KindUpdateFailed Kind = "update_failed"
)

// Notification is surfaced to users (toasts, push messages, log lines).
type Notification struct {
	Kind   Kind             `json:"kind"`
	GameID string           `json:"gameId"`
	Op     string           `json:"op,omitempty"`
	Detail string           `json:"detail"`
	Game   domaingames.Game `json:"game"`
}

// Sink receives notifications. Implementations must not block for long.
type Sink interface {
	Notify(Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notification)

func (f SinkFunc) Notify(n Notification) {
	if f != nil {
		f(n)
	}
}

// Discard drops every notification.
var Discard Sink = SinkFunc(func(Notification) {})

// Fanout delivers each notification to every non-nil sink in order.
type Fanout []Sink

func (f Fanout) Notify(n Notification) {
	for _, s := range f {
		if s != nil {
			s.Notify(n)
		}
	}
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(n Notification) {
	args := []any{
		logging.FieldGameID, n.GameID,
		logging.FieldScore, n.Game.Score.String(),
	}
	if n.Op != "" {
		args = append(args, logging.FieldOp, n.Op)
	}
	switch n.Kind {
	case KindUpdateFailed:
		logging.Warn(s.Logger, "score update failed: "+n.Detail, args...)
	default:
		logging.Info(s.Logger, "score updated: "+n.Detail, args...)
	}
}

// Recorder keeps every notification; useful for the CLI and tests.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Count returns how many notifications of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}
