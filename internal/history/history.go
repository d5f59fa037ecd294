package history

import (
	"context"
	"time"
)

// EventType labels a backend run lifecycle event.
type EventType string

const (
	EventReady   EventType = "ready"
	EventStopped EventType = "stopped"
	EventFailed  EventType = "failed"
)

// Record identifies one backend run. RunID is assigned per spawn, so restarts
// of the same backend appear as distinct runs.
type Record struct {
	RunID string `json:"run_id"`
	Name  string `json:"name"`
	PID   int    `json:"pid"`
	Port  int    `json:"port"`
	Error string `json:"error,omitempty"`
}

// Event is an append-only history entry for a run transition.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for run history events. Implementations must be safe
// for concurrent use. Delivery is best-effort: the supervisor never blocks
// its lifecycle on a sink.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
