// ABOUTME: Lifecycle events emitted by the engine during a run, for logging and observability sinks.
// ABOUTME: Mirrors the run/node/item phases: run start/end, node activation, per-item retry and fallback.
package flow

import "time"

// EventType identifies the kind of engine lifecycle event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"

	EventItemRetrying EventType = "item.retrying"
	EventItemFallback EventType = "item.fallback"

	EventTransition EventType = "transition"
)

// Event is a lifecycle event emitted by the engine during a run.
type Event struct {
	Type      EventType      `json:"type"`
	Node      string         `json:"node,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventHandler receives engine lifecycle events.
type EventHandler func(Event)
