// ABOUTME: Run event log model: persisted records, run metadata, the Sink interface, and ID helpers.
// ABOUTME: Run IDs are UUIDs; event IDs are ULIDs so records sort lexically in emission order.
package runlog

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/2389-research/cascade/flow"
)

// Record is one persisted engine event.
type Record struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Type      string         `json:"type"`
	Node      string         `json:"node,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunInfo holds per-run metadata for listing runs without loading their events.
type RunInfo struct {
	ID         string    `json:"id"`
	Workflow   string    `json:"workflow"`
	StartTime  time.Time `json:"start_time"`
	EventCount int       `json:"event_count"`
}

// Summary holds aggregate statistics about a run's events.
type Summary struct {
	TotalEvents int            `json:"total_events"`
	ByType      map[string]int `json:"by_type"`
	ByNode      map[string]int `json:"by_node"`
	FirstEvent  *time.Time     `json:"first_event,omitempty"`
	LastEvent   *time.Time     `json:"last_event,omitempty"`
}

// Sink is the interface for run event log storage.
type Sink interface {
	// Begin registers a new run before its first event is appended.
	Begin(info RunInfo) error

	// Append writes one event record to the log for its run.
	Append(rec Record) error

	// Events returns all records for the given run in append order.
	Events(runID string) ([]Record, error)

	// Runs returns metadata for all known runs, newest first.
	Runs() ([]RunInfo, error)

	// Close releases any resources held by the sink.
	Close() error
}

// NewRunID generates a UUID run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewEventID generates a ULID using crypto/rand entropy.
func NewEventID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Recorder adapts a Sink into a flow.EventHandler for a single run.
type Recorder struct {
	sink  Sink
	runID string
}

// NewRecorder registers a run with the sink and returns a Recorder for it.
func NewRecorder(sink Sink, runID, workflow string) (*Recorder, error) {
	info := RunInfo{ID: runID, Workflow: workflow, StartTime: time.Now()}
	if err := sink.Begin(info); err != nil {
		return nil, err
	}
	return &Recorder{sink: sink, runID: runID}, nil
}

// RunID returns the run this recorder writes under.
func (r *Recorder) RunID() string {
	return r.runID
}

// Handle persists one engine event. Sink errors are dropped: observability
// must never fail a run.
func (r *Recorder) Handle(evt flow.Event) {
	_ = r.sink.Append(Record{
		ID:        NewEventID(),
		RunID:     r.runID,
		Type:      string(evt.Type),
		Node:      evt.Node,
		Data:      evt.Data,
		Timestamp: evt.Timestamp,
	})
}

// Summarize computes aggregate statistics from a run's records.
func Summarize(records []Record) *Summary {
	summary := &Summary{
		TotalEvents: len(records),
		ByType:      make(map[string]int),
		ByNode:      make(map[string]int),
	}
	for i := range records {
		rec := &records[i]
		summary.ByType[rec.Type]++
		if rec.Node != "" {
			summary.ByNode[rec.Node]++
		}
		if summary.FirstEvent == nil || rec.Timestamp.Before(*summary.FirstEvent) {
			ts := rec.Timestamp
			summary.FirstEvent = &ts
		}
		if summary.LastEvent == nil || rec.Timestamp.After(*summary.LastEvent) {
			ts := rec.Timestamp
			summary.LastEvent = &ts
		}
	}
	return summary
}
