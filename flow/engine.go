// ABOUTME: Graph-traversal engine driving each node through produce, concurrent compute fan-out, and decide,
// ABOUTME: then resolving the returned label into the next node. One activation at a time; errors fail the run.
package flow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EngineConfig holds configuration for the execution engine.
type EngineConfig struct {
	EventHandler EventHandler // optional event callback
	Middleware   []Middleware // decorators applied around each activation
}

// Engine drives a graph of nodes. It threads one shared *State by reference
// through a chain of activations chosen dynamically by each node's decide
// phase. Concurrency exists only within a node's compute fan-out, never
// across nodes, so the shared state needs no locking discipline beyond its
// own internal mutex.
type Engine struct {
	config EngineConfig
	step   StepFunc
}

// NewEngine creates an execution engine with the given configuration.
func NewEngine(config EngineConfig) *Engine {
	e := &Engine{config: config}
	e.step = ChainMiddleware(e.activate, config.Middleware...)
	return e
}

// Run traverses the graph from start, threading state through every
// activation. It returns nil when the traversal reaches a terminal path
// (the End sentinel or a dangling transition) and the originating error when
// any activation fails unrecoverably. The engine does not track visited
// nodes; cycles are legal and terminate via node-local logic.
func (e *Engine) Run(ctx context.Context, start *Node, s *State) error {
	e.emit(Event{Type: EventRunStarted, Node: start.Name()})

	current := start
	for current != nil {
		select {
		case <-ctx.Done():
			e.emit(Event{Type: EventRunFailed, Node: current.Name(), Data: map[string]any{"error": ctx.Err().Error()}})
			return ctx.Err()
		default:
		}

		label, err := e.step(ctx, current, s)
		if err != nil {
			wrapped := fmt.Errorf("node %q: %w", current.Name(), err)
			e.emit(Event{Type: EventRunFailed, Node: current.Name(), Data: map[string]any{"error": wrapped.Error()}})
			return wrapped
		}

		if label == End {
			break
		}

		// Exact label first, then the reserved default edge. A dangling
		// transition is not an error: it means "no next node".
		next, ok := current.Edge(label)
		if !ok {
			next, ok = current.Edge(Default)
		}
		if !ok {
			break
		}

		e.emit(Event{Type: EventTransition, Node: current.Name(), Data: map[string]any{
			"label": string(label),
			"to":    next.Name(),
		}})
		current = next
	}

	e.emit(Event{Type: EventRunCompleted})
	return nil
}

// Run traverses the graph from start using a zero-config engine.
func Run(ctx context.Context, start *Node, s *State) error {
	return NewEngine(EngineConfig{}).Run(ctx, start, s)
}

// resultSlot holds one produced item and, once its compute task settles, its
// result. Slots are appended in produce order and written by exactly one
// goroutine each, so the final item/result lists preserve index
// correspondence regardless of completion order.
type resultSlot struct {
	item   any
	result any
	err    error
}

// activate runs one node through its three phases: pull items from Produce
// one at a time, dispatching each immediately into a concurrent retry-wrapped
// Compute; wait for all dispatched tasks to settle; then invoke Decide exactly
// once with the aligned item and result lists.
func (e *Engine) activate(ctx context.Context, n *Node, s *State) (Action, error) {
	e.emit(Event{Type: EventNodeStarted, Node: n.Name()})

	var (
		slots      []*resultSlot
		wg         sync.WaitGroup
		produceErr error
	)

	for item, err := range n.lifecycle.Produce(ctx, n, s) {
		if err != nil {
			produceErr = err
			break
		}
		slot := &resultSlot{item: item}
		slots = append(slots, slot)
		index := len(slots) - 1

		wg.Add(1)
		go func() {
			defer wg.Done()
			slot.result, slot.err = e.computeWithRetry(ctx, n, s, slot.item, index)
		}()
	}

	// Tasks already dispatched run to completion even when production failed;
	// no mid-flight cancellation is defined.
	wg.Wait()

	if produceErr != nil {
		e.emit(Event{Type: EventNodeFailed, Node: n.Name(), Data: map[string]any{"error": produceErr.Error()}})
		return End, fmt.Errorf("produce: %w", produceErr)
	}

	items := make([]any, len(slots))
	results := make([]any, len(slots))
	for i, slot := range slots {
		if slot.err != nil {
			e.emit(Event{Type: EventNodeFailed, Node: n.Name(), Data: map[string]any{"error": slot.err.Error()}})
			return End, slot.err
		}
		items[i] = slot.item
		results[i] = slot.result
	}

	label, err := n.lifecycle.Decide(ctx, n, s, items, results)
	if err != nil {
		e.emit(Event{Type: EventNodeFailed, Node: n.Name(), Data: map[string]any{"error": err.Error()}})
		return End, fmt.Errorf("decide: %w", err)
	}

	e.emit(Event{Type: EventNodeCompleted, Node: n.Name(), Data: map[string]any{
		"items": len(items),
		"label": string(label),
	}})
	return label, nil
}

// emit sends an event to the configured event handler, if any, stamping the
// current time when Timestamp is unset.
func (e *Engine) emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if e.config.EventHandler != nil {
		e.config.EventHandler(evt)
	}
}
