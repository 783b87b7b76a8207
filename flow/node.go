// ABOUTME: Node contract for the graph-execution engine: the three-phase Lifecycle interface,
// ABOUTME: the Node wrapper carrying reliability config, params, and labeled edges, plus the Steps adapter.
package flow

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// Action is the label a node's decide phase returns to choose an outgoing edge.
// Labels are opaque to the engine; they only drive edge-table lookup.
type Action string

const (
	// Default is the reserved edge label used as the fallback target when a
	// returned label has no exact match.
	Default Action = "default"

	// End is the terminal sentinel. A decide phase returning End stops the
	// traversal immediately, regardless of any edges configured.
	End Action = "__end__"
)

// Lifecycle is implemented by workflow authors. It declares what a node reads,
// what it computes, what it writes, and where the traversal goes next; it
// never executes itself; the Engine drives it. Each phase receives the Node
// it is bound to, giving it read access to the node's params and config.
type Lifecycle interface {
	// Produce yields the work items for this activation, one at a time.
	// Items may be derived from awaited I/O performed incrementally, so the
	// engine dispatches each item into Compute as soon as it is yielded.
	// A nil item is a valid single-item sequence for nodes with no fan-out.
	Produce(ctx context.Context, n *Node, s *State) iter.Seq2[any, error]

	// Compute performs the expensive, possibly-failing work for one item.
	// It must not mutate the shared state; reads are permitted. A returned
	// error triggers the retry wrapper.
	Compute(ctx context.Context, n *Node, s *State, item any) (any, error)

	// Decide is invoked exactly once per activation after every item has a
	// result. items[i] corresponds to results[i]. It writes outputs into the
	// shared state and returns the label for the next node, or End.
	Decide(ctx context.Context, n *Node, s *State, items []any, results []any) (Action, error)
}

// Fallbacker is optionally implemented by a Lifecycle. Fallback is invoked
// only after the retry wrapper exhausts all attempts for an item; its result
// stands in for the compute result, recovering the item without failing the
// activation. Absent a Fallbacker, the original error propagates and fails
// the whole run.
type Fallbacker interface {
	Fallback(ctx context.Context, n *Node, s *State, item any, cause error) (any, error)
}

// Config holds per-node reliability settings.
type Config struct {
	MaxAttempts int           // total compute attempts per item, minimum 1
	RetryDelay  time.Duration // sleep between attempts
	Timeout     time.Duration // advisory only; the engine does not enforce it
}

// DefaultConfig returns the reliability defaults: 3 attempts, 2s between
// attempts, 60s advisory timeout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		RetryDelay:  2 * time.Second,
		Timeout:     60 * time.Second,
	}
}

// NodeOption configures a Node at construction or via Configure.
type NodeOption func(*Node)

// WithMaxAttempts sets the total number of compute attempts per item.
// Values below 1 are a caller error; the engine clamps to a single attempt.
func WithMaxAttempts(n int) NodeOption {
	return func(node *Node) { node.config.MaxAttempts = n }
}

// WithRetryDelay sets the sleep between compute attempts. Zero is valid.
func WithRetryDelay(d time.Duration) NodeOption {
	return func(node *Node) { node.config.RetryDelay = d }
}

// WithTimeout sets the advisory timeout carried in the node's config.
// The engine accepts but does not enforce it; a slow compute runs to
// completion or retry exhaustion.
func WithTimeout(d time.Duration) NodeOption {
	return func(node *Node) { node.config.Timeout = d }
}

// WithName sets a display name used in events and error messages.
func WithName(name string) NodeOption {
	return func(node *Node) { node.name = name }
}

// Node wires a Lifecycle into the graph. It carries the reliability config,
// the caller-supplied local parameter map, and the outgoing labeled edges.
// Nodes form a directed, potentially cyclic graph; the engine does not track
// visited nodes, so termination relies on node-local logic (e.g. a round
// counter in shared state).
type Node struct {
	lifecycle Lifecycle
	name      string
	config    Config
	params    map[string]any
	edges     map[Action]*Node
}

// NewNode wraps a Lifecycle with default reliability config and applies the
// given options.
func NewNode(l Lifecycle, opts ...NodeOption) *Node {
	n := &Node{
		lifecycle: l,
		config:    DefaultConfig(),
		params:    make(map[string]any),
		edges:     make(map[Action]*Node),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Configure applies options to an existing node. Settings not touched by any
// option retain their current values. Returns the node for chaining.
func (n *Node) Configure(opts ...NodeOption) *Node {
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Config returns the node's current reliability configuration.
func (n *Node) Config() Config {
	return n.config
}

// Name returns the node's display name, falling back to the dynamic type of
// its Lifecycle when no name was set.
func (n *Node) Name() string {
	if n.name != "" {
		return n.name
	}
	return fmt.Sprintf("%T", n.lifecycle)
}

// SetParams replaces the node's local parameter map wholesale. Params are
// caller-supplied, read-only context for the next activation; they are not
// cleared automatically between activations. Returns the node for chaining.
func (n *Node) SetParams(params map[string]any) *Node {
	replaced := make(map[string]any, len(params))
	for k, v := range params {
		replaced[k] = v
	}
	n.params = replaced
	return n
}

// Param returns the value stored under key in the node's parameter map.
func (n *Node) Param(key string) (any, bool) {
	v, ok := n.params[key]
	return v, ok
}

// ParamString returns the string param for key, or defaultVal when the key is
// missing or not a string.
func (n *Node) ParamString(key, defaultVal string) string {
	v, ok := n.params[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

// Params returns a copy of the node's parameter map.
func (n *Node) Params() map[string]any {
	out := make(map[string]any, len(n.params))
	for k, v := range n.params {
		out[k] = v
	}
	return out
}

// Connect registers (or overwrites) one outgoing edge under the given label.
// Returns the node for chaining. Edges are add-only: there is no removal.
func (n *Node) Connect(label Action, target *Node) *Node {
	n.edges[label] = target
	return n
}

// Then registers target under the reserved "default" label.
func (n *Node) Then(target *Node) *Node {
	return n.Connect(Default, target)
}

// Edge looks up the outgoing edge for the given label.
func (n *Node) Edge(label Action) (*Node, bool) {
	target, ok := n.edges[label]
	return target, ok
}

// Steps adapts plain functions into a Lifecycle, for nodes that do not need a
// named type. Nil fields get sensible defaults: a nil ProduceFunc yields a
// single nil item, a nil ComputeFunc echoes the item, a nil DecideFunc returns
// Default, and a nil FallbackFunc propagates the compute error unchanged.
type Steps struct {
	ProduceFunc  func(ctx context.Context, n *Node, s *State) iter.Seq2[any, error]
	ComputeFunc  func(ctx context.Context, n *Node, s *State, item any) (any, error)
	DecideFunc   func(ctx context.Context, n *Node, s *State, items []any, results []any) (Action, error)
	FallbackFunc func(ctx context.Context, n *Node, s *State, item any, cause error) (any, error)
}

func (st *Steps) Produce(ctx context.Context, n *Node, s *State) iter.Seq2[any, error] {
	if st.ProduceFunc == nil {
		return Emit(nil)
	}
	return st.ProduceFunc(ctx, n, s)
}

func (st *Steps) Compute(ctx context.Context, n *Node, s *State, item any) (any, error) {
	if st.ComputeFunc == nil {
		return item, nil
	}
	return st.ComputeFunc(ctx, n, s, item)
}

func (st *Steps) Decide(ctx context.Context, n *Node, s *State, items []any, results []any) (Action, error) {
	if st.DecideFunc == nil {
		return Default, nil
	}
	return st.DecideFunc(ctx, n, s, items, results)
}

func (st *Steps) Fallback(ctx context.Context, n *Node, s *State, item any, cause error) (any, error) {
	if st.FallbackFunc == nil {
		return nil, cause
	}
	return st.FallbackFunc(ctx, n, s, item, cause)
}
