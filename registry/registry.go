// ABOUTME: Name-based lookup and invocation for workflow graphs, with child-namespace composition.
// ABOUTME: Execute resolves a registered start node and delegates the actual traversal to the flow engine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/2389-research/cascade/flow"
)

// ErrNotFound is returned by Execute when no workflow is registered under the
// requested name.
var ErrNotFound = errors.New("workflow not found")

// Registry maps workflow names to their start nodes and composes into a tree
// of named child namespaces. Execution is delegated to a flow.Engine.
type Registry struct {
	mu       sync.RWMutex
	name     string
	nodes    map[string]*flow.Node
	children map[string]*Registry
	engine   *flow.Engine
}

// Option configures a Registry.
type Option func(*Registry)

// WithEngine sets the engine used by Execute. Child namespaces created after
// this point inherit it.
func WithEngine(e *flow.Engine) Option {
	return func(r *Registry) { r.engine = e }
}

// New creates an empty root registry. Without WithEngine, Execute uses a
// zero-config engine.
func New(opts ...Option) *Registry {
	r := &Registry{
		nodes:    make(map[string]*flow.Node),
		children: make(map[string]*Registry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores the start node of a workflow under the given name.
// Registering an already-used name replaces the previous entry.
func (r *Registry) Register(name string, start *flow.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[name] = start
}

// Get returns the workflow registered under name.
func (r *Registry) Get(name string) (*flow.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[name]
	return n, ok
}

// Namespace returns the child registry with the given name, creating it on
// first use. The child inherits this registry's engine.
func (r *Registry) Namespace(name string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if child, ok := r.children[name]; ok {
		return child
	}
	child := New(WithEngine(r.engine))
	child.name = name
	r.children[name] = child
	return child
}

// Names returns the registered workflow names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute looks up the workflow registered under name and runs it with the
// given shared state. Returns an error wrapping ErrNotFound when the name is
// unregistered; otherwise the run's outcome is returned unchanged.
func (r *Registry) Execute(ctx context.Context, name string, s *flow.State) error {
	r.mu.RLock()
	start, ok := r.nodes[name]
	engine := r.engine
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if engine == nil {
		engine = flow.NewEngine(flow.EngineConfig{})
	}
	return engine.Run(ctx, start, s)
}
