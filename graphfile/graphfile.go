// ABOUTME: YAML workflow definitions: named nodes built from a factory catalog, wired by labeled edges.
// ABOUTME: Parse validates the definition; Build instantiates and connects the flow.Node graph.
package graphfile

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/cascade/flow"
)

// Definition is a parsed workflow file.
type Definition struct {
	Name  string    `yaml:"name"`
	Start string    `yaml:"start"`
	Nodes []NodeDef `yaml:"nodes"`
	Edges []EdgeDef `yaml:"edges"`
}

// NodeDef declares one node: its graph-local name, the catalog factory that
// builds its Lifecycle, its params, and optional reliability overrides.
type NodeDef struct {
	Name         string         `yaml:"name"`
	Uses         string         `yaml:"uses"`
	Params       map[string]any `yaml:"params,omitempty"`
	MaxAttempts  int            `yaml:"max_attempts,omitempty"`
	RetryDelayMs int            `yaml:"retry_delay_ms,omitempty"`
	TimeoutMs    int            `yaml:"timeout_ms,omitempty"`
}

// EdgeDef declares one labeled transition. An empty label means "default".
type EdgeDef struct {
	From  string `yaml:"from"`
	Label string `yaml:"label,omitempty"`
	To    string `yaml:"to"`
}

// Catalog maps factory keys (the "uses" field) to Lifecycle constructors.
type Catalog map[string]func() flow.Lifecycle

// Parse decodes and validates a workflow definition payload.
func Parse(data []byte) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("graphfile: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("graphfile: decode definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Load reads and parses a workflow definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graphfile: read %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("graphfile: %s: %w", path, err)
	}
	return def, nil
}

// Validate checks structural integrity: a name, a resolvable start node,
// unique node names, and edges referencing declared nodes.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("graphfile: workflow name is required")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("graphfile: workflow %q declares no nodes", d.Name)
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, nd := range d.Nodes {
		if strings.TrimSpace(nd.Name) == "" {
			return fmt.Errorf("graphfile: workflow %q has a node without a name", d.Name)
		}
		if strings.TrimSpace(nd.Uses) == "" {
			return fmt.Errorf("graphfile: node %q is missing its uses key", nd.Name)
		}
		if seen[nd.Name] {
			return fmt.Errorf("graphfile: duplicate node name %q", nd.Name)
		}
		seen[nd.Name] = true
	}

	start := d.Start
	if start == "" {
		start = d.Nodes[0].Name
	}
	if !seen[start] {
		return fmt.Errorf("graphfile: start node %q is not declared", start)
	}

	for _, e := range d.Edges {
		if !seen[e.From] {
			return fmt.Errorf("graphfile: edge from undeclared node %q", e.From)
		}
		if !seen[e.To] {
			return fmt.Errorf("graphfile: edge to undeclared node %q", e.To)
		}
	}
	return nil
}

// Build instantiates every node through the catalog, applies params and
// reliability overrides, and wires the declared edges. It returns the start
// node of the assembled graph.
func (d *Definition) Build(catalog Catalog) (*flow.Node, error) {
	nodes := make(map[string]*flow.Node, len(d.Nodes))
	for _, nd := range d.Nodes {
		factory, ok := catalog[nd.Uses]
		if !ok {
			return nil, fmt.Errorf("graphfile: node %q uses unknown factory %q", nd.Name, nd.Uses)
		}

		opts := []flow.NodeOption{flow.WithName(nd.Name)}
		if nd.MaxAttempts > 0 {
			opts = append(opts, flow.WithMaxAttempts(nd.MaxAttempts))
		}
		if nd.RetryDelayMs > 0 {
			opts = append(opts, flow.WithRetryDelay(time.Duration(nd.RetryDelayMs)*time.Millisecond))
		}
		if nd.TimeoutMs > 0 {
			opts = append(opts, flow.WithTimeout(time.Duration(nd.TimeoutMs)*time.Millisecond))
		}

		node := flow.NewNode(factory(), opts...)
		if len(nd.Params) > 0 {
			node.SetParams(nd.Params)
		}
		nodes[nd.Name] = node
	}

	for _, e := range d.Edges {
		label := flow.Action(e.Label)
		if e.Label == "" {
			label = flow.Default
		}
		nodes[e.From].Connect(label, nodes[e.To])
	}

	start := d.Start
	if start == "" {
		start = d.Nodes[0].Name
	}
	return nodes[start], nil
}
