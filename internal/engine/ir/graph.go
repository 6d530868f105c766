package ir

import (
	"fmt"
	"strings"
)

// ParseError reports a structurally invalid function graph.
type ParseError struct {
	FunctionID string
	NodeID     string
	Reason     string
}

func (e *ParseError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("invalid IR for %s: %s", e.FunctionID, e.Reason)
	}
	return fmt.Sprintf("invalid IR for %s: node %s: %s", e.FunctionID, e.NodeID, e.Reason)
}

func parseErrorf(functionID, nodeID, format string, args ...any) *ParseError {
	return &ParseError{FunctionID: functionID, NodeID: nodeID, Reason: fmt.Sprintf(format, args...)}
}

// Builder collects the nodes of one function in declaration order.
type Builder struct {
	functionID string
	nodes      []Node
	index      map[string]int
}

func NewBuilder(functionID string) *Builder {
	return &Builder{
		functionID: functionID,
		index:      make(map[string]int),
	}
}

// Add appends a node. Duplicate ids and unknown operation types are rejected
// immediately.
func (b *Builder) Add(node Node) error {
	if strings.TrimSpace(node.ID) == "" {
		return parseErrorf(b.functionID, "", "node without id at position %d", len(b.nodes))
	}
	if !node.Type.Valid() {
		return parseErrorf(b.functionID, node.ID, "unknown operation type %q", node.Type)
	}
	if _, exists := b.index[node.ID]; exists {
		return parseErrorf(b.functionID, node.ID, "duplicate node id")
	}
	if node.Details == nil {
		return parseErrorf(b.functionID, node.ID, "missing details for %s", node.Type)
	}
	b.index[node.ID] = len(b.nodes)
	b.nodes = append(b.nodes, node)
	return nil
}

// Build validates the collected nodes against the keys already published by
// earlier functions and returns the graph in execution order.
func (b *Builder) Build(published func(key string) bool) (*Graph, error) {
	if published == nil {
		published = func(string) bool { return false }
	}

	n := len(b.nodes)
	inDegree := make([]int, n)
	dependents := make([][]int, n)

	for i, node := range b.nodes {
		for _, dep := range node.Inputs() {
			j, local := b.index[dep]
			if !local {
				if !published(dep) {
					return nil, parseErrorf(b.functionID, node.ID, "unknown dependency %q", dep)
				}
				continue
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// Kahn, always picking the earliest declared ready node
	ready := make([]bool, n)
	done := make([]bool, n)
	for i := range b.nodes {
		ready[i] = inDegree[i] == 0
	}
	order := make([]int, 0, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if ready[i] && !done[i] {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			inDegree[d]--
			if inDegree[d] == 0 {
				ready[d] = true
			}
		}
	}

	if len(order) < n {
		stuck := make([]string, 0, n-len(order))
		for i, node := range b.nodes {
			if !done[i] {
				stuck = append(stuck, node.ID)
			}
		}
		return nil, parseErrorf(b.functionID, "", "dependency cycle among %s", strings.Join(stuck, ", "))
	}

	for i, node := range b.nodes {
		for _, dep := range node.Inputs() {
			if j, local := b.index[dep]; local && j > i {
				return nil, parseErrorf(b.functionID, node.ID, "depends on %q which is declared later", dep)
			}
		}
	}

	nodes := make([]Node, n)
	copy(nodes, b.nodes)
	return &Graph{FunctionID: b.functionID, nodes: nodes, order: order}, nil
}

// Graph is a validated function graph. It is never mutated after Build.
type Graph struct {
	FunctionID string
	nodes      []Node
	order      []int
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Ordered returns the nodes in execution order.
func (g *Graph) Ordered() []Node {
	out := make([]Node, 0, len(g.order))
	for _, i := range g.order {
		out = append(out, g.nodes[i])
	}
	return out
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// Compile is a shortcut for building a graph from a node list.
func Compile(functionID string, nodes []Node, published func(key string) bool) (*Graph, error) {
	b := NewBuilder(functionID)
	for _, node := range nodes {
		if err := b.Add(node); err != nil {
			return nil, err
		}
	}
	return b.Build(published)
}
