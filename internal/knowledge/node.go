// Package knowledge defines the knowledge tree: a recursive structure
// where each node is a concept and its children are the concepts a
// learner must understand first. The tree is built root-down by the
// explorer, enriched in place, and serialized as plain nested JSON.
package knowledge

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Node is one concept in a knowledge tree. Prerequisites are the
// concepts that must be understood before this one; a foundation node
// has none and terminates recursion. Equations, Definitions, VisualSpec
// and Narrative start empty and are filled by the enrichment and
// composition stages.
type Node struct {
	Concept       string  `json:"concept"`
	Depth         int     `json:"depth"`
	IsFoundation  bool    `json:"is_foundation"`
	Prerequisites []*Node `json:"prerequisites"`

	Equations   []string          `json:"equations,omitempty"`
	Definitions map[string]string `json:"definitions,omitempty"`
	VisualSpec  map[string]any    `json:"visual_spec,omitempty"`
	Narrative   string            `json:"narrative,omitempty"`
}

// NewNode creates an unenriched node at the given depth.
func NewNode(concept string, depth int) *Node {
	return &Node{
		Concept:       concept,
		Depth:         depth,
		Prerequisites: []*Node{},
	}
}

// AddPrerequisite appends a child node.
func (n *Node) AddPrerequisite(child *Node) {
	n.Prerequisites = append(n.Prerequisites, child)
}

// CountNodes returns the total number of nodes in the subtree rooted
// at n, including n itself.
func (n *Node) CountNodes() int {
	count := 1
	for _, p := range n.Prerequisites {
		count += p.CountNodes()
	}
	return count
}

// MaxDepth returns the largest Depth value found in the subtree.
func (n *Node) MaxDepth() int {
	max := n.Depth
	for _, p := range n.Prerequisites {
		if d := p.MaxDepth(); d > max {
			max = d
		}
	}
	return max
}

// Concepts returns every concept name in the subtree in pre-order
// (node before its prerequisites). Duplicates are preserved: the same
// concept may appear in more than one branch.
func (n *Node) Concepts() []string {
	out := []string{n.Concept}
	for _, p := range n.Prerequisites {
		out = append(out, p.Concepts()...)
	}
	return out
}

// GroupByDepth buckets every node in the subtree by its Depth value.
// Nodes within a bucket appear in pre-order.
func (n *Node) GroupByDepth() map[int][]*Node {
	groups := make(map[int][]*Node)
	n.walk(func(node *Node) {
		groups[node.Depth] = append(groups[node.Depth], node)
	})
	return groups
}

// NodesAtDepth returns the nodes whose Depth equals d, in pre-order.
func (n *Node) NodesAtDepth(d int) []*Node {
	var out []*Node
	n.walk(func(node *Node) {
		if node.Depth == d {
			out = append(out, node)
		}
	})
	return out
}

// walk visits the subtree in pre-order.
func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, p := range n.Prerequisites {
		p.walk(fn)
	}
}

// IsEnriched reports whether the math stage has populated this node.
// Both equations and definitions must be present.
func (n *Node) IsEnriched() bool {
	return len(n.Equations) > 0 && len(n.Definitions) > 0
}

// HasVisualSpec reports whether the visual stage has populated this node.
func (n *Node) HasVisualSpec() bool {
	return len(n.VisualSpec) > 0
}

// SetVisualDefault sets key in the visual spec only if it is absent.
// Used by the enrichment stage to carry interpretation, examples and
// typical values into the visual spec without clobbering what the
// designer produced.
func (n *Node) SetVisualDefault(key string, value any) {
	if n.VisualSpec == nil {
		n.VisualSpec = make(map[string]any)
	}
	if _, ok := n.VisualSpec[key]; !ok {
		n.VisualSpec[key] = value
	}
}

// ToJSON serializes the subtree as indented JSON.
func (n *Node) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize tree: %w", err)
	}
	return data, nil
}

// FromJSON deserializes a tree previously produced by ToJSON.
func FromJSON(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to parse tree: %w", err)
	}
	return &n, nil
}

// PrintTree writes an indented rendering of the subtree, two spaces
// per depth level, marking terminal concepts with [FOUNDATION].
func (n *Node) PrintTree(w io.Writer) {
	indent := strings.Repeat("  ", n.Depth)
	marker := ""
	if n.IsFoundation {
		marker = " [FOUNDATION]"
	}
	fmt.Fprintf(w, "%s- %s%s\n", indent, n.Concept, marker)
	for _, p := range n.Prerequisites {
		p.PrintTree(w)
	}
}
