// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

// NodeType identifies which executor handles a node.
type NodeType string

const (
	// NodeTypeTextInput emits a configured text value.
	NodeTypeTextInput NodeType = "TEXT_INPUT"

	// NodeTypeImageInput emits a configured image URL.
	NodeTypeImageInput NodeType = "IMAGE_INPUT"

	// NodeTypeSocialMedia fetches social trend data (currently Reddit).
	NodeTypeSocialMedia NodeType = "SOCIAL_MEDIA"

	// NodeTypePrompt renders a prompt template from upstream values.
	NodeTypePrompt NodeType = "PROMPT"

	// NodeTypeImageModel generates images through an external model.
	NodeTypeImageModel NodeType = "IMAGE_MODEL"

	// NodeTypeOutput collects and truncates the final image set.
	NodeTypeOutput NodeType = "OUTPUT"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeTextInput, NodeTypeImageInput, NodeTypeSocialMedia,
		NodeTypePrompt, NodeTypeImageModel, NodeTypeOutput:
		return true
	}
	return false
}

// Node is a single vertex of a workflow graph.
//
// Description:
//
//	A node carries its executor type, an executor-specific configuration
//	map, and a breakpoint flag. Nodes are immutable for the duration of an
//	execution: the engine snapshots them when the execution is created.
type Node struct {
	// ID uniquely identifies the node within its workflow.
	ID string `json:"id"`

	// Type selects the executor for this node.
	Type NodeType `json:"type"`

	// Config is the executor-specific configuration. Keys are opaque to
	// the engine.
	Config map[string]any `json:"config,omitempty"`

	// HasBreakpoint pauses the execution before this node runs.
	HasBreakpoint bool `json:"has_breakpoint,omitempty"`
}

// Edge is a directed connection between two nodes of the same workflow.
//
// Parallel edges between the same pair of nodes collapse into a single
// logical dependency: outputs are keyed by source node, not by edge.
type Edge struct {
	// ID uniquely identifies the edge within its workflow.
	ID string `json:"id"`

	// Source is the upstream node ID.
	Source string `json:"source"`

	// Target is the downstream node ID.
	Target string `json:"target"`
}

// Graph is the adjacency view of a workflow.
//
// Description:
//
//	Graph indexes nodes by ID and maintains forward (source → targets) and
//	reverse (target → sources) adjacency. Edges whose endpoints are not both
//	present in the node set are dropped at build time, and parallel edges
//	are deduplicated. Insertion order of nodes is preserved so that the
//	topological sort is deterministic.
//
// Thread Safety:
//
//	Graph is immutable after NewGraph and safe for concurrent reads.
type Graph struct {
	nodes   map[string]Node
	order   []string            // node IDs in declaration order
	forward map[string][]string // source → targets, deduplicated
	reverse map[string][]string // target → sources, deduplicated
}

// NewGraph builds the adjacency view for a set of nodes and edges.
//
// Inputs:
//
//	nodes - Workflow nodes; later duplicates of an ID overwrite earlier ones.
//	edges - Workflow edges; dangling and parallel edges are ignored.
//
// Outputs:
//
//	*Graph - Immutable adjacency view.
func NewGraph(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		nodes:   make(map[string]Node, len(nodes)),
		order:   make([]string, 0, len(nodes)),
		forward: make(map[string][]string),
		reverse: make(map[string][]string),
	}
	for _, n := range nodes {
		if _, seen := g.nodes[n.ID]; !seen {
			g.order = append(g.order, n.ID)
		}
		g.nodes[n.ID] = n
	}

	type pair struct{ src, tgt string }
	seen := make(map[pair]bool, len(edges))
	for _, e := range edges {
		if _, ok := g.nodes[e.Source]; !ok {
			continue
		}
		if _, ok := g.nodes[e.Target]; !ok {
			continue
		}
		p := pair{e.Source, e.Target}
		if seen[p] {
			continue
		}
		seen[p] = true
		g.forward[e.Source] = append(g.forward[e.Source], e.Target)
		g.reverse[e.Target] = append(g.reverse[e.Target], e.Source)
	}
	return g
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Successors returns the IDs of nodes directly downstream of id.
func (g *Graph) Successors(id string) []string {
	return g.forward[id]
}

// Predecessors returns the IDs of nodes directly upstream of id.
func (g *Graph) Predecessors(id string) []string {
	return g.reverse[id]
}

// OutputNodes returns the IDs of all OUTPUT nodes in declaration order.
func (g *Graph) OutputNodes() []string {
	var out []string
	for _, id := range g.order {
		if g.nodes[id].Type == NodeTypeOutput {
			out = append(out, id)
		}
	}
	return out
}

// position returns the declaration index of each node ID. Used by the
// topological sort to break ties deterministically.
func (g *Graph) position() map[string]int {
	pos := make(map[string]int, len(g.order))
	for i, id := range g.order {
		pos[id] = i
	}
	return pos
}
