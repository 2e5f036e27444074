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

import "sort"

// Analysis is the result of validating a workflow graph.
//
// Description:
//
//	Order lists the IDs of every node some OUTPUT node depends on, in a
//	valid topological order. Nodes absent from Order are unreachable and
//	must not be executed or recorded. Graph keeps the adjacency view so the
//	engine can consult successors (e.g. to find the OUTPUT node downstream
//	of an image model).
type Analysis struct {
	// Graph is the adjacency view the analysis was computed over.
	Graph *Graph

	// Order is the execution order over the OUTPUT-reachable subgraph.
	Order []string
}

// NodeAt returns the node at position idx of the execution order.
func (a *Analysis) NodeAt(idx int) Node {
	n, _ := a.Graph.Node(a.Order[idx])
	return n
}

// Analyze validates a workflow and computes its execution order.
//
// Description:
//
//	Analyze builds the adjacency view, walks the reverse adjacency
//	breadth-first from every OUTPUT node to find the executable subgraph,
//	and runs Kahn's algorithm over that subgraph. Ties between ready nodes
//	are broken by node declaration order, so the result is deterministic
//	for a given workflow.
//
// Inputs:
//
//	nodes - Workflow nodes.
//	edges - Workflow edges; dangling edges are ignored.
//
// Outputs:
//
//	*Analysis - Graph plus execution order.
//	error - ErrNoOutputNode or ErrCycleDetected.
func Analyze(nodes []Node, edges []Edge) (*Analysis, error) {
	g := NewGraph(nodes, edges)

	outputs := g.OutputNodes()
	if len(outputs) == 0 {
		return nil, ErrNoOutputNode
	}

	reachable := g.reachableInto(outputs)

	order, err := g.sortSubgraph(reachable)
	if err != nil {
		return nil, err
	}
	return &Analysis{Graph: g, Order: order}, nil
}

// reachableInto returns the set of nodes from which any of the given roots
// can be reached, following edges backwards. The roots themselves are
// included.
func (g *Graph) reachableInto(roots []string) map[string]bool {
	visited := make(map[string]bool, len(g.nodes))
	queue := make([]string, 0, len(roots))
	for _, id := range roots {
		visited[id] = true
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, src := range g.reverse[id] {
			if !visited[src] {
				visited[src] = true
				queue = append(queue, src)
			}
		}
	}
	return visited
}

// sortSubgraph runs Kahn's algorithm over the subgraph induced on the given
// node set. Within each wave of ready nodes, IDs are processed in declaration
// order. Returns ErrCycleDetected if the subgraph contains a cycle.
func (g *Graph) sortSubgraph(include map[string]bool) ([]string, error) {
	inDegree := make(map[string]int, len(include))
	for id := range include {
		inDegree[id] = 0
	}
	for src, targets := range g.forward {
		if !include[src] {
			continue
		}
		for _, tgt := range targets {
			if include[tgt] {
				inDegree[tgt]++
			}
		}
	}

	pos := g.position()
	wave := make([]string, 0, len(include))
	for id, deg := range inDegree {
		if deg == 0 {
			wave = append(wave, id)
		}
	}

	order := make([]string, 0, len(include))
	for len(wave) > 0 {
		sort.Slice(wave, func(i, j int) bool { return pos[wave[i]] < pos[wave[j]] })

		var next []string
		for _, id := range wave {
			order = append(order, id)
			for _, tgt := range g.forward[id] {
				if !include[tgt] {
					continue
				}
				inDegree[tgt]--
				if inDegree[tgt] == 0 {
					next = append(next, tgt)
				}
			}
		}
		wave = next
	}

	if len(order) < len(include) {
		return nil, ErrCycleDetected
	}
	return order, nil
}
