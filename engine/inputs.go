// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/storage"
)

// GatherInputs collects the outputs of a node's completed predecessors.
//
// Description:
//
//	For a target node n the input bundle is {src: outputs[src]} for every
//	edge src→n whose source already produced an output in this run.
//	Sources are also returned as a slice ordered by their position in the
//	execution order; executors merge fan-in bundles in that order, which
//	makes last-writer-wins collisions deterministic.
//
// Inputs:
//
//	a - Analysis of the workflow being executed.
//	nodeID - Target node ID.
//	outputs - Outputs of completed nodes, keyed by node ID.
//
// Outputs:
//
//	map[string]map[string]any - Input bundle keyed by source node ID.
//	[]string - Source IDs in execution order.
func GatherInputs(a *dag.Analysis, nodeID string, outputs map[string]map[string]any) (map[string]map[string]any, []string) {
	preds := a.Graph.Predecessors(nodeID)
	inputs := make(map[string]map[string]any, len(preds))
	if len(preds) == 0 {
		return inputs, nil
	}

	isPred := make(map[string]bool, len(preds))
	for _, src := range preds {
		isPred[src] = true
	}

	var sources []string
	for _, id := range a.Order {
		if !isPred[id] {
			continue
		}
		out, ok := outputs[id]
		if !ok {
			continue
		}
		inputs[id] = out
		sources = append(sources, id)
	}
	return inputs, sources
}

// FindPausedIndex locates the paused node within the execution order.
//
// Description:
//
//	At most one node execution per execution is PAUSED at any time.
//	FindPausedIndex returns its position in the execution order, or -1
//	when no node is paused (the execution already ran past its last
//	node).
func FindPausedIndex(records []storage.NodeExecution, order []string) int {
	paused := make(map[string]bool)
	for _, rec := range records {
		if rec.Status == storage.NodePaused {
			paused[rec.NodeID] = true
		}
	}
	if len(paused) == 0 {
		return -1
	}
	for i, id := range order {
		if paused[id] {
			return i
		}
	}
	return -1
}

// outputConfigFor returns the config of the first OUTPUT node directly
// downstream of nodeID, or nil when it has no OUTPUT successor. The
// image model executor uses it to honor num_images and aspect_ratio set
// on the output node.
func outputConfigFor(a *dag.Analysis, nodeID string) map[string]any {
	for _, succ := range a.Graph.Successors(nodeID) {
		if n, ok := a.Graph.Node(succ); ok && n.Type == dag.NodeTypeOutput {
			return n.Config
		}
	}
	return nil
}

// loadOutputs reconstructs the output map and the accumulated cost from
// node executions that already completed. Resuming after a pause must
// not re-execute nodes that already produced output.
func loadOutputs(records []storage.NodeExecution) (map[string]map[string]any, float64) {
	outputs := make(map[string]map[string]any, len(records))
	var totalCost float64
	for _, rec := range records {
		if len(rec.OutputData) == 0 {
			continue
		}
		outputs[rec.NodeID] = rec.OutputData
		if c, ok := costOf(rec.OutputData); ok {
			totalCost += c
		}
	}
	return outputs, totalCost
}

// costOf extracts the reserved numeric "cost" key from a node output.
func costOf(output map[string]any) (float64, bool) {
	switch c := output["cost"].(type) {
	case float64:
		return c, true
	case float32:
		return float64(c), true
	case int:
		return float64(c), true
	case int64:
		return float64(c), true
	}
	return 0, false
}

// inputData widens the typed input bundle for persistence on the node
// execution record.
func inputData(inputs map[string]map[string]any) map[string]any {
	if len(inputs) == 0 {
		return nil
	}
	data := make(map[string]any, len(inputs))
	for src, out := range inputs {
		data[src] = out
	}
	return data
}
