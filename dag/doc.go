// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dag models user-authored workflow graphs and prepares them for
// execution.
//
// Description:
//
//	A workflow is a directed acyclic graph of typed nodes (text inputs,
//	image inputs, social trend fetches, prompt templates, image models,
//	outputs) connected by edges. Before a workflow runs, Analyze validates
//	the graph, discovers the subgraph that actually feeds an OUTPUT node,
//	and produces a deterministic topological execution order. Nodes that no
//	OUTPUT node depends on are dead weight and are excluded entirely.
//
// Thread Safety:
//
//	Graph and Analysis are immutable after construction and safe for
//	concurrent reads. Analyze itself is a pure function.
package dag
