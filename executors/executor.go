// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executors implements the pluggable node executors of the
// workflow engine and the registry that dispatches to them by node type.
//
// # Description
//
// Each executor is a stateless value object handling one node type. An
// executor receives the outputs of all predecessor nodes keyed by source
// node id, the node's configuration map, and an execution context, and
// returns its own output map. The reserved output key "cost" is summed
// into the execution's total cost by the runner; all other keys are
// opaque to the engine.
package executors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/AdForge/dag"
)

// ErrUnknownNodeType indicates a node whose type has no registered
// executor. The message is surfaced verbatim in the failed execution.
var ErrUnknownNodeType = errors.New("Unknown node type")

// Context carries per-execution data into an executor invocation.
//
// Sources lists the predecessor node ids in their topological-order
// position; MergeInputs uses it to make last-writer-wins merges
// deterministic. OutputConfig is only populated for IMAGE_MODEL nodes
// that feed a single OUTPUT node and holds that node's configuration.
type Context struct {
	ExecutionID  string
	UserID       string
	OutputConfig map[string]any
	Sources      []string
}

// Executor runs the logic of a single node type.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use; the same value is
//	shared by every execution in the process.
type Executor interface {
	// Execute transforms predecessor outputs and node configuration into
	// this node's output map. Any returned error fails the execution.
	Execute(ctx context.Context, inputs map[string]map[string]any, config map[string]any, ec *Context) (map[string]any, error)

	// ValidateConfig reports whether the configuration carries the keys
	// this executor requires.
	ValidateConfig(config map[string]any) bool
}

// Registry maps node types to executors.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called concurrently.
type Registry struct {
	mu     sync.RWMutex
	byType map[dag.NodeType]Executor
}

// NewRegistry creates a new empty executor registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[dag.NodeType]Executor)}
}

// Register adds an executor for a node type, replacing any previous one.
func (r *Registry) Register(t dag.NodeType, e Executor) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = e
}

// Get returns the executor for a node type.
//
// Outputs:
//
//	Executor - The registered executor, or nil if not found
//	bool - True if the executor was found
func (r *Registry) Get(t dag.NodeType) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[t]
	return e, ok
}

// Types returns the registered node types in sorted order.
func (r *Registry) Types() []dag.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]dag.NodeType, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Count returns the number of registered executors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType)
}

// Dispatch runs the executor registered for nodeType.
//
// Errors:
//
//	ErrUnknownNodeType - nodeType has no registered executor
//	any other error - surfaced from the executor and fatal for the run
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Dispatch(ctx context.Context, nodeType dag.NodeType, inputs map[string]map[string]any, config map[string]any, ec *Context) (map[string]any, error) {
	e, ok := r.Get(nodeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}
	return e.Execute(ctx, inputs, config, ec)
}

// Deps carries the external collaborators the built-in executors call
// out to. Nil fields disable the corresponding optional behavior
// (prompt optimization, generation recording, image mirroring).
type Deps struct {
	Optimizer   Optimizer
	Trends      TrendSource
	Images      ImageGenerator
	Generations GenerationStore
	Mirror      AssetMirror
}

// NewDefaultRegistry registers the six built-in node executors.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(dag.NodeTypeTextInput, &TextInputExecutor{})
	r.Register(dag.NodeTypeImageInput, &ImageInputExecutor{})
	r.Register(dag.NodeTypePrompt, NewPromptExecutor(deps.Optimizer))
	r.Register(dag.NodeTypeSocialMedia, NewSocialMediaExecutor(deps.Trends))
	r.Register(dag.NodeTypeImageModel, NewImageModelExecutor(deps.Images, deps.Generations))
	r.Register(dag.NodeTypeOutput, NewOutputExecutor(deps.Mirror))
	return r
}

// MergeInputs flattens a fan-in bundle into one map.
//
// Description:
//
//	Shallow-merges each source's output map; on duplicate keys the
//	later source wins. Sources are merged in the given order (the
//	runner passes topological-order positions); sources absent from
//	the order are merged afterwards in sorted id order, so the result
//	is deterministic for hand-built bundles too.
func MergeInputs(inputs map[string]map[string]any, order []string) map[string]any {
	merged := make(map[string]any)
	seen := make(map[string]bool, len(order))
	for _, src := range order {
		out, ok := inputs[src]
		if !ok {
			continue
		}
		seen[src] = true
		for k, v := range out {
			merged[k] = v
		}
	}

	rest := make([]string, 0, len(inputs))
	for src := range inputs {
		if !seen[src] {
			rest = append(rest, src)
		}
	}
	sort.Strings(rest)
	for _, src := range rest {
		for k, v := range inputs[src] {
			merged[k] = v
		}
	}
	return merged
}
