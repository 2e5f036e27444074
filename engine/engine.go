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
	"context"
	"log/slog"

	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/executors"
	"github.com/AleutianAI/AdForge/storage"
)

// Engine is the public facade over workflow execution.
//
// Description:
//
//	Engine prepares executions (ownership check, graph analysis,
//	execution and node execution records), delegates the run loop to its
//	Runner, and exposes the step and cancel operations of the breakpoint
//	protocol. Every operation takes the requesting user's ID; ownership
//	is enforced by the store, which reports foreign records as not
//	found.
//
// Thread Safety:
//
//	Engine is safe for concurrent use.
type Engine struct {
	store  storage.Store
	runner *Runner
	logger *slog.Logger
}

// NewEngine creates an engine over a store and an executor registry.
//
// Inputs:
//
//	store - Persistence layer. Must not be nil.
//	registry - Executor registry for dispatch. Must not be nil.
//	logger - Logger. If nil, uses slog.Default().
func NewEngine(store storage.Store, registry *executors.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		runner: NewRunner(store, registry, logger),
		logger: logger,
	}
}

// Prepared is an execution ready to run: the analyzed graph plus the
// PENDING execution record with one PENDING node execution per node in
// the execution order.
type Prepared struct {
	ExecutionID string
	UserID      string
	Analysis    *dag.Analysis
}

// ExecutionDetail is the read model for status queries: the execution
// record plus its per-node history in execution order.
type ExecutionDetail struct {
	Execution      *storage.Execution      `json:"execution"`
	NodeExecutions []storage.NodeExecution `json:"node_executions"`
}

// Prepare sets up an execution without running it.
//
// Description:
//
//	Fetches the workflow (ownership-checked), analyzes the graph,
//	creates the execution record and overwrites its status to PENDING
//	for the deferred background start, then creates one PENDING node
//	execution per reachable node in execution order. Unreachable nodes
//	get no record at all.
//
// Outputs:
//
//	*Prepared - Handle for Run.
//	error - storage.ErrNotFound, dag.ErrNoOutputNode, dag.ErrCycleDetected,
//	        or a store error.
func (e *Engine) Prepare(ctx context.Context, workflowID, userID string) (*Prepared, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID, userID)
	if err != nil {
		return nil, err
	}

	analysis, err := dag.Analyze(wf.Nodes, wf.Edges)
	if err != nil {
		return nil, err
	}

	exec, err := e.store.CreateExecution(ctx, workflowID, userID)
	if err != nil {
		return nil, err
	}

	// PENDING until the background runner actually picks it up.
	if err := e.store.UpdateExecutionStatus(ctx, exec.ID, storage.ExecutionUpdate{Status: storage.ExecutionPending}); err != nil {
		return nil, err
	}

	ordered := make([]dag.Node, len(analysis.Order))
	for i := range analysis.Order {
		ordered[i] = analysis.NodeAt(i)
	}
	if err := e.store.CreateNodeExecutions(ctx, exec.ID, ordered); err != nil {
		return nil, err
	}

	e.logger.Info("execution prepared",
		slog.String("workflow_id", workflowID),
		slog.String("execution_id", exec.ID),
		slog.Int("nodes", len(ordered)),
	)
	return &Prepared{ExecutionID: exec.ID, UserID: userID, Analysis: analysis}, nil
}

// Run executes a prepared workflow from the beginning, honoring
// breakpoints. This is the body the task supervisor detaches when an
// execution is started over HTTP.
func (e *Engine) Run(ctx context.Context, p *Prepared) (Result, error) {
	return e.runner.Run(ctx, p.Analysis, p.ExecutionID, p.UserID, 0, true)
}

// ExecuteWorkflow prepares and runs a workflow synchronously. The HTTP
// layer prefers Prepare plus a supervised background Run; this entry
// serves CLI runs and tests.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID, userID string) (Result, error) {
	p, err := e.Prepare(ctx, workflowID, userID)
	if err != nil {
		return Result{}, err
	}
	return e.Run(ctx, p)
}

// Step continues a paused execution by exactly one node.
//
// Description:
//
//	When the execution is not PAUSED, Step reports its current status
//	and has no side effects. Otherwise the workflow is re-fetched and
//	re-analyzed (analysis is deterministic for unchanged nodes and
//	edges), the paused node is located in the execution order, and the
//	runner executes it synchronously. An execution that is PAUSED with
//	no paused node already ran past its last node and is reported
//	COMPLETED.
func (e *Engine) Step(ctx context.Context, executionID, userID string) (Result, error) {
	exec, err := e.store.GetExecutionForUser(ctx, executionID, userID)
	if err != nil {
		return Result{}, err
	}

	if exec.Status != storage.ExecutionPaused {
		return Result{ExecutionID: executionID, Status: exec.Status}, nil
	}

	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID, userID)
	if err != nil {
		return Result{}, err
	}
	analysis, err := dag.Analyze(wf.Nodes, wf.Edges)
	if err != nil {
		return Result{}, err
	}

	records, err := e.store.GetNodeExecutions(ctx, executionID)
	if err != nil {
		return Result{}, err
	}

	idx := FindPausedIndex(records, analysis.Order)
	if idx < 0 {
		return Result{ExecutionID: executionID, Status: storage.ExecutionCompleted}, nil
	}
	return e.runner.Step(ctx, analysis, executionID, userID, idx)
}

// Cancel requests cancellation of a running or paused execution.
//
// Description:
//
//	Writes CANCELLED unconditionally after the ownership check; the
//	write is idempotent over an already-cancelled execution and absorbed
//	by any other terminal status. The background runner observes the
//	sentinel at its next poll, so the in-flight node finishes but no
//	further node starts.
func (e *Engine) Cancel(ctx context.Context, executionID, userID string) (Result, error) {
	if _, err := e.store.GetExecutionForUser(ctx, executionID, userID); err != nil {
		return Result{}, err
	}
	if err := e.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionUpdate{Status: storage.ExecutionCancelled}); err != nil {
		return Result{}, err
	}
	e.logger.Info("execution cancel requested",
		slog.String("execution_id", executionID),
	)
	return Result{ExecutionID: executionID, Status: storage.ExecutionCancelled}, nil
}

// Status returns an execution and its node history, ownership-checked.
func (e *Engine) Status(ctx context.Context, executionID, userID string) (*ExecutionDetail, error) {
	exec, err := e.store.GetExecutionForUser(ctx, executionID, userID)
	if err != nil {
		return nil, err
	}
	records, err := e.store.GetNodeExecutions(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return &ExecutionDetail{Execution: exec, NodeExecutions: records}, nil
}
