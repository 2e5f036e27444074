// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage defines the persistence contract for workflow executions.
//
// # Description
//
// Everything the engine remembers lives behind the Store interface:
// workflows, executions, per-node execution records and image generations.
// The store is also the single source of truth for cancellation — the
// runner polls the execution record and stops when it observes CANCELLED,
// which is why cancellation works across process boundaries.
//
// Two implementations exist: storage/badger (embedded, used for
// single-node deployments and tests) and storage/postgres (Bun/PostgreSQL,
// used when several API replicas share state).
//
// # Thread Safety
//
// Store implementations must be safe for concurrent use; every execution
// runs on its own goroutine against the shared client.
package storage

import (
	"context"
	"errors"

	"github.com/AleutianAI/AdForge/dag"
)

// Sentinel errors for the storage package.
var (
	// ErrNotFound is returned when a record does not exist or the
	// requesting user does not own it. Callers cannot distinguish the two
	// cases; that is deliberate.
	ErrNotFound = errors.New("record not found")
)

// Store persists workflows, executions and their history.
//
// Ownership rules: GetWorkflow and GetExecutionForUser return ErrNotFound
// both for missing records and for records owned by another user.
//
// Status rules implementations must honor:
//   - CreateExecution creates the record with status RUNNING (callers that
//     defer the start overwrite it to PENDING immediately after).
//   - UpdateExecutionStatus sets StartedAt on the first transition to
//     RUNNING and FinishedAt when the status becomes terminal.
//   - A terminal execution status is absorbing: an update that would
//     replace one terminal status with a different status is dropped.
//   - UpdateNodeExecution sets StartedAt on RUNNING and FinishedAt on
//     COMPLETED or FAILED.
type Store interface {
	// CreateWorkflow stores a workflow, minting its ID when empty.
	CreateWorkflow(ctx context.Context, wf *Workflow) error

	// GetWorkflow returns a workflow owned by userID.
	GetWorkflow(ctx context.Context, workflowID, userID string) (*Workflow, error)

	// CreateExecution creates an execution for a workflow with status
	// RUNNING and returns the stored record.
	CreateExecution(ctx context.Context, workflowID, userID string) (*Execution, error)

	// GetExecution returns an execution regardless of owner. The runner
	// uses it for cancellation polling.
	GetExecution(ctx context.Context, executionID string) (*Execution, error)

	// GetExecutionForUser returns an execution owned by userID.
	GetExecutionForUser(ctx context.Context, executionID, userID string) (*Execution, error)

	// UpdateExecutionStatus applies an ExecutionUpdate.
	UpdateExecutionStatus(ctx context.Context, executionID string, update ExecutionUpdate) error

	// CreateNodeExecutions creates one PENDING node execution per node, in
	// the given order. Seq is assigned from the slice position.
	CreateNodeExecutions(ctx context.Context, executionID string, nodes []dag.Node) error

	// GetNodeExecutions returns the node executions of an execution in
	// Seq order.
	GetNodeExecutions(ctx context.Context, executionID string) ([]NodeExecution, error)

	// UpdateNodeExecution applies a NodeExecutionUpdate to the record
	// identified by (executionID, nodeID).
	UpdateNodeExecution(ctx context.Context, executionID, nodeID string, update NodeExecutionUpdate) error

	// CreateGeneration appends a generation record, minting its ID when
	// empty.
	CreateGeneration(ctx context.Context, gen *Generation) error

	// ListGenerations returns the generations of an execution in creation
	// order.
	ListGenerations(ctx context.Context, executionID string) ([]Generation, error)

	// Close releases the underlying resources.
	Close() error
}
