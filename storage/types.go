// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"time"

	"github.com/AleutianAI/AdForge/dag"
)

// ExecutionStatus is the lifecycle status of a workflow execution.
// Statuses are persisted as uppercase strings.
type ExecutionStatus string

const (
	// ExecutionPending marks an execution created but not yet started.
	ExecutionPending ExecutionStatus = "PENDING"

	// ExecutionRunning marks an execution whose runner is active.
	ExecutionRunning ExecutionStatus = "RUNNING"

	// ExecutionPaused marks an execution stopped at a breakpoint.
	ExecutionPaused ExecutionStatus = "PAUSED"

	// ExecutionCompleted marks a successful terminal state.
	ExecutionCompleted ExecutionStatus = "COMPLETED"

	// ExecutionFailed marks a failed terminal state.
	ExecutionFailed ExecutionStatus = "FAILED"

	// ExecutionCancelled marks a caller-cancelled terminal state.
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Terminal reports whether s is absorbing: once an execution reaches a
// terminal status it never transitions again.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// NodeStatus is the lifecycle status of a single node within an execution.
type NodeStatus string

const (
	// NodePending marks a node not yet reached by the runner.
	NodePending NodeStatus = "PENDING"

	// NodeRunning marks a node whose executor is being invoked.
	NodeRunning NodeStatus = "RUNNING"

	// NodePaused marks the node the execution is stopped in front of.
	// At most one node per execution is paused at any time.
	NodePaused NodeStatus = "PAUSED"

	// NodeCompleted marks a node that produced its output.
	NodeCompleted NodeStatus = "COMPLETED"

	// NodeFailed marks a node whose executor returned an error.
	NodeFailed NodeStatus = "FAILED"

	// NodeSkipped marks a node deliberately not executed.
	NodeSkipped NodeStatus = "SKIPPED"
)

// Terminal reports whether s is a final node status.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeCompleted, NodeFailed, NodeSkipped:
		return true
	}
	return false
}

// Workflow is a stored user-authored graph. UserID is the sole
// authorization predicate: a workflow is visible only to its owner.
type Workflow struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Nodes     []dag.Node `json:"nodes"`
	Edges     []dag.Edge `json:"edges"`
	CreatedAt time.Time  `json:"created_at"`
}

// Execution is one run of a workflow.
//
// Description:
//
//	Created PENDING (via the RUNNING-then-overwrite convention of
//	CreateExecution), an execution moves through RUNNING and possibly
//	PAUSED, and terminates in exactly one of COMPLETED, FAILED or
//	CANCELLED. TotalCost accumulates the cost reported by completed nodes.
type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	UserID       string          `json:"user_id"`
	Status       ExecutionStatus `json:"status"`
	TotalCost    float64         `json:"total_cost"`
	ErrorMessage string          `json:"error_message,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NodeExecution is the per-node record within an execution.
//
// Description:
//
//	One record exists for every node in the executable subgraph, created
//	when the execution is created and frozen as a set thereafter. Seq is
//	the node's position in the execution order; stores return node
//	executions sorted by it.
type NodeExecution struct {
	ID           string         `json:"id"`
	ExecutionID  string         `json:"execution_id"`
	NodeID       string         `json:"node_id"`
	NodeType     dag.NodeType   `json:"node_type"`
	Seq          int            `json:"seq"`
	Status       NodeStatus     `json:"status"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Generation is an append-only record of one image-model invocation.
// Written by the image model executor for audit and gallery views; the
// engine itself never reads generations.
type Generation struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	ModelID     string         `json:"model_id"`
	Prompt      string         `json:"prompt"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	ImageURLs   []string       `json:"image_urls"`
	AspectRatio string         `json:"aspect_ratio"`
	Cost        float64        `json:"cost"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ExecutionUpdate carries the mutable fields of an execution. Status is
// required; nil pointers leave the stored value untouched.
type ExecutionUpdate struct {
	Status       ExecutionStatus
	ErrorMessage *string
	TotalCost    *float64
}

// NodeExecutionUpdate carries the mutable fields of a node execution.
// Status is required; nil maps and pointers leave stored values untouched.
type NodeExecutionUpdate struct {
	Status       NodeStatus
	InputData    map[string]any
	OutputData   map[string]any
	ErrorMessage *string
}
