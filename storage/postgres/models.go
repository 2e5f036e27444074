// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/storage"
)

// Row types mirror the storage records onto relational tables. Opaque
// maps (node config, input/output data, generation parameters) live in
// jsonb columns; the engine never queries inside them.

type workflowRow struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	ID        string     `bun:"id,pk"`
	UserID    string     `bun:"user_id,notnull"`
	Name      string     `bun:"name"`
	Nodes     []dag.Node `bun:"nodes,type:jsonb"`
	Edges     []dag.Edge `bun:"edges,type:jsonb"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
}

type executionRow struct {
	bun.BaseModel `bun:"table:executions,alias:e"`

	ID           string     `bun:"id,pk"`
	WorkflowID   string     `bun:"workflow_id,notnull"`
	UserID       string     `bun:"user_id,notnull"`
	Status       string     `bun:"status,notnull"`
	TotalCost    float64    `bun:"total_cost,notnull,default:0"`
	ErrorMessage string     `bun:"error_message"`
	StartedAt    *time.Time `bun:"started_at"`
	FinishedAt   *time.Time `bun:"finished_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
}

type nodeExecutionRow struct {
	bun.BaseModel `bun:"table:node_executions,alias:ne"`

	ID           string         `bun:"id,pk"`
	ExecutionID  string         `bun:"execution_id,notnull"`
	NodeID       string         `bun:"node_id,notnull"`
	NodeType     string         `bun:"node_type,notnull"`
	Seq          int            `bun:"seq,notnull"`
	Status       string         `bun:"status,notnull"`
	InputData    map[string]any `bun:"input_data,type:jsonb"`
	OutputData   map[string]any `bun:"output_data,type:jsonb"`
	ErrorMessage string         `bun:"error_message"`
	StartedAt    *time.Time     `bun:"started_at"`
	FinishedAt   *time.Time     `bun:"finished_at"`
	CreatedAt    time.Time      `bun:"created_at,notnull"`
}

type generationRow struct {
	bun.BaseModel `bun:"table:generations,alias:g"`

	ID          string         `bun:"id,pk"`
	ExecutionID string         `bun:"execution_id,notnull"`
	ModelID     string         `bun:"model_id,notnull"`
	Prompt      string         `bun:"prompt"`
	Parameters  map[string]any `bun:"parameters,type:jsonb"`
	ImageURLs   []string       `bun:"image_urls,type:jsonb"`
	AspectRatio string         `bun:"aspect_ratio"`
	Cost        float64        `bun:"cost,notnull,default:0"`
	CreatedAt   time.Time      `bun:"created_at,notnull"`
}

func (r *workflowRow) toRecord() *storage.Workflow {
	return &storage.Workflow{
		ID:        r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		Nodes:     r.Nodes,
		Edges:     r.Edges,
		CreatedAt: r.CreatedAt,
	}
}

func workflowFromRecord(wf *storage.Workflow) *workflowRow {
	return &workflowRow{
		ID:        wf.ID,
		UserID:    wf.UserID,
		Name:      wf.Name,
		Nodes:     wf.Nodes,
		Edges:     wf.Edges,
		CreatedAt: wf.CreatedAt,
	}
}

func (r *executionRow) toRecord() *storage.Execution {
	return &storage.Execution{
		ID:           r.ID,
		WorkflowID:   r.WorkflowID,
		UserID:       r.UserID,
		Status:       storage.ExecutionStatus(r.Status),
		TotalCost:    r.TotalCost,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		CreatedAt:    r.CreatedAt,
	}
}

func (r *nodeExecutionRow) toRecord() storage.NodeExecution {
	return storage.NodeExecution{
		ID:           r.ID,
		ExecutionID:  r.ExecutionID,
		NodeID:       r.NodeID,
		NodeType:     dag.NodeType(r.NodeType),
		Seq:          r.Seq,
		Status:       storage.NodeStatus(r.Status),
		InputData:    r.InputData,
		OutputData:   r.OutputData,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		CreatedAt:    r.CreatedAt,
	}
}

func (r *generationRow) toRecord() storage.Generation {
	return storage.Generation{
		ID:          r.ID,
		ExecutionID: r.ExecutionID,
		ModelID:     r.ModelID,
		Prompt:      r.Prompt,
		Parameters:  r.Parameters,
		ImageURLs:   r.ImageURLs,
		AspectRatio: r.AspectRatio,
		Cost:        r.Cost,
		CreatedAt:   r.CreatedAt,
	}
}

func generationFromRecord(gen *storage.Generation) *generationRow {
	return &generationRow{
		ID:          gen.ID,
		ExecutionID: gen.ExecutionID,
		ModelID:     gen.ModelID,
		Prompt:      gen.Prompt,
		Parameters:  gen.Parameters,
		ImageURLs:   gen.ImageURLs,
		AspectRatio: gen.AspectRatio,
		Cost:        gen.Cost,
		CreatedAt:   gen.CreatedAt,
	}
}
