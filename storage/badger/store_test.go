// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWorkflowOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := &storage.Workflow{
		UserID: "user-1",
		Name:   "banner pipeline",
		Nodes:  []dag.Node{{ID: "n1", Type: dag.NodeTypeTextInput}},
	}
	require.NoError(t, s.CreateWorkflow(ctx, wf))
	require.NotEmpty(t, wf.ID)
	require.False(t, wf.CreatedAt.IsZero())

	got, err := s.GetWorkflow(ctx, wf.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "banner pipeline", got.Name)
	assert.Len(t, got.Nodes, 1)

	_, err = s.GetWorkflow(ctx, wf.ID, "user-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetWorkflow(ctx, "missing", "user-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateExecutionDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exec, err := s.CreateExecution(ctx, "wf-1", "user-1")
	require.NoError(t, err)

	assert.NotEmpty(t, exec.ID)
	assert.Equal(t, storage.ExecutionRunning, exec.Status)
	require.NotNil(t, exec.StartedAt)
	assert.Nil(t, exec.FinishedAt)

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, got.ID)
	assert.Equal(t, "wf-1", got.WorkflowID)
}

func TestGetExecutionForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exec, err := s.CreateExecution(ctx, "wf-1", "user-1")
	require.NoError(t, err)

	_, err = s.GetExecutionForUser(ctx, exec.ID, "user-1")
	require.NoError(t, err)

	_, err = s.GetExecutionForUser(ctx, exec.ID, "intruder")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateExecutionStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exec, err := s.CreateExecution(ctx, "wf-1", "user-1")
	require.NoError(t, err)

	// Controller resets the freshly created execution to PENDING before
	// handing it to the background runner.
	require.NoError(t, s.UpdateExecutionStatus(ctx, exec.ID, storage.ExecutionUpdate{
		Status: storage.ExecutionPending,
	}))
	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionPending, got.Status)

	cost := 0.006
	require.NoError(t, s.UpdateExecutionStatus(ctx, exec.ID, storage.ExecutionUpdate{
		Status:    storage.ExecutionCompleted,
		TotalCost: &cost,
	}))
	got, err = s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionCompleted, got.Status)
	assert.InDelta(t, 0.006, got.TotalCost, 1e-9)
	require.NotNil(t, got.FinishedAt)
}

func TestTerminalStatusAbsorbs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exec, err := s.CreateExecution(ctx, "wf-1", "user-1")
	require.NoError(t, err)

	require.NoError(t, s.UpdateExecutionStatus(ctx, exec.ID, storage.ExecutionUpdate{
		Status: storage.ExecutionCancelled,
	}))

	// A runner finishing after cancellation must not flip the status.
	msg := "model call failed"
	require.NoError(t, s.UpdateExecutionStatus(ctx, exec.ID, storage.ExecutionUpdate{
		Status:       storage.ExecutionFailed,
		ErrorMessage: &msg,
	}))

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionCancelled, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestNodeExecutionsOrderAndUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exec, err := s.CreateExecution(ctx, "wf-1", "user-1")
	require.NoError(t, err)

	nodes := []dag.Node{
		{ID: "text-1", Type: dag.NodeTypeTextInput},
		{ID: "prompt-1", Type: dag.NodeTypePrompt},
		{ID: "out-1", Type: dag.NodeTypeOutput},
	}
	require.NoError(t, s.CreateNodeExecutions(ctx, exec.ID, nodes))

	recs, err := s.GetNodeExecutions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, i, rec.Seq)
		assert.Equal(t, nodes[i].ID, rec.NodeID)
		assert.Equal(t, storage.NodePending, rec.Status)
	}

	require.NoError(t, s.UpdateNodeExecution(ctx, exec.ID, "prompt-1", storage.NodeExecutionUpdate{
		Status:    storage.NodeRunning,
		InputData: map[string]any{"text": "espresso machine"},
	}))
	require.NoError(t, s.UpdateNodeExecution(ctx, exec.ID, "prompt-1", storage.NodeExecutionUpdate{
		Status:     storage.NodeCompleted,
		OutputData: map[string]any{"prompt": "espresso machine, studio lighting"},
	}))

	recs, err = s.GetNodeExecutions(ctx, exec.ID)
	require.NoError(t, err)
	rec := recs[1]
	assert.Equal(t, storage.NodeCompleted, rec.Status)
	assert.Equal(t, "espresso machine", rec.InputData["text"])
	assert.Equal(t, "espresso machine, studio lighting", rec.OutputData["prompt"])
	require.NotNil(t, rec.StartedAt)
	require.NotNil(t, rec.FinishedAt)
	assert.False(t, rec.FinishedAt.Before(*rec.StartedAt))

	err = s.UpdateNodeExecution(ctx, exec.ID, "missing-node", storage.NodeExecutionUpdate{
		Status: storage.NodeRunning,
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGenerationsListedInCreationOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &storage.Generation{
		ExecutionID: "exec-1",
		ModelID:     "fal-ai/flux/schnell",
		Prompt:      "first",
		Cost:        0.003,
	}
	require.NoError(t, s.CreateGeneration(ctx, first))

	second := &storage.Generation{
		ExecutionID: "exec-1",
		ModelID:     "fal-ai/nano-banana",
		Prompt:      "second",
		Cost:        0.003,
	}
	require.NoError(t, s.CreateGeneration(ctx, second))

	gens, err := s.ListGenerations(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.Equal(t, "first", gens[0].Prompt)
	assert.Equal(t, "second", gens[1].Prompt)

	gens, err = s.ListGenerations(ctx, "exec-other")
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestCancelledContextRejected(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CreateExecution(ctx, "wf-1", "user-1")
	assert.Error(t, err)
}
