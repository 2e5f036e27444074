// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/engine"
	"github.com/AleutianAI/AdForge/executors"
	"github.com/AleutianAI/AdForge/middleware"
	"github.com/AleutianAI/AdForge/pkg/extensions"
	"github.com/AleutianAI/AdForge/storage"
	"github.com/AleutianAI/AdForge/storage/badger"
	"github.com/AleutianAI/AdForge/tasks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// authAs injects a fixed identity the way the auth middleware would.
func authAs(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != "" {
			middleware.SetAuthInfo(c, &extensions.AuthInfo{UserID: userID})
		}
		c.Next()
	}
}

type fixture struct {
	store      *badger.Store
	engine     *engine.Engine
	supervisor *tasks.Supervisor
}

func newFixture(t *testing.T, reg *executors.Registry) *fixture {
	t.Helper()
	s, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	if reg == nil {
		reg = executors.NewRegistry()
		reg.Register(dag.NodeTypeTextInput, &executors.TextInputExecutor{})
		reg.Register(dag.NodeTypePrompt, executors.NewPromptExecutor(nil))
		reg.Register(dag.NodeTypeOutput, executors.NewOutputExecutor(nil))
	}

	sup := tasks.NewSupervisor(s, nil, tasks.DefaultConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx)
	})

	return &fixture{
		store:      s,
		engine:     engine.NewEngine(s, reg, nil),
		supervisor: sup,
	}
}

func (f *fixture) router(userID string) *gin.Engine {
	r := gin.New()
	api := r.Group("/api", authAs(userID))
	api.POST("/workflows/:workflow_id/execute", ExecuteWorkflow(f.engine, f.supervisor))
	api.POST("/executions/:execution_id/step", StepExecution(f.engine))
	api.POST("/executions/:execution_id/cancel", CancelExecution(f.engine))
	api.GET("/executions/:execution_id", GetExecution(f.engine))
	return r
}

func (f *fixture) createLinearWorkflow(t *testing.T, userID string, breakpointOn string) *storage.Workflow {
	t.Helper()
	wf := &storage.Workflow{
		UserID: userID,
		Name:   "linear",
		Nodes: []dag.Node{
			{ID: "A", Type: dag.NodeTypeTextInput, Config: map[string]any{"value": "hi"}},
			{ID: "B", Type: dag.NodeTypePrompt, Config: map[string]any{"template": "{{text}}!"}, HasBreakpoint: breakpointOn == "B"},
			{ID: "C", Type: dag.NodeTypeOutput},
		},
		Edges: []dag.Edge{
			{ID: "e1", Source: "A", Target: "B"},
			{ID: "e2", Source: "B", Target: "C"},
		},
	}
	require.NoError(t, f.store.CreateWorkflow(context.Background(), wf))
	return wf
}

func doJSON(t *testing.T, r *gin.Engine, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := map[string]any{}
	if len(w.Body.Bytes()) > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &body)
	}
	return w, body
}

func doJSONBody(t *testing.T, r *gin.Engine, method, path, payload string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	body := map[string]any{}
	if len(w.Body.Bytes()) > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &body)
	}
	return w, body
}

func (f *fixture) waitForStatus(t *testing.T, executionID string, want storage.ExecutionStatus) *storage.Execution {
	t.Helper()
	var exec *storage.Execution
	require.Eventually(t, func() bool {
		var err error
		exec, err = f.store.GetExecution(context.Background(), executionID)
		return err == nil && exec.Status == want
	}, 3*time.Second, 10*time.Millisecond, "execution never reached %s", want)
	return exec
}

func TestExecuteWorkflow_RunsToCompletion(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.createLinearWorkflow(t, "user-1", "")
	r := f.router("user-1")

	w, body := doJSON(t, r, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PENDING", body["status"])
	executionID, _ := body["execution_id"].(string)
	require.NotEmpty(t, executionID)

	f.waitForStatus(t, executionID, storage.ExecutionCompleted)

	records, err := f.store.GetNodeExecutions(context.Background(), executionID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, storage.NodeCompleted, rec.Status, rec.NodeID)
	}
}

func TestExecuteWorkflow_UnknownWorkflowIs404(t *testing.T) {
	f := newFixture(t, nil)
	r := f.router("user-1")

	w, _ := doJSON(t, r, http.MethodPost, "/api/workflows/nope/execute")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecuteWorkflow_ForeignWorkflowIs404(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.createLinearWorkflow(t, "owner", "")
	r := f.router("intruder")

	w, _ := doJSON(t, r, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecuteWorkflow_CyclicGraphIs404(t *testing.T) {
	f := newFixture(t, nil)
	wf := &storage.Workflow{
		UserID: "user-1",
		Name:   "cyclic",
		Nodes: []dag.Node{
			{ID: "A", Type: dag.NodeTypeTextInput},
			{ID: "B", Type: dag.NodeTypePrompt},
			{ID: "C", Type: dag.NodeTypeOutput},
		},
		Edges: []dag.Edge{
			{ID: "e1", Source: "A", Target: "B"},
			{ID: "e2", Source: "B", Target: "A"},
			{ID: "e3", Source: "A", Target: "C"},
		},
	}
	require.NoError(t, f.store.CreateWorkflow(context.Background(), wf))
	r := f.router("user-1")

	w, body := doJSON(t, r, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, body["error"], "cycle")
}

func TestExecuteWorkflow_MissingIdentityIs401(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.createLinearWorkflow(t, "user-1", "")
	r := f.router("")

	w, _ := doJSON(t, r, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStepExecution_BreakpointProtocol(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.createLinearWorkflow(t, "user-1", "B")
	r := f.router("user-1")

	w, body := doJSON(t, r, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	require.Equal(t, http.StatusOK, w.Code)
	executionID := body["execution_id"].(string)

	f.waitForStatus(t, executionID, storage.ExecutionPaused)

	// First step consumes the breakpoint on B and re-pauses at C.
	w, body = doJSON(t, r, http.MethodPost, "/api/executions/"+executionID+"/step")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(storage.ExecutionPaused), body["status"])
	assert.Equal(t, "C", body["current_node_id"])

	// Second step runs C and completes the execution.
	w, body = doJSON(t, r, http.MethodPost, "/api/executions/"+executionID+"/step")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(storage.ExecutionCompleted), body["status"])

	records, err := f.store.GetNodeExecutions(context.Background(), executionID)
	require.NoError(t, err)
	for _, rec := range records {
		assert.Equal(t, storage.NodeCompleted, rec.Status, rec.NodeID)
	}
}

func TestStepExecution_NonPausedIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.createLinearWorkflow(t, "user-1", "")
	r := f.router("user-1")

	_, body := doJSON(t, r, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	executionID := body["execution_id"].(string)
	f.waitForStatus(t, executionID, storage.ExecutionCompleted)

	w, body := doJSON(t, r, http.MethodPost, "/api/executions/"+executionID+"/step")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(storage.ExecutionCompleted), body["status"])
}

func TestStepExecution_UnknownExecutionIs404(t *testing.T) {
	f := newFixture(t, nil)
	r := f.router("user-1")

	w, _ := doJSON(t, r, http.MethodPost, "/api/executions/nope/step")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelExecution_MidRun(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	reg := executors.NewRegistry()
	reg.Register(dag.NodeTypeTextInput, &executors.TextInputExecutor{})
	reg.Register(dag.NodeTypePrompt, slowExecutor{started: started, release: release})
	reg.Register(dag.NodeTypeOutput, executors.NewOutputExecutor(nil))

	f := newFixture(t, reg)
	wf := f.createLinearWorkflow(t, "user-1", "")
	r := f.router("user-1")

	_, body := doJSON(t, r, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	executionID := body["execution_id"].(string)

	<-started
	w, cancelBody := doJSON(t, r, http.MethodPost, "/api/executions/"+executionID+"/cancel")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(storage.ExecutionCancelled), cancelBody["status"])
	close(release)

	exec := f.waitForStatus(t, executionID, storage.ExecutionCancelled)
	assert.Equal(t, storage.ExecutionCancelled, exec.Status)

	// The node after the in-flight one was never touched.
	records, err := f.store.GetNodeExecutions(context.Background(), executionID)
	require.NoError(t, err)
	c := recordFor(records, "C")
	require.NotNil(t, c)
	assert.Equal(t, storage.NodePending, c.Status)
}

func TestCancelExecution_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.createLinearWorkflow(t, "user-1", "")
	r := f.router("user-1")

	_, body := doJSON(t, r, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	executionID := body["execution_id"].(string)
	f.waitForStatus(t, executionID, storage.ExecutionCompleted)

	for i := 0; i < 2; i++ {
		w, cancelBody := doJSON(t, r, http.MethodPost, "/api/executions/"+executionID+"/cancel")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, string(storage.ExecutionCancelled), cancelBody["status"])
	}

	// COMPLETED is absorbing; the cancel writes were dropped.
	exec, err := f.store.GetExecution(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionCompleted, exec.Status)
}

func TestGetExecution_Detail(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.createLinearWorkflow(t, "user-1", "")
	r := f.router("user-1")

	_, body := doJSON(t, r, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	executionID := body["execution_id"].(string)
	f.waitForStatus(t, executionID, storage.ExecutionCompleted)

	w, detail := doJSON(t, r, http.MethodGet, "/api/executions/"+executionID)
	require.Equal(t, http.StatusOK, w.Code)

	exec, ok := detail["execution"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(storage.ExecutionCompleted), exec["status"])
	nodes, ok := detail["node_executions"].([]any)
	require.True(t, ok)
	assert.Len(t, nodes, 3)
}

func TestGetExecution_ForeignIs404(t *testing.T) {
	f := newFixture(t, nil)
	wf := f.createLinearWorkflow(t, "owner", "")
	owner := f.router("owner")

	_, body := doJSON(t, owner, http.MethodPost, "/api/workflows/"+wf.ID+"/execute")
	executionID := body["execution_id"].(string)
	f.waitForStatus(t, executionID, storage.ExecutionCompleted)

	intruder := f.router("intruder")
	w, _ := doJSON(t, intruder, http.MethodGet, "/api/executions/"+executionID)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// slowExecutor blocks until released so tests can cancel mid-node.
type slowExecutor struct {
	started chan struct{}
	release chan struct{}
}

func (s slowExecutor) Execute(ctx context.Context, inputs map[string]map[string]any, config map[string]any, ec *executors.Context) (map[string]any, error) {
	select {
	case s.started <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return map[string]any{"prompt": "slow"}, nil
}

func (s slowExecutor) ValidateConfig(map[string]any) bool { return true }

func recordFor(records []storage.NodeExecution, nodeID string) *storage.NodeExecution {
	for i := range records {
		if records[i].NodeID == nodeID {
			return &records[i]
		}
	}
	return nil
}
