// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/engine"
	"github.com/AleutianAI/AdForge/executors"
	authpkg "github.com/AleutianAI/AdForge/pkg/auth"
	"github.com/AleutianAI/AdForge/storage"
	"github.com/AleutianAI/AdForge/storage/badger"
	"github.com/AleutianAI/AdForge/tasks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testSecret = []byte("routes-test-secret")

// mintToken issues an HS256 access token the way the identity provider
// would.
func mintToken(t *testing.T, userID string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

// newRouter wires the full route tree over an in-memory store and a
// JWT auth provider, exactly as serve does in production.
func newRouter(t *testing.T) (*gin.Engine, *badger.Store) {
	t.Helper()
	store, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := executors.NewRegistry()
	reg.Register(dag.NodeTypeTextInput, &executors.TextInputExecutor{})
	reg.Register(dag.NodeTypePrompt, executors.NewPromptExecutor(nil))
	reg.Register(dag.NodeTypeOutput, executors.NewOutputExecutor(nil))

	supervisor := tasks.NewSupervisor(store, nil, tasks.DefaultConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = supervisor.Shutdown(ctx)
	})

	provider, err := authpkg.NewJWTProvider(testSecret)
	require.NoError(t, err)

	router := gin.New()
	SetupRoutes(router, Deps{
		Auth:       provider,
		Engine:     engine.NewEngine(store, reg, nil),
		Supervisor: supervisor,
		Store:      store,
		Version:    "test",
	})
	return router, store
}

func do(t *testing.T, router *gin.Engine, method, path, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	body := map[string]any{}
	if len(w.Body.Bytes()) > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &body)
	}
	return w, body
}

func TestHealthIsUnauthenticated(t *testing.T) {
	router, _ := newRouter(t)
	w, body := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "adforge", body["service"])
	assert.Equal(t, "test", body["version"])
}

func TestMetricsIsServed(t *testing.T) {
	router, _ := newRouter(t)
	w, _ := do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router, _ := newRouter(t)

	w, _ := do(t, router, http.MethodGet, "/api/models", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, router, http.MethodGet, "/api/models", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenSignedWithWrongSecretIsRejected(t *testing.T) {
	router, _ := newRouter(t)

	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	w, _ := do(t, router, http.MethodGet, "/api/models", forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestModelsList(t *testing.T) {
	router, _ := newRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "user-1"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var models []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &models))
	require.NotEmpty(t, models)
	assert.NotEmpty(t, models[0]["id"])
	assert.NotEmpty(t, models[0]["name"])
}

func TestExecuteThroughFullStack(t *testing.T) {
	router, store := newRouter(t)
	token := mintToken(t, "user-1")

	wf := &storage.Workflow{
		UserID: "user-1",
		Name:   "linear",
		Nodes: []dag.Node{
			{ID: "A", Type: dag.NodeTypeTextInput, Config: map[string]any{"value": "hi"}},
			{ID: "B", Type: dag.NodeTypeOutput},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "A", Target: "B"}},
	}
	require.NoError(t, store.CreateWorkflow(context.Background(), wf))

	w, body := do(t, router, http.MethodPost, "/api/workflows/"+wf.ID+"/execute", token)
	require.Equal(t, http.StatusOK, w.Code)
	execID, _ := body["execution_id"].(string)
	require.NotEmpty(t, execID)

	require.Eventually(t, func() bool {
		w, body := do(t, router, http.MethodGet, "/api/executions/"+execID, token)
		if w.Code != http.StatusOK {
			return false
		}
		exec, _ := body["execution"].(map[string]any)
		return exec != nil && exec["status"] == string(storage.ExecutionCompleted)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestForeignWorkflowLooksMissing(t *testing.T) {
	router, store := newRouter(t)

	wf := &storage.Workflow{
		UserID: "owner",
		Name:   "private",
		Nodes: []dag.Node{
			{ID: "A", Type: dag.NodeTypeTextInput, Config: map[string]any{"value": "hi"}},
			{ID: "B", Type: dag.NodeTypeOutput},
		},
		Edges: []dag.Edge{{ID: "e1", Source: "A", Target: "B"}},
	}
	require.NoError(t, store.CreateWorkflow(context.Background(), wf))

	w, body := do(t, router, http.MethodPost, "/api/workflows/"+wf.ID+"/execute", mintToken(t, "intruder"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, body["error"])
}

func TestUnknownExecutionIs404(t *testing.T) {
	router, _ := newRouter(t)
	token := mintToken(t, "user-1")

	w, body := do(t, router, http.MethodGet, "/api/executions/no-such-id", token)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, body["error"])
}
