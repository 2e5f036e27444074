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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AdForge/engine"
	"github.com/AleutianAI/AdForge/observability"
	"github.com/AleutianAI/AdForge/tasks"
)

// ExecuteWorkflow starts a workflow execution in the background.
//
// Description:
//
//	Prepares the execution synchronously (ownership check, graph
//	analysis, PENDING records) so graph errors surface on the request,
//	then hands the run to the task supervisor and returns immediately.
//	The client polls the execution or opens the websocket to follow
//	progress.
func ExecuteWorkflow(eng *engine.Engine, supervisor *tasks.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		workflowID := c.Param("workflow_id")

		prepared, err := eng.Prepare(c.Request.Context(), workflowID, userID)
		if err != nil {
			slog.Warn("execution prepare failed",
				"workflow_id", workflowID, "error", err)
			recordRequest(observability.EndpointExecute, false)
			writeEngineError(c, observability.EndpointExecute, err)
			return
		}

		// The run outlives this request; the supervisor owns its context.
		err = supervisor.Launch(prepared.ExecutionID, func(ctx context.Context) error {
			_, runErr := eng.Run(ctx, prepared)
			return runErr
		})
		if err != nil {
			slog.Error("failed to launch background execution",
				"execution_id", prepared.ExecutionID, "error", err)
			recordRequest(observability.EndpointExecute, false)
			writeEngineError(c, observability.EndpointExecute, err)
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.ExecutionStarted()
		}
		recordRequest(observability.EndpointExecute, true)
		c.JSON(http.StatusOK, gin.H{
			"execution_id": prepared.ExecutionID,
			"status":       "PENDING",
		})
	}
}

// StepExecution advances a paused execution by exactly one node. The
// call is synchronous: it answers only after the node has completed,
// failed, or the execution re-paused.
func StepExecution(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		executionID := c.Param("execution_id")

		result, err := eng.Step(c.Request.Context(), executionID, userID)
		if err != nil {
			slog.Warn("step failed", "execution_id", executionID, "error", err)
			recordRequest(observability.EndpointStep, false)
			writeEngineError(c, observability.EndpointStep, err)
			return
		}

		recordRequest(observability.EndpointStep, true)
		c.JSON(http.StatusOK, result)
	}
}

// CancelExecution writes the cancellation sentinel for an execution.
// The background runner observes it at its next poll; the response does
// not wait for the runner to stop.
func CancelExecution(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		executionID := c.Param("execution_id")

		result, err := eng.Cancel(c.Request.Context(), executionID, userID)
		if err != nil {
			slog.Warn("cancel failed", "execution_id", executionID, "error", err)
			recordRequest(observability.EndpointCancel, false)
			writeEngineError(c, observability.EndpointCancel, err)
			return
		}

		recordRequest(observability.EndpointCancel, true)
		c.JSON(http.StatusOK, gin.H{
			"execution_id": result.ExecutionID,
			"status":       result.Status,
		})
	}
}

// GetExecution returns an execution and its node history.
func GetExecution(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		executionID := c.Param("execution_id")

		detail, err := eng.Status(c.Request.Context(), executionID, userID)
		if err != nil {
			recordRequest(observability.EndpointStatus, false)
			writeEngineError(c, observability.EndpointStatus, err)
			return
		}

		recordRequest(observability.EndpointStatus, true)
		c.JSON(http.StatusOK, detail)
	}
}
