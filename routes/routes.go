// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes mounts the AdForge HTTP API onto a gin engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AdForge/engine"
	"github.com/AleutianAI/AdForge/handlers"
	"github.com/AleutianAI/AdForge/middleware"
	"github.com/AleutianAI/AdForge/pkg/extensions"
	"github.com/AleutianAI/AdForge/reddit"
	"github.com/AleutianAI/AdForge/storage"
	"github.com/AleutianAI/AdForge/tasks"
)

// Deps carries everything the route tree needs. Engine, Supervisor and
// Store must be set; RedditClient may be nil when the social endpoint
// is not wanted.
type Deps struct {
	Auth         extensions.AuthProvider
	Engine       *engine.Engine
	Supervisor   *tasks.Supervisor
	Store        storage.Store
	RedditClient *reddit.Client
	Version      string
}

// SetupRoutes registers every endpoint of the service.
//
// Health and metrics are unauthenticated; everything under /api goes
// through the bearer-token middleware.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck(deps.Version))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(deps.Auth))
	{
		api.POST("/workflows/:workflow_id/execute", handlers.ExecuteWorkflow(deps.Engine, deps.Supervisor))

		executions := api.Group("/executions")
		{
			executions.POST("/:execution_id/step", handlers.StepExecution(deps.Engine))
			executions.POST("/:execution_id/cancel", handlers.CancelExecution(deps.Engine))
			executions.GET("/:execution_id", handlers.GetExecution(deps.Engine))
			executions.GET("/:execution_id/ws", handlers.ExecutionWebSocket(deps.Store))
		}

		if deps.RedditClient != nil {
			api.POST("/social/reddit", handlers.RedditTrends(deps.RedditClient))
		}
		api.GET("/models", handlers.ListModels())
	}
}
