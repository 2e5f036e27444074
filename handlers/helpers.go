// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gin handlers of the AdForge API.
//
// # Description
//
// Every handler is a closure over its collaborators, returned as a
// gin.HandlerFunc and mounted by the routes package. Authenticated
// handlers read the caller's identity from the gin context where the
// auth middleware stored it; a missing identity aborts with 401 before
// any work happens.
//
// Error mapping is deliberately coarse: missing records, records owned
// by another user and structurally invalid workflows all answer 404 so
// responses never reveal whether a resource exists.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/datatypes"
	"github.com/AleutianAI/AdForge/middleware"
	"github.com/AleutianAI/AdForge/observability"
	"github.com/AleutianAI/AdForge/storage"
)

// requireUser returns the authenticated user's ID, aborting with 401
// when the middleware left no identity behind.
func requireUser(c *gin.Context) (string, bool) {
	info := middleware.GetAuthInfo(c)
	if info == nil || info.UserID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, datatypes.ErrorResponse{Error: "unauthorized"})
		return "", false
	}
	return info.UserID, true
}

// writeEngineError maps an engine or store error onto the API contract:
// not-found and invalid-graph both answer 404, everything else 500 with
// a generic message.
func writeEngineError(c *gin.Context, endpoint observability.Endpoint, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		recordError(endpoint, observability.ErrorCodeNotFound)
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
	case dag.IsInvalidGraph(err):
		recordError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
	default:
		recordError(endpoint, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "internal error"})
	}
}

func recordRequest(endpoint observability.Endpoint, success bool) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, success)
	}
}

func recordError(endpoint observability.Endpoint, code observability.ErrorCode) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, code)
	}
}
