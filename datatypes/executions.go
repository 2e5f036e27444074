// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the HTTP wire types of the AdForge API.
package datatypes

// ErrorResponse is the uniform error body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// NodeStatusFrame is one node's status inside a websocket snapshot.
type NodeStatusFrame struct {
	NodeID string `json:"node_id"`
	Status string `json:"status"`
}

// ExecutionStatusFrame is the websocket snapshot pushed to execution
// watchers until the execution reaches a terminal status.
type ExecutionStatusFrame struct {
	ExecutionID string            `json:"execution_id"`
	Status      string            `json:"status"`
	TotalCost   float64           `json:"total_cost"`
	Nodes       []NodeStatusFrame `json:"nodes"`
}
