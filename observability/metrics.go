// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the workflow service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring workflow
// execution operations. Metrics include:
//   - Request counters (by endpoint, status, error type)
//   - Execution outcome counters and duration histograms (by final status)
//   - Active execution and websocket gauges
//   - Generation cost counters (by model)
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "adforge"

// Subsystem for workflow execution metrics
const workflowSubsystem = "workflow"

// WorkflowMetrics holds all Prometheus metrics for workflow execution operations.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring execution volume,
// outcomes, and cost. Initialize once at startup via InitMetrics().
//
// # Fields
//
//   - RequestsTotal: Counter of API requests by endpoint and status
//   - ExecutionsTotal: Counter of finished executions by final status
//   - ExecutionDurationSeconds: Histogram of execution duration by final status
//   - ActiveExecutions: Gauge of executions currently running in the background
//   - ErrorsTotal: Counter of errors by endpoint and type
//   - GenerationCostDollars: Counter of image generation spend by model
//   - WebSocketConnections: Gauge of connected status subscribers
//
// # Thread Safety
//
// All operations are thread-safe.
type WorkflowMetrics struct {
	// RequestsTotal counts API requests by endpoint and status.
	// Labels: endpoint (execute, step, cancel, status, reddit, models), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ExecutionsTotal counts finished executions by final status.
	// Labels: status (COMPLETED, FAILED, CANCELLED)
	ExecutionsTotal *prometheus.CounterVec

	// ExecutionDurationSeconds measures wall-clock execution duration.
	// Labels: status (COMPLETED, FAILED, CANCELLED)
	ExecutionDurationSeconds *prometheus.HistogramVec

	// ActiveExecutions tracks executions currently running in the background.
	ActiveExecutions prometheus.Gauge

	// ErrorsTotal counts errors by endpoint and type.
	// Labels: endpoint, error_code (validation, not_found, unauthorized, execution_error, internal)
	ErrorsTotal *prometheus.CounterVec

	// GenerationCostDollars accumulates image generation spend by model.
	// Labels: model
	GenerationCostDollars *prometheus.CounterVec

	// WebSocketConnections tracks connected execution status subscribers.
	WebSocketConnections prometheus.Gauge
}

// DefaultMetrics is the singleton instance of WorkflowMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *WorkflowMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup, after Prometheus registry is available.
//
// # Outputs
//
//   - *WorkflowMetrics: The initialized metrics instance.
//
// # Examples
//
//	func main() {
//	    observability.InitMetrics()
//	    // ... start server ...
//	}
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
//
// # Assumptions
//
//   - Prometheus default registry is available.
func InitMetrics() *WorkflowMetrics {
	DefaultMetrics = &WorkflowMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "requests_total",
				Help:      "Total number of API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "executions_total",
				Help:      "Total finished executions by final status",
			},
			[]string{"status"},
		),

		ExecutionDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "execution_duration_seconds",
				Help:      "Wall-clock execution duration in seconds by final status",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),

		ActiveExecutions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "active_executions",
				Help:      "Number of executions currently running in the background",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "errors_total",
				Help:      "Total API errors by endpoint and type",
			},
			[]string{"endpoint", "error_code"},
		),

		GenerationCostDollars: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "generation_cost_dollars",
				Help:      "Accumulated image generation spend in dollars by model",
			},
			[]string{"model"},
		),

		WebSocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "websocket_connections",
				Help:      "Number of connected execution status subscribers",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeNotFound indicates a missing or unowned resource.
	ErrorCodeNotFound ErrorCode = "not_found"

	// ErrorCodeUnauthorized indicates missing or invalid credentials.
	ErrorCodeUnauthorized ErrorCode = "unauthorized"

	// ErrorCodeExecution indicates a workflow execution failure.
	ErrorCodeExecution ErrorCode = "execution_error"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents an API endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointExecute starts a workflow execution.
	EndpointExecute Endpoint = "execute"

	// EndpointStep advances a paused execution by one node.
	EndpointStep Endpoint = "step"

	// EndpointCancel requests execution cancellation.
	EndpointCancel Endpoint = "cancel"

	// EndpointStatus reads execution status.
	EndpointStatus Endpoint = "status"

	// EndpointReddit fetches social media trend data.
	EndpointReddit Endpoint = "reddit"

	// EndpointModels lists available image models.
	EndpointModels Endpoint = "models"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed API request.
//
// # Inputs
//
//   - endpoint: The endpoint that handled the request.
//   - success: Whether the request completed successfully.
func (m *WorkflowMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records an API error.
//
// # Inputs
//
//   - endpoint: The endpoint where the error occurred.
//   - code: The error type code.
func (m *WorkflowMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// ExecutionStarted increments the active executions gauge.
func (m *WorkflowMetrics) ExecutionStarted() {
	m.ActiveExecutions.Inc()
}

// ExecutionFinished records an execution reaching a terminal status.
//
// # Inputs
//
//   - status: The final execution status (COMPLETED, FAILED, CANCELLED).
//   - seconds: Wall-clock duration of the execution in seconds.
func (m *WorkflowMetrics) ExecutionFinished(status string, seconds float64) {
	m.ActiveExecutions.Dec()
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDurationSeconds.WithLabelValues(status).Observe(seconds)
}

// RecordGenerationCost accumulates image generation spend.
//
// # Inputs
//
//   - model: The image model identifier.
//   - dollars: Cost of the generation batch in dollars.
func (m *WorkflowMetrics) RecordGenerationCost(model string, dollars float64) {
	m.GenerationCostDollars.WithLabelValues(model).Add(dollars)
}

// SubscriberConnected increments the websocket connections gauge.
func (m *WorkflowMetrics) SubscriberConnected() {
	m.WebSocketConnections.Inc()
}

// SubscriberDisconnected decrements the websocket connections gauge.
func (m *WorkflowMetrics) SubscriberDisconnected() {
	m.WebSocketConnections.Dec()
}
