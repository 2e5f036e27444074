// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/executors"
	"github.com/AleutianAI/AdForge/storage"
)

var (
	tracer = otel.Tracer("adforge.engine")
	meter  = otel.Meter("adforge.engine")
)

// NodeError marks an error as raised by a specific node's executor.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Result is the outcome of a run or a step. It mirrors directly into
// the HTTP execution responses.
type Result struct {
	ExecutionID   string                  `json:"execution_id"`
	Status        storage.ExecutionStatus `json:"status"`
	CurrentNodeID string                  `json:"current_node_id,omitempty"`
	ErrorMessage  string                  `json:"error_message,omitempty"`
}

// Runner drives the node execution loop of a single execution.
//
// Description:
//
//	Runner has two entry points. Run walks the execution order from a
//	start index, pausing at breakpoints and polling for cancellation
//	before and after every node. Step executes exactly one node (the one
//	the execution is paused in front of), then pauses at the next node
//	or completes. Both reconstruct prior state from the store first, so
//	a resumed execution never re-executes completed nodes.
//
//	All failure paths converge in handleFailure: the offending node and
//	the execution are both marked FAILED with the executor's message,
//	and the structured result carries the same message. Expected node
//	failures never escape as errors; a non-nil error from Run or Step
//	means the store itself rejected the failure writes.
//
// Thread Safety:
//
//	Runner is safe for concurrent use. Concurrent executions share only
//	the store and the registry.
type Runner struct {
	store    storage.Store
	registry *executors.Registry
	logger   *slog.Logger

	// Metrics (initialized lazily)
	metricsOnce   sync.Once
	nodeLatency   metric.Float64Histogram
	nodeSuccesses metric.Int64Counter
	nodeFailures  metric.Int64Counter
	runLatency    metric.Float64Histogram
	activeRuns    metric.Int64UpDownCounter
}

// NewRunner creates a runner over a store and an executor registry.
//
// Inputs:
//
//	store - Persistence for executions and node executions. Must not be nil.
//	registry - Executor registry for dispatch. Must not be nil.
//	logger - Logger for execution logs. If nil, uses slog.Default().
func NewRunner(store storage.Store, registry *executors.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution (graceful degradation).
func (r *Runner) initMetrics() {
	r.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		r.nodeLatency, err = meter.Float64Histogram("workflow_node_duration_seconds",
			metric.WithDescription("Time spent executing each workflow node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		r.nodeSuccesses, err = meter.Int64Counter("workflow_node_success_total",
			metric.WithDescription("Number of successful node executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_successes: "+err.Error())
		}

		r.nodeFailures, err = meter.Int64Counter("workflow_node_failure_total",
			metric.WithDescription("Number of failed node executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_failures: "+err.Error())
		}

		r.runLatency, err = meter.Float64Histogram("workflow_run_duration_seconds",
			metric.WithDescription("Total execution run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		r.activeRuns, err = meter.Int64UpDownCounter("workflow_active_executions",
			metric.WithDescription("Number of currently running executions"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_runs: "+err.Error())
		}

		if len(initErrors) > 0 {
			r.logger.Error("failed to initialize some engine metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run walks the execution order from startIndex to the end.
//
// Description:
//
//	Per iteration, in this exact order: poll for cancellation; pause if
//	the node carries a breakpoint (when pauseOnBreakpoints is set);
//	execute the node through runNode; accumulate its cost; poll for
//	cancellation again. After the loop a final poll precedes the
//	COMPLETED write, so a cancel always beats the terminal write.
//
// Inputs:
//
//	ctx - Context for store and executor calls.
//	a - Analysis of the workflow being executed.
//	executionID - Execution being driven.
//	userID - Owner, passed through to executor contexts.
//	startIndex - Position in the execution order to start from.
//	pauseOnBreakpoints - Honor node breakpoints when true.
//
// Outputs:
//
//	Result - Terminal or paused outcome, including any error message.
//	error - Non-nil only when the failure writes themselves failed.
func (r *Runner) Run(ctx context.Context, a *dag.Analysis, executionID, userID string, startIndex int, pauseOnBreakpoints bool) (Result, error) {
	r.initMetrics()

	ctx, span := tracer.Start(ctx, "engine.Run",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.Int("execution.node_count", len(a.Order)),
			attribute.Int("execution.start_index", startIndex),
		),
	)
	defer span.End()

	if r.activeRuns != nil {
		r.activeRuns.Add(ctx, 1)
		defer r.activeRuns.Add(ctx, -1)
	}
	start := time.Now()

	r.logger.Info("execution started",
		slog.String("execution_id", executionID),
		slog.Int("nodes", len(a.Order)),
		slog.Int("start_index", startIndex),
	)

	records, err := r.store.GetNodeExecutions(ctx, executionID)
	if err != nil {
		return r.handleFailure(ctx, span, executionID, "", err)
	}
	outputs, totalCost := loadOutputs(records)

	// Flip the PENDING record to RUNNING. Harmless when the execution
	// was cancelled before we got here: terminal statuses absorb the
	// write and the first poll below observes CANCELLED.
	if err := r.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionUpdate{Status: storage.ExecutionRunning}); err != nil {
		return r.handleFailure(ctx, span, executionID, "", err)
	}

	currentNodeID := ""
	for idx := startIndex; idx < len(a.Order); idx++ {
		stopped, err := r.cancelled(ctx, executionID)
		if err != nil {
			return r.handleFailure(ctx, span, executionID, currentNodeID, err)
		}
		if stopped {
			span.SetStatus(codes.Error, "cancelled by user")
			return r.cancelledResult(executionID), nil
		}

		node := a.NodeAt(idx)
		currentNodeID = node.ID

		if pauseOnBreakpoints && node.HasBreakpoint {
			if err := r.pause(ctx, executionID, node.ID); err != nil {
				return r.handleFailure(ctx, span, executionID, currentNodeID, err)
			}
			span.SetStatus(codes.Ok, "")
			r.logger.Info("execution paused at breakpoint",
				slog.String("execution_id", executionID),
				slog.String("node_id", node.ID),
			)
			return Result{ExecutionID: executionID, Status: storage.ExecutionPaused, CurrentNodeID: node.ID}, nil
		}

		output, err := r.runNode(ctx, a, executionID, userID, node, outputs)
		if err != nil {
			return r.handleFailure(ctx, span, executionID, currentNodeID, err)
		}
		outputs[node.ID] = output
		if c, ok := costOf(output); ok {
			totalCost += c
		}

		stopped, err = r.cancelled(ctx, executionID)
		if err != nil {
			return r.handleFailure(ctx, span, executionID, currentNodeID, err)
		}
		if stopped {
			span.SetStatus(codes.Error, "cancelled by user")
			return r.cancelledResult(executionID), nil
		}
	}

	stopped, err := r.cancelled(ctx, executionID)
	if err != nil {
		return r.handleFailure(ctx, span, executionID, currentNodeID, err)
	}
	if stopped {
		span.SetStatus(codes.Error, "cancelled by user")
		return r.cancelledResult(executionID), nil
	}

	if err := r.complete(ctx, executionID, totalCost); err != nil {
		return r.handleFailure(ctx, span, executionID, currentNodeID, err)
	}

	duration := time.Since(start)
	if r.runLatency != nil {
		r.runLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("status", string(storage.ExecutionCompleted))),
		)
	}
	span.SetStatus(codes.Ok, "")
	r.logger.Info("execution completed",
		slog.String("execution_id", executionID),
		slog.Duration("duration", duration),
		slog.Float64("total_cost", totalCost),
	)
	return Result{ExecutionID: executionID, Status: storage.ExecutionCompleted}, nil
}

// Step executes exactly one node and re-pauses or completes.
//
// Description:
//
//	startIndex is the position of the currently paused node. The pause
//	is consumed: the node executes even though its own breakpoint is
//	set. On success, when a next node exists it is marked PAUSED and the
//	execution pauses in front of it regardless of its breakpoint;
//	otherwise the execution completes with its accumulated cost.
func (r *Runner) Step(ctx context.Context, a *dag.Analysis, executionID, userID string, startIndex int) (Result, error) {
	r.initMetrics()

	node := a.NodeAt(startIndex)

	ctx, span := tracer.Start(ctx, "engine.Step",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("node.id", node.ID),
		),
	)
	defer span.End()

	records, err := r.store.GetNodeExecutions(ctx, executionID)
	if err != nil {
		return r.handleFailure(ctx, span, executionID, node.ID, err)
	}
	outputs, totalCost := loadOutputs(records)

	stopped, err := r.cancelled(ctx, executionID)
	if err != nil {
		return r.handleFailure(ctx, span, executionID, node.ID, err)
	}
	if stopped {
		span.SetStatus(codes.Error, "cancelled by user")
		return r.cancelledResult(executionID), nil
	}

	if err := r.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionUpdate{Status: storage.ExecutionRunning}); err != nil {
		return r.handleFailure(ctx, span, executionID, node.ID, err)
	}

	output, err := r.runNode(ctx, a, executionID, userID, node, outputs)
	if err != nil {
		return r.handleFailure(ctx, span, executionID, node.ID, err)
	}
	if c, ok := costOf(output); ok {
		totalCost += c
	}

	stopped, err = r.cancelled(ctx, executionID)
	if err != nil {
		return r.handleFailure(ctx, span, executionID, node.ID, err)
	}
	if stopped {
		span.SetStatus(codes.Error, "cancelled by user")
		return r.cancelledResult(executionID), nil
	}

	next := startIndex + 1
	if next >= len(a.Order) {
		stopped, err = r.cancelled(ctx, executionID)
		if err != nil {
			return r.handleFailure(ctx, span, executionID, node.ID, err)
		}
		if stopped {
			span.SetStatus(codes.Error, "cancelled by user")
			return r.cancelledResult(executionID), nil
		}

		if err := r.complete(ctx, executionID, totalCost); err != nil {
			return r.handleFailure(ctx, span, executionID, node.ID, err)
		}
		span.SetStatus(codes.Ok, "")
		r.logger.Info("execution completed",
			slog.String("execution_id", executionID),
			slog.Float64("total_cost", totalCost),
		)
		return Result{ExecutionID: executionID, Status: storage.ExecutionCompleted}, nil
	}

	nextNodeID := a.Order[next]
	if err := r.pause(ctx, executionID, nextNodeID); err != nil {
		return r.handleFailure(ctx, span, executionID, node.ID, err)
	}
	span.SetStatus(codes.Ok, "")
	r.logger.Info("execution paused",
		slog.String("execution_id", executionID),
		slog.String("node_id", nextNodeID),
	)
	return Result{ExecutionID: executionID, Status: storage.ExecutionPaused, CurrentNodeID: nextNodeID}, nil
}

// runNode executes a single node with observability.
//
// Description:
//
//	The persisted sequence is fixed: the node execution goes RUNNING
//	with its input bundle before the executor is invoked, and COMPLETED
//	with its output (or FAILED with the error message) after. Image
//	model nodes additionally receive the config of their downstream
//	OUTPUT node so user-set num_images and aspect_ratio take effect.
func (r *Runner) runNode(ctx context.Context, a *dag.Analysis, executionID, userID string, node dag.Node, outputs map[string]map[string]any) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "engine.RunNode",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("node.id", node.ID),
			attribute.String("node.type", string(node.Type)),
		),
	)
	defer span.End()

	inputs, sources := GatherInputs(a, node.ID, outputs)

	if err := r.store.UpdateNodeExecution(ctx, executionID, node.ID, storage.NodeExecutionUpdate{
		Status:    storage.NodeRunning,
		InputData: inputData(inputs),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ec := &executors.Context{ExecutionID: executionID, UserID: userID, Sources: sources}
	if node.Type == dag.NodeTypeImageModel {
		if cfg := outputConfigFor(a, node.ID); len(cfg) > 0 {
			ec.OutputConfig = cfg
		}
	}

	r.logger.Debug("node starting",
		slog.String("execution_id", executionID),
		slog.String("node_id", node.ID),
		slog.String("node_type", string(node.Type)),
	)

	start := time.Now()
	output, err := r.registry.Dispatch(ctx, node.Type, inputs, node.Config, ec)
	duration := time.Since(start)

	if r.nodeLatency != nil {
		r.nodeLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("node_type", string(node.Type))),
		)
	}

	if err != nil {
		if r.nodeFailures != nil {
			r.nodeFailures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("node_type", string(node.Type))),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		msg := err.Error()
		if uerr := r.store.UpdateNodeExecution(ctx, executionID, node.ID, storage.NodeExecutionUpdate{
			Status:       storage.NodeFailed,
			ErrorMessage: &msg,
		}); uerr != nil {
			r.logger.Error("failed to record node failure",
				slog.String("execution_id", executionID),
				slog.String("node_id", node.ID),
				slog.String("error", uerr.Error()),
			)
		}

		r.logger.Error("node failed",
			slog.String("execution_id", executionID),
			slog.String("node_id", node.ID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, &NodeError{NodeID: node.ID, Err: err}
	}

	if err := r.store.UpdateNodeExecution(ctx, executionID, node.ID, storage.NodeExecutionUpdate{
		Status:     storage.NodeCompleted,
		OutputData: output,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if r.nodeSuccesses != nil {
		r.nodeSuccesses.Add(ctx, 1,
			metric.WithAttributes(attribute.String("node_type", string(node.Type))),
		)
	}
	span.SetStatus(codes.Ok, "")

	r.logger.Debug("node completed",
		slog.String("execution_id", executionID),
		slog.String("node_id", node.ID),
		slog.Duration("duration", duration),
	)
	return output, nil
}

// cancelled re-reads the execution record and reports whether an
// external cancel has been persisted.
func (r *Runner) cancelled(ctx context.Context, executionID string) (bool, error) {
	exec, err := r.store.GetExecution(ctx, executionID)
	if err != nil {
		return false, fmt.Errorf("poll cancellation: %w", err)
	}
	return exec.Status == storage.ExecutionCancelled, nil
}

func (r *Runner) cancelledResult(executionID string) Result {
	r.logger.Info("execution cancelled",
		slog.String("execution_id", executionID),
	)
	return Result{ExecutionID: executionID, Status: storage.ExecutionCancelled}
}

// pause marks a node execution PAUSED and then the execution PAUSED, in
// that order, so an observer never sees a paused execution without its
// paused node.
func (r *Runner) pause(ctx context.Context, executionID, nodeID string) error {
	if err := r.store.UpdateNodeExecution(ctx, executionID, nodeID, storage.NodeExecutionUpdate{Status: storage.NodePaused}); err != nil {
		return err
	}
	return r.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionUpdate{Status: storage.ExecutionPaused})
}

// complete writes the terminal COMPLETED status with the final cost.
// The write is dropped by the store when a cancel already landed.
func (r *Runner) complete(ctx context.Context, executionID string, totalCost float64) error {
	return r.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionUpdate{
		Status:    storage.ExecutionCompleted,
		TotalCost: &totalCost,
	})
}

// handleFailure converges every failure path: the offending node (when
// known) and the execution are marked FAILED with the same message, and
// the result carries it. A non-nil error means even these writes failed
// and is surfaced to the supervisor.
func (r *Runner) handleFailure(ctx context.Context, span trace.Span, executionID, nodeID string, cause error) (Result, error) {
	msg := failureMessage(cause)
	span.RecordError(cause)
	span.SetStatus(codes.Error, msg)

	r.logger.Error("execution failed",
		slog.String("execution_id", executionID),
		slog.String("node_id", nodeID),
		slog.String("error", msg),
	)

	result := Result{
		ExecutionID:   executionID,
		Status:        storage.ExecutionFailed,
		CurrentNodeID: nodeID,
		ErrorMessage:  msg,
	}

	if nodeID != "" {
		if err := r.store.UpdateNodeExecution(ctx, executionID, nodeID, storage.NodeExecutionUpdate{
			Status:       storage.NodeFailed,
			ErrorMessage: &msg,
		}); err != nil {
			return result, fmt.Errorf("mark node %s failed: %w", nodeID, err)
		}
	}
	if err := r.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionUpdate{
		Status:       storage.ExecutionFailed,
		ErrorMessage: &msg,
	}); err != nil {
		return result, fmt.Errorf("mark execution failed: %w", err)
	}
	return result, nil
}

// failureMessage strips the node wrapper so persisted records carry the
// executor's own message.
func failureMessage(err error) string {
	var nerr *NodeError
	if errors.As(err, &nerr) {
		return nerr.Err.Error()
	}
	return err.Error()
}
