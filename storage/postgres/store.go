// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package postgres implements storage.Store on PostgreSQL via Bun.
//
// # Description
//
// The shared-state backend: several API replicas point at one database,
// which is what makes cancel-from-another-instance work. Read-modify-
// write updates run inside a transaction with the row locked, so the
// terminal-status absorbing rule holds under concurrent writers.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/storage"
)

// Store implements storage.Store on a PostgreSQL database.
//
// Thread Safety:
//
//	Safe for concurrent use; the underlying sql.DB pools connections.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL with the given DSN and verifies the
// connection. Call Close when done.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// DB exposes the underlying bun handle for migrations.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Workflows
// =============================================================================

// CreateWorkflow stores a workflow, minting its ID when empty.
func (s *Store) CreateWorkflow(ctx context.Context, wf *storage.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NewInsert().Model(workflowFromRecord(wf)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow returns the workflow only when owned by userID. Missing
// and foreign-owned workflows are both reported as storage.ErrNotFound.
func (s *Store) GetWorkflow(ctx context.Context, workflowID, userID string) (*storage.Workflow, error) {
	row := new(workflowRow)
	err := s.db.NewSelect().Model(row).
		Where("w.id = ?", workflowID).
		Where("w.user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select workflow: %w", err)
	}
	return row.toRecord(), nil
}

// =============================================================================
// Executions
// =============================================================================

// CreateExecution creates an execution with status RUNNING and
// StartedAt set, matching the creation convention callers rely on.
func (s *Store) CreateExecution(ctx context.Context, workflowID, userID string) (*storage.Execution, error) {
	now := time.Now().UTC()
	row := &executionRow{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		UserID:     userID,
		Status:     string(storage.ExecutionRunning),
		StartedAt:  &now,
		CreatedAt:  now,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert execution: %w", err)
	}
	return row.toRecord(), nil
}

// GetExecution returns an execution regardless of owner.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*storage.Execution, error) {
	row := new(executionRow)
	err := s.db.NewSelect().Model(row).
		Where("e.id = ?", executionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select execution: %w", err)
	}
	return row.toRecord(), nil
}

// GetExecutionForUser returns an execution only when owned by userID.
func (s *Store) GetExecutionForUser(ctx context.Context, executionID, userID string) (*storage.Execution, error) {
	exec, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return exec, nil
}

// UpdateExecutionStatus applies an update to the execution record.
//
// A terminal status is absorbing: an update that would replace one
// terminal status with a different status is dropped silently, so a
// runner finishing late can never overwrite a cancellation.
func (s *Store) UpdateExecutionStatus(ctx context.Context, executionID string, update storage.ExecutionUpdate) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		row := new(executionRow)
		err := tx.NewSelect().Model(row).
			Where("e.id = ?", executionID).
			For("UPDATE").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select execution for update: %w", err)
		}

		current := storage.ExecutionStatus(row.Status)
		if current.Terminal() && update.Status != current {
			s.logger.Debug("dropping status update on terminal execution",
				slog.String("execution_id", executionID),
				slog.String("current", row.Status),
				slog.String("requested", string(update.Status)))
			return nil
		}

		now := time.Now().UTC()
		row.Status = string(update.Status)
		if update.ErrorMessage != nil {
			row.ErrorMessage = *update.ErrorMessage
		}
		if update.TotalCost != nil {
			row.TotalCost = *update.TotalCost
		}
		if update.Status == storage.ExecutionRunning && row.StartedAt == nil {
			row.StartedAt = &now
		}
		if update.Status.Terminal() {
			row.FinishedAt = &now
		}

		if _, err := tx.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update execution: %w", err)
		}
		return nil
	})
}

// =============================================================================
// Node executions
// =============================================================================

// CreateNodeExecutions creates one PENDING record per node in the given
// order; Seq is the slice position.
func (s *Store) CreateNodeExecutions(ctx context.Context, executionID string, nodes []dag.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]nodeExecutionRow, len(nodes))
	for i, n := range nodes {
		rows[i] = nodeExecutionRow{
			ID:          uuid.NewString(),
			ExecutionID: executionID,
			NodeID:      n.ID,
			NodeType:    string(n.Type),
			Seq:         i,
			Status:      string(storage.NodePending),
			CreatedAt:   now,
		}
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert node executions: %w", err)
	}
	return nil
}

// GetNodeExecutions returns the node executions of an execution in Seq
// order.
func (s *Store) GetNodeExecutions(ctx context.Context, executionID string) ([]storage.NodeExecution, error) {
	var rows []nodeExecutionRow
	err := s.db.NewSelect().Model(&rows).
		Where("ne.execution_id = ?", executionID).
		Order("ne.seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select node executions: %w", err)
	}
	out := make([]storage.NodeExecution, len(rows))
	for i := range rows {
		out[i] = rows[i].toRecord()
	}
	return out, nil
}

// UpdateNodeExecution applies an update to the record identified by
// (executionID, nodeID), stamping StartedAt/FinishedAt as statuses
// demand.
func (s *Store) UpdateNodeExecution(ctx context.Context, executionID, nodeID string, update storage.NodeExecutionUpdate) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		row := new(nodeExecutionRow)
		err := tx.NewSelect().Model(row).
			Where("ne.execution_id = ?", executionID).
			Where("ne.node_id = ?", nodeID).
			For("UPDATE").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select node execution for update: %w", err)
		}

		now := time.Now().UTC()
		row.Status = string(update.Status)
		if update.InputData != nil {
			row.InputData = update.InputData
		}
		if update.OutputData != nil {
			row.OutputData = update.OutputData
		}
		if update.ErrorMessage != nil {
			row.ErrorMessage = *update.ErrorMessage
		}
		if update.Status == storage.NodeRunning && row.StartedAt == nil {
			row.StartedAt = &now
		}
		if update.Status == storage.NodeCompleted || update.Status == storage.NodeFailed {
			row.FinishedAt = &now
		}

		if _, err := tx.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update node execution: %w", err)
		}
		return nil
	})
}

// =============================================================================
// Generations
// =============================================================================

// CreateGeneration appends a generation record, minting its ID when
// empty.
func (s *Store) CreateGeneration(ctx context.Context, gen *storage.Generation) error {
	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(generationFromRecord(gen)).Exec(ctx); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// ListGenerations returns the generations of an execution in creation
// order.
func (s *Store) ListGenerations(ctx context.Context, executionID string) ([]storage.Generation, error) {
	var rows []generationRow
	err := s.db.NewSelect().Model(&rows).
		Where("g.execution_id = ?", executionID).
		Order("g.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select generations: %w", err)
	}
	out := make([]storage.Generation, len(rows))
	for i := range rows {
		out[i] = rows[i].toRecord()
	}
	return out, nil
}

var _ storage.Store = (*Store)(nil)
