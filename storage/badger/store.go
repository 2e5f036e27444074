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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AdForge/dag"
	"github.com/AleutianAI/AdForge/storage"
)

// Store implements storage.Store on an embedded BadgerDB.
//
// Thread Safety:
//
//	Safe for concurrent use. Read-modify-write updates run inside a single
//	Badger transaction; conflicting commits retry once.
type Store struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger
}

// Open opens the embedded store with the given configuration and starts
// the GC runner when configured. Call Close when done.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gc.start()
	}
	return s, nil
}

// OpenInMemory opens a throwaway in-memory store. Used by tests.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// =============================================================================
// Keys
// =============================================================================

func workflowKey(id string) []byte {
	return []byte("wf:" + id)
}

func executionKey(id string) []byte {
	return []byte("exec:" + id)
}

func nodeExecPrefix(executionID string) []byte {
	return []byte("ne:" + executionID + ":")
}

func nodeExecKey(executionID string, seq int) []byte {
	return []byte(fmt.Sprintf("ne:%s:%04d", executionID, seq))
}

func nodeExecIndexKey(executionID, nodeID string) []byte {
	return []byte("nei:" + executionID + ":" + nodeID)
}

func generationPrefix(executionID string) []byte {
	return []byte("gen:" + executionID + ":")
}

func generationKey(executionID, id string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("gen:%s:%020d:%s", executionID, ts.UnixNano(), id))
}

// =============================================================================
// Transaction helpers
// =============================================================================

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		// Concurrent writers on the same execution are rare (one runner per
		// execution plus cancel); a single retry resolves them.
		err = s.db.Update(fn)
	}
	return err
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.View(fn)
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// =============================================================================
// Workflows
// =============================================================================

// CreateWorkflow stores a workflow document, minting its ID when empty.
func (s *Store) CreateWorkflow(ctx context.Context, wf *storage.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now().UTC()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, workflowKey(wf.ID), wf)
	})
}

// GetWorkflow returns the workflow only when owned by userID. Missing and
// foreign-owned workflows are both reported as storage.ErrNotFound.
func (s *Store) GetWorkflow(ctx context.Context, workflowID, userID string) (*storage.Workflow, error) {
	var wf storage.Workflow
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, workflowKey(workflowID), &wf)
	})
	if err != nil {
		return nil, err
	}
	if wf.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return &wf, nil
}

// =============================================================================
// Executions
// =============================================================================

// CreateExecution creates an execution with status RUNNING and StartedAt
// set, matching the creation convention callers rely on.
func (s *Store) CreateExecution(ctx context.Context, workflowID, userID string) (*storage.Execution, error) {
	now := time.Now().UTC()
	exec := &storage.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		UserID:     userID,
		Status:     storage.ExecutionRunning,
		StartedAt:  &now,
		CreatedAt:  now,
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, executionKey(exec.ID), exec)
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// GetExecution returns an execution regardless of owner.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*storage.Execution, error) {
	var exec storage.Execution
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, executionKey(executionID), &exec)
	})
	if err != nil {
		return nil, err
	}
	return &exec, nil
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
	return s.update(ctx, func(txn *badger.Txn) error {
		var exec storage.Execution
		if err := getJSON(txn, executionKey(executionID), &exec); err != nil {
			return err
		}
		if exec.Status.Terminal() && update.Status != exec.Status {
			if s.logger != nil {
				s.logger.Debug("dropping status update on terminal execution",
					slog.String("execution_id", executionID),
					slog.String("current", string(exec.Status)),
					slog.String("requested", string(update.Status)))
			}
			return nil
		}

		now := time.Now().UTC()
		exec.Status = update.Status
		if update.ErrorMessage != nil {
			exec.ErrorMessage = *update.ErrorMessage
		}
		if update.TotalCost != nil {
			exec.TotalCost = *update.TotalCost
		}
		if update.Status == storage.ExecutionRunning && exec.StartedAt == nil {
			exec.StartedAt = &now
		}
		if update.Status.Terminal() {
			exec.FinishedAt = &now
		}
		return putJSON(txn, executionKey(executionID), &exec)
	})
}

// =============================================================================
// Node executions
// =============================================================================

// CreateNodeExecutions creates one PENDING record per node in the given
// order, together with the node-id index used by updates.
func (s *Store) CreateNodeExecutions(ctx context.Context, executionID string, nodes []dag.Node) error {
	now := time.Now().UTC()
	return s.update(ctx, func(txn *badger.Txn) error {
		for i, n := range nodes {
			rec := storage.NodeExecution{
				ID:          uuid.NewString(),
				ExecutionID: executionID,
				NodeID:      n.ID,
				NodeType:    n.Type,
				Seq:         i,
				Status:      storage.NodePending,
				CreatedAt:   now,
			}
			if err := putJSON(txn, nodeExecKey(executionID, i), &rec); err != nil {
				return err
			}
			seq := fmt.Sprintf("%04d", i)
			if err := txn.Set(nodeExecIndexKey(executionID, n.ID), []byte(seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetNodeExecutions returns the node executions of an execution in Seq
// order (the key encoding makes the prefix scan come back sorted).
func (s *Store) GetNodeExecutions(ctx context.Context, executionID string) ([]storage.NodeExecution, error) {
	var out []storage.NodeExecution
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = nodeExecPrefix(executionID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec storage.NodeExecution
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateNodeExecution applies an update to the record identified by
// (executionID, nodeID), stamping StartedAt/FinishedAt as statuses demand.
func (s *Store) UpdateNodeExecution(ctx context.Context, executionID, nodeID string, update storage.NodeExecutionUpdate) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(nodeExecIndexKey(executionID, nodeID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get node execution index: %w", err)
		}
		seq, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		key := []byte("ne:" + executionID + ":" + string(seq))

		var rec storage.NodeExecution
		if err := getJSON(txn, key, &rec); err != nil {
			return err
		}

		now := time.Now().UTC()
		rec.Status = update.Status
		if update.InputData != nil {
			rec.InputData = update.InputData
		}
		if update.OutputData != nil {
			rec.OutputData = update.OutputData
		}
		if update.ErrorMessage != nil {
			rec.ErrorMessage = *update.ErrorMessage
		}
		if update.Status == storage.NodeRunning && rec.StartedAt == nil {
			rec.StartedAt = &now
		}
		if update.Status == storage.NodeCompleted || update.Status == storage.NodeFailed {
			rec.FinishedAt = &now
		}
		return putJSON(txn, key, &rec)
	})
}

// =============================================================================
// Generations
// =============================================================================

// CreateGeneration appends a generation record.
func (s *Store) CreateGeneration(ctx context.Context, gen *storage.Generation) error {
	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now().UTC()
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, generationKey(gen.ExecutionID, gen.ID, gen.CreatedAt), gen)
	})
}

// ListGenerations returns the generations of an execution in creation
// order.
func (s *Store) ListGenerations(ctx context.Context, executionID string) ([]storage.Generation, error) {
	var out []storage.Generation
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = generationPrefix(executionID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var gen storage.Generation
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &gen)
			})
			if err != nil {
				return err
			}
			out = append(out, gen)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
