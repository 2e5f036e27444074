// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package postgres

import (
	"context"
	"fmt"
)

// CreateSchema creates the AdForge tables and indexes when they do not
// exist yet. Idempotent; `adforge migrate` runs it against a fresh
// database and redundantly on deploys.
func CreateSchema(ctx context.Context, s *Store) error {
	models := []any{
		(*workflowRow)(nil),
		(*executionRow)(nil),
		(*nodeExecutionRow)(nil),
		(*generationRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		name    string
		table   string
		columns string
		unique  bool
	}{
		{"idx_workflows_user", "workflows", "user_id", false},
		{"idx_executions_workflow", "executions", "workflow_id", false},
		{"idx_executions_user", "executions", "user_id", false},
		{"idx_node_executions_exec_seq", "node_executions", "execution_id, seq", true},
		{"idx_node_executions_exec_node", "node_executions", "execution_id, node_id", true},
		{"idx_generations_execution", "generations", "execution_id", false},
	}
	for _, idx := range indexes {
		q := s.db.NewCreateIndex().
			Table(idx.table).
			Index(idx.name).
			ColumnExpr(idx.columns).
			IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
