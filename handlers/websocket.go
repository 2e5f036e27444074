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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AdForge/datatypes"
	"github.com/AleutianAI/AdForge/observability"
	"github.com/AleutianAI/AdForge/storage"
)

// statusPollInterval is how often watchers get a fresh snapshot.
const statusPollInterval = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The bearer token is the access control; origins are not.
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("failed to write websocket JSON", "error", err)
	}
	return err
}

// ExecutionWebSocket streams status snapshots of an execution.
//
// Description:
//
//	After the ownership check, the connection is upgraded and a
//	snapshot of the execution plus its per-node statuses is pushed
//	every second. The final snapshot carries the terminal status; the
//	connection closes right after it. Snapshots come straight from the
//	store, so a watcher on any replica sees the same progression the
//	repository records.
func ExecutionWebSocket(store storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}
		executionID := c.Param("execution_id")

		if _, err := store.GetExecutionForUser(c.Request.Context(), executionID, userID); err != nil {
			writeEngineError(c, observability.EndpointStatus, err)
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		if m := observability.DefaultMetrics; m != nil {
			m.SubscriberConnected()
			defer m.SubscriberDisconnected()
		}
		slog.Info("execution watcher connected", "execution_id", executionID)

		// Reader goroutine: the client never sends application data, but
		// reading is what surfaces disconnects and close frames.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(statusPollInterval)
		defer ticker.Stop()

		ctx := c.Request.Context()
		for {
			frame, terminal, err := snapshot(ctx, store, executionID)
			if err != nil {
				slog.Warn("execution snapshot failed",
					"execution_id", executionID, "error", err)
				return
			}
			if err := sendJSON(ws, frame); err != nil {
				return
			}
			if terminal {
				return
			}

			select {
			case <-ticker.C:
			case <-done:
				slog.Info("execution watcher disconnected", "execution_id", executionID)
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// snapshot builds one status frame and reports whether it is the last.
func snapshot(ctx context.Context, store storage.Store, executionID string) (*datatypes.ExecutionStatusFrame, bool, error) {
	exec, err := store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, false, err
	}
	records, err := store.GetNodeExecutions(ctx, executionID)
	if err != nil {
		return nil, false, err
	}

	frame := &datatypes.ExecutionStatusFrame{
		ExecutionID: exec.ID,
		Status:      string(exec.Status),
		TotalCost:   exec.TotalCost,
		Nodes:       make([]datatypes.NodeStatusFrame, 0, len(records)),
	}
	for _, rec := range records {
		frame.Nodes = append(frame.Nodes, datatypes.NodeStatusFrame{
			NodeID: rec.NodeID,
			Status: string(rec.Status),
		})
	}
	return frame, exec.Status.Terminal(), nil
}
