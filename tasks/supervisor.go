// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tasks detaches workflow executions from HTTP requests.
//
// # Description
//
// The HTTP start endpoint must return immediately while the execution
// runs on its own goroutine. Supervisor owns those goroutines: it caps
// how many run at once, recovers panics, and guarantees that whatever
// happens to a task, a terminal status lands in the store before the
// task is considered finished. Expected node failures never reach the
// supervisor (the engine persists those itself); the completion hook
// exists for engine bugs and shutdown.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/AdForge/storage"
)

// statusWriteTimeout bounds the best-effort status writes of the
// completion hook; they run on a fresh context because the task's own
// context may already be cancelled.
const statusWriteTimeout = 10 * time.Second

// Task is the detached body of one execution run.
type Task func(ctx context.Context) error

// Config holds configuration for the background task supervisor.
//
// # Description
//
// Contains the settings for running detached execution tasks. Default
// values are provided via DefaultConfig().
//
// # Fields
//
//   - MaxConcurrent: Executions allowed to run at once; further launches
//     queue on the semaphore. Default: 8.
//   - ShutdownGrace: How long Shutdown waits for in-flight executions
//     before cancelling them. Default: 30 seconds.
type Config struct {
	MaxConcurrent int
	ShutdownGrace time.Duration
}

// DefaultConfig returns sensible default supervisor configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 8,
		ShutdownGrace: 30 * time.Second,
	}
}

// Supervisor runs execution tasks on detached goroutines.
//
// # Description
//
// Launch hands a task to a goroutine and returns immediately; the
// goroutine acquires a semaphore slot (bounding concurrency), runs the
// task, and applies the completion hook: a returned error marks the
// execution FAILED, a panic marks it FAILED with the stack, and a
// supervisor-initiated cancellation marks it CANCELLED. The hook's
// status writes are best-effort and never propagate.
//
// # Thread Safety
//
// All public methods are thread-safe.
type Supervisor struct {
	store  storage.Store
	logger *slog.Logger
	config Config

	sem     *semaphore.Weighted
	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewSupervisor creates a supervisor over a store.
//
// # Inputs
//
//   - store: Used by the completion hook to persist terminal statuses.
//   - logger: Logger for task lifecycle logs. If nil, uses slog.Default().
//   - config: Supervisor configuration; non-positive MaxConcurrent falls
//     back to the default.
func NewSupervisor(store storage.Store, logger *slog.Logger, config Config) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = DefaultConfig().ShutdownGrace
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:   store,
		logger:  logger,
		config:  config,
		sem:     semaphore.NewWeighted(int64(config.MaxConcurrent)),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Launch detaches a task for an execution.
//
// # Description
//
// Returns as soon as the goroutine is spawned; when the concurrency cap
// is reached the task waits for a slot inside the goroutine, so the
// caller never blocks. Fails only when the supervisor is already shut
// down.
func (s *Supervisor) Launch(executionID string, task Task) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is shut down")
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("execution task launched",
		slog.String("execution_id", executionID),
	)
	go s.run(executionID, task)
	return nil
}

// Shutdown stops accepting tasks and drains the in-flight ones.
//
// # Description
//
// Waits up to ShutdownGrace for running tasks to finish on their own.
// When the grace expires (or ctx is done), the base context is
// cancelled: queued tasks and cooperative in-flight tasks observe the
// cancellation and their executions are marked CANCELLED. Safe to call
// multiple times.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("task supervisor stopping",
		slog.Duration("grace", s.config.ShutdownGrace),
	)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(s.config.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	s.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the goroutine body wrapping one task with the completion hook.
func (s *Supervisor) run(executionID string, task Task) {
	defer s.wg.Done()

	if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
		// Shutdown won the race; the execution never started.
		s.logger.Warn("execution task cancelled before start",
			slog.String("execution_id", executionID),
		)
		s.updateStatusSafe(executionID, storage.ExecutionCancelled, nil)
		return
	}
	defer s.sem.Release(1)

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v\n%s", rec, debug.Stack())
			s.logger.Error("execution task panicked",
				slog.String("execution_id", executionID),
				slog.Any("panic", rec),
			)
			s.updateStatusSafe(executionID, storage.ExecutionFailed, &msg)
		}
	}()

	if err := task(s.baseCtx); err != nil {
		if s.baseCtx.Err() != nil {
			s.logger.Warn("execution task cancelled during shutdown",
				slog.String("execution_id", executionID),
			)
			s.updateStatusSafe(executionID, storage.ExecutionCancelled, nil)
			return
		}
		msg := err.Error()
		s.logger.Error("execution task failed",
			slog.String("execution_id", executionID),
			slog.String("error", msg),
		)
		s.updateStatusSafe(executionID, storage.ExecutionFailed, &msg)
	}
}

// updateStatusSafe persists a terminal status without ever propagating
// an error. Terminal statuses already in the store absorb the write.
func (s *Supervisor) updateStatusSafe(executionID string, status storage.ExecutionStatus, errorMessage *string) {
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()

	err := s.store.UpdateExecutionStatus(ctx, executionID, storage.ExecutionUpdate{
		Status:       status,
		ErrorMessage: errorMessage,
	})
	if err != nil {
		s.logger.Error("failed to update execution status",
			slog.String("execution_id", executionID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}
