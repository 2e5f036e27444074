// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine executes analyzed workflows against a storage.Store.
//
// Description:
//
//	An execution runs on a single goroutine: nodes execute strictly
//	sequentially in topological order, with persisted status transitions
//	before and after every executor call. A node with a breakpoint pauses
//	the run before it executes; Step consumes the pause and executes
//	exactly one node, re-pausing in front of the next one or completing.
//
//	Cancellation is cooperative and goes through the store, not through
//	an in-process signal: the runner re-reads the execution record before
//	and after every node and stops when it observes CANCELLED. A cancel
//	issued by another process therefore takes effect at the next poll,
//	and an in-flight executor call is never interrupted; its result is
//	discarded.
//
//	Engine is the public facade used by the HTTP layer and the CLI;
//	Runner is the loop itself.
//
// Thread Safety:
//
//	Engine and Runner hold no per-execution state and are safe for
//	concurrent use. Concurrent executions share only the store.
package engine
