// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dag

import "errors"

// Sentinel errors for graph validation. The messages are part of the API:
// clients of the workflow builder display them verbatim.
var (
	// ErrNoOutputNode is returned when a workflow has no OUTPUT node to
	// anchor execution.
	ErrNoOutputNode = errors.New("Workflow must have at least one OUTPUT node")

	// ErrCycleDetected is returned when the executable subgraph contains a
	// cycle.
	ErrCycleDetected = errors.New("Workflow contains a cycle and cannot be executed")
)

// IsInvalidGraph reports whether err marks a workflow that can never
// execute, as opposed to a transient failure.
func IsInvalidGraph(err error) bool {
	return errors.Is(err, ErrNoOutputNode) || errors.Is(err, ErrCycleDetected)
}
