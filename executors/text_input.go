// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executors

import "context"

// TextInputExecutor handles TEXT_INPUT nodes: it emits the configured
// text value under the "text" key. Inputs are ignored.
type TextInputExecutor struct{}

// Execute returns {"text": <config value>}, with a missing or nil value
// rendered as the empty string.
func (e *TextInputExecutor) Execute(_ context.Context, _ map[string]map[string]any, config map[string]any, _ *Context) (map[string]any, error) {
	return map[string]any{"text": stringify(config["value"])}, nil
}

// ValidateConfig requires the "value" key.
func (e *TextInputExecutor) ValidateConfig(config map[string]any) bool {
	_, ok := config["value"]
	return ok
}
