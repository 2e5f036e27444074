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

// ImageInputExecutor handles IMAGE_INPUT nodes: it emits the configured
// image URL under the "image_url" key. Inputs are ignored.
type ImageInputExecutor struct{}

// Execute returns {"image_url": <config image_url>}.
func (e *ImageInputExecutor) Execute(_ context.Context, _ map[string]map[string]any, config map[string]any, _ *Context) (map[string]any, error) {
	return map[string]any{"image_url": configString(config, "image_url", "")}, nil
}

// ValidateConfig requires the "image_url" key.
func (e *ImageInputExecutor) ValidateConfig(config map[string]any) bool {
	_, ok := config["image_url"]
	return ok
}
