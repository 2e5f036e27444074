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

// AssetMirror re-hosts generated images under stable URLs. Mirroring is
// best-effort; implementations return the input URLs for anything they
// could not mirror.
type AssetMirror interface {
	MirrorImages(ctx context.Context, executionID string, urls []string) []string
}

// OutputExecutor handles OUTPUT nodes: it truncates the upstream image
// list to the configured count and emits it as "final_images".
// Provider image URLs expire, so when a mirror is configured the final
// images are re-hosted before they are persisted.
type OutputExecutor struct {
	mirror AssetMirror
}

// NewOutputExecutor creates an output executor. A nil mirror leaves
// the provider URLs untouched.
func NewOutputExecutor(mirror AssetMirror) *OutputExecutor {
	return &OutputExecutor{mirror: mirror}
}

// Execute returns {"final_images": [...]}. A scalar image_urls value is
// wrapped into a single-element list; num_images defaults to all.
func (e *OutputExecutor) Execute(ctx context.Context, inputs map[string]map[string]any, config map[string]any, ec *Context) (map[string]any, error) {
	merged := MergeInputs(inputs, sources(ec))
	imageURLs := asList(merged["image_urls"])

	numImages := toInt(config["num_images"], len(imageURLs))
	if numImages < 0 {
		numImages = 0
	}
	if numImages > len(imageURLs) {
		numImages = len(imageURLs)
	}

	finalImages := make([]string, numImages)
	for i := 0; i < numImages; i++ {
		finalImages[i] = stringify(imageURLs[i])
	}

	if e.mirror != nil && len(finalImages) > 0 {
		executionID := ""
		if ec != nil {
			executionID = ec.ExecutionID
		}
		finalImages = e.mirror.MirrorImages(ctx, executionID, finalImages)
	}
	return map[string]any{"final_images": finalImages}, nil
}

// ValidateConfig always succeeds; all OUTPUT configuration is optional.
func (e *OutputExecutor) ValidateConfig(map[string]any) bool {
	return true
}
