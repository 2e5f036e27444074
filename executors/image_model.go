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

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AdForge/storage"
)

// defaultModelID is used when an IMAGE_MODEL node does not pick a model.
const defaultModelID = "fal-ai/flux/schnell"

// ImageGenerator produces images from a prompt. The returned map
// carries "image_urls" ([]string), "cost" (float64) and any provider
// metadata the node inspector should show.
type ImageGenerator interface {
	Generate(ctx context.Context, modelID, prompt string, numImages int, parameters map[string]any) (map[string]any, error)
}

// GenerationStore records a generation side record per model call.
type GenerationStore interface {
	CreateGeneration(ctx context.Context, gen *storage.Generation) error
}

// ImageModelExecutor handles IMAGE_MODEL nodes.
//
// # Description
//
// Resolves the prompt from the merged predecessor outputs, applies
// num_images/aspect_ratio overrides from the downstream OUTPUT node's
// configuration (delivered via Context.OutputConfig), invokes the image
// generator and appends a generation record for the execution's history.
type ImageModelExecutor struct {
	generator   ImageGenerator
	generations GenerationStore
}

// NewImageModelExecutor creates an image model executor. A nil
// generations store disables generation recording.
func NewImageModelExecutor(generator ImageGenerator, generations GenerationStore) *ImageModelExecutor {
	return &ImageModelExecutor{generator: generator, generations: generations}
}

// Execute generates images and returns the full generator result,
// including "image_urls" and "cost".
func (e *ImageModelExecutor) Execute(ctx context.Context, inputs map[string]map[string]any, config map[string]any, ec *Context) (map[string]any, error) {
	merged := MergeInputs(inputs, sources(ec))
	prompt := stringify(merged["prompt"])
	if prompt == "" {
		return nil, errors.New("No prompt provided to image model node")
	}
	if e.generator == nil {
		return nil, errors.New("image generator is not configured")
	}

	modelID := configString(config, "model", defaultModelID)

	parameters := make(map[string]any)
	if raw, ok := config["parameters"].(map[string]any); ok {
		for k, v := range raw {
			parameters[k] = v
		}
	}

	numImages := toInt(parameters["num_images"], 1)
	aspectRatio := stringify(parameters["aspect_ratio"])
	if aspectRatio == "" {
		aspectRatio = "1:1"
	}

	// The OUTPUT node immediately downstream can override how many
	// images get produced and at what aspect ratio.
	if ec != nil && ec.OutputConfig != nil {
		if v, ok := ec.OutputConfig["num_images"]; ok {
			if n := toInt(v, 0); n > 0 {
				numImages = n
			}
		}
		if v, ok := ec.OutputConfig["aspect_ratio"]; ok {
			if s := stringify(v); s != "" {
				aspectRatio = s
			}
		}
	}
	parameters["num_images"] = numImages
	parameters["aspect_ratio"] = aspectRatio

	result, err := e.generator.Generate(ctx, modelID, prompt, numImages, parameters)
	if err != nil {
		return nil, err
	}

	if e.generations != nil && ec != nil && ec.ExecutionID != "" {
		gen := &storage.Generation{
			ExecutionID: ec.ExecutionID,
			ModelID:     modelID,
			Prompt:      prompt,
			Parameters:  parameters,
			ImageURLs:   toStringSlice(result["image_urls"]),
			AspectRatio: aspectRatio,
			Cost:        toFloat(result["cost"]),
		}
		if err := e.generations.CreateGeneration(ctx, gen); err != nil {
			return nil, fmt.Errorf("record generation: %w", err)
		}
	}

	return result, nil
}

// ValidateConfig requires the "model" key.
func (e *ImageModelExecutor) ValidateConfig(config map[string]any) bool {
	_, ok := config["model"]
	return ok
}
