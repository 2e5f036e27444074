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
	"log/slog"
	"regexp"
	"strings"
)

// templatePattern matches {{variable}} placeholders.
var templatePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Optimizer rewrites a raw prompt into a richer image-generation prompt.
type Optimizer interface {
	Optimize(ctx context.Context, prompt string) (string, error)
}

// PromptExecutor handles PROMPT nodes.
//
// # Description
//
// Substitutes {{variable}} placeholders in the configured template with
// the merged predecessor outputs, then optionally runs the result
// through an LLM optimizer when the node sets "ai_optimize". An
// image_url arriving from a predecessor is passed through for
// image-to-image models downstream.
type PromptExecutor struct {
	optimizer Optimizer
}

// NewPromptExecutor creates a prompt executor. A nil optimizer disables
// the "ai_optimize" path.
func NewPromptExecutor(optimizer Optimizer) *PromptExecutor {
	return &PromptExecutor{optimizer: optimizer}
}

// Execute renders the template and returns {"prompt": <rendered>},
// plus "image_url" when a predecessor provided one.
func (e *PromptExecutor) Execute(ctx context.Context, inputs map[string]map[string]any, config map[string]any, ec *Context) (map[string]any, error) {
	template := stringify(config["template"])
	merged := MergeInputs(inputs, sources(ec))
	prompt := processTemplate(template, merged)

	// Optimization failures keep the raw prompt rather than failing the
	// node; a plain prompt still generates an image.
	if truthy(config["ai_optimize"]) && e.optimizer != nil {
		optimized, err := e.optimizer.Optimize(ctx, prompt)
		if err != nil {
			slog.Warn("AI prompt optimization failed", "error", err)
		} else if optimized != "" {
			prompt = optimized
		}
	}

	output := map[string]any{"prompt": prompt}
	if imageURL, ok := merged["image_url"]; ok {
		output["image_url"] = stringify(imageURL)
	}
	return output, nil
}

// ValidateConfig requires the "template" key.
func (e *PromptExecutor) ValidateConfig(config map[string]any) bool {
	_, ok := config["template"]
	return ok
}

// processTemplate replaces {{variable}} placeholders with values from
// variables. Missing variables render as the empty string; list values
// are joined with ", ".
func processTemplate(template string, variables map[string]any) string {
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-2]
		value, ok := variables[name]
		if !ok {
			return ""
		}
		if items := listValue(value); items != nil {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = stringify(item)
			}
			return strings.Join(parts, ", ")
		}
		return stringify(value)
	})
}

// listValue returns the value as a slice when it is one, nil otherwise.
// Unlike asList it never wraps scalars.
func listValue(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// sources returns the ordered predecessor ids from the context, or nil.
func sources(ec *Context) []string {
	if ec == nil {
		return nil
	}
	return ec.Sources
}
