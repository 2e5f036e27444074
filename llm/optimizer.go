// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm rewrites raw image prompts into richer ones via an
// OpenAI-compatible chat model. PROMPT nodes opt in with "ai_optimize".
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// defaultModel is used when no model is configured.
const defaultModel = "gpt-4o-mini"

// optimizerSystemPrompt instructs the model to return only the rewritten
// prompt.
const optimizerSystemPrompt = "You are a professional prompt engineer for image generation models like Stable Diffusion, Flux, and Midjourney. " +
	"Your task is to take a raw, simple prompt and transform it into a highly detailed, cinematic, and professional image generation prompt. " +
	"Focus on: lighting, camera angles, textures, artistic style, and specific details. " +
	"Keep the core intent of the original prompt but make it breathtaking. " +
	"IMPORTANT: Return ONLY the final prompt text, no explanations or conversational text."

// Optimizer turns short prompts into detailed image-generation prompts.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Optimizer struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOptimizer creates a prompt optimizer. The model defaults to
// gpt-4o-mini when empty.
func NewOptimizer(apiKey, model string, logger *slog.Logger) (*Optimizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if model == "" {
		model = defaultModel
		slog.Warn("optimizer model not set, defaulting", "model", defaultModel)
	}
	return newOptimizerWithClient(openai.NewClient(apiKey), model, logger), nil
}

func newOptimizerWithClient(client *openai.Client, model string, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{client: client, model: model, logger: logger}
}

// Optimize rewrites a raw prompt. The caller decides what to do on
// failure; PROMPT nodes fall back to the raw prompt.
func (o *Optimizer) Optimize(ctx context.Context, prompt string) (string, error) {
	o.logger.Debug("optimizing prompt", "model", o.model)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: optimizerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
