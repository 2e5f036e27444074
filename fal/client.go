// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fal calls the fal.ai synchronous inference endpoint for image
// generation and carries the model catalog with per-model pricing and
// parameter shapes.
package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// defaultBaseURL is the synchronous run endpoint; the model id is the
// request path.
const defaultBaseURL = "https://fal.run"

// requestTimeout bounds one generation call. Image models can take
// minutes on cold starts.
const requestTimeout = 5 * time.Minute

// Default request pacing toward fal.ai.
const (
	defaultRequestsPerSec = 2
	defaultBurst          = 4
)

// Client invokes fal.ai models.
//
// Thread Safety:
//
//	Safe for concurrent use. The rate limiter paces all goroutines
//	sharing the client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the inference endpoint. Used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit overrides the request pacing.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// NewClient creates a fal.ai client authenticating with the given API
// key.
func NewClient(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSec), defaultBurst),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Generate produces images with the given model.
//
// Description:
//
//	Builds the model's argument map (prompt, num_images, normalized
//	aspect parameters), POSTs it to the synchronous run endpoint and
//	reduces the response to image_urls plus cost (catalog price times
//	images produced). Any other response fields pass through for the
//	node inspector.
//
// Outputs:
//
//	map[string]any - {"image_urls": []string, "cost": float64, ...metadata}
//	error - Non-nil when the request fails; the message names the model
func (c *Client) Generate(ctx context.Context, modelID, prompt string, numImages int, parameters map[string]any) (map[string]any, error) {
	params := make(map[string]any, len(parameters)+2)
	for k, v := range parameters {
		params[k] = v
	}
	params["prompt"] = prompt
	params["num_images"] = numImages
	params = NormalizeParams(modelID, params)

	result, err := c.run(ctx, modelID, params)
	if err != nil {
		return nil, fmt.Errorf("Failed to generate images with model %s: %w", modelID, err)
	}

	imageURLs := []string{}
	if images, ok := result["images"].([]any); ok {
		for _, img := range images {
			entry, ok := img.(map[string]any)
			if !ok {
				continue
			}
			if u, ok := entry["url"].(string); ok && u != "" {
				imageURLs = append(imageURLs, u)
			}
		}
	}

	cost := ModelPrice(modelID) * float64(len(imageURLs))

	output := map[string]any{
		"image_urls": imageURLs,
		"cost":       cost,
	}
	for key, value := range result {
		switch key {
		case "images", "image_urls", "cost":
		default:
			output[key] = value
		}
	}
	return output, nil
}

// run POSTs the argument map to the model endpoint and decodes the
// response.
func (c *Client) run(ctx context.Context, modelID string, arguments map[string]any) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(arguments)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+modelID, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("fal model call completed",
		"model", modelID,
		"duration", time.Since(start).String())
	return result, nil
}
