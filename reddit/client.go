// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reddit fetches subreddit listings and distills them into
// trend insights for ad-copy workflows.
//
// # Description
//
// The public listing endpoint is rate limited and occasionally blocks
// unauthenticated callers, so every fetch degrades to a canned fallback
// bundle instead of failing: an ad workflow should still render with
// generic trend words when Reddit is unavailable.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AleutianAI/AdForge/pkg/validation"
)

// requestTimeout bounds a single listing fetch.
const requestTimeout = 10 * time.Second

// userAgent mimics a browser; the listing endpoint rejects default
// library agents.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// Client fetches subreddit listings. It implements the trend source
// consumed by the SOCIAL_MEDIA executor.
//
// Thread Safety:
//
//	Safe for concurrent use; the underlying http.Client is shared.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Reddit endpoint. Used by tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Reddit client with a 10 second request timeout.
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
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

// listing is the slice of the Reddit listing payload we read.
type listing struct {
	Data struct {
		Children []struct {
			Data Post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchTrends fetches posts from a subreddit and extracts insights.
//
// Description:
//
//	Validates the subreddit and sort order, fetches the listing, and
//	runs the analyzer over the posts. Invalid input, HTTP failures and
//	non-2xx statuses all return the fallback bundle with a nil error;
//	only caller cancellation and malformed payloads surface as errors.
//
// Outputs:
//
//	map[string]any - posts, top_post, keywords, trends, community_vibe, fallback
//	error - Non-nil only on context cancellation or a corrupt payload
func (c *Client) FetchTrends(ctx context.Context, subreddit, sort string, limit int) (map[string]any, error) {
	name, err := validation.SanitizeSubreddit(subreddit)
	if err != nil {
		c.logger.Warn("invalid subreddit, using fallback", "subreddit", subreddit, "error", err)
		return FallbackData(), nil
	}
	if err := validation.ValidateSortOrder(sort); err != nil {
		c.logger.Warn("invalid sort order, using fallback", "sort", sort, "error", err)
		return FallbackData(), nil
	}

	endpoint := fmt.Sprintf("%s/r/%s/%s.json", c.baseURL, url.PathEscape(name), sort)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build reddit request: %w", err)
	}

	q := req.URL.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	req.URL.RawQuery = q.Encode()

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reddit fetch cancelled: %w", ctx.Err())
		}
		c.logger.Warn("reddit request failed, using fallback", "subreddit", name, "error", err)
		return FallbackData(), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("reddit returned non-success status, using fallback",
			"subreddit", name, "status", resp.StatusCode)
		return FallbackData(), nil
	}

	var payload listing
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode reddit response: %w", err)
	}

	posts := make([]Post, 0, len(payload.Data.Children))
	for _, child := range payload.Data.Children {
		posts = append(posts, child.Data)
	}
	return ExtractInsights(posts, name), nil
}
