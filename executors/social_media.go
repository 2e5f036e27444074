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
)

// TrendSource fetches community trend data for a platform community.
// The returned map carries at least "posts" and "trends".
type TrendSource interface {
	FetchTrends(ctx context.Context, subreddit, sort string, limit int) (map[string]any, error)
}

// SocialMediaExecutor handles SOCIAL_MEDIA nodes. Reddit is the only
// supported platform.
type SocialMediaExecutor struct {
	source TrendSource
}

// NewSocialMediaExecutor creates a social media executor backed by the
// given trend source.
func NewSocialMediaExecutor(source TrendSource) *SocialMediaExecutor {
	return &SocialMediaExecutor{source: source}
}

// Execute fetches trend data for the configured community and overlays
// it on the merged predecessor outputs, so chained workflows keep their
// upstream values.
func (e *SocialMediaExecutor) Execute(ctx context.Context, inputs map[string]map[string]any, config map[string]any, ec *Context) (map[string]any, error) {
	platform := configString(config, "platform", "reddit")
	if platform != "reddit" {
		return nil, fmt.Errorf("Unsupported platform: %s", platform)
	}
	if e.source == nil {
		return nil, errors.New("social media trend source is not configured")
	}

	subreddit := configString(config, "subreddit", "all")
	sort := configString(config, "sort", "hot")
	limit := toInt(config["limit"], 10)

	result, err := e.source.FetchTrends(ctx, subreddit, sort, limit)
	if err != nil {
		return nil, err
	}

	merged := MergeInputs(inputs, sources(ec))
	for k, v := range result {
		merged[k] = v
	}
	return merged, nil
}

// ValidateConfig requires "subreddit" for the reddit platform; other
// platforms are invalid.
func (e *SocialMediaExecutor) ValidateConfig(config map[string]any) bool {
	platform := "reddit"
	if v, ok := config["platform"]; ok {
		platform = stringify(v)
	}
	if platform == "reddit" {
		_, ok := config["subreddit"]
		return ok
	}
	return false
}
