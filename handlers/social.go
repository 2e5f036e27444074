// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AdForge/datatypes"
	"github.com/AleutianAI/AdForge/observability"
	"github.com/AleutianAI/AdForge/reddit"
)

// defaultRedditLimit caps the listing size when the client omits one.
const defaultRedditLimit = 10

// RedditTrends fetches subreddit posts and trend insights outside of a
// workflow run, for the builder's social-media node inspector.
//
// The client degrades to a fallback payload on provider failures, so a
// non-nil error here means the request itself was unusable.
func RedditTrends(client *reddit.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireUser(c); !ok {
			return
		}

		var req datatypes.RedditTrendsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			recordError(observability.EndpointReddit, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "Invalid request body"})
			return
		}
		if req.Sort == "" {
			req.Sort = "hot"
		}
		if req.Limit <= 0 {
			req.Limit = defaultRedditLimit
		}

		trends, err := client.FetchTrends(c.Request.Context(), req.Subreddit, req.Sort, req.Limit)
		if err != nil {
			slog.Error("reddit trends fetch failed",
				"subreddit", req.Subreddit, "error", err)
			recordRequest(observability.EndpointReddit, false)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "failed to fetch subreddit trends"})
			return
		}

		recordRequest(observability.EndpointReddit, true)
		c.JSON(http.StatusOK, trends)
	}
}
