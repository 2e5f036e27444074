// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// outbound URLs or database queries. Using these validators prevents
// injection attacks (URL path injection, query manipulation).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// subredditPattern matches valid subreddit names.
// Allows: letters, digits, underscores; must not start with an underscore.
// Length: 3-21 characters (Reddit's own rules).
var subredditPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]{2,20}$`)

// allowedSortOrders are the Reddit listing sort orders we fetch.
var allowedSortOrders = map[string]bool{
	"hot":    true,
	"new":    true,
	"top":    true,
	"rising": true,
}

// SanitizeSubreddit normalizes and validates a subreddit name to prevent
// URL path injection.
//
// The name is trimmed and an "r/" prefix (any case) is stripped before
// matching. Valid names:
//   - 3-21 characters
//   - Letters, digits, underscores
//   - Must not start with an underscore
//
// Returns the cleaned name if valid, or an error if invalid.
//
// Example:
//
//	name, err := validation.SanitizeSubreddit(userInput)
//	if err != nil {
//	    return nil, err
//	}
//	// Safe to place in a request path
func SanitizeSubreddit(subreddit string) (string, error) {
	if subreddit == "" {
		return "", fmt.Errorf("Subreddit name cannot be empty")
	}

	cleaned := strings.TrimSpace(subreddit)
	if len(cleaned) >= 2 && strings.EqualFold(cleaned[:2], "r/") {
		cleaned = cleaned[2:]
	}

	if !subredditPattern.MatchString(cleaned) {
		return "", fmt.Errorf("Invalid subreddit name '%s': must be 3-21 characters, "+
			"alphanumeric and underscores only, cannot start with underscore", subreddit)
	}

	return cleaned, nil
}

// ValidateSortOrder validates a Reddit listing sort order against the
// allowed set (hot, new, top, rising). The sort order is interpolated
// into the request path, so only known values pass.
func ValidateSortOrder(sort string) error {
	if !allowedSortOrders[sort] {
		return fmt.Errorf("invalid sort order: %q (must be hot, new, top, or rising)", sort)
	}
	return nil
}
