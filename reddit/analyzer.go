// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reddit

import (
	"sort"
	"strings"
)

// maxKeywords caps the extracted keyword list.
const maxKeywords = 8

// Post is one subreddit listing entry reduced to the fields the
// analyzer and the API response need.
type Post struct {
	Title       string `json:"title"`
	Score       int    `json:"score"`
	URL         string `json:"url"`
	NumComments int    `json:"num_comments"`
}

// ExtractInsights turns raw posts into the trend bundle consumed by the
// SOCIAL_MEDIA executor and the social API.
//
// # Description
//
// Noise posts (mod threads, daily questions) are filtered out, the most
// engaging title becomes top_post, keywords are scored by post
// engagement, and the keyword set is matched against known community
// profiles for the community_vibe line. An empty post list yields the
// fallback bundle.
func ExtractInsights(posts []Post, subreddit string) map[string]any {
	if len(posts) == 0 {
		return FallbackData()
	}

	quality := filterQualityPosts(posts)

	scored := quality
	if len(scored) == 0 {
		scored = posts
	}

	topPost := mostEngagingTitle(scored)
	keywords := extractKeywords(scored)
	vibe := communityVibe(keywords)

	trends := fallbackTrends()
	if len(keywords) > 0 {
		trends = keywords
		if len(trends) > 6 {
			trends = trends[:6]
		}
	}

	return map[string]any{
		"posts":          posts,
		"top_post":       topPost,
		"keywords":       keywords,
		"trends":         trends,
		"community_vibe": vibe,
		"fallback":       false,
	}
}

// filterQualityPosts drops noise posts and posts without positive score.
func filterQualityPosts(posts []Post) []Post {
	var quality []Post
	for _, post := range posts {
		title := strings.ToLower(post.Title)
		noise := false
		for _, pattern := range noisePatterns {
			if pattern.MatchString(title) {
				noise = true
				break
			}
		}
		if !noise && post.Score > 0 {
			quality = append(quality, post)
		}
	}
	return quality
}

// engagement scores a post, penalizing low-score high-comment posts
// (controversial threads read badly in ad copy).
func engagement(p Post) float64 {
	score := float64(p.Score)
	comments := float64(p.NumComments)
	if score < 50 && comments > 50 {
		return score * 0.5
	}
	return score + comments*0.3
}

// mostEngagingTitle returns the cleaned title of the highest-engagement
// post; ties keep the earliest post.
func mostEngagingTitle(posts []Post) string {
	if len(posts) == 0 {
		return fallbackTopPost
	}

	best := posts[0]
	bestScore := engagement(best)
	for _, p := range posts[1:] {
		if s := engagement(p); s > bestScore {
			best, bestScore = p, s
		}
	}

	cleaned := leadingTagPattern.ReplaceAllString(best.Title, "")
	cleaned = strings.TrimSpace(whitespacePattern.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return fallbackTopPost
	}
	return cleaned
}

// extractKeywords scores title words by post engagement and returns the
// top ones. Equal scores keep first-seen order, so results are stable
// across runs.
func extractKeywords(posts []Post) []string {
	scores := make(map[string]float64)
	var order []string

	for _, post := range posts {
		title := leadingTagPattern.ReplaceAllString(post.Title, "")
		title = nonWordPattern.ReplaceAllString(title, " ")

		for _, word := range strings.Fields(strings.ToLower(title)) {
			cleaned := strings.Trim(word, "-")
			if len(cleaned) <= 2 || stopWords[cleaned] || isDigits(cleaned) {
				continue
			}
			if _, seen := scores[cleaned]; !seen {
				order = append(order, cleaned)
			}
			scores[cleaned] += 1 + float64(post.Score)*0.1
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return order
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// communityVibe maps the top keywords to a community description.
func communityVibe(keywords []string) string {
	if len(keywords) == 0 {
		return "engaged community"
	}

	top := keywords
	if len(top) > 5 {
		top = top[:5]
	}
	topSet := make(map[string]bool, len(top))
	for _, k := range top {
		topSet[k] = true
	}

	for _, mapping := range vibeMappings {
		for _, w := range mapping.words {
			if topSet[w] {
				return mapping.vibe
			}
		}
	}

	if len(keywords) >= 3 {
		return strings.Join(keywords[:3], ", ") + " enthusiasts"
	}
	return strings.Join(keywords, ", ") + " enthusiasts"
}
