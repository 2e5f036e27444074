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

import "regexp"

// defaultBaseURL is the public Reddit endpoint serving listing JSON.
const defaultBaseURL = "https://www.reddit.com"

// FallbackData returns the canned insight bundle used when Reddit blocks
// the request or the input fails validation. Callers get a fresh copy.
func FallbackData() map[string]any {
	return map[string]any{
		"posts":          []Post{},
		"trends":         []string{"trending", "viral", "aesthetic", "premium", "luxury"},
		"top_post":       "Latest trending styles and innovations",
		"keywords":       []string{"modern", "aesthetic", "quality", "premium"},
		"community_vibe": "quality-focused enthusiasts",
		"fallback":       true,
	}
}

// fallbackTopPost mirrors the top_post entry of FallbackData.
const fallbackTopPost = "Latest trending styles and innovations"

// fallbackTrends mirrors the trends entry of FallbackData.
func fallbackTrends() []string {
	return []string{"trending", "viral", "aesthetic", "premium", "luxury"}
}

// noisePatterns match mod threads, daily questions, and other posts that
// carry no trend signal.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\[.*?\]`),
	regexp.MustCompile(`(?i)^(daily|weekly|monthly)\s+(thread|discussion|question)`),
	regexp.MustCompile(`(?i)^(ask|ama|iama)\s+`),
	regexp.MustCompile(`(?i)^(meta|rule|announcement)`),
	regexp.MustCompile(`(?i)r/\w+\s+(shopping|help|desk|question|megathread)`),
}

// leadingTagPattern strips "[MOD]"-style prefixes from titles.
var leadingTagPattern = regexp.MustCompile(`^\[.*?\]\s*`)

// nonWordPattern reduces titles to words, whitespace, and hyphens.
var nonWordPattern = regexp.MustCompile(`[^\w\s-]`)

// whitespacePattern collapses runs of whitespace.
var whitespacePattern = regexp.MustCompile(`\s+`)

// stopWords are filtered out of keyword extraction.
var stopWords = map[string]bool{
	// Articles & conjunctions
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	// Prepositions
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true,
	// Be verbs
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true,
	// Have verbs
	"have": true, "has": true, "had": true,
	// Do verbs
	"do": true, "does": true, "did": true,
	// Modal verbs
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "must": true, "shall": true, "can": true, "need": true,
	// Demonstratives
	"this": true, "that": true, "these": true, "those": true,
	// Pronouns
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "what": true, "which": true, "who": true, "whom": true,
	"when": true, "where": true, "why": true, "how": true, "them": true,
	"their": true, "your": true,
	// Quantifiers
	"all": true, "each": true, "every": true, "both": true, "few": true,
	"more": true, "most": true, "other": true, "some": true,
	// Misc common
	"such": true, "no": true, "not": true, "only": true, "own": true,
	"same": true, "so": true, "than": true, "too": true, "very": true,
	"just": true, "also": true, "now": true, "here": true, "there": true,
	"about": true, "after": true, "before": true,
	// Reddit-specific noise
	"mod": true, "thread": true, "daily": true, "weekly": true,
	"question": true, "ask": true, "anyone": true, "any": true, "got": true,
	"get": true, "getting": true, "new": true, "first": true, "one": true,
	"two": true, "like": true, "want": true, "looking": true, "help": true,
	"best": true, "good": true, "bad": true, "make": true, "made": true,
	"into": true, "stuff": true, "really": true, "think": true, "know": true,
}

// vibeMapping ties keyword families to a community description. The
// list is checked in order; the first family sharing a keyword with the
// extracted top keywords wins.
type vibeMapping struct {
	words []string
	vibe  string
}

var vibeMappings = []vibeMapping{
	{[]string{"espresso", "coffee", "brewing", "roast"}, "specialty coffee enthusiasts"},
	{[]string{"mechanical", "keyboard", "switches", "keycaps"}, "tech-savvy customization fans"},
	{[]string{"skincare", "routine", "products", "skin"}, "beauty and self-care focused"},
	{[]string{"fashion", "style", "outfit", "wear"}, "style-conscious trendsetters"},
	{[]string{"gaming", "setup", "rgb", "pc"}, "gaming and tech enthusiasts"},
	{[]string{"fragrance", "perfume", "scent", "cologne"}, "fragrance connoisseurs"},
	{[]string{"headphones", "audio", "sound", "music"}, "audiophile community"},
	{[]string{"makeup", "beauty", "cosmetics", "look"}, "makeup and beauty lovers"},
}
