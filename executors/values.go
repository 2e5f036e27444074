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
	"fmt"
	"strconv"
)

// Config and input maps come off the wire as untyped JSON, so every
// executor reads them through these coercions instead of bare type
// assertions.

// stringify renders any JSON value as a string; nil becomes "".
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// configString returns config[key] as a string, or def when the key is
// absent.
func configString(config map[string]any, key, def string) string {
	v, ok := config[key]
	if !ok {
		return def
	}
	return stringify(v)
}

// toInt coerces numeric and numeric-string values; anything else
// returns def.
func toInt(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}

// toFloat coerces numeric values; anything else returns 0.
func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return 0
}

// truthy mirrors loose boolean reads of config flags: false, nil, zero
// and empty/"false"/"0" strings are false, everything else true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}

// asList normalizes a value into a slice: slices pass through, empty
// values become nil, and any other non-empty scalar becomes a
// single-element slice.
func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		if truthy(t) {
			return []any{t}
		}
		return nil
	}
}

// toStringSlice renders a list value as strings.
func toStringSlice(v any) []string {
	items := asList(v)
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = stringify(item)
	}
	return out
}
