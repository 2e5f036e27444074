// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

// =============================================================================
// Metadata Type
// =============================================================================

// Metadata stores arbitrary key-value pairs carried alongside an identity.
//
// Using a defined type rather than map[string]any provides:
//   - Clearer intent in function signatures
//   - Ability to add methods for type-safe access
//   - Compile-time distinction from arbitrary maps
//
// # Thread Safety
//
// Metadata is NOT thread-safe. Do not share a single Metadata instance
// across goroutines without external synchronization.
//
// Example:
//
//	meta := extensions.NewMetadata().
//	    Set("role", "authenticated").
//	    Set("session_id", sessionID)
//
//	if role, ok := meta.GetString("role"); ok {
//	    log.Info("auth", "role", role)
//	}
type Metadata map[string]any

// NewMetadata creates an empty Metadata instance.
//
// # Description
//
// Returns an initialized Metadata map ready for use.
// This is the preferred way to create Metadata instances.
//
// # Outputs
//
//   - Metadata: An empty, initialized map.
func NewMetadata() Metadata {
	return make(Metadata)
}

// Set adds or updates a key-value pair and returns the Metadata for chaining.
//
// # Description
//
// Provides a fluent interface for building Metadata instances.
// Returns the same Metadata instance for method chaining.
//
// # Inputs
//
//   - key: The metadata key (string).
//   - value: The metadata value (any type).
//
// # Outputs
//
//   - Metadata: The same instance (for chaining).
func (m Metadata) Set(key string, value any) Metadata {
	m[key] = value
	return m
}

// Get retrieves a value by key.
//
// # Description
//
// Returns the value associated with the key and a boolean indicating
// whether the key exists.
//
// # Inputs
//
//   - key: The metadata key to retrieve.
//
// # Outputs
//
//   - any: The value, or nil if not found.
//   - bool: True if the key exists, false otherwise.
func (m Metadata) Get(key string) (any, bool) {
	value, ok := m[key]
	return value, ok
}

// GetString retrieves a string value by key.
//
// # Description
//
// Type-safe accessor for string values. Returns the string and true
// if the key exists and the value is a string, otherwise returns
// empty string and false.
//
// # Inputs
//
//   - key: The metadata key to retrieve.
//
// # Outputs
//
//   - string: The value, or "" if not found or not a string.
//   - bool: True if the key exists and value is a string.
func (m Metadata) GetString(key string) (string, bool) {
	value, ok := m[key]
	if !ok {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// GetBool retrieves a bool value by key.
//
// # Description
//
// Type-safe accessor for bool values. Returns the bool and true
// if the key exists and the value is a bool, otherwise returns
// false and false.
//
// # Inputs
//
//   - key: The metadata key to retrieve.
//
// # Outputs
//
//   - bool: The value, or false if not found or not a bool.
//   - bool: True if the key exists and value is a bool.
func (m Metadata) GetBool(key string) (bool, bool) {
	value, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}

// Has checks if a key exists in the Metadata.
//
// # Description
//
// Returns true if the key exists, regardless of its value (including nil).
//
// # Inputs
//
//   - key: The metadata key to check.
//
// # Outputs
//
//   - bool: True if the key exists.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Clone creates a shallow copy of the Metadata.
//
// # Description
//
// Creates a new Metadata instance with the same key-value pairs.
// Note: Values themselves are not deep-copied.
//
// # Outputs
//
//   - Metadata: A new instance with copied key-value pairs.
//
// # Limitations
//
// This is a shallow copy. If values are pointers or references,
// they will point to the same underlying data.
func (m Metadata) Clone() Metadata {
	clone := make(Metadata, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Len returns the number of key-value pairs.
//
// # Outputs
//
//   - int: Number of key-value pairs.
func (m Metadata) Len() int {
	return len(m)
}
