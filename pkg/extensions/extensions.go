// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines interfaces for deployment-specific functionality.
//
// This package provides the extension points that let the service swap
// infrastructure concerns without modifying the core codebase. The
// HTTP layer depends only on these interfaces; concrete
// implementations are injected at startup.
//
// # Extension Categories
//
// The package is organized by domain:
//
//   - auth.go: Authentication (AuthProvider, AuthInfo, ErrUnauthorized)
//   - metadata.go: Identity claim carrier (Metadata)
//
// # Usage
//
// Local development uses the no-op provider:
//
//	provider := &extensions.NopAuthProvider{}
//
// Production injects the JWT verifier:
//
//	provider := auth.NewJWTProvider(secret)
//	r := routes.New(engine, provider, ...)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions
