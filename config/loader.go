// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the AdForge service configuration.
//
// # Description
//
// Configuration comes from three layers, later layers winning: built-in
// defaults, a YAML file, and ADFORGE_* environment variables. Secrets
// (JWT signing key, fal.ai key, OpenAI key) are never part of the YAML
// file; they are read from the environment into memguard enclaves and
// opened only at the call sites that need them.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is the process-wide configuration singleton.
	Global Config
	once   sync.Once
)

// Load populates Global exactly once from the given file path plus
// environment overrides. A missing file is not an error; defaults and
// the environment apply alone.
func Load(path string) error {
	var err error
	once.Do(func() {
		Global, err = load(path)
	})
	return err
}

func load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run: defaults plus environment.
	case err != nil:
		return cfg, fmt.Errorf("failed to read the config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.Storage.BadgerDir = expandHome(cfg.Storage.BadgerDir)
	return cfg, nil
}

// expandHome rewrites a leading "~/" to the current user's home
// directory. Paths that do not start with it pass through unchanged.
func expandHome(path string) string {
	if len(path) < 2 || path[0] != '~' || path[1] != '/' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}

// applyEnv patches cfg from ADFORGE_* environment variables. Only the
// operationally useful knobs are overridable; everything else stays in
// the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ADFORGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ADFORGE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("ADFORGE_BADGER_DIR"); v != "" {
		cfg.Storage.BadgerDir = v
	}
	if v := os.Getenv("ADFORGE_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("ADFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("ADFORGE_GCS_BUCKET"); v != "" {
		cfg.GCS.Bucket = v
	}
	if v := os.Getenv("ADFORGE_GCS_CREDENTIALS_FILE"); v != "" {
		cfg.GCS.CredentialsFile = v
	}
	if v := os.Getenv("ADFORGE_OPENAI_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
}
