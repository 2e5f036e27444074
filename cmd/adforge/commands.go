// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AdForge/config"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "adforge",
		Short: "The AdForge workflow execution service",
		Long: `AdForge runs visual ad-creative workflows: directed graphs of text,
social-trend, prompt and image-generation nodes, executed with
breakpoints, stepping and durable history.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := config.Load(configPath); err != nil {
				log.Fatalf("Error loading configuration: %v", err)
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the AdForge API server",
		Run:   runServe, // Defined in serve.go
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL schema",
		Run:   runMigrate, // Defined in migrate.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the adforge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("adforge", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}
