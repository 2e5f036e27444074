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
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AdForge/config"
	"github.com/AleutianAI/AdForge/storage/postgres"
)

func runMigrate(cmd *cobra.Command, args []string) {
	cfg := config.Global
	if cfg.Storage.PostgresDSN == "" {
		log.Fatal("storage.postgres_dsn (or ADFORGE_POSTGRES_DSN) is required for migrate")
	}

	ctx := context.Background()
	store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN, nil)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer store.Close()

	if err := postgres.CreateSchema(ctx, store); err != nil {
		log.Fatalf("failed to create the schema: %v", err)
	}
	log.Println("schema is up to date")
}
