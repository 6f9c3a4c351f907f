// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	reset := flag.Bool("reset", false, "drop previously indexed chunks before migrating")
	flag.Parse()

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Store.Driver == "memory" {
		fmt.Println("Store driver is \"memory\"; nothing to migrate.")
		return
	}
	cfg.Store.ResetOnStart = cfg.Store.ResetOnStart || *reset

	// Migration never embeds, so no embedder is needed.
	store, err := vectorstore.NewGormStore(&cfg.Store, nil)
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	fmt.Println("Starting vector store migration...")
	fmt.Printf("Database: %s (%s)\n", cfg.Store.Database, cfg.Store.Driver)

	if err := store.AutoMigrate(); err != nil {
		fmt.Printf("Migration failed: %v\n", err)
		os.Exit(1)
	}
	if err := store.ValidateSchema(); err != nil {
		fmt.Printf("Schema validation failed after migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Vector store is ready to use.")
}
