// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package vectorstore

import (
	"path/filepath"
	"testing"

	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/embedding"

	"github.com/stretchr/testify/require"
)

// StoreFixture represents a store setup with cleanup
type StoreFixture struct {
	Store   *GormStore
	Cleanup func()
}

// UseFreshSQLiteStore creates a SQLite store in a temp directory with the schema applied
func UseFreshSQLiteStore(t *testing.T) *StoreFixture {
	cfg := &config.StoreConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "chunks.db"),
	}

	store, err := NewGormStore(cfg, embedding.NewHashEmbedder(128))
	require.NoError(t, err, "Failed to create sqlite store")

	err = store.AutoMigrate()
	require.NoError(t, err, "Failed to run migrations on sqlite store")

	return &StoreFixture{
		Store:   store,
		Cleanup: func() { store.Close() },
	}
}
