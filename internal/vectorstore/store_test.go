// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/embedding"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpus() []Document {
	return []Document{
		{Content: "The secret code is ALPHA-BETA-GAMMA.", Source: "secrets.txt"},
		{Content: "The projected revenue for Q4 is $5M.", Source: "finance.txt"},
		{Content: "Lunch is served at noon in the cafeteria.", Source: "office.md"},
	}
}

// storeContract runs the behaviour every Store implementation must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	matches, err := s.Query(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, matches, "empty store returns no matches")

	require.NoError(t, s.Add(ctx, corpus()))
	require.NoError(t, s.Add(ctx, nil))

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	matches, err = s.Query(ctx, "What is the projected revenue for Q4?", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "finance.txt", matches[0].Source)
	assert.Contains(t, matches[0].Content, "$5M")
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	assert.NotEmpty(t, matches[0].ID)

	matches, err = s.Query(ctx, "secret code", 10)
	require.NoError(t, err)
	assert.Len(t, matches, 3, "n larger than the corpus returns everything")
	assert.Equal(t, "secrets.txt", matches[0].Source)

	matches, err = s.Query(ctx, "secret code", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, s.Add(ctx, []Document{{Content: "orphan chunk"}}))
	matches, err = s.Query(ctx, "orphan chunk", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, UnknownSource, matches[0].Source)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(embedding.NewHashEmbedder(128))
	defer s.Close()
	storeContract(t, s)
}

func TestGormStore_SQLite(t *testing.T) {
	fixture := UseFreshSQLiteStore(t)
	defer fixture.Cleanup()

	require.NoError(t, fixture.Store.ValidateSchema())
	storeContract(t, fixture.Store)
}

func TestGormStore_ResetOnStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	ctx := context.Background()

	first, err := New(&config.StoreConfig{Driver: "sqlite", Database: path}, embedding.NewHashEmbedder(32))
	require.NoError(t, err)
	require.NoError(t, first.Add(ctx, corpus()))
	require.NoError(t, first.Close())

	kept, err := New(&config.StoreConfig{Driver: "sqlite", Database: path}, embedding.NewHashEmbedder(32))
	require.NoError(t, err)
	n, err := kept.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "chunks persist across reopen")
	require.NoError(t, kept.Close())

	reset, err := New(&config.StoreConfig{Driver: "sqlite", Database: path, ResetOnStart: true}, embedding.NewHashEmbedder(32))
	require.NoError(t, err)
	defer reset.Close()
	n, err = reset.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

func TestStores_EmbedderFailure(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(failingEmbedder{}),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			err := s.Add(context.Background(), corpus())
			require.ErrorContains(t, err, "embedding service down")
			_, err = s.Query(context.Background(), "q", 3)
			require.ErrorContains(t, err, "embedding service down")
		})
	}
}

func TestNew_Drivers(t *testing.T) {
	s, err := New(&config.StoreConfig{Driver: "memory"}, embedding.NewHashEmbedder(8))
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(&config.StoreConfig{Driver: "mongo"}, embedding.NewHashEmbedder(8))
	assert.Error(t, err)
}

func TestTopN_StableTies(t *testing.T) {
	var candidates []scored
	for i := 0; i < 5; i++ {
		candidates = append(candidates, scored{doc: Document{ID: fmt.Sprint(i)}, score: 0.5, seq: i})
	}
	got := topN(candidates, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "0", got[0].ID)
	assert.Equal(t, "2", got[2].ID)
}
