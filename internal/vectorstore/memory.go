// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/noldarim/ragbus/internal/embedding"
)

type memoryEntry struct {
	doc    Document
	vector []float32
}

// MemoryStore keeps documents and vectors in process memory.
type MemoryStore struct {
	embedder embedding.Embedder

	mu      sync.RWMutex
	entries []memoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(embedder embedding.Embedder) *MemoryStore {
	return &MemoryStore{embedder: embedder}
}

func (s *MemoryStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		d.Source = sourceOrUnknown(d.Source)
		s.entries = append(s.entries, memoryEntry{doc: d, vector: vectors[i]})
	}
	getLog().Debug().Int("added", len(docs)).Int("total", len(s.entries)).Msg("Indexed documents")
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, text string, n int) ([]Match, error) {
	if n <= 0 {
		return nil, nil
	}
	q, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	candidates := make([]scored, len(s.entries))
	for i, e := range s.entries {
		candidates[i] = scored{doc: e.doc, score: embedding.Cosine(q, e.vector), seq: i}
	}
	s.mu.RUnlock()

	return topN(candidates, n), nil
}

func (s *MemoryStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
