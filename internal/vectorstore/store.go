// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package vectorstore indexes text chunks and answers nearest-neighbour
// queries over their embeddings.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/embedding"
	"github.com/noldarim/ragbus/internal/logger"

	"github.com/rs/zerolog"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetStoreLogger()
		log = &l
	})
	return log
}

// UnknownSource is reported for chunks indexed without a source name.
const UnknownSource = "unknown"

// Document is one indexed chunk.
type Document struct {
	ID      string
	Content string
	Source  string
}

// Match is a query hit, higher Score meaning closer.
type Match struct {
	Document
	Score float64
}

// Store is the vector index used by the retrieval worker.
type Store interface {
	// Add embeds and indexes docs. Documents without an ID get a fresh one.
	Add(ctx context.Context, docs []Document) error
	// Query returns up to n documents closest to text, best first.
	Query(ctx context.Context, text string, n int) ([]Match, error)
	// Count returns the number of indexed documents.
	Count(ctx context.Context) (int64, error)
	Close() error
}

// New opens the store selected by cfg.Driver.
func New(cfg *config.StoreConfig, embedder embedding.Embedder) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(embedder), nil
	case "sqlite", "postgres":
		s, err := NewGormStore(cfg, embedder)
		if err != nil {
			return nil, err
		}
		if err := s.AutoMigrate(); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

type scored struct {
	doc   Document
	score float64
	seq   int
}

// topN keeps the n best candidates, earlier insertion winning ties.
func topN(candidates []scored, n int) []Match {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	out := make([]Match, len(candidates))
	for i, c := range candidates {
		out[i] = Match{Document: c.doc, Score: c.score}
	}
	return out
}

func sourceOrUnknown(s string) string {
	if s == "" {
		return UnknownSource
	}
	return s
}
