// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package embedding computes the vectors the vector store ranks chunks by.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/noldarim/ragbus/internal/config"
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

// Embedder maps text to vectors. Vectors from one Embedder share a dimension.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// New builds the embedder selected by cfg. The returned release func frees
// worker pools and must be called once the embedder is no longer used.
func New(cfg *config.EmbeddingConfig) (Embedder, func(), error) {
	var base Embedder
	switch cfg.Provider {
	case "", "hash":
		base = NewHashEmbedder(cfg.Dimensions)
	case "openai":
		e, err := NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, nil, err
		}
		base = e
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	batch, err := NewBatchEmbedder(base, cfg.BatchSize, cfg.PoolSize)
	if err != nil {
		return nil, nil, err
	}
	getLog().Info().
		Str("provider", cfg.Provider).
		Int("batch_size", cfg.BatchSize).
		Int("pool_size", cfg.PoolSize).
		Msg("Embedder ready")
	return batch, batch.Release, nil
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero or
// their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
