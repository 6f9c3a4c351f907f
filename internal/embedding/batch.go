// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
)

// BatchEmbedder splits large document sets into batches and embeds them
// concurrently on a bounded goroutine pool. Output order matches input order.
type BatchEmbedder struct {
	inner     Embedder
	batchSize int
	pool      *ants.Pool
}

// NewBatchEmbedder wraps inner. Non-positive sizes fall back to 64 and 1.
func NewBatchEmbedder(inner Embedder, batchSize, poolSize int) (*BatchEmbedder, error) {
	if batchSize <= 0 {
		batchSize = 64
	}
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}
	return &BatchEmbedder{inner: inner, batchSize: batchSize, pool: pool}, nil
}

// EmbedDocuments implements Embedder.
func (b *BatchEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.batchSize {
		return b.inner.EmbedDocuments(ctx, texts)
	}

	batches := lo.Chunk(texts, b.batchSize)
	results := make([][][]float32, len(batches))
	errs := make([]error, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = b.inner.EmbedDocuments(ctx, batch)
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submitting batch %d: %w", i, err)
		}
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	out := lo.Flatten(results)
	if len(out) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(out), len(texts))
	}
	return out, nil
}

// EmbedQuery implements Embedder.
func (b *BatchEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return b.inner.EmbedQuery(ctx, text)
}

// Release stops the pool's workers.
func (b *BatchEmbedder) Release() {
	b.pool.Release()
}
