// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package agents

import (
	"context"

	"github.com/noldarim/ragbus/internal/bus"
	"github.com/noldarim/ragbus/internal/chunk"
	"github.com/noldarim/ragbus/internal/protocol"
)

// StatusSuccess is the status of a completed ingestion.
const StatusSuccess = "success"

// TextExtractor reads a file as text, choosing the format by name.
type TextExtractor interface {
	Extract(ctx context.Context, path, name string) (string, error)
}

// IngestionAgent extracts, chunks and forwards uploaded files for indexing.
type IngestionAgent struct {
	Base
	extractor TextExtractor
	splitter  chunk.Splitter
}

// NewIngestionAgent creates the ingestion worker.
func NewIngestionAgent(sender bus.Sender, extractor TextExtractor, splitter chunk.Splitter) *IngestionAgent {
	return &IngestionAgent{
		Base:      NewBase(protocol.IngestionAgent, sender),
		extractor: extractor,
		splitter:  splitter,
	}
}

// OnEnvelope implements bus.Worker.
func (a *IngestionAgent) OnEnvelope(ctx context.Context, env protocol.Envelope) error {
	if !env.IsTaskRequest() {
		return a.ignore(env)
	}
	req, ok := env.Payload.(protocol.IngestFileRequest)
	if !ok {
		return a.ignore(env)
	}
	return a.ingest(ctx, env, req)
}

func (a *IngestionAgent) ingest(ctx context.Context, env protocol.Envelope, req protocol.IngestFileRequest) error {
	text, err := a.extractor.Extract(ctx, req.FilePath, req.FileName)
	if err != nil {
		return a.replyError(ctx, env, err)
	}

	chunks := a.splitter.Split(text)
	getLog().Info().
		Str("file", req.FileName).
		Int("chars", len(text)).
		Int("chunks", len(chunks)).
		Str("correlation_id", env.CorrelationID).
		Msg("Chunked file")

	if len(chunks) > 0 {
		embed := protocol.EmbedChunksRequest{
			Chunks:   chunks,
			Metadata: protocol.ChunkMetadata{Source: req.FileName},
		}
		if err := a.send(ctx, protocol.RetrievalAgent, protocol.KindTaskRequest, embed, env.CorrelationID); err != nil {
			return a.replyError(ctx, env, err)
		}
	}

	return a.reply(ctx, env, protocol.KindTaskResult, protocol.IngestResult{
		Status:      StatusSuccess,
		File:        req.FileName,
		ChunksCount: len(chunks),
	})
}
