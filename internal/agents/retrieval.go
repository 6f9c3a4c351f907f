// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/noldarim/ragbus/internal/bus"
	"github.com/noldarim/ragbus/internal/protocol"
	"github.com/noldarim/ragbus/internal/vectorstore"

	"github.com/samber/lo"
)

// DefaultNResults is used when a retrieve_context request leaves n_results unset.
const DefaultNResults = 3

// RetrievalAgent indexes chunks and answers context lookups from the vector store.
type RetrievalAgent struct {
	Base
	store vectorstore.Store
}

// NewRetrievalAgent creates the retrieval worker.
func NewRetrievalAgent(sender bus.Sender, store vectorstore.Store) *RetrievalAgent {
	return &RetrievalAgent{
		Base:  NewBase(protocol.RetrievalAgent, sender),
		store: store,
	}
}

// OnEnvelope implements bus.Worker.
func (a *RetrievalAgent) OnEnvelope(ctx context.Context, env protocol.Envelope) error {
	if !env.IsTaskRequest() {
		return a.ignore(env)
	}
	switch req := env.Payload.(type) {
	case protocol.EmbedChunksRequest:
		return a.embed(ctx, env, req)
	case protocol.RetrieveContextRequest:
		return a.retrieve(ctx, env, req)
	default:
		return a.ignore(env)
	}
}

// embed indexes the chunks. Nobody waits for it, so failures only surface
// through the router's handler error log.
func (a *RetrievalAgent) embed(ctx context.Context, env protocol.Envelope, req protocol.EmbedChunksRequest) error {
	docs := lo.Map(req.Chunks, func(c string, _ int) vectorstore.Document {
		return vectorstore.Document{Content: c, Source: req.Metadata.Source}
	})
	if err := a.store.Add(ctx, docs); err != nil {
		return fmt.Errorf("indexing %d chunks of %s: %w", len(docs), req.Metadata.Source, err)
	}
	getLog().Info().
		Int("chunks", len(docs)).
		Str("source", req.Metadata.Source).
		Str("correlation_id", env.CorrelationID).
		Msg("Indexed chunks")
	return nil
}

func (a *RetrievalAgent) retrieve(ctx context.Context, env protocol.Envelope, req protocol.RetrieveContextRequest) error {
	n := req.NResults
	if n <= 0 {
		n = DefaultNResults
	}

	matches, err := a.store.Query(ctx, req.Query, n)
	if err != nil {
		return a.replyError(ctx, env, err)
	}

	return a.reply(ctx, env, protocol.KindContextResponse, protocol.ContextResult{
		Context:       FormatContext(matches),
		OriginalQuery: req.Query,
	})
}

// FormatContext renders matches as "Source: <source>\nContent: <chunk>"
// blocks joined by a newline, best match first.
func FormatContext(matches []vectorstore.Match) string {
	blocks := lo.Map(matches, func(m vectorstore.Match, _ int) string {
		return fmt.Sprintf("Source: %s\nContent: %s", m.Source, m.Content)
	})
	return strings.Join(blocks, "\n")
}
