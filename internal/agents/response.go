// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package agents

import (
	"context"

	"github.com/noldarim/ragbus/internal/bus"
	"github.com/noldarim/ragbus/internal/llm"
	"github.com/noldarim/ragbus/internal/protocol"
)

// LLMResponseAgent answers questions from retrieved context.
type LLMResponseAgent struct {
	Base
	generator llm.Generator
}

// NewLLMResponseAgent creates the response worker.
func NewLLMResponseAgent(sender bus.Sender, generator llm.Generator) *LLMResponseAgent {
	return &LLMResponseAgent{
		Base:      NewBase(protocol.LLMResponseAgent, sender),
		generator: generator,
	}
}

// OnEnvelope implements bus.Worker.
func (a *LLMResponseAgent) OnEnvelope(ctx context.Context, env protocol.Envelope) error {
	if !env.IsTaskRequest() {
		return a.ignore(env)
	}
	req, ok := env.Payload.(protocol.GenerateResponseRequest)
	if !ok {
		return a.ignore(env)
	}

	answer, err := a.generator.Generate(ctx, req.Query, req.Context)
	if err != nil {
		return a.replyError(ctx, env, err)
	}
	return a.reply(ctx, env, protocol.KindTaskResult, protocol.GenerateResult{
		Answer: answer,
		Query:  req.Query,
	})
}
