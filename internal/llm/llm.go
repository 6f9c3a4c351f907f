// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm produces answers to a question from retrieved context.
package llm

import (
	"context"
	"fmt"
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
		l := logger.GetLLMLogger()
		log = &l
	})
	return log
}

// SystemPrompt instructs the model to answer from context and cite sources.
const SystemPrompt = "You are a helpful RAG Chatbot. Use the provided context to answer the user's question. " +
	"If the answer is not in the context, say so. " +
	"Cite the sources if available in the context."

// UserPrompt renders the question together with its retrieved context.
func UserPrompt(query, retrieved string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", retrieved, query)
}

// Generator answers query using only context.
type Generator interface {
	Generate(ctx context.Context, query, retrieved string) (string, error)
}

// New builds the generator selected by cfg.Provider.
func New(cfg *config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "extractive":
		return NewExtractive(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
