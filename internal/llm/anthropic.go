// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/noldarim/ragbus/internal/config"
)

// Anthropic generates answers through the Anthropic Messages API.
type Anthropic struct {
	client      *anthropic.Client
	model       anthropic.Model
	temperature float64
	maxTokens   int64
}

// NewAnthropic configures a client from cfg.
func NewAnthropic(cfg *config.LLMConfig, extra ...option.RequestOption) *Anthropic {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" && cfg.BaseURL != DefaultOpenAIBaseURL {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" || cfg.Model == DefaultOpenAIModel {
		model = anthropic.ModelClaude3_5Sonnet20241022
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	client := anthropic.NewClient(opts...)
	return &Anthropic{
		client:      &client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

// Generate implements Generator.
func (a *Anthropic) Generate(ctx context.Context, query, retrieved string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		System:      []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(UserPrompt(query, retrieved))),
		},
	}

	getLog().Debug().Str("model", string(a.model)).Int("context_len", len(retrieved)).Msg("Requesting message")

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text content returned")
	}
	return b.String(), nil
}
