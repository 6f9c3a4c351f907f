// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/noldarim/ragbus/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIBaseURL points the OpenAI client at Groq's compatible endpoint.
const DefaultOpenAIBaseURL = "https://api.groq.com/openai/v1"

// DefaultOpenAIModel is used when the config leaves the model empty.
const DefaultOpenAIModel = "llama-3.3-70b-versatile"

// OpenAI generates answers through any OpenAI-compatible Chat Completions API.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewOpenAI configures a client from cfg.
func NewOpenAI(cfg *config.LLMConfig, extra ...option.RequestOption) *OpenAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	opts = append(opts, extra...)

	client := openai.NewClient(opts...)
	return &OpenAI{
		client:      &client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, query, retrieved string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(UserPrompt(query, retrieved)),
		},
		Model:       o.model,
		Temperature: openai.Float(o.temperature),
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(o.maxTokens)
	}

	getLog().Debug().Str("model", o.model).Int("context_len", len(retrieved)).Msg("Requesting chat completion")

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
