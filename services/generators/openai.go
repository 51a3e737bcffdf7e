// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generators

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	// Model is the chat model, e.g. "gpt-4o-mini".
	Model string

	// APIKey falls back to OPENAI_API_KEY, then the Podman secret at
	// /run/secrets/openai_api_key.
	APIKey string

	// BaseURL points at an OpenAI-compatible gateway (vLLM, llama.cpp,
	// LiteLLM). Empty uses api.openai.com.
	BaseURL string

	// MaxContextTokens caps the prompt for eligibility. Zero = no limit.
	MaxContextTokens int

	// MaxTokens caps each continuation. Zero means 256.
	MaxTokens int

	// Nil takes 0.95 / 0.7; an explicit zero is honored for greedy decoding.
	Temperature *float32
	TopP        *float32
}

// OpenAIGenerator produces candidate continuations through the OpenAI chat
// completions API (or any compatible endpoint).
//
// EndedWithEOS maps from the choice's finish_reason: "stop" is a natural
// termination, "length" and friends are cut-offs and get trimmed to the
// last sentence boundary.
type OpenAIGenerator struct {
	name   string
	client *openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

// NewOpenAIGenerator builds an OpenAI-backed generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai generator: no model configured")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		raw, err := os.ReadFile(secretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found",
				slog.String("path", secretPath),
			)
			return nil, fmt.Errorf("openai generator: OPENAI_API_KEY not set")
		}
		apiKey = strings.TrimSpace(string(raw))
		slog.Info("Read the OpenAI API Key from Podman Secrets")
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Temperature == nil {
		t := float32(defaultTemperature)
		cfg.Temperature = &t
	}
	if cfg.TopP == nil {
		p := float32(defaultTopP)
		cfg.TopP = &p
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	slog.Info("Initializing OpenAI generator", slog.String("model", cfg.Model))
	return &OpenAIGenerator{
		name:   cfg.Model,
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: slog.Default(),
	}, nil
}

// Name implements ensemble.Generator.
func (o *OpenAIGenerator) Name() string { return o.name }

// IsEligible implements ensemble.Generator.
func (o *OpenAIGenerator) IsEligible(renderedContext string) bool {
	if o.cfg.MaxContextTokens <= 0 {
		return true
	}
	estimated := utf8.RuneCountInString(renderedContext)/runesPerToken + o.cfg.MaxTokens
	return estimated <= o.cfg.MaxContextTokens
}

// Generate implements ensemble.Generator.
func (o *OpenAIGenerator) Generate(ctx context.Context, conv *ensemble.ConversationState) (ensemble.CandidateOutput, error) {
	o.logger.Debug("Generating candidate via OpenAI", slog.String("model", o.cfg.Model))

	messages := make([]openai.ChatCompletionMessage, 0, 3)
	for _, m := range conv.RenderMessages() {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: *o.cfg.Temperature,
		TopP:        *o.cfg.TopP,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Error("OpenAI API call failed", slog.String("error", err.Error()))
		return ensemble.CandidateOutput{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		// Treat an empty choice list as a hard failure; an empty candidate
		// would just be filtered, hiding a broken backend.
		return ensemble.CandidateOutput{}, fmt.Errorf("OpenAI returned no choices")
	}

	choice := resp.Choices[0]
	ended := choice.FinishReason == openai.FinishReasonStop
	text := choice.Message.Content
	if !ended {
		text = TrimAtLastStop(text, DefaultStopTokens)
	}
	o.logger.Debug("Received candidate from OpenAI",
		slog.String("finish_reason", string(choice.FinishReason)),
		slog.Bool("ended_with_eos", ended),
	)
	return ensemble.CandidateOutput{Text: text, EndedWithEOS: ended}, nil
}
