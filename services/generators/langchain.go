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
	"unicode/utf8"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

// LangchainConfig configures a LangchainGenerator.
type LangchainConfig struct {
	// Name identifies the generator within a run. Required because the
	// wrapped model carries no stable identity of its own.
	Name string

	// MaxContextTokens caps the prompt for eligibility. Zero = no limit.
	MaxContextTokens int

	// MaxTokens caps each continuation. Zero means 256.
	MaxTokens int

	// Nil takes 0.95 / 0.7; an explicit zero is honored for greedy decoding.
	Temperature *float64
	TopP        *float64
}

// LangchainGenerator adapts any langchaingo chat model to the ensemble
// Generator contract.
//
// # Description
//
// langchaingo gives one adapter access to every provider it supports
// (Ollama, OpenAI, Anthropic, Mistral, ...) without a dedicated backend per
// provider here. EndedWithEOS maps from the choice's StopReason the same
// way the native backends do.
type LangchainGenerator struct {
	name   string
	model  llms.Model
	cfg    LangchainConfig
	logger *slog.Logger
}

// NewLangchainGenerator wraps an already-constructed langchaingo model.
func NewLangchainGenerator(model llms.Model, cfg LangchainConfig) (*LangchainGenerator, error) {
	if model == nil {
		return nil, fmt.Errorf("langchain generator: nil model")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("langchain generator: no name configured")
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Temperature == nil {
		t := float64(defaultTemperature)
		cfg.Temperature = &t
	}
	if cfg.TopP == nil {
		p := float64(defaultTopP)
		cfg.TopP = &p
	}
	return &LangchainGenerator{
		name:   cfg.Name,
		model:  model,
		cfg:    cfg,
		logger: slog.Default(),
	}, nil
}

// NewLangchainOllamaGenerator builds a langchaingo Ollama model and wraps
// it. Used by the cache for the "langchain" engine.
func NewLangchainOllamaGenerator(model, serverURL string, cfg LangchainConfig) (*LangchainGenerator, error) {
	opts := []lcollama.Option{lcollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, lcollama.WithServerURL(serverURL))
	}
	llm, err := lcollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("constructing langchaingo ollama model: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = model
	}
	return NewLangchainGenerator(llm, cfg)
}

// Name implements ensemble.Generator.
func (l *LangchainGenerator) Name() string { return l.name }

// IsEligible implements ensemble.Generator.
func (l *LangchainGenerator) IsEligible(renderedContext string) bool {
	if l.cfg.MaxContextTokens <= 0 {
		return true
	}
	estimated := utf8.RuneCountInString(renderedContext)/runesPerToken + l.cfg.MaxTokens
	return estimated <= l.cfg.MaxContextTokens
}

// Generate implements ensemble.Generator.
func (l *LangchainGenerator) Generate(ctx context.Context, conv *ensemble.ConversationState) (ensemble.CandidateOutput, error) {
	msgs := conv.RenderMessages()
	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		content = append(content, llms.TextParts(langchainRole(m.Role), m.Content))
	}

	resp, err := l.model.GenerateContent(ctx, content,
		llms.WithTemperature(*l.cfg.Temperature),
		llms.WithTopP(*l.cfg.TopP),
		llms.WithMaxTokens(l.cfg.MaxTokens),
	)
	if err != nil {
		l.logger.Error("langchaingo call failed",
			slog.String("generator", l.name),
			slog.String("error", err.Error()),
		)
		return ensemble.CandidateOutput{}, fmt.Errorf("langchaingo generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ensemble.CandidateOutput{}, fmt.Errorf("langchaingo returned no choices")
	}

	choice := resp.Choices[0]
	ended := choice.StopReason == "stop" || choice.StopReason == "end_turn"
	text := choice.Content
	if !ended {
		text = TrimAtLastStop(text, DefaultStopTokens)
	}
	return ensemble.CandidateOutput{Text: text, EndedWithEOS: ended}, nil
}

func langchainRole(role string) llms.ChatMessageType {
	switch role {
	case ensemble.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ensemble.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
