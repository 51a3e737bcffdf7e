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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.ensemble.generators")

// runesPerToken is the rough prompt-length accounting used for eligibility
// when the backend exposes a context window but no tokenizer. Conservative
// for English text and LaTeX.
const runesPerToken = 4

// Sampling profile applied when a backend config leaves Temperature/TopP
// nil. Tuned for short competitive continuations.
const (
	defaultTemperature = 0.95
	defaultTopP        = 0.7
)

// Ollama API request/response shapes (chat endpoint).
type ollamaChatRequest struct {
	Model     string                 `json:"model"`
	Messages  []ensemble.Message     `json:"messages"`
	Stream    bool                   `json:"stream"`
	Options   map[string]interface{} `json:"options,omitempty"`
	KeepAlive string                 `json:"keep_alive,omitempty"`
}

type ollamaChatResponse struct {
	Message    ensemble.Message `json:"message"`
	CreatedAt  string           `json:"created_at"`
	Done       bool             `json:"done"`
	DoneReason string           `json:"done_reason"`
}

// OllamaConfig configures an OllamaGenerator.
type OllamaConfig struct {
	// BaseURL is the Ollama server, e.g. "http://localhost:11434".
	// Empty falls back to the OLLAMA_BASE_URL environment variable.
	BaseURL string

	// Model is the model name, e.g. "qwen3:4b".
	Model string

	// NumCtx is the model's context window in tokens. MUST be passed on
	// every request to keep Ollama from resetting to its 4096 default.
	// Zero disables the eligibility limit.
	NumCtx int

	// KeepAlive keeps the model loaded between rounds ("-1" = forever).
	// Alternating generators every round thrashes VRAM without it.
	KeepAlive string

	// MaxTokens caps each continuation. Zero means 256.
	MaxTokens int

	// Temperature and TopP control sampling. Nil takes 0.95 / 0.7, the
	// profile used for short competitive continuations; an explicit zero
	// is honored, so greedy decoding stays requestable.
	Temperature *float32
	TopP        *float32
}

// OllamaGenerator produces candidate continuations from a local Ollama
// server.
//
// # Description
//
// Each Generate call sends one non-streaming chat request built from the
// conversation's message view. The final assistant message holds the
// accumulated segments, so the model continues rather than restarts.
// EndedWithEOS is derived from Ollama's done_reason: "stop" means the model
// terminated naturally, anything else means it was cut off. Cut-off text is
// trimmed back to the last sentence boundary.
//
// # Thread Safety
//
// Safe for concurrent use; all state is set at construction.
type OllamaGenerator struct {
	name       string
	httpClient *http.Client
	baseURL    string
	cfg        OllamaConfig
	logger     *slog.Logger
}

// NewOllamaGenerator builds an Ollama-backed generator.
//
// # Inputs
//
//   - cfg: Backend configuration. Model is required; BaseURL falls back to
//     OLLAMA_BASE_URL.
//
// # Outputs
//
//   - *OllamaGenerator: Ready for Generate calls.
//   - error: Non-nil when no server URL or model is configured.
func NewOllamaGenerator(cfg OllamaConfig) (*OllamaGenerator, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("ollama generator: no base URL configured and OLLAMA_BASE_URL not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama generator: no model configured")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

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

	slog.Info("Initializing Ollama generator",
		slog.String("base_url", baseURL),
		slog.String("model", cfg.Model),
		slog.Int("num_ctx", cfg.NumCtx),
	)
	return &OllamaGenerator{
		name:       cfg.Model,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		cfg:        cfg,
		logger:     slog.Default(),
	}, nil
}

// Name implements ensemble.Generator.
func (o *OllamaGenerator) Name() string { return o.name }

// IsEligible implements ensemble.Generator. With NumCtx configured, the
// rendered context is estimated at one token per 4 runes and must leave
// room for the continuation budget.
func (o *OllamaGenerator) IsEligible(renderedContext string) bool {
	if o.cfg.NumCtx <= 0 {
		return true
	}
	estimated := utf8.RuneCountInString(renderedContext)/runesPerToken + o.cfg.MaxTokens
	return estimated <= o.cfg.NumCtx
}

// Generate implements ensemble.Generator.
func (o *OllamaGenerator) Generate(ctx context.Context, conv *ensemble.ConversationState) (ensemble.CandidateOutput, error) {
	ctx, span := tracer.Start(ctx, "OllamaGenerator.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.cfg.Model))

	options := map[string]interface{}{
		"temperature": *o.cfg.Temperature,
		"top_p":       *o.cfg.TopP,
		"num_predict": o.cfg.MaxTokens,
	}
	if o.cfg.NumCtx > 0 {
		options["num_ctx"] = o.cfg.NumCtx
	}

	payload := ollamaChatRequest{
		Model:     o.cfg.Model,
		Messages:  conv.RenderMessages(),
		Stream:    false,
		Options:   options,
		KeepAlive: o.cfg.KeepAlive,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ensemble.CandidateOutput{}, fmt.Errorf("marshaling chat request: %w", err)
	}

	chatURL := o.baseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL, bytes.NewBuffer(reqBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ensemble.CandidateOutput{}, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ensemble.CandidateOutput{}, fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ensemble.CandidateOutput{}, fmt.Errorf("reading Ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		o.logger.Error("Ollama returned an error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response", string(respBody)),
		)
		return ensemble.CandidateOutput{}, fmt.Errorf("Ollama failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ensemble.CandidateOutput{}, fmt.Errorf("parsing Ollama response: %w", err)
	}

	ended := chatResp.DoneReason == "stop"
	text := chatResp.Message.Content
	if !ended {
		text = TrimAtLastStop(text, DefaultStopTokens)
	}
	o.logger.Debug("Received candidate from Ollama",
		slog.String("model", o.cfg.Model),
		slog.Bool("ended_with_eos", ended),
		slog.Int("len", len(text)),
	)
	return ensemble.CandidateOutput{Text: text, EndedWithEOS: ended}, nil
}

// Warm pre-loads the model into VRAM with the configured keep_alive.
//
// # Description
//
// Sends a minimal chat request so the first real round does not pay the
// model load latency. With several generators sharing one Ollama server,
// warm them in sequence to avoid VRAM contention.
func (o *OllamaGenerator) Warm(ctx context.Context) error {
	start := time.Now()
	o.logger.Info("Warming model",
		slog.String("model", o.cfg.Model),
		slog.String("keep_alive", o.cfg.KeepAlive),
	)

	options := make(map[string]interface{})
	if o.cfg.NumCtx > 0 {
		options["num_ctx"] = o.cfg.NumCtx
	}
	payload := ollamaChatRequest{
		Model:     o.cfg.Model,
		Messages:  []ensemble.Message{{Role: ensemble.RoleUser, Content: "ping"}},
		Stream:    false,
		Options:   options,
		KeepAlive: o.cfg.KeepAlive,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling warmup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("creating warmup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending warmup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("warmup failed with status %d: %s", resp.StatusCode, string(body))
	}
	_, _ = io.ReadAll(resp.Body)

	o.logger.Info("Model warmed",
		slog.String("model", o.cfg.Model),
		slog.Duration("load_duration", time.Since(start)),
	)
	return nil
}
