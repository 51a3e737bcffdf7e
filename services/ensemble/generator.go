// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ensemble

import "context"

// CandidateOutput is a single generator's proposed continuation for one
// round. It is owned transiently by the round: compared by score and, if
// selected, copied into the conversation state.
type CandidateOutput struct {
	// Text is the generated continuation.
	Text string

	// EndedWithEOS reports whether the generation terminated naturally
	// rather than being cut off by a length limit.
	EndedWithEOS bool
}

// Generator produces candidate continuations for a rendered context.
//
// # Description
//
// Backends (Ollama, OpenAI, langchaingo, ...) implement this contract in
// services/generators. The reasoner only depends on the three methods below;
// model loading, device placement, and tokenizer configuration stay behind
// the implementation.
//
// # Implementation Requirements
//
//  1. Name must be stable for the lifetime of a run and unique within the
//     active generator set. It keys per-generator EOS bookkeeping.
//
//  2. IsEligible returns false only when the backend has an intrinsic
//     context-length limit and the rendered context exceeds it under the
//     backend's own accounting. A backend with no limit is always eligible.
//
//  3. Generate may block on network or compute. Normal generation quality
//     problems (empty, truncated, degenerate text) must be returned as a
//     CandidateOutput, not as an error; the validity filter handles them.
//     A returned error is a hard failure that aborts the whole run, so
//     wrap transient backends with generators.WithRetry or
//     generators.WithFallback first.
type Generator interface {
	// Name returns the generator's stable identity.
	Name() string

	// IsEligible reports whether the rendered context fits the backend's
	// input-length constraints.
	IsEligible(renderedContext string) bool

	// Generate produces one candidate continuation of the conversation.
	Generate(ctx context.Context, conv *ConversationState) (CandidateOutput, error)
}

// GeneratorSpec identifies a generator backend to construct or fetch from a
// cache. The (Engine, Path, Device, Quantization) tuple is the cache key.
type GeneratorSpec struct {
	// Path is the model identifier, e.g. "Qwen/Qwen3-4B" or "granite4:micro-h".
	Path string `json:"path" yaml:"path" validate:"required"`

	// Engine selects the backend: "ollama", "openai", or "langchain".
	Engine string `json:"engine" yaml:"engine" validate:"required"`

	// Device is an optional placement hint, e.g. "cuda:0". Opaque to this
	// package; remote backends ignore it.
	Device string `json:"device,omitempty" yaml:"device,omitempty"`

	// Quantization is an optional quantization tag, e.g. "int8".
	Quantization string `json:"quantization,omitempty" yaml:"quantization,omitempty"`

	// BaseURL overrides the backend endpoint (Ollama server, OpenAI-compatible
	// gateway). Empty uses the backend's environment default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// MaxContextTokens caps the prompt length for eligibility checks.
	// Zero means the backend has no known limit.
	MaxContextTokens int `json:"max_context_tokens,omitempty" yaml:"max_context_tokens,omitempty"`
}

// GeneratorResolver turns specs into live generators. Implemented by
// generators.Cache; injected so this package never constructs backends.
type GeneratorResolver interface {
	Resolve(ctx context.Context, spec GeneratorSpec) (Generator, error)
}
