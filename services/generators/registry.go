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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
)

// Construction-time error taxonomy. Distinguishable with errors.Is.
var (
	// ErrUnknownEngine: the spec names an engine this build has never
	// heard of.
	ErrUnknownEngine = errors.New("generators: unknown engine")

	// ErrBackendUnavailable: the engine is known but cannot be served by
	// this build (in-process engines like "hf" and "vllm" need a serving
	// layer; point an "openai" spec at it instead).
	ErrBackendUnavailable = errors.New("generators: backend unavailable")

	// ErrBadSpec: the spec is structurally invalid (missing path, ...).
	ErrBadSpec = errors.New("generators: invalid spec")
)

// CacheKey identifies one constructed backend. Two specs with equal keys
// share one generator instance.
type CacheKey struct {
	Engine       string
	Path         string
	Device       string
	Quantization string
}

// CacheConfig carries per-process backend defaults applied to every
// generator the cache constructs.
type CacheConfig struct {
	// MaxTokens caps each continuation for all backends. Zero keeps the
	// backend default.
	MaxTokens int

	// OllamaKeepAlive is applied to Ollama-engine generators. Default "-1"
	// so competing models stay resident between rounds.
	OllamaKeepAlive string

	// RequestTimeout wraps every constructed generator in WithTimeout.
	// Zero disables the wrapper (the core then has no latency bound, by
	// contract).
	RequestTimeout time.Duration
}

// Cache constructs generator backends on demand and shares them across
// runs.
//
// # Description
//
// This replaces a global registry with an explicit object: create one per
// process, inject it wherever specs need resolving, and Close it on
// shutdown. Entries are keyed by (engine, path, device, quantization), so
// one model served at two quantizations is two entries.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[CacheKey]ensemble.Generator
	// warmable tracks the raw Ollama backends before decorator wrapping,
	// so WarmAll reaches them regardless of RequestTimeout.
	warmable []*OllamaGenerator
	cfg      CacheConfig
	logger   *slog.Logger
}

// NewCache creates an empty generator cache.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.OllamaKeepAlive == "" {
		cfg.OllamaKeepAlive = "-1"
	}
	return &Cache{
		entries: make(map[CacheKey]ensemble.Generator),
		cfg:     cfg,
		logger:  slog.Default(),
	}
}

// Resolve returns the cached generator for spec, constructing it on first
// use. Implements ensemble.GeneratorResolver.
//
// # Outputs
//
//   - ensemble.Generator: Shared instance for this key.
//   - error: ErrBadSpec, ErrUnknownEngine, or ErrBackendUnavailable
//     (wrapped with detail), or the backend's own construction failure.
func (c *Cache) Resolve(ctx context.Context, spec ensemble.GeneratorSpec) (ensemble.Generator, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("%w: empty model path", ErrBadSpec)
	}
	if spec.Engine == "" {
		return nil, fmt.Errorf("%w: empty engine", ErrBadSpec)
	}

	key := CacheKey{
		Engine:       spec.Engine,
		Path:         spec.Path,
		Device:       spec.Device,
		Quantization: spec.Quantization,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen, ok := c.entries[key]; ok {
		return gen, nil
	}

	c.logger.Info("loading generator",
		slog.String("engine", spec.Engine),
		slog.String("path", spec.Path),
	)

	gen, err := c.construct(spec)
	if err != nil {
		return nil, err
	}
	if og, ok := gen.(*OllamaGenerator); ok {
		c.warmable = append(c.warmable, og)
	}
	if c.cfg.RequestTimeout > 0 {
		gen = WithTimeout(gen, c.cfg.RequestTimeout)
	}
	c.entries[key] = gen
	return gen, nil
}

func (c *Cache) construct(spec ensemble.GeneratorSpec) (ensemble.Generator, error) {
	switch spec.Engine {
	case "ollama":
		return NewOllamaGenerator(OllamaConfig{
			BaseURL:   spec.BaseURL,
			Model:     spec.Path,
			NumCtx:    spec.MaxContextTokens,
			KeepAlive: c.cfg.OllamaKeepAlive,
			MaxTokens: c.cfg.MaxTokens,
		})
	case "openai":
		return NewOpenAIGenerator(OpenAIConfig{
			Model:            spec.Path,
			BaseURL:          spec.BaseURL,
			MaxContextTokens: spec.MaxContextTokens,
			MaxTokens:        c.cfg.MaxTokens,
		})
	case "langchain":
		return NewLangchainOllamaGenerator(spec.Path, spec.BaseURL, LangchainConfig{
			MaxContextTokens: spec.MaxContextTokens,
			MaxTokens:        c.cfg.MaxTokens,
		})
	case "hf", "vllm":
		return nil, fmt.Errorf("%w: engine %q requires an external serving layer; expose it via an OpenAI-compatible endpoint and use engine \"openai\"", ErrBackendUnavailable, spec.Engine)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, spec.Engine)
	}
}

// WarmAll pre-loads every cached Ollama generator sequentially. Sequential
// on purpose: parallel warmup of several models contends for VRAM.
func (c *Cache) WarmAll(ctx context.Context) error {
	c.mu.Lock()
	warmable := make([]*OllamaGenerator, len(c.warmable))
	copy(warmable, c.warmable)
	c.mu.Unlock()

	for _, og := range warmable {
		if err := og.Warm(ctx); err != nil {
			return fmt.Errorf("warming %s: %w", og.Name(), err)
		}
	}
	return nil
}

// Close tears down every constructed backend that holds resources.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for key, gen := range c.entries {
		if closer, ok := gen.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("closing %s/%s: %w", key.Engine, key.Path, err)
			}
		}
	}
	c.entries = make(map[CacheKey]ensemble.Generator)
	c.warmable = nil
	return firstErr
}
