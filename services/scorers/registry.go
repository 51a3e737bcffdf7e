// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scorers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
)

// Construction-time error taxonomy, mirroring services/generators.
var (
	ErrUnknownEngine = errors.New("scorers: unknown engine")
	ErrBadSpec       = errors.New("scorers: invalid spec")
)

// ScorerSpec identifies a scorer backend.
type ScorerSpec struct {
	// Engine selects the backend: "prm_http" or "heuristic".
	Engine string `json:"engine" yaml:"engine"`

	// Path is the reward model identity, informational for "prm_http".
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// BaseURL is the serving endpoint for remote engines.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// StepToken overrides the PRM step separator.
	StepToken string `json:"step_token,omitempty" yaml:"step_token,omitempty"`
}

type cacheKey struct {
	engine  string
	path    string
	baseURL string
}

// Cache constructs scorer backends on demand and shares them. Explicit
// lifecycle: one per process, injected where needed.
//
// # Thread Safety
//
// Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]ensemble.Scorer
}

// NewCache creates an empty scorer cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]ensemble.Scorer)}
}

// Resolve returns the cached scorer for spec, constructing it on first use.
//
// # Outputs
//
//   - ensemble.Scorer: Shared instance for this key.
//   - error: ErrUnknownEngine or ErrBadSpec (wrapped), or the backend's
//     construction failure.
func (c *Cache) Resolve(spec ScorerSpec) (ensemble.Scorer, error) {
	if spec.Engine == "" {
		return nil, fmt.Errorf("%w: empty engine", ErrBadSpec)
	}

	key := cacheKey{engine: spec.Engine, path: spec.Path, baseURL: spec.BaseURL}

	c.mu.Lock()
	defer c.mu.Unlock()

	if sc, ok := c.entries[key]; ok {
		return sc, nil
	}

	var (
		sc  ensemble.Scorer
		err error
	)
	switch spec.Engine {
	case "prm_http":
		sc, err = NewRewardScorer(RewardConfig{
			BaseURL:   spec.BaseURL,
			StepToken: spec.StepToken,
		})
	case "heuristic":
		sc = NewHeuristicScorer()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, spec.Engine)
	}
	if err != nil {
		return nil, err
	}

	c.entries[key] = sc
	return sc, nil
}
