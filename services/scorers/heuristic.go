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
	"context"
	"math"
	"strings"
)

// HeuristicScorer is a local, model-free scorer for development and
// degraded operation when no reward model is reachable.
//
// # Description
//
// Scores combine length (saturating, so rambling is not rewarded without
// bound), vocabulary diversity, and a novelty penalty against the prompt
// (a candidate that restates context verbatim scores low). The output range
// matches the reward scorer's [0,10] so thresholds keep their meaning.
//
// This is a stand-in, not a quality model: use it behind the "heuristic"
// engine in tests and offline smoke runs only.
type HeuristicScorer struct{}

// NewHeuristicScorer builds the fallback scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// Score implements ensemble.Scorer. Never fails.
func (h *HeuristicScorer) Score(_ context.Context, prompt string, candidates []string) ([]float64, error) {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = heuristicScore(prompt, c)
	}
	return scores, nil
}

func heuristicScore(prompt, candidate string) float64 {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return 0
	}

	words := strings.Fields(trimmed)
	// Length component saturates around 40 words.
	length := 1 - math.Exp(-float64(len(words))/40.0)

	distinct := make(map[string]struct{}, len(words))
	for _, w := range words {
		distinct[strings.ToLower(w)] = struct{}{}
	}
	diversity := float64(len(distinct)) / float64(len(words))

	novelty := 1.0
	if strings.Contains(prompt, trimmed) {
		novelty = 0.1
	}

	return (0.4*length + 0.4*diversity + 0.2) * novelty * rewardScale
}
