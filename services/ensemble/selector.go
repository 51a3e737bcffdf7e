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

import (
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble/stats"
)

// ModelSelector picks the subset of generator specs to use for one example.
// Selection runs once per example, before the reasoner loop starts.
type ModelSelector interface {
	// SelectModels returns a non-empty subset of specs in their original
	// order, or all specs when the strategy has nothing to go on.
	SelectModels(ex Example, specs []GeneratorSpec) []GeneratorSpec

	// Name returns the method tag used in result metadata.
	Name() string
}

// =============================================================================
// All
// =============================================================================

// AllModelsSelector uses every configured model.
type AllModelsSelector struct{}

func (AllModelsSelector) SelectModels(_ Example, specs []GeneratorSpec) []GeneratorSpec {
	return specs
}

func (AllModelsSelector) Name() string { return "all" }

// =============================================================================
// Random
// =============================================================================

// RandomSelector picks Count models uniformly at random, preserving the
// original spec order in its output. Count <= 0 means all models.
type RandomSelector struct {
	Count int

	// Rand supplies randomness; nil uses the package-level source. Tests
	// inject a seeded source for determinism.
	Rand *rand.Rand
}

func (s RandomSelector) SelectModels(_ Example, specs []GeneratorSpec) []GeneratorSpec {
	if s.Count <= 0 || s.Count >= len(specs) {
		return specs
	}
	idx := make([]int, len(specs))
	for i := range idx {
		idx[i] = i
	}
	if s.Rand != nil {
		s.Rand.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	} else {
		rand.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	idx = idx[:s.Count]
	sort.Ints(idx)
	out := make([]GeneratorSpec, 0, s.Count)
	for _, i := range idx {
		out = append(out, specs[i])
	}
	return out
}

func (RandomSelector) Name() string { return "random" }

// =============================================================================
// Z-Score
// =============================================================================

// ZScoreSelector ranks models by a composite of their offline statistics:
// low perplexity and high confidence relative to the candidate pool, scaled
// by the manual weight.
//
// # Description
//
// For each model with statistics, the selector standardizes perplexity mean
// and confidence mean across the pool (z-scores), then computes
//
//	composite = weight * (confZ - pplZ)
//
// and keeps models whose composite is non-negative, up to ModelCount when
// set. Models without statistics are kept: an unknown model is given the
// benefit of the doubt rather than silently dropped. When fewer than two
// models carry statistics, standardization is meaningless and all specs are
// returned.
type ZScoreSelector struct {
	// Stats is the statistics table, usually stats.Defaults() merged with a
	// Store's contents.
	Stats map[string]stats.ModelStats

	// ModelCount caps the selection. Values <= 0 mean no cap.
	ModelCount int

	Logger *slog.Logger
}

func (s ZScoreSelector) SelectModels(_ Example, specs []GeneratorSpec) []GeneratorSpec {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	known := make([]GeneratorSpec, 0, len(specs))
	for _, spec := range specs {
		if _, ok := s.Stats[spec.Path]; ok {
			known = append(known, spec)
		}
	}
	if len(known) < 2 {
		logger.Debug("too few models with statistics; selecting all",
			slog.Int("with_stats", len(known)),
			slog.Int("total", len(specs)),
		)
		return specs
	}

	pplMean, pplStd := poolMoments(known, s.Stats, func(ms stats.ModelStats) float64 { return ms.PPLMean })
	confMean, confStd := poolMoments(known, s.Stats, func(ms stats.ModelStats) float64 { return ms.ConfMean })

	composite := make(map[string]float64, len(known))
	for _, spec := range known {
		ms := s.Stats[spec.Path]
		pplZ := zScore(ms.PPLMean, pplMean, pplStd)
		confZ := zScore(ms.ConfMean, confMean, confStd)
		composite[spec.Path] = ms.Weight * (confZ - pplZ)
	}

	selected := make([]GeneratorSpec, 0, len(specs))
	for _, spec := range specs {
		score, ok := composite[spec.Path]
		if !ok || score >= 0 {
			selected = append(selected, spec)
		}
	}
	if len(selected) == 0 {
		// Every model scored below the pool average; selection has no
		// signal worth acting on.
		return specs
	}

	if s.ModelCount > 0 && len(selected) > s.ModelCount {
		// Keep the top ModelCount by composite, preserving input order.
		ranked := make([]GeneratorSpec, len(selected))
		copy(ranked, selected)
		sort.SliceStable(ranked, func(i, j int) bool {
			return compositeOrUnknown(composite, ranked[i].Path) > compositeOrUnknown(composite, ranked[j].Path)
		})
		keep := make(map[string]bool, s.ModelCount)
		for _, spec := range ranked[:s.ModelCount] {
			keep[spec.Path] = true
		}
		trimmed := selected[:0]
		for _, spec := range selected {
			if keep[spec.Path] {
				trimmed = append(trimmed, spec)
			}
		}
		selected = trimmed
	}

	logger.Debug("z-score selection",
		slog.Int("selected", len(selected)),
		slog.Int("total", len(specs)),
	)
	return selected
}

func (ZScoreSelector) Name() string { return "zscore" }

// compositeOrUnknown ranks models without statistics above the cut so they
// are never trimmed by ModelCount.
func compositeOrUnknown(composite map[string]float64, path string) float64 {
	if v, ok := composite[path]; ok {
		return v
	}
	return math.Inf(1)
}

func poolMoments(specs []GeneratorSpec, table map[string]stats.ModelStats, field func(stats.ModelStats) float64) (mean, std float64) {
	for _, spec := range specs {
		mean += field(table[spec.Path])
	}
	mean /= float64(len(specs))
	for _, spec := range specs {
		d := field(table[spec.Path]) - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(specs)))
	return mean, std
}

func zScore(v, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (v - mean) / std
}
