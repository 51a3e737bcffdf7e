// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianEnsemble/pkg/validation"
	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
	"github.com/AleutianAI/AleutianEnsemble/services/ensemble/stats"
	"github.com/AleutianAI/AleutianEnsemble/services/generators"
	"github.com/AleutianAI/AleutianEnsemble/services/scorers"
	"github.com/gin-gonic/gin"
)

// =============================================================================
// Request / Response Types
// =============================================================================

// EnsembleRequest is the body of POST /api/v1/ensemble.
type EnsembleRequest struct {
	// Examples is the batch to solve. At least one is required.
	Examples []ensemble.Example `json:"examples" binding:"required,min=1"`

	// Models is the candidate model set shared by the batch.
	Models []ensemble.GeneratorSpec `json:"models" binding:"required,min=1"`

	// Scorer selects the reward backend. Engine defaults to "heuristic"
	// when omitted so local smoke requests work without a PRM endpoint.
	Scorer scorers.ScorerSpec `json:"scorer"`

	// Params tunes selection and the per-example reasoning loop.
	Params EnsembleParams `json:"params"`
}

// EnsembleParams mirrors the tunable subset of ensemble.FrameworkConfig.
type EnsembleParams struct {
	ModelSelection    string   `json:"model_selection,omitempty"`
	OutputAggregation string   `json:"output_aggregation,omitempty"`
	ModelCount        int      `json:"model_count,omitempty"`
	MaxRounds         int      `json:"max_rounds,omitempty"`
	ScoreThreshold    *float64 `json:"score_threshold,omitempty"`
	MinSegmentLen     int      `json:"min_segment_len,omitempty"`
	SystemPrompt      string   `json:"system_prompt,omitempty"`
}

// EnsembleResponse is the body of a successful ensemble call.
type EnsembleResponse struct {
	Results []ensemble.Result `json:"results"`
}

// WarmupRequest is the body of POST /api/v1/warmup.
type WarmupRequest struct {
	Models []ensemble.GeneratorSpec `json:"models" binding:"required,min=1"`
}

// =============================================================================
// Handlers
// =============================================================================

// handleHealth reports liveness. Kept dependency-free so orchestration can
// probe it before any model is loaded.
func (s *service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleEnsemble runs the full selection + aggregation pipeline for a batch
// of examples.
//
// # Description
//
// Validates the request, resolves the scorer, builds a framework from the
// request parameters (falling back to the persistent stats store for
// z-score selection when one is open), and runs the batch. Construction
// errors map to 400, backend resolution errors to 502, and everything else
// to 500.
func (s *service) handleEnsemble(c *gin.Context) {
	var req EnsembleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Scorer.Engine == "" {
		req.Scorer.Engine = "heuristic"
	}

	requestID := c.GetString("request_id")
	slog.Info("Received ensemble request",
		"request_id", requestID,
		"examples", len(req.Examples),
		"models", len(req.Models),
		"scorer", req.Scorer.Engine,
	)

	scorer, err := s.scorers.Resolve(req.Scorer)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, scorers.ErrUnknownEngine) && !errors.Is(err, scorers.ErrBadSpec) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": "Failed to resolve scorer", "details": err.Error()})
		return
	}

	framework, err := ensemble.NewEnsembleFramework(s.frameworkConfig(req.Params),
		ensemble.WithFrameworkMetrics(s.metrics),
	)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ensemble parameters", "details": err.Error()})
		return
	}

	results, err := framework.Run(c.Request.Context(), req.Examples, req.Models, s.generators, scorer)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ensemble.ErrBadConfig),
			errors.Is(err, ensemble.ErrNoGenerators),
			errors.Is(err, ensemble.ErrNoScorer),
			errors.Is(err, ensemble.ErrNoEligibleGenerators),
			errors.Is(err, generators.ErrBadSpec),
			errors.Is(err, generators.ErrUnknownEngine):
			status = http.StatusBadRequest
		case errors.Is(err, generators.ErrBackendUnavailable):
			status = http.StatusBadGateway
		}
		slog.Error("Ensemble run failed", "request_id", requestID, "error", err)
		c.JSON(status, gin.H{"error": "Ensemble run failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, EnsembleResponse{Results: results})
}

// handleWarmup resolves the given models and pre-loads every Ollama-backed
// one so the first ensemble round does not pay model load latency.
func (s *service) handleWarmup(c *gin.Context) {
	var req WarmupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	for _, spec := range req.Models {
		if _, err := s.generators.Resolve(c.Request.Context(), spec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Failed to resolve model",
				"model":   spec.Path,
				"details": err.Error(),
			})
			return
		}
	}

	if err := s.generators.WarmAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Warmup failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "warm", "models": len(req.Models)})
}

// handleStatsList returns every stored model statistics row.
func (s *service) handleStatsList(c *gin.Context) {
	if s.statsStore == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stats store not configured"})
		return
	}

	all, err := s.statsStore.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read stats", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, all)
}

// handleStatsGet returns the statistics row for one model.
func (s *service) handleStatsGet(c *gin.Context) {
	if s.statsStore == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stats store not configured"})
		return
	}

	model := statsModelParam(c)
	if err := validation.ValidateModelRef(model); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid model reference", "details": err.Error()})
		return
	}
	ms, ok, err := s.statsStore.Get(model)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read stats", "details": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown model", "model": model})
		return
	}
	c.JSON(http.StatusOK, ms)
}

// handleStatsPut upserts the statistics row for one model.
func (s *service) handleStatsPut(c *gin.Context) {
	if s.statsStore == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stats store not configured"})
		return
	}

	model := statsModelParam(c)
	if err := validation.ValidateModelRef(model); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid model reference", "details": err.Error()})
		return
	}

	var ms stats.ModelStats
	if err := c.ShouldBindJSON(&ms); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := s.statsStore.Put(model, ms); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store stats", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored", "model": model})
}

// statsModelParam extracts the model reference from a wildcard stats route.
// The wildcard keeps namespaced refs like "Qwen/Qwen3-4B" addressable; its
// captured value carries the leading slash.
func statsModelParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("model"), "/")
}

// frameworkConfig maps request params onto a FrameworkConfig, wiring in the
// persistent stats table when z-score selection will actually read it.
func (s *service) frameworkConfig(p EnsembleParams) ensemble.FrameworkConfig {
	cfg := ensemble.FrameworkConfig{
		ModelSelection:    p.ModelSelection,
		OutputAggregation: p.OutputAggregation,
		ModelCount:        p.ModelCount,
		MaxRounds:         p.MaxRounds,
		ScoreThreshold:    p.ScoreThreshold,
		MinSegmentLen:     p.MinSegmentLen,
		SystemPrompt:      p.SystemPrompt,
		AccumulateContext: true,
	}
	// Only zscore consults the table; skipping the scan keeps the other
	// selection methods off the Badger read path entirely.
	if p.ModelSelection == "zscore" && s.statsStore != nil {
		if table, err := s.statsStore.All(); err == nil && len(table) > 0 {
			cfg.Stats = table
		}
	}
	return cfg
}
