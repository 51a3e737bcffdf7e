// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scorers provides Scorer backends for the ensemble core: a remote
// process-reward-model (PRM) scorer and a local heuristic fallback, plus an
// explicit construction cache mirroring services/generators.
package scorers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.ensemble.scorers")

// DefaultStepToken separates reasoning steps in PRM inputs. The reward
// model is trained with this exact token; changing it silently breaks
// scoring, so it is only overridable per scorer, never per call.
const DefaultStepToken = "<extra_0>"

// rewardScale maps mean step probability [0,1] to the conventional [0,10]
// score range.
const rewardScale = 10.0

// PRM scoring wire format. The serving layer evaluates each input and
// returns the per-step probabilities found at step-token positions.
type prmScoreRequest struct {
	Inputs []string `json:"inputs"`
}

type prmScoreResponse struct {
	StepProbs [][]float64 `json:"step_probs"`
}

// RewardConfig configures a RewardScorer.
type RewardConfig struct {
	// BaseURL is the PRM serving endpoint, e.g. "http://localhost:8600".
	BaseURL string

	// StepToken overrides DefaultStepToken.
	StepToken string

	// Timeout bounds each scoring call. Zero means 2 minutes.
	Timeout time.Duration
}

// RewardScorer scores candidates with a remote process reward model.
//
// # Description
//
// Each candidate is augmented as
//
//	prompt + stepToken + candidate + stepToken
//
// and the batch is sent in one request. The model reports a probability at
// each step-token position; a candidate's score is the mean of its step
// probabilities scaled to [0,10]. A candidate yielding no step positions
// scores 0.
//
// # Thread Safety
//
// Safe for concurrent use.
type RewardScorer struct {
	httpClient *http.Client
	baseURL    string
	stepToken  string
	logger     *slog.Logger
}

// NewRewardScorer builds a remote PRM scorer.
func NewRewardScorer(cfg RewardConfig) (*RewardScorer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reward scorer: no base URL configured")
	}
	if cfg.StepToken == "" {
		cfg.StepToken = DefaultStepToken
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	slog.Info("Initializing reward scorer",
		slog.String("base_url", cfg.BaseURL),
		slog.String("step_token", cfg.StepToken),
	)
	return &RewardScorer{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		stepToken:  cfg.StepToken,
		logger:     slog.Default(),
	}, nil
}

// Score implements ensemble.Scorer.
func (r *RewardScorer) Score(ctx context.Context, prompt string, candidates []string) ([]float64, error) {
	ctx, span := tracer.Start(ctx, "RewardScorer.Score")
	defer span.End()
	span.SetAttributes(attribute.Int("scorer.batch_size", len(candidates)))

	if len(candidates) == 0 {
		return []float64{}, nil
	}

	inputs := make([]string, len(candidates))
	for i, c := range candidates {
		inputs[i] = prompt + r.stepToken + c + r.stepToken
	}

	reqBody, err := json.Marshal(prmScoreRequest{Inputs: inputs})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("marshaling score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/score", bytes.NewBuffer(reqBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("creating score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reward model call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reading reward model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		r.logger.Error("reward model returned an error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response", string(respBody)),
		)
		return nil, fmt.Errorf("reward model failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var scoreResp prmScoreResponse
	if err := json.Unmarshal(respBody, &scoreResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("parsing reward model response: %w", err)
	}
	if len(scoreResp.StepProbs) != len(candidates) {
		return nil, fmt.Errorf("reward model returned %d results for %d candidates", len(scoreResp.StepProbs), len(candidates))
	}

	scores := make([]float64, len(candidates))
	for i, probs := range scoreResp.StepProbs {
		scores[i] = meanScaled(probs)
	}
	return scores, nil
}

func meanScaled(probs []float64) float64 {
	if len(probs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range probs {
		sum += p
	}
	return sum / float64(len(probs)) * rewardScale
}
