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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prmStub serves /score with fixed step probabilities and records the last
// request.
func prmStub(t *testing.T, stepProbs [][]float64) (*httptest.Server, *prmScoreRequest) {
	t.Helper()
	var last prmScoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/score", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&last))
		json.NewEncoder(w).Encode(prmScoreResponse{StepProbs: stepProbs})
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestNewRewardScorer_RequiresBaseURL(t *testing.T) {
	_, err := NewRewardScorer(RewardConfig{})

	assert.Error(t, err)
}

func TestRewardScore_MeanTimesTen(t *testing.T) {
	// Arrange
	srv, last := prmStub(t, [][]float64{
		{0.8, 0.9},      // mean 0.85 -> 8.5
		{0.4},           // 4.0
		{},              // no step positions -> 0
	})
	scorer, err := NewRewardScorer(RewardConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	// Act
	scores, err := scorer.Score(context.Background(), "What is 2+2?",
		[]string{"First step.", "Second idea.", "Third thought."})

	// Assert
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.InDelta(t, 8.5, scores[0], 1e-9)
	assert.InDelta(t, 4.0, scores[1], 1e-9)
	assert.Zero(t, scores[2])
	assert.Len(t, last.Inputs, 3, "one batched request carries every candidate")
}

// TestRewardScore_StepTokenAugmentation verifies the wire format: each
// candidate is wrapped as prompt + token + candidate + token.
func TestRewardScore_StepTokenAugmentation(t *testing.T) {
	// Arrange
	srv, last := prmStub(t, [][]float64{{0.5}})
	scorer, err := NewRewardScorer(RewardConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	// Act
	_, err = scorer.Score(context.Background(), "PROMPT", []string{"CAND"})

	// Assert
	require.NoError(t, err)
	require.Len(t, last.Inputs, 1)
	assert.Equal(t, "PROMPT<extra_0>CAND<extra_0>", last.Inputs[0])
}

func TestRewardScore_CustomStepToken(t *testing.T) {
	// Arrange
	srv, last := prmStub(t, [][]float64{{0.5}})
	scorer, err := NewRewardScorer(RewardConfig{BaseURL: srv.URL, StepToken: "<sep>"})
	require.NoError(t, err)

	// Act
	_, err = scorer.Score(context.Background(), "P", []string{"C"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "P<sep>C<sep>", last.Inputs[0])
}

func TestRewardScore_EmptyBatch(t *testing.T) {
	scorer, err := NewRewardScorer(RewardConfig{BaseURL: "http://localhost:8600"})
	require.NoError(t, err)

	scores, err := scorer.Score(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRewardScore_CountMismatch(t *testing.T) {
	// Arrange: server answers for one candidate, we send two.
	srv, _ := prmStub(t, [][]float64{{0.5}})
	scorer, err := NewRewardScorer(RewardConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	// Act
	_, err = scorer.Score(context.Background(), "p", []string{"one", "two"})

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 candidates")
}

func TestRewardScore_ServerError(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	scorer, err := NewRewardScorer(RewardConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	// Act
	_, err = scorer.Score(context.Background(), "p", []string{"c"})

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
