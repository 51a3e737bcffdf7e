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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorerCacheResolve_BadSpec(t *testing.T) {
	cache := NewCache()

	_, err := cache.Resolve(ScorerSpec{})

	assert.ErrorIs(t, err, ErrBadSpec)
}

func TestScorerCacheResolve_UnknownEngine(t *testing.T) {
	cache := NewCache()

	_, err := cache.Resolve(ScorerSpec{Engine: "oracle"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEngine)
	assert.Contains(t, err.Error(), "oracle")
}

func TestScorerCacheResolve_Heuristic(t *testing.T) {
	cache := NewCache()

	sc, err := cache.Resolve(ScorerSpec{Engine: "heuristic"})

	require.NoError(t, err)
	assert.IsType(t, &HeuristicScorer{}, sc)
}

func TestScorerCacheResolve_PRMRequiresBaseURL(t *testing.T) {
	cache := NewCache()

	_, err := cache.Resolve(ScorerSpec{Engine: "prm_http"})

	assert.Error(t, err)
}

func TestScorerCacheResolve_SharesInstances(t *testing.T) {
	// Arrange
	cache := NewCache()
	spec := ScorerSpec{Engine: "prm_http", BaseURL: "http://localhost:8600"}

	// Act
	a, err := cache.Resolve(spec)
	require.NoError(t, err)
	b, err := cache.Resolve(spec)
	require.NoError(t, err)
	other, err := cache.Resolve(ScorerSpec{Engine: "prm_http", BaseURL: "http://localhost:8601"})
	require.NoError(t, err)

	// Assert
	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
}
