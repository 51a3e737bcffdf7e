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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIGenerator_GreedySamplingHonored(t *testing.T) {
	// Arrange / Act: explicit zero temperature / top_p must survive
	// construction so greedy decoding stays requestable.
	zero := float32(0)
	g, err := NewOpenAIGenerator(OpenAIConfig{
		Model:       "gpt-4o-mini",
		APIKey:      "test-key",
		Temperature: &zero,
		TopP:        &zero,
	})

	// Assert
	require.NoError(t, err)
	assert.Zero(t, *g.cfg.Temperature)
	assert.Zero(t, *g.cfg.TopP)
}

func TestNewOpenAIGenerator_DefaultSampling(t *testing.T) {
	// Arrange / Act: nil sampling fields take the default profile.
	g, err := NewOpenAIGenerator(OpenAIConfig{Model: "gpt-4o-mini", APIKey: "test-key"})

	// Assert
	require.NoError(t, err)
	assert.InDelta(t, 0.95, float64(*g.cfg.Temperature), 1e-6)
	assert.InDelta(t, 0.7, float64(*g.cfg.TopP), 1e-6)
}
