// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Tests force plain mode with NO_COLOR so assertions are stable regardless
// of the terminal running them.

func TestHeader_Plain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	assert.Equal(t, "=== Example 1 ===", Header("Example 1"))
}

func TestKeyValue_Plain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	assert.Equal(t, "Models: qwen3:4b, granite4:micro-h",
		KeyValue("Models", "qwen3:4b, granite4:micro-h"))
}

func TestDivider_Plain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	assert.Equal(t, "----", Divider(4))
	assert.Len(t, Divider(0), 40, "non-positive width falls back to default")
}
