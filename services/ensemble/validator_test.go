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
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIsValidSegment covers the candidate validity filter: length, filler,
// diversity, and repeat-run rejection.
func TestIsValidSegment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"whitespace only", "   \n\t  ", false},
		{"below min length", "ab", false},
		{"exactly too short after trim", "  abcd  ", false},
		{"punctuation only", "......", false},
		{"mixed punctuation only", "?!?!?!", false},
		{"low diversity letters", "aaaaaa", false},
		{"two distinct runes", "ababab", false},
		{"low diversity with punctuation", "ok!!!", false},
		{"repeat run", "okaaaaay then", false},
		{"repeat run across spaces", "o k a a a a a y", false},
		{"normal sentence", "First, expand the product.", true},
		{"short but diverse", "x equals 7.", true},
		{"diverse symbols only content", "x = 7.", false},
		{"unicode text", "Die Lösung ist \\boxed{42}.", true},
		{"four identical then different", "aaaabcdef", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidSegment(tt.text, DefaultMinSegmentLen)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestIsValidSegment_MinLenBoundary verifies the trimmed length check uses
// runes, not bytes, and respects a custom minimum.
func TestIsValidSegment_MinLenBoundary(t *testing.T) {
	// Arrange: five runes, more than five bytes.
	text := "über1"

	// Act / Assert
	assert.True(t, IsValidSegment(text, 5))
	assert.False(t, IsValidSegment(text, 6))
}
