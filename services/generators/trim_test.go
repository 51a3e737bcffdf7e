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
)

func TestTrimAtLastStop(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "cut mid sentence",
			text: "First we expand. Then we simpl",
			want: "First we expand.",
		},
		{
			name: "newline boundary wins when later",
			text: "Step one.\nStep two is incomple",
			want: "Step one.\n",
		},
		{
			name: "no stop token",
			text: "no boundary here",
			want: "no boundary here",
		},
		{
			name: "ends exactly on stop",
			text: "A complete sentence.",
			want: "A complete sentence.",
		},
		{
			name: "empty",
			text: "",
			want: "",
		},
		{
			name: "decimal point counts as boundary",
			text: "The value is 3.14 and then som",
			want: "The value is 3.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrimAtLastStop(tt.text, DefaultStopTokens))
		})
	}
}

func TestTrimAtLastStop_CustomStops(t *testing.T) {
	got := TrimAtLastStop("a; b; c trailing", []string{";"})

	assert.Equal(t, "a; b;", got)
}
