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
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMinSegmentLen is the minimum trimmed length a candidate segment
// must reach to be scored.
const DefaultMinSegmentLen = 5

// maxRuneRun is the longest allowed run of one rune once whitespace is
// removed. Runs of this length or more mark degenerate output.
const maxRuneRun = 5

// IsValidSegment reports whether a candidate segment is worth scoring.
//
// # Description
//
// Pure filter applied to each candidate before scoring. A segment is
// rejected when any of the following holds:
//
//   - its trimmed length is below minLen runes
//   - it is empty or all whitespace
//   - every rune is punctuation, symbol, or whitespace
//   - ignoring punctuation, symbols, and whitespace it contains at most
//     two distinct runes (e.g. "......", "aaaa", "ok!!!")
//   - with whitespace removed, any rune repeats five or more times
//     consecutively
//
// Rejected candidates are dropped from the round entirely: not scored, not
// eligible to win.
//
// # Inputs
//
//   - text: Raw candidate text from a generator.
//   - minLen: Minimum trimmed rune count. Use DefaultMinSegmentLen.
//
// # Outputs
//
//   - bool: True when the segment may be scored.
func IsValidSegment(text string, minLen int) bool {
	stripped := strings.TrimSpace(text)
	if stripped == "" {
		return false
	}
	if utf8.RuneCountInString(stripped) < minLen {
		return false
	}

	allFiller := true
	distinct := make(map[rune]struct{})
	for _, r := range stripped {
		if isFiller(r) {
			continue
		}
		allFiller = false
		distinct[r] = struct{}{}
	}
	if allFiller {
		return false
	}
	if len(distinct) <= 2 {
		return false
	}

	// Repeat-run check operates on the whitespace-removed text so runs
	// broken only by spaces are still caught.
	var prev rune
	run := 0
	for _, r := range stripped {
		if unicode.IsSpace(r) {
			continue
		}
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= maxRuneRun {
			return false
		}
	}
	return true
}

// isFiller reports whether a rune carries no content on its own:
// punctuation, symbols, and whitespace.
func isFiller(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r)
}
