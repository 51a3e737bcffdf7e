// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generators provides Generator backends for the ensemble core:
// Ollama over HTTP, OpenAI via the official-compatible client, and any
// langchaingo model, plus decorators (timeout, retry, fallback, rate limit)
// and an explicit construction cache.
package generators

import "strings"

// DefaultStopTokens mark natural sentence boundaries. Generations that were
// cut off by a length limit are trimmed back to the last boundary so the
// conversation accumulates whole sentences.
var DefaultStopTokens = []string{".", "\n"}

// TrimAtLastStop truncates text after the last occurrence of any stop
// token. Text containing no stop token is returned unchanged.
func TrimAtLastStop(text string, stops []string) string {
	bestPos := -1
	bestLen := 0
	for _, tok := range stops {
		if pos := strings.LastIndex(text, tok); pos > bestPos {
			bestPos = pos
			bestLen = len(tok)
		}
	}
	if bestPos == -1 {
		return text
	}
	return text[:bestPos+bestLen]
}
