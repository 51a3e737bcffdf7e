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

import "context"

// Scorer assigns a quality score to each candidate continuation given the
// shared context.
//
// # Implementation Requirements
//
//  1. The returned slice must have the same length and order as candidates,
//     one score per candidate, higher is better.
//
//  2. Batches of size 1..N must all work.
//
//  3. Scores are only comparable within one call. No cross-round
//     normalization is guaranteed or required.
//
//  4. An error is fatal for the round and propagates: the reasoner never
//     guesses a default ranking.
type Scorer interface {
	Score(ctx context.Context, prompt string, candidates []string) ([]float64, error)
}
