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

import "errors"

// Construction- and configuration-time error taxonomy. Callers distinguish
// these with errors.Is; all are fatal before or immediately within round 1.
var (
	// ErrNoGenerators is returned when a run is configured with an empty
	// generator set.
	ErrNoGenerators = errors.New("ensemble: no generators configured")

	// ErrNoEligibleGenerators is returned when no configured generator can
	// accept the very first rendered prompt. Later-round ineligibility is a
	// normal stop, not an error.
	ErrNoEligibleGenerators = errors.New("ensemble: no generators eligible for initial prompt")

	// ErrDuplicateGenerator is returned when two generators in one run
	// share a name. Names key per-generator EOS tracking.
	ErrDuplicateGenerator = errors.New("ensemble: duplicate generator name")

	// ErrNoScorer is returned when a run is configured without a scorer.
	ErrNoScorer = errors.New("ensemble: no scorer configured")

	// ErrUnknownMethod is returned for a selection or aggregation method
	// name the framework does not know.
	ErrUnknownMethod = errors.New("ensemble: unknown method")

	// ErrBadConfig is returned for structurally invalid configuration.
	ErrBadConfig = errors.New("ensemble: invalid configuration")
)
