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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace  = "aleutian"
	ensembleSubsystem = "ensemble"
)

// ReasonerMetrics holds the Prometheus metrics for reasoner runs.
//
// # Description
//
// Counters and histograms for monitoring the selection loop: rounds
// executed, stop reasons, candidates filtered out before scoring, and
// scoring latency. Initialize once at startup via NewReasonerMetrics and
// share the instance across reasoners.
//
// # Thread Safety
//
// All operations are thread-safe via Prometheus's internal locking.
type ReasonerMetrics struct {
	// RoundsTotal counts rounds executed, by outcome.
	// Labels: outcome (committed, skipped_invalid, skipped_threshold, stopped)
	RoundsTotal *prometheus.CounterVec

	// StopsTotal counts run terminations by stop reason.
	// Labels: reason (see StopReason.String)
	StopsTotal *prometheus.CounterVec

	// CandidatesTotal counts candidates by disposition.
	// Labels: disposition (valid, filtered)
	CandidatesTotal *prometheus.CounterVec

	// ScoringDurationSeconds measures the per-round scorer call latency.
	ScoringDurationSeconds prometheus.Histogram

	// GenerationDurationSeconds measures the per-round parallel generation
	// phase, from fan-out to join.
	GenerationDurationSeconds prometheus.Histogram
}

// NewReasonerMetrics registers reasoner metrics on the given registerer.
// Pass prometheus.DefaultRegisterer outside tests.
func NewReasonerMetrics(reg prometheus.Registerer) *ReasonerMetrics {
	factory := promauto.With(reg)
	return &ReasonerMetrics{
		RoundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ensembleSubsystem,
				Name:      "rounds_total",
				Help:      "Reasoner rounds executed, by outcome.",
			},
			[]string{"outcome"},
		),
		StopsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ensembleSubsystem,
				Name:      "stops_total",
				Help:      "Run terminations by stop reason.",
			},
			[]string{"reason"},
		),
		CandidatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: ensembleSubsystem,
				Name:      "candidates_total",
				Help:      "Candidates produced, by validity disposition.",
			},
			[]string{"disposition"},
		),
		ScoringDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: ensembleSubsystem,
				Name:      "scoring_duration_seconds",
				Help:      "Latency of the per-round scorer call.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		GenerationDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: ensembleSubsystem,
				Name:      "generation_duration_seconds",
				Help:      "Latency of the per-round parallel generation phase.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
	}
}

// Round outcome label values.
const (
	roundOutcomeCommitted        = "committed"
	roundOutcomeSkippedInvalid   = "skipped_invalid"
	roundOutcomeSkippedThreshold = "skipped_threshold"
	roundOutcomeStopped          = "stopped"
)

// Candidate disposition label values.
const (
	candidateValid    = "valid"
	candidateFiltered = "filtered"
)
