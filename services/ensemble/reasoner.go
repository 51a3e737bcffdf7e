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
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("aleutian.ensemble.reasoner")

// =============================================================================
// Stop Reasons
// =============================================================================

// StopReason tags the way a run terminated. Every value is a normal
// termination path returning the best-effort accumulated text; none is an
// error.
type StopReason int

const (
	// StopRoundsExhausted: MaxRounds completed without another stop firing.
	StopRoundsExhausted StopReason = iota

	// StopNoEligibleGenerators: after round 1, no generator could accept
	// the grown prompt.
	StopNoEligibleGenerators

	// StopAllGeneratorsExhausted: every generator that ever participated
	// has emitted EOS at least once. The stopping round's candidates are
	// discarded.
	StopAllGeneratorsExhausted

	// StopRepeatLimit: the winning text was selected maxRepeat times. The
	// final occurrence is counted but not committed.
	StopRepeatLimit

	// StopWinnerEOS: the committed winner ended with EOS. Unlike the two
	// stops above, the stopping round's text is kept.
	StopWinnerEOS
)

// String returns the stable tag used in logs and metrics labels.
func (s StopReason) String() string {
	switch s {
	case StopRoundsExhausted:
		return "rounds_exhausted"
	case StopNoEligibleGenerators:
		return "no_eligible_generators"
	case StopAllGeneratorsExhausted:
		return "all_generators_exhausted"
	case StopRepeatLimit:
		return "repeat_limit_exceeded"
	case StopWinnerEOS:
		return "winner_emitted_eos"
	default:
		return "unknown"
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Defaults for ReasonerConfig.
const (
	DefaultMaxRounds      = 500
	DefaultScoreThreshold = 0.5

	// maxRepeat is the number of times one exact text may win before the
	// run stops. Fixed; raising it defeats the loop-escape purpose.
	maxRepeat = 3
)

// ReasonerConfig holds run parameters for the selection loop.
type ReasonerConfig struct {
	// MaxRounds bounds the loop. Zero means DefaultMaxRounds.
	MaxRounds int `validate:"gte=0"`

	// ScoreThreshold is the minimum winning score required to commit a
	// round. A round whose winner scores below it is skipped, not stopped.
	ScoreThreshold float64

	// MinSegmentLen is the validity filter's minimum trimmed length.
	// Zero means DefaultMinSegmentLen.
	MinSegmentLen int `validate:"gte=0"`

	// SystemPrompt overrides the default system instruction when the
	// example carries none.
	SystemPrompt string

	// AccumulateContext is accepted for config compatibility. The reasoner
	// always accumulates; the flag is reserved for future behavior.
	AccumulateContext bool

	// thresholdSet marks that ScoreThreshold was set explicitly, so a zero
	// threshold is honored instead of replaced by the default.
	thresholdSet bool
}

// WithExplicitThreshold marks ScoreThreshold as intentionally set, so 0 (or
// a negative caller profile like -2.0) is not replaced by the default.
func (c ReasonerConfig) WithExplicitThreshold(v float64) ReasonerConfig {
	c.ScoreThreshold = v
	c.thresholdSet = true
	return c
}

func applyReasonerDefaults(cfg ReasonerConfig) ReasonerConfig {
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.ScoreThreshold == 0 && !cfg.thresholdSet {
		cfg.ScoreThreshold = DefaultScoreThreshold
	}
	if cfg.MinSegmentLen == 0 {
		cfg.MinSegmentLen = DefaultMinSegmentLen
	}
	return cfg
}

// =============================================================================
// Reasoner
// =============================================================================

// RunOutcome is the result of one reasoner run over one example.
type RunOutcome struct {
	// Output is the newline-joined accepted segments.
	Output string

	// StopReason tags the termination path.
	StopReason StopReason

	// Rounds is the number of round iterations executed, including skipped
	// rounds and the stopping round.
	Rounds int

	// Participants lists the names of generators that were eligible in at
	// least one round, sorted.
	Participants []string
}

// EnsembleReasoner drives the multi-model decoding loop.
//
// # Description
//
// Each round: render the conversation, filter generators by context-length
// eligibility, invoke every eligible generator concurrently, drop invalid
// candidates, score the survivors in one batched scorer call, commit the
// best candidate, and evaluate the stopping conditions. Rounds are strictly
// sequential; all cross-round state (EOS flags, repeat counts, the
// conversation itself) is touched only between rounds on the calling
// goroutine, so no locking is needed.
//
// # Thread Safety
//
// A reasoner is immutable after construction and safe for concurrent Solve
// calls; each run owns its own conversation and tracking maps.
type EnsembleReasoner struct {
	generators []Generator
	scorer     Scorer
	cfg        ReasonerConfig
	logger     *slog.Logger
	metrics    *ReasonerMetrics
}

// ReasonerOption configures an EnsembleReasoner.
type ReasonerOption func(*EnsembleReasoner)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) ReasonerOption {
	return func(r *EnsembleReasoner) {
		r.logger = logger
	}
}

// WithMetrics attaches Prometheus metrics. Default: none.
func WithMetrics(m *ReasonerMetrics) ReasonerOption {
	return func(r *EnsembleReasoner) {
		r.metrics = m
	}
}

// NewEnsembleReasoner creates a reasoner over a fixed generator set and one
// scorer.
//
// # Inputs
//
//   - generators: The active generator set. Must be non-empty with unique
//     names; order is significant (it is the tie-break order).
//   - scorer: Ranks candidate texts each round. Must be non-nil.
//   - cfg: Run parameters; zero values take defaults.
//
// # Outputs
//
//   - *EnsembleReasoner: Ready for Solve calls.
//   - error: ErrNoGenerators, ErrNoScorer, or ErrDuplicateGenerator.
func NewEnsembleReasoner(generators []Generator, scorer Scorer, cfg ReasonerConfig, opts ...ReasonerOption) (*EnsembleReasoner, error) {
	if len(generators) == 0 {
		return nil, ErrNoGenerators
	}
	if scorer == nil {
		return nil, ErrNoScorer
	}
	seen := make(map[string]struct{}, len(generators))
	for _, g := range generators {
		if _, dup := seen[g.Name()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateGenerator, g.Name())
		}
		seen[g.Name()] = struct{}{}
	}

	r := &EnsembleReasoner{
		generators: generators,
		scorer:     scorer,
		cfg:        applyReasonerDefaults(cfg),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// roundCandidate pairs a surviving candidate with the generator that
// produced it.
type roundCandidate struct {
	gen Generator
	out CandidateOutput
}

// Solve runs the selection loop for one example and returns the accumulated
// answer.
//
// # Description
//
// Implements the round state machine: render, eligibility filter, parallel
// generation, validity filter, EOS bookkeeping, batched scoring, stable
// argmax selection, threshold check, repeat check, commit, winner-EOS
// check. Termination is always tagged with a StopReason; only hard failures
// (a generator error, a scorer error, or nothing eligible for the very
// first prompt) return a non-nil error.
//
// # Inputs
//
//   - ctx: Cancels in-flight generator and scorer calls. The core applies
//     no per-call timeouts of its own.
//   - ex: The input example. Instruction overrides the system prompt.
//
// # Outputs
//
//   - *RunOutcome: Accumulated text plus termination metadata.
//   - error: Non-nil only for hard failures; partial text is not returned
//     alongside an error.
func (r *EnsembleReasoner) Solve(ctx context.Context, ex Example) (*RunOutcome, error) {
	ctx, span := tracer.Start(ctx, "EnsembleReasoner.Solve")
	defer span.End()
	span.SetAttributes(attribute.Int("ensemble.num_generators", len(r.generators)))

	system := ex.Instruction
	if system == "" {
		system = r.cfg.SystemPrompt
	}
	conv := NewConversationState(system, ex.Input)

	// eosFlags flips to true the first time a generator emits EOS and never
	// resets. participated records membership in any round's eligible set.
	eosFlags := make(map[string]bool, len(r.generators))
	for _, g := range r.generators {
		eosFlags[g.Name()] = false
	}
	participated := make(map[string]bool, len(r.generators))
	segmentCounter := make(map[string]int)

	stop := StopRoundsExhausted
	rounds := 0

	for rnd := 1; rnd <= r.cfg.MaxRounds; rnd++ {
		rounds = rnd
		prompt := conv.Render()

		eligible := make([]Generator, 0, len(r.generators))
		for _, g := range r.generators {
			if g.IsEligible(prompt) {
				eligible = append(eligible, g)
			} else {
				r.logger.Info("generator skipped: prompt exceeds context limit",
					slog.String("generator", g.Name()),
					slog.Int("round", rnd),
				)
			}
		}
		if len(eligible) == 0 {
			if rnd == 1 {
				span.SetStatus(codes.Error, ErrNoEligibleGenerators.Error())
				return nil, ErrNoEligibleGenerators
			}
			r.logger.Warn("no generators eligible for current prompt; stopping",
				slog.Int("round", rnd),
			)
			stop = StopNoEligibleGenerators
			r.countRound(roundOutcomeStopped)
			break
		}
		for _, g := range eligible {
			participated[g.Name()] = true
		}

		outs, err := r.generateAll(ctx, eligible, conv)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("round %d generation: %w", rnd, err)
		}

		survivors := make([]roundCandidate, 0, len(outs))
		for i, out := range outs {
			if IsValidSegment(out.Text, r.cfg.MinSegmentLen) {
				survivors = append(survivors, roundCandidate{gen: eligible[i], out: out})
				r.countCandidate(candidateValid)
			} else {
				r.countCandidate(candidateFiltered)
			}
		}
		if len(survivors) == 0 {
			// Silent skip: no append, no stop evaluation, still counts
			// toward MaxRounds.
			r.logger.Info("no valid candidates this round",
				slog.Int("round", rnd),
				slog.Int("raw_candidates", len(outs)),
			)
			r.countRound(roundOutcomeSkippedInvalid)
			continue
		}

		// EOS bookkeeping happens before scoring so exhaustion discards the
		// round's candidates even though they were valid.
		for _, c := range survivors {
			if c.out.EndedWithEOS {
				eosFlags[c.gen.Name()] = true
			}
		}
		if allExhausted(participated, eosFlags) {
			r.logger.Info("all participating generators have emitted EOS; stopping",
				slog.Int("round", rnd),
			)
			stop = StopAllGeneratorsExhausted
			r.countRound(roundOutcomeStopped)
			break
		}

		texts := make([]string, len(survivors))
		for i, c := range survivors {
			texts[i] = c.out.Text
		}

		scoreStart := time.Now()
		scores, err := r.scorer.Score(ctx, prompt, texts)
		if r.metrics != nil {
			r.metrics.ScoringDurationSeconds.Observe(time.Since(scoreStart).Seconds())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("round %d scoring: %w", rnd, err)
		}
		if len(scores) != len(texts) {
			err := fmt.Errorf("round %d scoring: got %d scores for %d candidates", rnd, len(scores), len(texts))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		for i, c := range survivors {
			r.logger.Debug("candidate scored",
				slog.String("generator", c.gen.Name()),
				slog.Float64("score", scores[i]),
				slog.String("text", flattenNewlines(c.out.Text)),
			)
		}

		// Stable argmax: strict greater-than keeps the earliest candidate
		// on ties, in generator order.
		bestIdx := 0
		for i := 1; i < len(scores); i++ {
			if scores[i] > scores[bestIdx] {
				bestIdx = i
			}
		}
		best := survivors[bestIdx]
		bestScore := scores[bestIdx]

		if bestScore < r.cfg.ScoreThreshold {
			r.logger.Info("best score below threshold; skipping round",
				slog.Int("round", rnd),
				slog.Float64("score", bestScore),
				slog.Float64("threshold", r.cfg.ScoreThreshold),
			)
			r.countRound(roundOutcomeSkippedThreshold)
			continue
		}

		segmentCounter[best.out.Text]++
		if segmentCounter[best.out.Text] >= maxRepeat {
			// Counted but not committed.
			r.logger.Info("segment repeated too often; stopping",
				slog.Int("round", rnd),
				slog.Int("count", segmentCounter[best.out.Text]),
				slog.String("text", flattenNewlines(best.out.Text)),
			)
			stop = StopRepeatLimit
			r.countRound(roundOutcomeStopped)
			break
		}

		conv.Append(best.out.Text)
		r.countRound(roundOutcomeCommitted)
		r.logger.Info("candidate committed",
			slog.Int("round", rnd),
			slog.String("generator", best.gen.Name()),
			slog.Float64("score", bestScore),
		)

		if best.out.EndedWithEOS {
			// The only stop that keeps the stopping round's text.
			stop = StopWinnerEOS
			break
		}
	}

	if r.metrics != nil {
		r.metrics.StopsTotal.WithLabelValues(stop.String()).Inc()
	}
	span.SetAttributes(
		attribute.Int("ensemble.rounds", rounds),
		attribute.String("ensemble.stop_reason", stop.String()),
	)
	r.logger.Info("run finished",
		slog.Int("rounds", rounds),
		slog.String("stop_reason", stop.String()),
		slog.Int("segments", len(conv.Segments())),
	)

	return &RunOutcome{
		Output:       conv.FinalAnswer(),
		StopReason:   stop,
		Rounds:       rounds,
		Participants: sortedNames(participated),
	}, nil
}

// generateAll invokes every eligible generator concurrently and joins
// before returning. Results keep the eligible-set order regardless of
// completion order. One goroutine per generator; a generator error cancels
// the remaining calls and fails the round.
func (r *EnsembleReasoner) generateAll(ctx context.Context, eligible []Generator, conv *ConversationState) ([]CandidateOutput, error) {
	start := time.Now()
	outs := make([]CandidateOutput, len(eligible))

	g, gCtx := errgroup.WithContext(ctx)
	for i, gen := range eligible {
		g.Go(func() error {
			out, err := gen.Generate(gCtx, conv)
			if err != nil {
				return fmt.Errorf("generator %s: %w", gen.Name(), err)
			}
			outs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if r.metrics != nil {
		r.metrics.GenerationDurationSeconds.Observe(time.Since(start).Seconds())
	}
	return outs, nil
}

func (r *EnsembleReasoner) countRound(outcome string) {
	if r.metrics != nil {
		r.metrics.RoundsTotal.WithLabelValues(outcome).Inc()
	}
}

func (r *EnsembleReasoner) countCandidate(disposition string) {
	if r.metrics != nil {
		r.metrics.CandidatesTotal.WithLabelValues(disposition).Inc()
	}
}

// allExhausted reports whether every generator that has ever participated
// has emitted EOS at least once. Vacuously false before any participation.
func allExhausted(participated map[string]bool, eosFlags map[string]bool) bool {
	if len(participated) == 0 {
		return false
	}
	for name := range participated {
		if !eosFlags[name] {
			return false
		}
	}
	return true
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func flattenNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}
