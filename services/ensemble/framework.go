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

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble/stats"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Method names accepted by FrameworkConfig.
const (
	SelectionAll    = "all"
	SelectionRandom = "random"
	SelectionZScore = "zscore"

	AggregationRewardBased = "reward_based"
)

// FrameworkConfig configures an EnsembleFramework.
type FrameworkConfig struct {
	// ModelSelection picks which models participate: "all", "random", or
	// "zscore". Default "all".
	ModelSelection string `yaml:"model_selection" validate:"omitempty,oneof=all random zscore"`

	// OutputAggregation picks how candidate outputs are combined. Only the
	// sentence-level "reward_based" aggregator (the reasoner) is
	// implemented; the field exists so configs name their method
	// explicitly. Default "reward_based".
	OutputAggregation string `yaml:"output_aggregation" validate:"omitempty,oneof=reward_based"`

	// ModelCount caps random/zscore selection. <= 0 means no cap.
	ModelCount int `yaml:"model_count"`

	// MaxRounds bounds each example's reasoner loop. Zero means
	// DefaultMaxRounds.
	MaxRounds int `yaml:"max_rounds" validate:"gte=0"`

	// ScoreThreshold is the per-round commit threshold. Nil means
	// DefaultScoreThreshold; batch callers typically set -2.0.
	ScoreThreshold *float64 `yaml:"score_threshold"`

	// MinSegmentLen is the candidate validity minimum. Zero means
	// DefaultMinSegmentLen.
	MinSegmentLen int `yaml:"min_segment_len" validate:"gte=0"`

	// SystemPrompt is the default instruction for examples without one.
	SystemPrompt string `yaml:"system_prompt"`

	// AccumulateContext is accepted for compatibility and always treated
	// as true.
	AccumulateContext bool `yaml:"accumulate_context"`

	// Stats backs z-score selection. Nil falls back to stats.Defaults().
	Stats map[string]stats.ModelStats `yaml:"-"`
}

// Result is the outcome for one example in a framework run.
type Result struct {
	// Output is the newline-joined accepted segments.
	Output string `json:"output"`

	// SelectedModels lists the model paths chosen for this example.
	SelectedModels []string `json:"selected_models"`

	// Method tags the run as "<selection>+<aggregation>".
	Method string `json:"method"`

	// StopReason tags how the reasoner terminated.
	StopReason string `json:"stop_reason"`

	// Rounds is the number of reasoner rounds executed.
	Rounds int `json:"rounds"`
}

// EnsembleFramework combines model selection with reward-based output
// aggregation over batches of examples.
//
// # Description
//
// The framework is the batch-caller surface on top of EnsembleReasoner: it
// selects models per example, resolves them through an injected
// GeneratorResolver, runs the reasoner, and tags results with the method
// used. Construction fails fast with typed errors for unknown methods or
// invalid parameters instead of failing mid-batch.
type EnsembleFramework struct {
	cfg      FrameworkConfig
	selector ModelSelector
	logger   *slog.Logger
	metrics  *ReasonerMetrics
}

// FrameworkOption configures an EnsembleFramework.
type FrameworkOption func(*EnsembleFramework)

// WithFrameworkLogger sets the structured logger. Default: slog.Default().
func WithFrameworkLogger(logger *slog.Logger) FrameworkOption {
	return func(f *EnsembleFramework) {
		f.logger = logger
	}
}

// WithFrameworkMetrics attaches Prometheus metrics shared by all reasoner
// runs the framework starts.
func WithFrameworkMetrics(m *ReasonerMetrics) FrameworkOption {
	return func(f *EnsembleFramework) {
		f.metrics = m
	}
}

// NewEnsembleFramework validates the config and builds the framework.
//
// # Outputs
//
//   - *EnsembleFramework: Ready for Run calls.
//   - error: ErrUnknownMethod for an unrecognized selection or aggregation
//     method, ErrBadConfig (wrapped) for structurally invalid parameters.
func NewEnsembleFramework(cfg FrameworkConfig, opts ...FrameworkOption) (*EnsembleFramework, error) {
	if cfg.ModelSelection == "" {
		cfg.ModelSelection = SelectionAll
	}
	if cfg.OutputAggregation == "" {
		cfg.OutputAggregation = AggregationRewardBased
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}

	f := &EnsembleFramework{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	statsTable := cfg.Stats
	if statsTable == nil {
		statsTable = stats.Defaults()
	}

	switch cfg.ModelSelection {
	case SelectionAll:
		f.selector = AllModelsSelector{}
	case SelectionRandom:
		f.selector = RandomSelector{Count: cfg.ModelCount}
	case SelectionZScore:
		f.selector = ZScoreSelector{
			Stats:      statsTable,
			ModelCount: cfg.ModelCount,
			Logger:     f.logger,
		}
	default:
		return nil, fmt.Errorf("%w: model selection %q", ErrUnknownMethod, cfg.ModelSelection)
	}

	if cfg.OutputAggregation != AggregationRewardBased {
		return nil, fmt.Errorf("%w: output aggregation %q", ErrUnknownMethod, cfg.OutputAggregation)
	}

	return f, nil
}

// Method returns the "<selection>+<aggregation>" tag attached to results.
func (f *EnsembleFramework) Method() string {
	return f.selector.Name() + "+" + f.cfg.OutputAggregation
}

// Run executes the ensemble pipeline over a batch of examples.
//
// # Description
//
// For each example: select models, resolve generators through the injected
// resolver, run the reasoner, and collect the result. Examples are
// processed sequentially; within each example, generation runs in parallel
// per round. A resolution failure or a hard reasoner failure aborts the
// batch.
//
// # Inputs
//
//   - ctx: Cancels in-flight work.
//   - examples: The batch. Must be non-empty.
//   - specs: The candidate model set shared by the batch.
//   - resolver: Turns specs into live generators (generators.Cache).
//   - scorer: Ranks candidates each round.
//
// # Outputs
//
//   - []Result: One result per example, in input order.
//   - error: Non-nil on configuration or hard runtime failure.
func (f *EnsembleFramework) Run(ctx context.Context, examples []Example, specs []GeneratorSpec,
	resolver GeneratorResolver, scorer Scorer) ([]Result, error) {

	ctx, span := tracer.Start(ctx, "EnsembleFramework.Run")
	defer span.End()

	if len(examples) == 0 {
		return nil, fmt.Errorf("%w: empty example batch", ErrBadConfig)
	}
	if len(specs) == 0 {
		return nil, ErrNoGenerators
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: nil generator resolver", ErrBadConfig)
	}
	if scorer == nil {
		return nil, ErrNoScorer
	}

	runID := uuid.NewString()
	span.SetAttributes(
		attribute.String("ensemble.run_id", runID),
		attribute.Int("ensemble.batch_size", len(examples)),
		attribute.String("ensemble.method", f.Method()),
	)
	f.logger.Info("starting ensemble run",
		slog.String("run_id", runID),
		slog.String("method", f.Method()),
		slog.Int("batch_size", len(examples)),
		slog.Int("models", len(specs)),
	)

	results := make([]Result, 0, len(examples))
	for i, ex := range examples {
		selected := f.selector.SelectModels(ex, specs)
		if len(selected) == 0 {
			return nil, fmt.Errorf("%w: selection produced no models", ErrBadConfig)
		}

		generators := make([]Generator, 0, len(selected))
		paths := make([]string, 0, len(selected))
		for _, spec := range selected {
			gen, err := resolver.Resolve(ctx, spec)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("resolving generator %s/%s: %w", spec.Engine, spec.Path, err)
			}
			generators = append(generators, gen)
			paths = append(paths, spec.Path)
		}

		reasoner, err := NewEnsembleReasoner(generators, scorer, f.reasonerConfig(),
			WithLogger(f.logger.With(slog.String("run_id", runID), slog.Int("example", i))),
			WithMetrics(f.metrics),
		)
		if err != nil {
			return nil, err
		}

		outcome, err := reasoner.Solve(ctx, ex)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("example %d: %w", i, err)
		}

		results = append(results, Result{
			Output:         outcome.Output,
			SelectedModels: paths,
			Method:         f.Method(),
			StopReason:     outcome.StopReason.String(),
			Rounds:         outcome.Rounds,
		})
	}

	return results, nil
}

func (f *EnsembleFramework) reasonerConfig() ReasonerConfig {
	cfg := ReasonerConfig{
		MaxRounds:         f.cfg.MaxRounds,
		MinSegmentLen:     f.cfg.MinSegmentLen,
		SystemPrompt:      f.cfg.SystemPrompt,
		AccumulateContext: f.cfg.AccumulateContext,
	}
	if f.cfg.ScoreThreshold != nil {
		cfg = cfg.WithExplicitThreshold(*f.cfg.ScoreThreshold)
	}
	return cfg
}
