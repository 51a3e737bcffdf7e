// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianEnsemble/pkg/ux"
	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
	"github.com/AleutianAI/AleutianEnsemble/services/ensemble/stats"
	"github.com/AleutianAI/AleutianEnsemble/services/generators"
	"github.com/AleutianAI/AleutianEnsemble/services/scorers"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// batchScoreThreshold commits every round's winner regardless of score.
// Offline evaluation runs use this so rounds are never skipped.
const batchScoreThreshold = -2.0

// RunConfig is the YAML run configuration for solve and warm.
//
// # Examples
//
//	models:
//	  - engine: ollama
//	    path: qwen3:4b
//	    max_context_tokens: 8192
//	scorer:
//	  engine: prm_http
//	  base_url: http://localhost:8600
//	params:
//	  model_selection: zscore
//	  model_count: 3
//	examples:
//	  - input: "What is 6 * 7?"
type RunConfig struct {
	// Models is the candidate generator set.
	Models []ensemble.GeneratorSpec `yaml:"models"`

	// Scorer selects the reward backend. Defaults to "heuristic".
	Scorer scorers.ScorerSpec `yaml:"scorer"`

	// Params tunes selection and the reasoning loop.
	Params ensemble.FrameworkConfig `yaml:"params"`

	// Examples is the batch to solve when no question argument is given.
	Examples []ensemble.Example `yaml:"examples"`

	// StatsDB is the Badger statistics directory for z-score selection.
	StatsDB string `yaml:"stats_db"`

	// MaxTokens caps each continuation across all backends.
	MaxTokens int `yaml:"max_tokens"`

	// RequestTimeout bounds each generator call, e.g. "5m".
	RequestTimeout string `yaml:"request_timeout"`
}

func loadRunConfig(path string) (RunConfig, error) {
	var cfg RunConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing run config %s: %w", path, err)
	}
	if cfg.Scorer.Engine == "" {
		cfg.Scorer.Engine = "heuristic"
	}
	return cfg, nil
}

func newGeneratorCache(cfg RunConfig) (*generators.Cache, error) {
	cacheCfg := generators.CacheConfig{MaxTokens: cfg.MaxTokens}
	if cfg.RequestTimeout != "" {
		d, err := time.ParseDuration(cfg.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid request_timeout %q: %w", cfg.RequestTimeout, err)
		}
		cacheCfg.RequestTimeout = d
	}
	return generators.NewCache(cacheCfg), nil
}

// runSolve executes the ensemble over the config's examples, or over the
// single question given as an argument.
func runSolve(cmd *cobra.Command, args []string) {
	cfg, err := loadRunConfig(configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	examples := cfg.Examples
	if len(args) > 0 {
		examples = []ensemble.Example{{Input: strings.Join(args, " ")}}
	}
	if len(examples) == 0 {
		log.Fatal("Nothing to solve: give a question argument or list examples in the config")
	}
	if batchThreshold {
		threshold := batchScoreThreshold
		cfg.Params.ScoreThreshold = &threshold
	}

	if cfg.StatsDB != "" {
		store, err := stats.Open(cfg.StatsDB)
		if err != nil {
			log.Fatalf("Error opening stats store: %v", err)
		}
		defer store.Close()
		table, err := store.All()
		if err != nil {
			log.Fatalf("Error reading stats store: %v", err)
		}
		if len(table) > 0 {
			cfg.Params.Stats = table
		}
	}

	cache, err := newGeneratorCache(cfg)
	if err != nil {
		log.Fatalf("Error configuring generators: %v", err)
	}
	defer cache.Close()

	scorer, err := scorers.NewCache().Resolve(cfg.Scorer)
	if err != nil {
		log.Fatalf("Error resolving scorer: %v", err)
	}

	framework, err := ensemble.NewEnsembleFramework(cfg.Params)
	if err != nil {
		log.Fatalf("Error building framework: %v", err)
	}

	spin := ux.NewSpinner(fmt.Sprintf("Solving %d example(s)", len(examples)))
	spin.Start()
	results, err := framework.Run(context.Background(), examples, cfg.Models, cache, scorer)
	spin.Stop()
	if err != nil {
		log.Fatalf("Ensemble run failed: %v", err)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			log.Fatalf("Error encoding results: %v", err)
		}
		return
	}

	for i, res := range results {
		header := fmt.Sprintf("Example %d (%s, %d rounds, stop: %s)",
			i+1, res.Method, res.Rounds, res.StopReason)
		fmt.Println(ux.Header(header))
		fmt.Println(ux.KeyValue("Models", strings.Join(res.SelectedModels, ", ")))
		fmt.Println()
		fmt.Println(res.Output)
		fmt.Println()
	}
}

// runWarm pre-loads every Ollama model named in the run config.
func runWarm(cmd *cobra.Command, args []string) {
	cfg, err := loadRunConfig(configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if len(cfg.Models) == 0 {
		log.Fatal("No models in config")
	}

	cache, err := newGeneratorCache(cfg)
	if err != nil {
		log.Fatalf("Error configuring generators: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	for _, spec := range cfg.Models {
		if _, err := cache.Resolve(ctx, spec); err != nil {
			log.Fatalf("Error resolving %s/%s: %v", spec.Engine, spec.Path, err)
		}
	}
	message := fmt.Sprintf("Warming %d models", len(cfg.Models))
	if err := ux.WithSpinner(message, func() error { return cache.WarmAll(ctx) }); err != nil {
		os.Exit(1)
	}
}
