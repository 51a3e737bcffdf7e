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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath     string
	outputJSON     bool
	batchThreshold bool
	statsDBPath    string

	rootCmd = &cobra.Command{
		Use:   "ensemble",
		Short: "A cli for multi-model ensemble reasoning over local and remote LLMs",
		Long: `Ensemble runs several language models against the same question,
scores each model's proposed next reasoning step with a reward model,
and extends the answer with the winning step until the models stop.`,
	}

	// --- Solve ---
	solveCmd = &cobra.Command{
		Use:   "solve [question]",
		Short: "Solve a question (or a YAML batch) with the configured model ensemble",
		Run:   runSolve, // Defined in cmd_solve.go
	}

	// --- Warmup ---
	warmCmd = &cobra.Command{
		Use:   "warm",
		Short: "Pre-load every Ollama model named in the run config",
		Run:   runWarm, // Defined in cmd_solve.go
	}

	// --- Stats ---
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Inspect and seed the model statistics store used by z-score selection",
	}
	statsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print every stored model statistics row",
		Run:   runStatsShow, // Defined in cmd_stats.go
	}
	statsSeedCmd = &cobra.Command{
		Use:   "seed [yaml_file]",
		Short: "Seed the statistics store from a YAML table (built-ins when omitted)",
		Run:   runStatsSeed, // Defined in cmd_stats.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ensemble.yaml",
		"Path to the run configuration file")

	solveCmd.Flags().BoolVar(&outputJSON, "json", false,
		"Print results as JSON instead of text")
	solveCmd.Flags().BoolVar(&batchThreshold, "batch", false,
		"Use the batch threshold profile (-2.0): commit every round's winner")

	statsCmd.PersistentFlags().StringVar(&statsDBPath, "db", "",
		"Stats database directory (overrides the run config)")

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(warmCmd)
	statsCmd.AddCommand(statsShowCmd)
	statsCmd.AddCommand(statsSeedCmd)
	rootCmd.AddCommand(statsCmd)
}
