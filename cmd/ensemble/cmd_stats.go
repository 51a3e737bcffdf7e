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
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble/stats"
	"github.com/spf13/cobra"
)

// resolveStatsDB picks the stats directory from the --db flag or the run
// config, in that order.
func resolveStatsDB() string {
	if statsDBPath != "" {
		return statsDBPath
	}
	cfg, err := loadRunConfig(configPath)
	if err == nil && cfg.StatsDB != "" {
		return cfg.StatsDB
	}
	return ""
}

// runStatsShow prints every stored model statistics row as a table.
func runStatsShow(cmd *cobra.Command, args []string) {
	dir := resolveStatsDB()
	if dir == "" {
		log.Fatal("No stats database configured: pass --db or set stats_db in the run config")
	}

	store, err := stats.Open(dir)
	if err != nil {
		log.Fatalf("Error opening stats store: %v", err)
	}
	defer store.Close()

	all, err := store.All()
	if err != nil {
		log.Fatalf("Error reading stats store: %v", err)
	}
	if len(all) == 0 {
		fmt.Println("Stats store is empty. Run 'ensemble stats seed' first.")
		return
	}

	models := make([]string, 0, len(all))
	for m := range all {
		models = append(models, m)
	}
	sort.Strings(models)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tPPL_MEAN\tPPL_STD\tCONF_MEAN\tCONF_STD\tWEIGHT\tSIZE")
	for _, m := range models {
		ms := all[m]
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.2f\t%.1f\n",
			m, ms.PPLMean, ms.PPLStd, ms.ConfMean, ms.ConfStd, ms.Weight, ms.Size)
	}
	w.Flush()
}

// runStatsSeed populates the stats store from a YAML table, or from the
// built-in defaults when no file is given.
func runStatsSeed(cmd *cobra.Command, args []string) {
	dir := resolveStatsDB()
	if dir == "" {
		log.Fatal("No stats database configured: pass --db or set stats_db in the run config")
	}

	store, err := stats.Open(dir)
	if err != nil {
		log.Fatalf("Error opening stats store: %v", err)
	}
	defer store.Close()

	if len(args) > 0 {
		if err := store.SeedFromYAML(args[0]); err != nil {
			log.Fatalf("Error seeding from %s: %v", args[0], err)
		}
		fmt.Printf("Seeded stats store from %s\n", args[0])
		return
	}

	defaults := stats.Defaults()
	for model, ms := range defaults {
		if err := store.Put(model, ms); err != nil {
			log.Fatalf("Error storing stats for %s: %v", model, err)
		}
	}
	fmt.Printf("Seeded stats store with %d built-in models\n", len(defaults))
}
