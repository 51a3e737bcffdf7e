// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ensembled runs the ensemble HTTP daemon.
//
// Configuration is environment-driven so the container needs no config
// file:
//
//	ENSEMBLE_PORT                HTTP port (default 12240)
//	ENSEMBLE_STATS_DB            Badger model-stats directory (optional)
//	ENSEMBLE_STATS_SEED          YAML stats seed file (optional)
//	ENSEMBLE_MAX_TOKENS          per-continuation token cap (optional)
//	ENSEMBLE_REQUEST_TIMEOUT     per-generator-call bound, e.g. "5m"
//	OTEL_EXPORTER_OTLP_ENDPOINT  collector endpoint; empty disables tracing
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianEnsemble/pkg/logging"
	"github.com/AleutianAI/AleutianEnsemble/services/api"
)

func main() {
	logger := logging.New(logging.Config{
		Service: "ensembled",
		JSON:    true,
		LogDir:  os.Getenv("ENSEMBLE_LOG_DIR"),
	})
	defer logger.Close()
	// Route package-level slog calls through the layered logger.
	slog.SetDefault(logger.Slog())

	cfg := api.Config{
		Port:          envInt("ENSEMBLE_PORT", 0),
		StatsDBPath:   os.Getenv("ENSEMBLE_STATS_DB"),
		StatsSeedPath: os.Getenv("ENSEMBLE_STATS_SEED"),
		MaxTokens:     envInt("ENSEMBLE_MAX_TOKENS", 0),
		GinMode:       os.Getenv("GIN_MODE"),
	}

	if v := os.Getenv("ENSEMBLE_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid ENSEMBLE_REQUEST_TIMEOUT %q: %v", v, err)
		}
		cfg.RequestTimeout = d
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.OTelEndpoint = endpoint
		cfg.EnableTracing = true
	}

	svc, err := api.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize ensemble service: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s %q: %v", key, v, err)
	}
	return n
}
