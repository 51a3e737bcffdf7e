// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats persists per-model quality statistics used by statistical
// model selection.
//
// # Description
//
// Statistics (perplexity and confidence mean/std, a manual weight, and the
// parameter count) are collected offline per model and consumed by the
// z-score selector. The store is backed by BadgerDB so a long-running
// service can update statistics without redeploying, and can be seeded from
// a YAML file at startup.
//
// # Thread Safety
//
// Store is safe for concurrent use; Badger provides transactional access.
package stats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"
)

// keyPrefix namespaces model statistics within the Badger keyspace.
const keyPrefix = "modelstats/"

// ModelStats holds offline-collected quality statistics for one model.
type ModelStats struct {
	// PPLMean and PPLStd summarize the model's perplexity distribution on
	// the calibration set. Lower mean is better.
	PPLMean float64 `json:"ppl_mean" yaml:"ppl_mean"`
	PPLStd  float64 `json:"ppl_std" yaml:"ppl_std"`

	// ConfMean and ConfStd summarize the model's token-confidence
	// distribution. Higher mean is better.
	ConfMean float64 `json:"conf_mean" yaml:"conf_mean"`
	ConfStd  float64 `json:"conf_std" yaml:"conf_std"`

	// Weight is a manual preference multiplier.
	Weight float64 `json:"weight" yaml:"weight"`

	// Size is the parameter count in billions, used as a tie-breaker hint.
	Size float64 `json:"size" yaml:"size"`
}

// Store is a Badger-backed statistics table.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) a statistics store at dir.
//
// # Inputs
//
//   - dir: Badger data directory. Created if missing.
//
// # Outputs
//
//   - *Store: Open store; callers own Close.
//   - error: Non-nil if Badger fails to open.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Badger's own logger is too chatty for a side table.
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening stats store at %s: %w", dir, err)
	}
	return &Store{db: db, logger: slog.Default()}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores statistics for a model, overwriting any previous value.
func (s *Store) Put(model string, ms ModelStats) error {
	val, err := json.Marshal(ms)
	if err != nil {
		return fmt.Errorf("marshaling stats for %s: %w", model, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+model), val)
	})
	if err != nil {
		return fmt.Errorf("storing stats for %s: %w", model, err)
	}
	return nil
}

// Get returns statistics for a model. The second result is false when the
// model has no recorded statistics.
func (s *Store) Get(model string) (ModelStats, bool, error) {
	var ms ModelStats
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + model))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ms)
		})
	})
	if err != nil {
		return ModelStats{}, false, fmt.Errorf("reading stats for %s: %w", model, err)
	}
	return ms, found, nil
}

// All returns every recorded model's statistics.
func (s *Store) All() (map[string]ModelStats, error) {
	out := make(map[string]ModelStats)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			model := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				var ms ModelStats
				if err := json.Unmarshal(val, &ms); err != nil {
					return err
				}
				out[model] = ms
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing stats: %w", err)
	}
	return out, nil
}

// SeedFromYAML loads a YAML statistics file and stores every entry,
// overwriting existing values. The file maps model name to ModelStats
// fields.
func (s *Store) SeedFromYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading stats seed %s: %w", path, err)
	}
	var table map[string]ModelStats
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return fmt.Errorf("parsing stats seed %s: %w", path, err)
	}
	for model, ms := range table {
		if err := s.Put(model, ms); err != nil {
			return err
		}
	}
	s.logger.Info("seeded model statistics",
		slog.String("path", path),
		slog.Int("models", len(table)),
	)
	return nil
}

// Defaults returns the built-in statistics table. In production the store
// should be seeded from a calibration run; these values cover the commonly
// deployed models so z-score selection degrades gracefully.
func Defaults() map[string]ModelStats {
	return map[string]ModelStats{
		"Qwen/Qwen2.5-0.5B-Instruct": {
			PPLMean: 9.795982360839844, PPLStd: 22.284496307373047,
			ConfMean: 0.6799513101577759, ConfStd: 0.08082679659128189,
			Weight: 0.2, Size: 0.5,
		},
		"deepseek-ai/DeepSeek-R1-Distill-Qwen-1.5B": {
			PPLMean: 9.795982360839844, PPLStd: 22.284496307373047,
			ConfMean: 0.6799513101577759, ConfStd: 0.08082679659128189,
			Weight: 0.2, Size: 1.5,
		},
		"Qwen/Qwen3-4B": {
			PPLMean: 6.160105228424072, PPLStd: 6.118084907531738,
			ConfMean: 0.8231604099273682, ConfStd: 0.07646501809358597,
			Weight: 1.0, Size: 4.0,
		},
		"deepseek-ai/DeepSeek-R1-Distill-Qwen-7B": {
			PPLMean: 16.57339096069336, PPLStd: 50.37682342529297,
			ConfMean: 0.6976740956306458, ConfStd: 0.10360505431890488,
			Weight: 0.5, Size: 7.0,
		},
		"Qwen/Qwen2.5-Math-7B-Instruct": {
			PPLMean: 4.232998847961426, PPLStd: 3.664811611175537,
			ConfMean: 0.7785097360610962, ConfStd: 0.09053431451320648,
			Weight: 1.0, Size: 7.0,
		},
		"deepseek-ai/DeepSeek-R1-Distill-Qwen-14B": {
			PPLMean: 8.22177505493164, PPLStd: 14.440741539001465,
			ConfMean: 0.7438507676124573, ConfStd: 0.0863514393568039,
			Weight: 1.0, Size: 14.0,
		},
		"deepseek-ai/DeepSeek-R1-Distill-Qwen-32B": {
			PPLMean: 4.0472869873046875, PPLStd: 3.9851391315460205,
			ConfMean: 0.7702987194061279, ConfStd: 0.0831739529967308,
			Weight: 1.0, Size: 32.0,
		},
	}
}
