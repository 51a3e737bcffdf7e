// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
	"github.com/AleutianAI/AleutianEnsemble/services/ensemble/stats"
	"github.com/AleutianAI/AleutianEnsemble/services/scorers"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

func newTestService(t *testing.T, cfg Config) Service {
	t.Helper()
	cfg.GinMode = gin.TestMode
	svc, err := New(cfg)
	require.NoError(t, err)
	return svc
}

func doJSON(t *testing.T, svc Service, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

// ollamaChatStub fakes an Ollama /api/chat endpoint. done_reason "length"
// keeps the generator unexhausted so runs end by rounds, not EOS.
func ollamaChatStub(t *testing.T, content, doneReason string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		resp := map[string]any{
			"message":     map[string]string{"role": "assistant", "content": content},
			"done":        true,
			"done_reason": doneReason,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// =============================================================================
// Config Tests
// =============================================================================

func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	// Act
	result := applyConfigDefaults(Config{})

	// Assert
	assert.Equal(t, 12240, result.Port, "default port should be 12240")
	assert.Equal(t, "aleutian-otel-collector:4317", result.OTelEndpoint)
	assert.Equal(t, "-1", result.OllamaKeepAlive, "models should stay resident by default")
	assert.NotZero(t, result.RequestTimeout)
}

func TestApplyConfigDefaults_PreservesCustomValues(t *testing.T) {
	// Arrange
	cfg := Config{Port: 8080, OllamaKeepAlive: "5m"}

	// Act
	result := applyConfigDefaults(cfg)

	// Assert
	assert.Equal(t, 8080, result.Port)
	assert.Equal(t, "5m", result.OllamaKeepAlive)
}

// =============================================================================
// Route Tests
// =============================================================================

func TestHealthz(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRequestIDHeader(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodGet, "/healthz", nil)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

// =============================================================================
// Ensemble Endpoint Tests
// =============================================================================

func TestEnsemble_InvalidBody(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodPost, "/api/v1/ensemble", map[string]any{
		"examples": []any{},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnsemble_UnknownScorerEngine(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodPost, "/api/v1/ensemble", EnsembleRequest{
		Examples: []ensemble.Example{{Input: "q"}},
		Models:   []ensemble.GeneratorSpec{{Engine: "ollama", Path: "m", BaseURL: "http://localhost:1"}},
		Scorer:   scorers.ScorerSpec{Engine: "oracle"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "scorer")
}

func TestEnsemble_EndToEndWithStubbedBackend(t *testing.T) {
	// Arrange
	backend := ollamaChatStub(t, "Each step moves the proof forward.", "length")
	svc := newTestService(t, Config{})

	req := EnsembleRequest{
		Examples: []ensemble.Example{{Input: "What is 2+2?"}},
		Models: []ensemble.GeneratorSpec{
			{Engine: "ollama", Path: "stub-model", BaseURL: backend.URL},
		},
		Scorer: scorers.ScorerSpec{Engine: "heuristic"},
		Params: EnsembleParams{MaxRounds: 2},
	}

	// Act
	w := doJSON(t, svc, http.MethodPost, "/api/v1/ensemble", req)

	// Assert
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp EnsembleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "rounds_exhausted", resp.Results[0].StopReason)
	assert.Equal(t, 2, resp.Results[0].Rounds)
	assert.Contains(t, resp.Results[0].Output, "Each step moves the proof forward.")
	assert.Equal(t, []string{"stub-model"}, resp.Results[0].SelectedModels)
}

func TestEnsemble_UnknownGeneratorEngine(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodPost, "/api/v1/ensemble", EnsembleRequest{
		Examples: []ensemble.Example{{Input: "q"}},
		Models:   []ensemble.GeneratorSpec{{Engine: "telepathy", Path: "m"}},
		Scorer:   scorers.ScorerSpec{Engine: "heuristic"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnsemble_UnavailableEngineIsBadGateway(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodPost, "/api/v1/ensemble", EnsembleRequest{
		Examples: []ensemble.Example{{Input: "q"}},
		Models:   []ensemble.GeneratorSpec{{Engine: "vllm", Path: "Qwen/Qwen3-4B"}},
		Scorer:   scorers.ScorerSpec{Engine: "heuristic"},
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

// =============================================================================
// Stats Endpoint Tests
// =============================================================================

func TestStats_NotConfigured(t *testing.T) {
	svc := newTestService(t, Config{})

	w := doJSON(t, svc, http.MethodGet, "/api/v1/stats", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats_PutGetRoundTrip(t *testing.T) {
	// Arrange
	svc := newTestService(t, Config{StatsDBPath: t.TempDir()})
	ms := stats.ModelStats{PPLMean: 6.1, ConfMean: 0.82, Weight: 1.0, Size: 4.0}

	// Act
	put := doJSON(t, svc, http.MethodPut, "/api/v1/stats/qwen3-4b", ms)
	get := doJSON(t, svc, http.MethodGet, "/api/v1/stats/qwen3-4b", nil)
	list := doJSON(t, svc, http.MethodGet, "/api/v1/stats", nil)

	// Assert
	require.Equal(t, http.StatusOK, put.Code)
	require.Equal(t, http.StatusOK, get.Code)
	var got stats.ModelStats
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &got))
	assert.Equal(t, ms, got)
	assert.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), "qwen3-4b")
}

// TestStats_NamespacedModelRef verifies refs like "Qwen/Qwen3-4B", which
// span two path segments, stay addressable through the wildcard route.
func TestStats_NamespacedModelRef(t *testing.T) {
	// Arrange
	svc := newTestService(t, Config{StatsDBPath: t.TempDir()})
	ms := stats.ModelStats{PPLMean: 5.2, ConfMean: 0.9, Weight: 1.2, Size: 4.0}

	// Act
	put := doJSON(t, svc, http.MethodPut, "/api/v1/stats/Qwen/Qwen3-4B", ms)
	get := doJSON(t, svc, http.MethodGet, "/api/v1/stats/Qwen/Qwen3-4B", nil)

	// Assert
	require.Equal(t, http.StatusOK, put.Code, put.Body.String())
	require.Equal(t, http.StatusOK, get.Code, get.Body.String())
	var got stats.ModelStats
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &got))
	assert.Equal(t, ms, got)
	assert.Contains(t, put.Body.String(), "Qwen/Qwen3-4B")
}

// TestStats_RejectsBadModelRef verifies path parameters are validated
// before they become Badger keys.
func TestStats_RejectsBadModelRef(t *testing.T) {
	svc := newTestService(t, Config{StatsDBPath: t.TempDir()})

	w := doJSON(t, svc, http.MethodPut, "/api/v1/stats/a..b",
		stats.ModelStats{Weight: 1.0})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "model reference")
}

func TestStats_GetMissing(t *testing.T) {
	svc := newTestService(t, Config{StatsDBPath: t.TempDir()})

	w := doJSON(t, svc, http.MethodGet, "/api/v1/stats/absent", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestFrameworkConfig_StatsScanGatedOnSelection verifies the stats table is
// only read from Badger when z-score selection will consume it.
func TestFrameworkConfig_StatsScanGatedOnSelection(t *testing.T) {
	// Arrange
	svc := newTestService(t, Config{StatsDBPath: t.TempDir()}).(*service)
	require.NoError(t, svc.statsStore.Put("qwen3-4b", stats.ModelStats{Weight: 1.0}))

	// Act
	random := svc.frameworkConfig(EnsembleParams{ModelSelection: "random"})
	zscore := svc.frameworkConfig(EnsembleParams{ModelSelection: "zscore"})

	// Assert
	assert.Nil(t, random.Stats, "non-zscore selection must skip the store")
	require.NotNil(t, zscore.Stats)
	assert.Contains(t, zscore.Stats, "qwen3-4b")
}
