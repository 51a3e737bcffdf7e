// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestLevel_ToSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(99).toSlogLevel(), "unknown defaults to Info")
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_ZeroConfig(t *testing.T) {
	logger := New(Config{})

	require.NotNil(t, logger)
	assert.NotNil(t, logger.Slog())
	assert.NoError(t, logger.Close())
}

func logFilePath(dir, service string) string {
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return filepath.Join(dir, name)
}

// TestFileLogging verifies the per-service JSON log file is created under
// LogDir and receives structured entries carrying the service attribute.
func TestFileLogging(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "ensembled", Quiet: true})

	// Act
	logger.Info("round committed", "round", 3, "winner", "qwen3:4b")
	require.NoError(t, logger.Close())

	// Assert
	data, err := os.ReadFile(logFilePath(dir, "ensembled"))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "round committed", entry["msg"])
	assert.Equal(t, "ensembled", entry["service"])
	assert.EqualValues(t, 3, entry["round"])
}

func TestFileLogging_LevelFilter(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	logger := New(Config{Level: LevelWarn, LogDir: dir, Service: "svc", Quiet: true})

	// Act
	logger.Info("filtered out")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	// Assert
	data, err := os.ReadFile(logFilePath(dir, "svc"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered out")
	assert.Contains(t, string(data), "kept")
}

// TestNew_BadLogDirDegrades verifies a file setup failure leaves a working
// stderr logger instead of failing construction.
func TestNew_BadLogDirDegrades(t *testing.T) {
	// Arrange: a file where a directory is expected
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o640))

	// Act
	logger := New(Config{LogDir: blocker, Service: "svc"})

	// Assert
	require.NotNil(t, logger)
	logger.Info("still works")
	assert.NoError(t, logger.Close())
}

// TestWith_SharesDestination verifies derived loggers write to the parent's
// file with their extra attributes attached.
func TestWith_SharesDestination(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	parent := New(Config{LogDir: dir, Service: "svc", Quiet: true})
	child := parent.With("example_id", 7)

	// Act
	child.Info("from child")
	require.NoError(t, parent.Close())

	// Assert
	data, err := os.ReadFile(logFilePath(dir, "svc"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "from child")
	assert.Contains(t, string(data), "example_id")
}

func TestClose_Idempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Service: "svc", Quiet: true})
	logger.Info("one line")

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_FansOut(t *testing.T) {
	// Arrange
	var a, b bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}}

	// Act
	err := slog.New(mh).Handler().Handle(context.Background(),
		slog.NewRecord(time.Now(), slog.LevelInfo, "fan out", 0))

	// Assert
	require.NoError(t, err)
	assert.Contains(t, a.String(), "fan out")
	assert.Contains(t, b.String(), "fan out")
}

// TestMultiHandler_PerHandlerLevels verifies a record below one handler's
// threshold still reaches the more verbose handler.
func TestMultiHandler_PerHandlerLevels(t *testing.T) {
	// Arrange
	var verbose, quiet bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&verbose, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelError}),
	}}

	// Act
	assert.True(t, mh.Enabled(context.Background(), slog.LevelInfo))
	err := mh.Handle(context.Background(),
		slog.NewRecord(time.Now(), slog.LevelInfo, "info line", 0))

	// Assert
	require.NoError(t, err)
	assert.Contains(t, verbose.String(), "info line")
	assert.Empty(t, quiet.String())
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&buf, nil),
	}}

	// Act
	h := mh.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("grp")
	err := h.Handle(context.Background(),
		slog.NewRecord(time.Now(), slog.LevelInfo, "grouped", 0))

	// Assert
	require.NoError(t, err)
	assert.IsType(t, &multiHandler{}, h)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

type failingHandler struct{ err error }

func (h *failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *failingHandler) Handle(context.Context, slog.Record) error { return h.err }
func (h *failingHandler) WithAttrs([]slog.Attr) slog.Handler        { return h }
func (h *failingHandler) WithGroup(string) slog.Handler             { return h }

// TestMultiHandler_FirstErrorWins verifies one failing destination does not
// stop the others and its error is surfaced.
func TestMultiHandler_FirstErrorWins(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	boom := errors.New("disk full")
	mh := &multiHandler{handlers: []slog.Handler{
		&failingHandler{err: boom},
		slog.NewTextHandler(&buf, nil),
	}}

	// Act
	err := mh.Handle(context.Background(),
		slog.NewRecord(time.Now(), slog.LevelInfo, "still delivered", 0))

	// Assert
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, buf.String(), "still delivered")
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		input string
		want  string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~", home},
		{"/var/log", "/var/log"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, expandPath(tt.input), tt.input)
	}
}
