// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// scriptedGenerator fails a fixed number of times, then succeeds.
type scriptedGenerator struct {
	failures int
	calls    int
	delay    time.Duration
	text     string
}

func (s *scriptedGenerator) Name() string           { return "scripted" }
func (s *scriptedGenerator) IsEligible(string) bool { return true }

func (s *scriptedGenerator) Generate(ctx context.Context, _ *ensemble.ConversationState) (ensemble.CandidateOutput, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ensemble.CandidateOutput{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.calls <= s.failures {
		return ensemble.CandidateOutput{}, errors.New("transient failure")
	}
	return ensemble.CandidateOutput{Text: s.text}, nil
}

var testConv = ensemble.NewConversationState("", "q")

// =============================================================================
// Timeout
// =============================================================================

func TestWithTimeout_Expires(t *testing.T) {
	// Arrange
	slow := &scriptedGenerator{delay: 200 * time.Millisecond, text: "late"}
	g := WithTimeout(slow, 10*time.Millisecond)

	// Act
	_, err := g.Generate(context.Background(), testConv)

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	// Arrange
	fast := &scriptedGenerator{text: "on time"}
	g := WithTimeout(fast, time.Second)

	// Act
	out, err := g.Generate(context.Background(), testConv)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "on time", out.Text)
	assert.Equal(t, "scripted", g.Name())
}

// =============================================================================
// Retry
// =============================================================================

func TestWithRetry_EventualSuccess(t *testing.T) {
	// Arrange: two failures, third call succeeds.
	flaky := &scriptedGenerator{failures: 2, text: "finally"}
	g := WithRetry(flaky, 3, time.Millisecond)

	// Act
	out, err := g.Generate(context.Background(), testConv)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "finally", out.Text)
	assert.Equal(t, 3, flaky.calls)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	// Arrange
	broken := &scriptedGenerator{failures: 10}
	g := WithRetry(broken, 2, time.Millisecond)

	// Act
	_, err := g.Generate(context.Background(), testConv)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, broken.calls)
}

func TestWithRetry_StopsOnCanceledContext(t *testing.T) {
	// Arrange
	broken := &scriptedGenerator{failures: 10}
	g := WithRetry(broken, 5, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	_, err := g.Generate(ctx, testConv)

	// Assert
	require.Error(t, err)
	assert.Equal(t, 1, broken.calls, "canceled context must not be retried")
}

// =============================================================================
// Fallback
// =============================================================================

func TestWithFallback_TranslatesErrorToEmptyCandidate(t *testing.T) {
	// Arrange
	broken := &scriptedGenerator{failures: 10}
	g := WithFallback(broken)

	// Act
	out, err := g.Generate(context.Background(), testConv)

	// Assert: empty text fails validity, so the round just skips this model.
	require.NoError(t, err)
	assert.Empty(t, out.Text)
	assert.False(t, out.EndedWithEOS)
}

func TestWithFallback_PropagatesCancellation(t *testing.T) {
	// Arrange
	slow := &scriptedGenerator{delay: time.Second}
	g := WithFallback(slow)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Act
	_, err := g.Generate(ctx, testConv)

	// Assert
	assert.Error(t, err, "a canceled run should die, not limp on")
}

// =============================================================================
// Rate Limit
// =============================================================================

func TestWithRateLimit_Waits(t *testing.T) {
	// Arrange: burst of 1, then one event per 50ms.
	inner := &scriptedGenerator{text: "ok"}
	limiter := rate.NewLimiter(rate.Every(50*time.Millisecond), 1)
	g := WithRateLimit(inner, limiter)

	// Act: second call must wait for a token.
	start := time.Now()
	_, err1 := g.Generate(context.Background(), testConv)
	_, err2 := g.Generate(context.Background(), testConv)
	elapsed := time.Since(start)

	// Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestWithRateLimit_CanceledWhileWaiting(t *testing.T) {
	// Arrange: empty bucket that never refills within the test.
	inner := &scriptedGenerator{text: "ok"}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limiter.Allow() // drain the burst token
	g := WithRateLimit(inner, limiter)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Act
	_, err := g.Generate(ctx, testConv)

	// Assert
	require.Error(t, err)
	assert.Equal(t, 0, inner.calls)
}
