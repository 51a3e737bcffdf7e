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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
	"golang.org/x/time/rate"
)

// The ensemble core treats a generator error as fatal for the whole run and
// applies no per-call timeouts. These decorators implement the softer
// policies at the contract boundary instead: retry transient failures,
// translate persistent ones into "no candidate this round", bound latency,
// and rate-limit shared endpoints.

// =============================================================================
// Timeout
// =============================================================================

type timeoutGenerator struct {
	inner   ensemble.Generator
	timeout time.Duration
}

// WithTimeout bounds each Generate call. On expiry the call fails with the
// context error; combine with WithFallback to turn that into a skipped
// candidate instead of a dead run.
func WithTimeout(g ensemble.Generator, timeout time.Duration) ensemble.Generator {
	return &timeoutGenerator{inner: g, timeout: timeout}
}

func (t *timeoutGenerator) Name() string { return t.inner.Name() }

func (t *timeoutGenerator) IsEligible(renderedContext string) bool {
	return t.inner.IsEligible(renderedContext)
}

func (t *timeoutGenerator) Generate(ctx context.Context, conv *ensemble.ConversationState) (ensemble.CandidateOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	out, err := t.inner.Generate(ctx, conv)
	if err != nil {
		return ensemble.CandidateOutput{}, fmt.Errorf("generate within %s: %w", t.timeout, err)
	}
	return out, nil
}

// =============================================================================
// Retry
// =============================================================================

type retryGenerator struct {
	inner    ensemble.Generator
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// WithRetry retries failed Generate calls with fixed backoff. attempts is
// the total number of tries; values below 1 are treated as 1.
func WithRetry(g ensemble.Generator, attempts int, backoff time.Duration) ensemble.Generator {
	if attempts < 1 {
		attempts = 1
	}
	return &retryGenerator{inner: g, attempts: attempts, backoff: backoff, logger: slog.Default()}
}

func (r *retryGenerator) Name() string { return r.inner.Name() }

func (r *retryGenerator) IsEligible(renderedContext string) bool {
	return r.inner.IsEligible(renderedContext)
}

func (r *retryGenerator) Generate(ctx context.Context, conv *ensemble.ConversationState) (ensemble.CandidateOutput, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		out, err := r.inner.Generate(ctx, conv)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < r.attempts {
			r.logger.Warn("generation failed; retrying",
				slog.String("generator", r.inner.Name()),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", r.attempts),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ensemble.CandidateOutput{}, ctx.Err()
			case <-time.After(r.backoff):
			}
		}
	}
	return ensemble.CandidateOutput{}, fmt.Errorf("after %d attempts: %w", r.attempts, lastErr)
}

// =============================================================================
// Fallback
// =============================================================================

type fallbackGenerator struct {
	inner  ensemble.Generator
	logger *slog.Logger
}

// WithFallback translates a failed Generate call into an empty candidate,
// which the validity filter drops. The generator contributes nothing that
// round instead of killing the run. Context cancellation still propagates:
// a canceled run should die, not limp on.
func WithFallback(g ensemble.Generator) ensemble.Generator {
	return &fallbackGenerator{inner: g, logger: slog.Default()}
}

func (f *fallbackGenerator) Name() string { return f.inner.Name() }

func (f *fallbackGenerator) IsEligible(renderedContext string) bool {
	return f.inner.IsEligible(renderedContext)
}

func (f *fallbackGenerator) Generate(ctx context.Context, conv *ensemble.ConversationState) (ensemble.CandidateOutput, error) {
	out, err := f.inner.Generate(ctx, conv)
	if err != nil {
		if ctx.Err() != nil {
			return ensemble.CandidateOutput{}, err
		}
		f.logger.Warn("generation failed; contributing no candidate this round",
			slog.String("generator", f.inner.Name()),
			slog.String("error", err.Error()),
		)
		return ensemble.CandidateOutput{}, nil
	}
	return out, nil
}

// =============================================================================
// Rate Limit
// =============================================================================

type rateLimitedGenerator struct {
	inner   ensemble.Generator
	limiter *rate.Limiter
}

// WithRateLimit gates Generate calls through a token-bucket limiter.
// Several generators pointed at one endpoint should share a limiter.
func WithRateLimit(g ensemble.Generator, limiter *rate.Limiter) ensemble.Generator {
	return &rateLimitedGenerator{inner: g, limiter: limiter}
}

func (r *rateLimitedGenerator) Name() string { return r.inner.Name() }

func (r *rateLimitedGenerator) IsEligible(renderedContext string) bool {
	return r.inner.IsEligible(renderedContext)
}

func (r *rateLimitedGenerator) Generate(ctx context.Context, conv *ensemble.ConversationState) (ensemble.CandidateOutput, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return ensemble.CandidateOutput{}, fmt.Errorf("waiting for rate limit: %w", err)
	}
	return r.inner.Generate(ctx, conv)
}
