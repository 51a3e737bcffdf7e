// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ensemble implements multi-model, multi-round text generation.
//
// Several language model generators propose candidate continuations to a
// shared conversation, a reward scorer ranks the candidates, and the best
// candidate is appended to the shared context before the next round begins.
// The package exposes:
//
//   - ConversationState: the shared, append-only conversation context
//   - Generator / Scorer: the backend contracts (implemented in
//     services/generators and services/scorers)
//   - EnsembleReasoner: the round-by-round selection loop and its
//     stopping-condition state machine
//   - EnsembleFramework: model selection plus batch orchestration on top
//     of the reasoner
//
// # Thread Safety
//
// ConversationState is not safe for concurrent mutation. The reasoner only
// mutates it on its own goroutine, after each round's parallel generation
// phase has joined.
package ensemble

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used when an example carries no instruction.
const DefaultSystemPrompt = "Solve the following math problem step by step. " +
	"Write your reasoning clearly using LaTeX. Box the final answer using \\boxed{}."

// Message is one turn of a chat-formatted prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles used by RenderMessages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Example is one input to the ensemble: a user question plus an optional
// system instruction override. Output is only populated on results.
type Example struct {
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Input       string `json:"input" yaml:"input"`
	Output      string `json:"output,omitempty" yaml:"output,omitempty"`
}

// ConversationState holds the system instruction, the fixed user question,
// and the ordered sequence of accepted assistant segments.
//
// # Description
//
// The state is created once per example, appended to at most once per round
// by the reasoner, and rendered into whatever shape a generator or scorer
// requires. Segments are never reordered or mutated in place.
//
// # Thread Safety
//
// Not safe for concurrent mutation. Safe for concurrent reads between
// mutations, which is all the reasoner's parallel phase needs.
type ConversationState struct {
	system   string
	question string
	segments []string
}

// NewConversationState creates conversation state for one example.
//
// # Inputs
//
//   - system: System instruction text. Empty falls back to DefaultSystemPrompt.
//   - question: The user question. Immutable after creation.
//
// # Outputs
//
//   - *ConversationState: Empty conversation ready for the first round.
func NewConversationState(system, question string) *ConversationState {
	if system == "" {
		system = DefaultSystemPrompt
	}
	return &ConversationState{
		system:   system,
		question: question,
	}
}

// Append trims leading and trailing whitespace from text and appends it as
// a new segment. Validation is the caller's responsibility.
func (c *ConversationState) Append(text string) {
	c.segments = append(c.segments, strings.TrimSpace(text))
}

// Render produces the flat prompt string fed to completion-style generators.
//
// # Description
//
// The format is a rendering contract shared with the generators' expected
// prompt shape: the system text wrapped in [SYSTEM]...[/SYSTEM], the trimmed
// question wrapped in <user>...</user>, and the newline-joined segments
// after an opening <assistant> marker with no closing marker. The context
// is intentionally left open so a generator continues it.
//
// Render is idempotent: calling it twice with no Append in between yields
// identical output.
func (c *ConversationState) Render() string {
	parts := []string{
		fmt.Sprintf("[SYSTEM] %s [/SYSTEM]", c.system),
		fmt.Sprintf("<user>\n%s\n</user>", strings.TrimSpace(c.question)),
		"<assistant>\n" + strings.Join(c.segments, "\n"),
	}
	return strings.Join(parts, "")
}

// RenderStructured returns the instruction/input/output view of the same
// state, for collaborators that expect structured input.
func (c *ConversationState) RenderStructured() Example {
	return Example{
		Instruction: c.system,
		Input:       strings.TrimSpace(c.question),
		Output:      strings.Join(c.segments, ""),
	}
}

// RenderMessages returns the chat-message view of the same state. The final
// assistant message carries everything accumulated so far and is meant to be
// continued, not answered.
func (c *ConversationState) RenderMessages() []Message {
	return []Message{
		{Role: RoleSystem, Content: c.system},
		{Role: RoleUser, Content: strings.TrimSpace(c.question)},
		{Role: RoleAssistant, Content: strings.Join(c.segments, "")},
	}
}

// Segments returns a copy of the accepted segments in acceptance order.
func (c *ConversationState) Segments() []string {
	out := make([]string, len(c.segments))
	copy(out, c.segments)
	return out
}

// FinalAnswer joins the accepted segments with newlines. This is the value
// returned to callers when a run terminates.
func (c *ConversationState) FinalAnswer() string {
	return strings.Join(c.segments, "\n")
}
